package fusion

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quadforge/internal/parts"
	"quadforge/internal/scrape"
	"quadforge/internal/search"
	"quadforge/internal/vision"
)

type fakeSearch struct {
	results   []search.Result
	err       error
	calls     int
	lastQuery string
	lastLimit int
}

func (f *fakeSearch) Search(_ context.Context, query string, limit int) ([]search.Result, error) {
	f.calls++
	f.lastQuery = query
	f.lastLimit = limit
	if f.err != nil {
		return nil, f.err
	}
	return f.results, nil
}

type fakeScraper struct {
	pages map[string]*scrape.PageData
}

func (f *fakeScraper) Product(_ context.Context, pageURL string) (*scrape.PageData, error) {
	page, ok := f.pages[pageURL]
	if !ok {
		return nil, fmt.Errorf("page never settled: %s", pageURL)
	}
	return page, nil
}

type fakeInspector struct {
	mu    sync.Mutex
	specs map[string]parts.Specs
	calls []string
}

func (f *fakeInspector) InspectImage(_ context.Context, imageURL, category string) (parts.Specs, error) {
	f.mu.Lock()
	f.calls = append(f.calls, imageURL+"|"+category)
	f.mu.Unlock()
	s, ok := f.specs[imageURL]
	if !ok {
		return nil, fmt.Errorf("%w: marketing photo", vision.ErrNoVision)
	}
	return s, nil
}

type fakeStore struct {
	byName    map[string]*parts.Part
	similar   []*parts.Part
	upserts   []*parts.Part
	upsertErr error
}

func (f *fakeStore) PartByName(_ context.Context, name string) (*parts.Part, error) {
	return f.byName[name], nil
}

func (f *fakeStore) SimilarParts(_ context.Context, _ string, _ int) ([]*parts.Part, error) {
	return f.similar, nil
}

func (f *fakeStore) UpsertPart(_ context.Context, p *parts.Part) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.upserts = append(f.upserts, p)
	return nil
}

func motorResults() ([]search.Result, map[string]*scrape.PageData) {
	results := []search.Result{
		{Title: "iFlight XING2 2207 Motor", URL: "https://getfpv.example/xing2", Source: "getfpv.example"},
		{Title: "EMAX ECO II 2207 1900KV", URL: "https://pyrodrone.example/eco2", Source: "pyrodrone.example"},
		{Title: "Dead motor listing", URL: "https://gone.example/x", Source: "gone.example"},
	}
	pages := map[string]*scrape.PageData{
		"https://getfpv.example/xing2": {
			Title:    "iFlight XING2 2207",
			ImageURL: "https://cdn.example/xing2.png",
			Text:     "Premium freestyle motor with unibell design",
		},
		"https://pyrodrone.example/eco2": {
			Title:    "EMAX ECO II 2207 1900KV",
			Price:    24.99,
			Currency: "USD",
			ImageURL: "https://cdn.example/eco2.jpg",
			Text:     "KV: 1900KV | Weight: 32.5g | Shaft: 4mm",
		},
	}
	return results, pages
}

func TestResolveComposesFromWeb(t *testing.T) {
	results, pages := motorResults()
	searcher := &fakeSearch{results: results}
	inspector := &fakeInspector{specs: map[string]parts.Specs{
		"https://cdn.example/xing2.png": {parts.SpecMotorMountMM: 16.0, parts.SpecShaftMM: 4.0},
	}}
	store := &fakeStore{}
	f := New(searcher, &fakeScraper{pages: pages}, inspector, store)

	part, err := f.Resolve(context.Background(), "Motors", "2207 freestyle motor")
	require.NoError(t, err)

	assert.Equal(t, 1, searcher.calls)
	assert.Equal(t, "2207 freestyle motor", searcher.lastQuery)
	assert.Equal(t, candidateLimit, searcher.lastLimit)

	// Identity and price come from the candidate that carries a real
	// price, specs and image from the vision-measured one.
	assert.Equal(t, "EMAX ECO II 2207 1900KV", part.Name)
	assert.Equal(t, 24.99, part.Price)
	assert.Equal(t, "USD", part.Currency)
	assert.Equal(t, "https://pyrodrone.example/eco2", part.URL)
	assert.Equal(t, "pyrodrone.example", part.Vendor)
	assert.Equal(t, "https://cdn.example/xing2.png", part.ImageURL)
	assert.Equal(t, parts.CategoryMotor, part.Category)
	assert.Equal(t, parts.ProvenanceVision, part.Source)
	assert.NotEmpty(t, part.ID)

	mount, ok := part.Specs.Float(parts.SpecMotorMountMM)
	require.True(t, ok)
	assert.Equal(t, 16.0, mount)
	assert.Equal(t, parts.ProvenanceVision, part.SpecSources[parts.SpecMotorMountMM])

	require.Len(t, store.upserts, 1)
	assert.Same(t, part, store.upserts[0])
}

func TestSetCandidateLimit(t *testing.T) {
	results, pages := motorResults()
	searcher := &fakeSearch{results: results}
	f := New(searcher, &fakeScraper{pages: pages}, &fakeInspector{}, nil)

	f.SetCandidateLimit(7)
	_, err := f.Resolve(context.Background(), "Motors", "2207 freestyle motor")
	require.NoError(t, err)
	assert.Equal(t, 7, searcher.lastLimit)

	// Nonsense limits keep the previous value.
	f.SetCandidateLimit(0)
	_, err = f.Resolve(context.Background(), "Motors", "2207 freestyle motor")
	require.NoError(t, err)
	assert.Equal(t, 7, searcher.lastLimit)
}

func TestResolveVisionOverridesInference(t *testing.T) {
	searcher := &fakeSearch{results: []search.Result{
		{Title: "BrotherHobby 2207 V2", URL: "https://shop.example/bh2207", Source: "shop.example"},
	}}
	scraper := &fakeScraper{pages: map[string]*scrape.PageData{
		"https://shop.example/bh2207": {Title: "BrotherHobby 2207 V2", Price: 21.5, Currency: "USD", ImageURL: "https://cdn.example/bh.png", Text: "2207 masterpiece"},
	}}
	inspector := &fakeInspector{specs: map[string]parts.Specs{
		"https://cdn.example/bh.png": {parts.SpecMotorMountMM: 19.0},
	}}
	f := New(searcher, scraper, inspector, nil)

	part, err := f.Resolve(context.Background(), "Motors", "2207 motor")
	require.NoError(t, err)

	// The stator table says 16mm, the drawing says 19mm. Drawing wins.
	mount, _ := part.Specs.Float(parts.SpecMotorMountMM)
	assert.Equal(t, 19.0, mount)
	assert.Equal(t, parts.ProvenanceVision, part.SpecSources[parts.SpecMotorMountMM])
	assert.Equal(t, parts.ProvenanceVision, part.Source)
}

func TestResolveMotorTextInference(t *testing.T) {
	searcher := &fakeSearch{results: []search.Result{
		{Title: "EMAX ECO II 2207 1900KV", URL: "https://pyrodrone.example/eco2", Source: "pyrodrone.example"},
	}}
	_, pages := motorResults()
	f := New(searcher, &fakeScraper{pages: pages}, &fakeInspector{}, nil)

	part, err := f.Resolve(context.Background(), "Motors", "eco ii 2207")
	require.NoError(t, err)

	mount, ok := part.Specs.Float(parts.SpecMotorMountMM)
	require.True(t, ok)
	assert.Equal(t, 16.0, mount)
	assert.Equal(t, parts.ProvenanceInference, part.SpecSources[parts.SpecMotorMountMM])
	assert.Equal(t, parts.ProvenanceInference, part.Source)

	kv, ok := part.Specs.Float(parts.SpecKV)
	require.True(t, ok)
	assert.Equal(t, 1900.0, kv)
	assert.Equal(t, parts.ProvenanceScrape, part.SpecSources[parts.SpecKV])

	weight, ok := part.Specs.Float(parts.SpecWeightG)
	require.True(t, ok)
	assert.Equal(t, 32.5, weight)
}

func TestResolvePropInference(t *testing.T) {
	searcher := &fakeSearch{results: []search.Result{
		{Title: "Gemfan Hurricane 51466 Props", URL: "https://shop.example/props", Source: "shop.example"},
	}}
	scraper := &fakeScraper{pages: map[string]*scrape.PageData{
		"https://shop.example/props": {Title: "Gemfan Hurricane 51466", Price: 3.99, Currency: "USD", Text: "Set of 4"},
	}}
	f := New(searcher, scraper, &fakeInspector{}, nil)

	part, err := f.Resolve(context.Background(), "Propellers", "5 inch props")
	require.NoError(t, err)

	inches, ok := part.Specs.Float(parts.SpecPropInches)
	require.True(t, ok)
	assert.Equal(t, 5.0, inches)
	assert.Equal(t, parts.ProvenanceInference, part.Source)
	assert.True(t, part.HasCriticalSpecs())
}

func TestResolveBatteryTextSpecs(t *testing.T) {
	searcher := &fakeSearch{results: []search.Result{
		{Title: "CNHL Black Series 1300mAh 6S", URL: "https://shop.example/cnhl", Source: "shop.example"},
	}}
	scraper := &fakeScraper{pages: map[string]*scrape.PageData{
		"https://shop.example/cnhl": {
			Title:    "CNHL Black Series 1300mAh 6S",
			Price:    26.0,
			Currency: "USD",
			Text:     "Capacity: 1300mAh | Weight: 210g | 6S 22.2V XT60",
		},
	}}
	f := New(searcher, scraper, &fakeInspector{}, nil)

	part, err := f.Resolve(context.Background(), "Battery", "6s 1300 lipo")
	require.NoError(t, err)

	cells, _ := part.Specs.Float(parts.SpecCells)
	capacity, _ := part.Specs.Float(parts.SpecCapacityMAh)
	weight, _ := part.Specs.Float(parts.SpecWeightG)
	assert.Equal(t, 6.0, cells)
	assert.Equal(t, 1300.0, capacity)
	assert.Equal(t, 210.0, weight)
	assert.True(t, part.HasCriticalSpecs())
	assert.Equal(t, parts.ProvenanceScrape, part.Source)
}

func TestResolveArsenalExactHit(t *testing.T) {
	stored := &parts.Part{ID: "p1", Category: parts.CategoryFrame, Name: "XILO Phreak 5"}
	searcher := &fakeSearch{}
	store := &fakeStore{byName: map[string]*parts.Part{"XILO Phreak 5": stored}}
	f := New(searcher, &fakeScraper{}, &fakeInspector{}, store)

	part, err := f.Resolve(context.Background(), "Frame_Kit", "XILO Phreak 5")
	require.NoError(t, err)
	assert.Same(t, stored, part)
	assert.Zero(t, searcher.calls)
	assert.Empty(t, store.upserts)
}

func TestResolveArsenalSimilarityHit(t *testing.T) {
	wrongCat := &parts.Part{ID: "v1", Category: parts.CategoryVTX, Name: "Rush Tank"}
	motor := &parts.Part{ID: "m1", Category: parts.CategoryMotor, Name: "T-Motor F60 Pro IV"}
	motor.SetSpec(parts.SpecKV, 1750.0, parts.ProvenanceArsenal)
	motor.SetSpec(parts.SpecThrustG, 1450.0, parts.ProvenanceArsenal)
	motor.SetSpec(parts.SpecWeightG, 33.8, parts.ProvenanceArsenal)

	searcher := &fakeSearch{}
	store := &fakeStore{similar: []*parts.Part{wrongCat, motor}}
	f := New(searcher, &fakeScraper{}, &fakeInspector{}, store)

	part, err := f.Resolve(context.Background(), "Motors", "2207 1750kv motor")
	require.NoError(t, err)
	assert.Same(t, motor, part)
	assert.Zero(t, searcher.calls)
}

func TestResolveArsenalIncompleteSimilarFallsThrough(t *testing.T) {
	partial := &parts.Part{ID: "m2", Category: parts.CategoryMotor, Name: "Mystery Motor"}
	partial.SetSpec(parts.SpecKV, 1900.0, parts.ProvenanceArsenal)

	results, pages := motorResults()
	searcher := &fakeSearch{results: results}
	store := &fakeStore{similar: []*parts.Part{partial}}
	f := New(searcher, &fakeScraper{pages: pages}, &fakeInspector{}, store)

	part, err := f.Resolve(context.Background(), "Motors", "2207 motor")
	require.NoError(t, err)
	assert.Equal(t, 1, searcher.calls)
	assert.NotSame(t, partial, part)
	require.Len(t, store.upserts, 1)
}

func TestResolveNoSearchResults(t *testing.T) {
	f := New(&fakeSearch{}, &fakeScraper{}, &fakeInspector{}, nil)

	_, err := f.Resolve(context.Background(), "Motors", "unobtainium motor")
	require.ErrorIs(t, err, ErrNoCandidates)
}

func TestResolveAllCandidatesBlocked(t *testing.T) {
	searcher := &fakeSearch{results: []search.Result{
		{Title: "Best motors?", URL: "https://reddit.com/r/fpv/post", Source: "reddit.com"},
		{Title: "Motor review", URL: "https://youtube.com/watch?v=x", Source: "youtube.com"},
	}}
	f := New(searcher, &fakeScraper{}, &fakeInspector{}, nil)

	_, err := f.Resolve(context.Background(), "Motors", "2207 motor")
	require.ErrorIs(t, err, ErrNoCandidates)
}

func TestResolveScrapeFailuresTolerated(t *testing.T) {
	results, pages := motorResults()
	delete(pages, "https://getfpv.example/xing2")
	searcher := &fakeSearch{results: results}
	f := New(searcher, &fakeScraper{pages: pages}, &fakeInspector{}, nil)

	part, err := f.Resolve(context.Background(), "Motors", "2207 motor")
	require.NoError(t, err)
	assert.Equal(t, "EMAX ECO II 2207 1900KV", part.Name)
}

func TestResolveSearchError(t *testing.T) {
	searcher := &fakeSearch{err: errors.New("backend down")}
	f := New(searcher, &fakeScraper{}, &fakeInspector{}, nil)

	_, err := f.Resolve(context.Background(), "Motors", "2207 motor")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoCandidates)
}

func TestResolveUpsertFailureNonFatal(t *testing.T) {
	results, pages := motorResults()
	store := &fakeStore{upsertErr: errors.New("disk full")}
	f := New(&fakeSearch{results: results}, &fakeScraper{pages: pages}, &fakeInspector{}, store)

	part, err := f.Resolve(context.Background(), "Motors", "2207 motor")
	require.NoError(t, err)
	assert.NotNil(t, part)
}

func TestCategoryForPartType(t *testing.T) {
	cases := []struct {
		partType string
		want     parts.Category
	}{
		{"Motors", parts.CategoryMotor},
		{"Frame_Kit", parts.CategoryFrame},
		{"FC_Stack", parts.CategoryStack},
		{"Flight Controller", parts.CategoryStack},
		{"Camera_VTX_Kit", parts.CategoryCamera},
		{"Battery", parts.CategoryBattery},
		{"Propellers", parts.CategoryProp},
		{"GPS_Module", parts.CategoryGPS},
		{"Receiver", parts.CategoryRX},
		{"VTX", parts.CategoryVTX},
		{"Screws", parts.Category("")},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, CategoryForPartType(tc.partType), tc.partType)
	}
}

func TestBestSpecCandidate(t *testing.T) {
	bare := &parts.Part{Category: parts.CategoryFrame, Name: "bare"}
	inferred := &parts.Part{Category: parts.CategoryMotor, Name: "inferred"}
	inferred.SetSpec(parts.SpecKV, 1750.0, parts.ProvenanceScrape)
	complete := &parts.Part{Category: parts.CategoryBattery, Name: "complete"}
	complete.SetSpec(parts.SpecCells, 6.0, parts.ProvenanceScrape)
	complete.SetSpec(parts.SpecCapacityMAh, 1300.0, parts.ProvenanceScrape)
	complete.SetSpec(parts.SpecWeightG, 210.0, parts.ProvenanceScrape)

	assert.Same(t, complete, bestSpecCandidate([]*parts.Part{bare, inferred, complete}))
	assert.Same(t, inferred, bestSpecCandidate([]*parts.Part{bare, inferred}))
	assert.Same(t, bare, bestSpecCandidate([]*parts.Part{bare}))
}
