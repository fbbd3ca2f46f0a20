package arsenal

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quadforge/internal/parts"
)

// stubEngine maps known part vocabulary onto fixed vector slots so
// similarity rankings are deterministic under both the vec0 and the
// in-process paths.
type stubEngine struct {
	fail bool
}

var stubTerms = []string{"motor", "2207", "1404", "battery", "lipo", "frame"}

func (s *stubEngine) Embed(_ context.Context, text string) ([]float32, error) {
	if s.fail {
		return nil, errors.New("embedding backend down")
	}
	lower := strings.ToLower(text)
	vec := make([]float32, len(stubTerms))
	for i, term := range stubTerms {
		if strings.Contains(lower, term) {
			vec[i] = 1
		}
	}
	return vec, nil
}

func (s *stubEngine) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := s.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

func (s *stubEngine) Dimensions() int { return len(stubTerms) }
func (s *stubEngine) Name() string    { return "stub" }

func openTestStore(t *testing.T, engine *stubEngine) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "arsenal.db")
	var store *Store
	var err error
	if engine != nil {
		store, err = Open(path, engine)
	} else {
		store, err = Open(path, nil)
	}
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func motorPart(name string) *parts.Part {
	p := &parts.Part{
		Category:    parts.CategoryMotor,
		Name:        name,
		URL:         "https://example.com/" + strings.ReplaceAll(name, " ", "-"),
		Price:       24.99,
		Currency:    "USD",
		Vendor:      "example.com",
		Description: "Freestyle quad motor",
		Source:      parts.ProvenanceScrape,
	}
	p.SetSpec(parts.SpecKV, 1750.0, parts.ProvenanceScrape)
	return p
}

func TestUpsertAndLoadPart(t *testing.T) {
	store := openTestStore(t, nil)
	ctx := context.Background()

	p := motorPart("iFlight XING2 2207 1750KV")
	p.SetSpec(parts.SpecWeightG, 32.5, parts.ProvenanceScrape)
	require.NoError(t, store.UpsertPart(ctx, p))
	assert.NotEmpty(t, p.ID)

	got, err := store.PartByName(ctx, "iFlight XING2 2207 1750KV")
	require.NoError(t, err)
	require.NotNil(t, got)

	assert.Equal(t, p.ID, got.ID)
	assert.Equal(t, parts.CategoryMotor, got.Category)
	assert.Equal(t, "https://example.com/iFlight-XING2-2207-1750KV", got.URL)
	assert.Equal(t, 24.99, got.Price)
	assert.Equal(t, parts.ProvenanceScrape, got.Source)

	kv, ok := got.Specs.Float(parts.SpecKV)
	require.True(t, ok)
	assert.Equal(t, 1750.0, kv)
	weight, ok := got.Specs.Float(parts.SpecWeightG)
	require.True(t, ok)
	assert.Equal(t, 32.5, weight)

	assert.WithinDuration(t, p.CreatedAt, got.CreatedAt, time.Second)
}

func TestUpsertSameNameUpdates(t *testing.T) {
	store := openTestStore(t, nil)
	ctx := context.Background()

	first := motorPart("RCINPOWER GTS V4 2207")
	require.NoError(t, store.UpsertPart(ctx, first))

	second := motorPart("RCINPOWER GTS V4 2207")
	second.Price = 19.99
	second.Description = "On sale"
	require.NoError(t, store.UpsertPart(ctx, second))

	n, err := store.CountParts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := store.PartByName(ctx, "RCINPOWER GTS V4 2207")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, first.ID, got.ID, "conflict update keeps the original row id")
	assert.Equal(t, 19.99, got.Price)
	assert.Equal(t, "On sale", got.Description)
}

func TestPartByNameMiss(t *testing.T) {
	store := openTestStore(t, nil)

	got, err := store.PartByName(context.Background(), "does not exist")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestUpsertRejectsUnnamed(t *testing.T) {
	store := openTestStore(t, nil)

	err := store.UpsertPart(context.Background(), &parts.Part{Category: parts.CategoryMotor})
	assert.Error(t, err)
}

func TestPartsByCategory(t *testing.T) {
	store := openTestStore(t, nil)
	ctx := context.Background()

	require.NoError(t, store.UpsertPart(ctx, motorPart("Motor A")))
	require.NoError(t, store.UpsertPart(ctx, motorPart("Motor B")))
	battery := &parts.Part{Category: parts.CategoryBattery, Name: "CNHL 6S 1300mAh"}
	require.NoError(t, store.UpsertPart(ctx, battery))

	motors, err := store.PartsByCategory(ctx, parts.CategoryMotor)
	require.NoError(t, err)
	assert.Len(t, motors, 2)

	batteries, err := store.PartsByCategory(ctx, parts.CategoryBattery)
	require.NoError(t, err)
	require.Len(t, batteries, 1)
	assert.Equal(t, "CNHL 6S 1300mAh", batteries[0].Name)
}

func TestSearchParts(t *testing.T) {
	store := openTestStore(t, nil)
	ctx := context.Background()

	named := motorPart("T-Motor F60 Pro V")
	described := &parts.Part{
		Category:    parts.CategoryStack,
		Name:        "SpeedyBee F405 V4",
		Description: "30.5x30.5 stack, pairs with T-Motor builds",
	}
	other := &parts.Part{Category: parts.CategoryFrame, Name: "Source One V5"}
	require.NoError(t, store.UpsertPart(ctx, named))
	require.NoError(t, store.UpsertPart(ctx, described))
	require.NoError(t, store.UpsertPart(ctx, other))

	found, err := store.SearchParts(ctx, "T-Motor", 0)
	require.NoError(t, err)
	require.Len(t, found, 2)

	found, err = store.SearchParts(ctx, "Source One", 10)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "Source One V5", found[0].Name)
}

func TestSimilarPartsVectorRanking(t *testing.T) {
	store := openTestStore(t, &stubEngine{})
	ctx := context.Background()

	xing := motorPart("iFlight XING2 2207 1750KV")
	whoop := motorPart("Happymodel EX1404 3500KV")
	battery := &parts.Part{
		Category:    parts.CategoryBattery,
		Name:        "CNHL Black Series 1300mAh",
		Description: "6S LiPo pack",
	}
	require.NoError(t, store.UpsertPart(ctx, xing))
	require.NoError(t, store.UpsertPart(ctx, whoop))
	require.NoError(t, store.UpsertPart(ctx, battery))

	found, err := store.SimilarParts(ctx, "2207 freestyle motor", 2)
	require.NoError(t, err)
	require.Len(t, found, 2)
	assert.Equal(t, "iFlight XING2 2207 1750KV", found[0].Name)
	assert.Equal(t, "Happymodel EX1404 3500KV", found[1].Name)

	found, err = store.SimilarParts(ctx, "battery lipo pack", 1)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "CNHL Black Series 1300mAh", found[0].Name)
}

func TestSimilarPartsKeywordWithoutEngine(t *testing.T) {
	store := openTestStore(t, nil)
	ctx := context.Background()

	require.NoError(t, store.UpsertPart(ctx, motorPart("iFlight XING2 2207 1750KV")))
	require.NoError(t, store.UpsertPart(ctx, &parts.Part{
		Category: parts.CategoryFrame,
		Name:     "Source One V5",
	}))

	found, err := store.SimilarParts(ctx, "2207 motor", 3)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "iFlight XING2 2207 1750KV", found[0].Name)
}

func TestSimilarPartsEmbedFailureFallsBack(t *testing.T) {
	store := openTestStore(t, &stubEngine{fail: true})
	ctx := context.Background()

	require.NoError(t, store.UpsertPart(ctx, motorPart("iFlight XING2 2207 1750KV")))

	found, err := store.SimilarParts(ctx, "XING2", 3)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "iFlight XING2 2207 1750KV", found[0].Name)
}

func TestPartsSurviveReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "arsenal.db")
	ctx := context.Background()

	store, err := Open(path, nil)
	require.NoError(t, err)
	require.NoError(t, store.UpsertPart(ctx, motorPart("iFlight XING2 2207 1750KV")))
	require.NoError(t, store.Close())

	reopened, err := Open(path, nil)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.PartByName(ctx, "iFlight XING2 2207 1750KV")
	require.NoError(t, err)
	require.NotNil(t, got)

	n, err := reopened.CountParts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestProjectRoundTrip(t *testing.T) {
	store := openTestStore(t, nil)
	ctx := context.Background()

	p := &Project{
		Name:   "Prototype_V1",
		Intent: "5-inch freestyle quad under 300 dollars",
		Design: []byte(`{"session_id":"QF-20260824-120000"}`),
		Status: StatusInProgress,
	}
	require.NoError(t, store.SaveProject(ctx, p))
	assert.NotZero(t, p.ID)

	p.Status = StatusComplete
	require.NoError(t, store.SaveProject(ctx, p))

	got, err := store.ProjectByName(ctx, "Prototype_V1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, p.ID, got.ID)
	assert.Equal(t, StatusComplete, got.Status)
	assert.JSONEq(t, `{"session_id":"QF-20260824-120000"}`, string(got.Design))

	all, err := store.Projects(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)

	missing, err := store.ProjectByName(ctx, "no such project")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestBuildLogOrder(t *testing.T) {
	store := openTestStore(t, nil)
	ctx := context.Background()

	p := &Project{Name: "Prototype_V1", Status: StatusInProgress}
	require.NoError(t, store.SaveProject(ctx, p))

	require.NoError(t, store.LogBuild(ctx, p.ID, 1, "FAIL", "hover throttle over limit"))
	require.NoError(t, store.LogBuild(ctx, p.ID, 2, "PASS", ""))

	entries, err := store.BuildEntries(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, 1, entries[0].Generation)
	assert.Equal(t, "FAIL", entries[0].Verdict)
	assert.Equal(t, 2, entries[1].Generation)
	assert.Equal(t, "PASS", entries[1].Verdict)
	assert.False(t, entries[0].At.IsZero())

	empty, err := store.BuildEntries(ctx, p.ID+99)
	require.NoError(t, err)
	assert.Empty(t, empty)
}
