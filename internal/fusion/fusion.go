// Package fusion resolves one buy-list line into one concrete part.
//
// No single vendor page carries everything validation needs, so the
// fuser stitches a composite: search finds candidate listings, each is
// scraped for price and imagery, the vision model reads mounting
// dimensions off the product image, and text heuristics fill what is
// still missing. The arsenal is consulted before the web and receives
// the resolved part afterwards.
package fusion

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"quadforge/internal/logging"
	"quadforge/internal/parts"
	"quadforge/internal/scrape"
	"quadforge/internal/search"
	"quadforge/internal/vision"
)

// ErrNoCandidates means no viable product page survived search,
// blocklist and scrape for a query. Callers treat it as a sourcing
// failure and re-plan rather than abort.
var ErrNoCandidates = errors.New("no sourcing candidates")

const (
	candidateLimit = 3
	similarLimit   = 3
	snippetLen     = 200
)

// Searcher yields candidate product pages for a query.
type Searcher interface {
	Search(ctx context.Context, query string, limit int) ([]search.Result, error)
}

// Scraper turns a product URL into structured page data.
type Scraper interface {
	Product(ctx context.Context, pageURL string) (*scrape.PageData, error)
}

// Inspector extracts dimensions from a product image.
type Inspector interface {
	InspectImage(ctx context.Context, imageURL, category string) (parts.Specs, error)
}

// Store is the arsenal slice the fuser reads and writes. PartByName
// reports a miss as (nil, nil).
type Store interface {
	PartByName(ctx context.Context, name string) (*parts.Part, error)
	SimilarParts(ctx context.Context, text string, k int) ([]*parts.Part, error)
	UpsertPart(ctx context.Context, p *parts.Part) error
}

// Fuser resolves spec-sheet queries into composite parts.
type Fuser struct {
	search  Searcher
	scraper Scraper
	vision  Inspector
	store   Store
	limit   int
}

// New wires a fuser. vision and store may be nil; resolution then runs
// on search, scrape and text heuristics alone.
func New(searcher Searcher, scraper Scraper, inspector Inspector, store Store) *Fuser {
	return &Fuser{search: searcher, scraper: scraper, vision: inspector, store: store, limit: candidateLimit}
}

// SetCandidateLimit caps how many search hits are scraped per query.
func (f *Fuser) SetCandidateLimit(n int) {
	if n > 0 {
		f.limit = n
	}
}

// CategoryForPartType maps a spec-sheet part type ("Motors",
// "Frame_Kit", "FC_Stack", "Camera_VTX_Kit") onto the parts taxonomy.
// Unknown types map to the empty category, which carries no critical
// spec requirements.
func CategoryForPartType(partType string) parts.Category {
	pt := strings.ToUpper(partType)
	switch {
	case strings.Contains(pt, "MOTOR"):
		return parts.CategoryMotor
	case strings.Contains(pt, "FRAME"):
		return parts.CategoryFrame
	case strings.Contains(pt, "PROP"):
		return parts.CategoryProp
	case strings.Contains(pt, "BATTERY"), strings.Contains(pt, "LIPO"):
		return parts.CategoryBattery
	// Camera_VTX_Kit reads as a camera, so this arm stays above VTX.
	case strings.Contains(pt, "CAMERA"):
		return parts.CategoryCamera
	case strings.Contains(pt, "FC"), strings.Contains(pt, "STACK"), strings.Contains(pt, "CONTROLLER"):
		return parts.CategoryStack
	case strings.Contains(pt, "GPS"):
		return parts.CategoryGPS
	case strings.Contains(pt, "VTX"):
		return parts.CategoryVTX
	case strings.Contains(pt, "RX"), strings.Contains(pt, "RECEIVER"):
		return parts.CategoryRX
	}
	return parts.Category("")
}

func visionCategory(cat parts.Category) string {
	switch cat {
	case parts.CategoryMotor:
		return vision.CategoryMotor
	case parts.CategoryStack:
		return vision.CategoryFCStack
	case parts.CategoryCamera:
		return vision.CategoryCamera
	}
	return ""
}

// Resolve sources a part for the given spec-sheet line. The arsenal is
// checked first (exact name, then similarity gated on category and
// critical-spec completeness); otherwise the top search hits are
// scraped and measured in parallel and the best composite wins.
func (f *Fuser) Resolve(ctx context.Context, partType, query string) (*parts.Part, error) {
	category := CategoryForPartType(partType)
	logging.Fusion("[resolve] part_type=%s category=%s query=%q", partType, category, query)

	if p := f.fromArsenal(ctx, category, query); p != nil {
		logging.Fusion("[resolve] arsenal hit %q for %q", p.Name, query)
		return p, nil
	}

	results, err := f.search.Search(ctx, query, f.limit)
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", query, err)
	}
	if len(results) == 0 {
		return nil, fmt.Errorf("%w: search returned nothing for %q", ErrNoCandidates, query)
	}

	candidates := f.gather(ctx, results, category)
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if len(candidates) == 0 {
		return nil, fmt.Errorf("%w: no product page survived for %q", ErrNoCandidates, query)
	}

	part := compose(candidates)
	logging.Fusion("[resolve] selected %q price=%.2f method=%s alternatives=%d",
		part.Name, part.Price, part.Source, len(candidates))

	if f.store != nil {
		if err := f.store.UpsertPart(ctx, part); err != nil {
			logging.FusionWarn("[resolve] arsenal upsert failed for %q: %v", part.Name, err)
		}
	}
	return part, nil
}

func (f *Fuser) fromArsenal(ctx context.Context, category parts.Category, query string) *parts.Part {
	if f.store == nil {
		return nil
	}
	p, err := f.store.PartByName(ctx, query)
	if err != nil {
		logging.FusionDebug("[arsenal] name lookup failed: %v", err)
	} else if p != nil {
		return p
	}
	similar, err := f.store.SimilarParts(ctx, query, similarLimit)
	if err != nil {
		logging.FusionDebug("[arsenal] similarity lookup failed: %v", err)
		return nil
	}
	for _, s := range similar {
		if s.Category == category && s.HasCriticalSpecs() {
			return s
		}
	}
	return nil
}

func (f *Fuser) gather(ctx context.Context, results []search.Result, category parts.Category) []*parts.Part {
	slots := make([]*parts.Part, len(results))
	g, gctx := errgroup.WithContext(ctx)
	for i, res := range results {
		g.Go(func() error {
			slots[i] = f.processCandidate(gctx, res, category)
			return nil
		})
	}
	_ = g.Wait()

	out := make([]*parts.Part, 0, len(slots))
	for _, c := range slots {
		if c != nil {
			out = append(out, c)
		}
	}
	return out
}

// processCandidate scrapes one search hit and layers specs onto it:
// vision first, then the category inference fallbacks, then whatever
// the listing text states outright. A blocked or unscrapeable link
// yields nil.
func (f *Fuser) processCandidate(ctx context.Context, res search.Result, category parts.Category) *parts.Part {
	if search.Blocked(res.URL) {
		logging.FusionDebug("[candidate] blocked domain %s", res.URL)
		return nil
	}
	logging.FusionDebug("[candidate] trying %q", clip(res.Title, 40))

	page, err := f.scraper.Product(ctx, res.URL)
	if err != nil {
		logging.FusionWarn("[candidate] scrape failed url=%s: %v", res.URL, err)
		return nil
	}

	p := &parts.Part{
		Category:    category,
		Name:        strings.TrimSpace(firstNonEmpty(page.Title, res.Title)),
		URL:         res.URL,
		ImageURL:    page.ImageURL,
		Price:       page.Price,
		Currency:    page.Currency,
		Vendor:      res.Source,
		Description: clip(page.Text, snippetLen),
		Source:      parts.ProvenanceScrape,
	}

	if vcat := visionCategory(category); vcat != "" && p.ImageURL != "" && f.vision != nil {
		specs, err := f.vision.InspectImage(ctx, p.ImageURL, vcat)
		switch {
		case err == nil:
			for k, v := range specs {
				p.SetSpec(k, v, parts.ProvenanceVision)
			}
			p.Source = parts.ProvenanceVision
		case errors.Is(err, vision.ErrNoVision):
			logging.FusionDebug("[candidate] vision unusable for %s: %v", p.ImageURL, err)
		default:
			logging.FusionWarn("[candidate] vision error for %s: %v", p.ImageURL, err)
		}
	}

	if category == parts.CategoryMotor && !p.Specs.Has(parts.SpecMotorMountMM) {
		if mount, ok := parts.MotorMountFromStator(p.Name); ok {
			p.SetSpec(parts.SpecMotorMountMM, mount, parts.ProvenanceInference)
			p.Source = parts.ProvenanceInference
		}
	}
	if category == parts.CategoryProp && !p.Specs.Has(parts.SpecPropInches) {
		if inches := parts.ExtractPropInches(p.Name); inches > 0 {
			p.SetSpec(parts.SpecPropInches, inches, parts.ProvenanceInference)
			p.Source = parts.ProvenanceInference
		}
	}

	extractTextSpecs(p, p.Name+" "+page.Text)
	return p
}

// extractTextSpecs records values the listing states outright. Derived
// estimates stay out so downstream physics can tell data from guesses.
func extractTextSpecs(p *parts.Part, text string) {
	switch p.Category {
	case parts.CategoryMotor:
		if kv := parts.ExtractKV(text); kv > 0 && !p.Specs.Has(parts.SpecKV) {
			p.SetSpec(parts.SpecKV, float64(kv), parts.ProvenanceScrape)
		}
		if stator, ok := parts.ExtractStator(p.Name); ok && !p.Specs.Has(parts.SpecStator) {
			p.SetSpec(parts.SpecStator, stator, parts.ProvenanceScrape)
		}
		if w := parts.ExtractWeightG(text); w > 0 && !p.Specs.Has(parts.SpecWeightG) {
			p.SetSpec(parts.SpecWeightG, w, parts.ProvenanceScrape)
		}
	case parts.CategoryBattery:
		if cells := parts.ExtractCells(text); cells > 0 && !p.Specs.Has(parts.SpecCells) {
			p.SetSpec(parts.SpecCells, float64(cells), parts.ProvenanceScrape)
		}
		if mah := parts.ExtractCapacityMAh(text); mah > 0 && !p.Specs.Has(parts.SpecCapacityMAh) {
			p.SetSpec(parts.SpecCapacityMAh, float64(mah), parts.ProvenanceScrape)
		}
		if w := parts.ExtractWeightG(text); w > 0 && !p.Specs.Has(parts.SpecWeightG) {
			p.SetSpec(parts.SpecWeightG, w, parts.ProvenanceScrape)
		}
	}
}

// compose merges the ranked candidates into one part. Identity, price
// and link come from the most relevant candidate with a real price;
// specs and reference image come from the best-measured one.
func compose(candidates []*parts.Part) *parts.Part {
	primary := candidates[0]
	if primary.Price <= 0 {
		for _, c := range candidates {
			if c.Price > 0 {
				primary = c
				break
			}
		}
	}

	best := bestSpecCandidate(candidates)

	now := time.Now().UTC()
	merged := &parts.Part{
		ID:          uuid.NewString(),
		Category:    primary.Category,
		Name:        primary.Name,
		URL:         primary.URL,
		ImageURL:    best.ImageURL,
		Price:       primary.Price,
		Currency:    primary.Currency,
		Vendor:      primary.Vendor,
		Description: primary.Description,
		Specs:       best.Specs.Clone(),
		Source:      best.Source,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if len(best.SpecSources) > 0 {
		merged.SpecSources = make(map[string]parts.Provenance, len(best.SpecSources))
		for k, v := range best.SpecSources {
			merged.SpecSources[k] = v
		}
	}
	return merged
}

func bestSpecCandidate(candidates []*parts.Part) *parts.Part {
	for _, c := range candidates {
		if c.HasCriticalSpecs() && len(c.Specs) > 0 {
			return c
		}
	}
	for _, c := range candidates {
		if len(c.Specs) > 0 {
			return c
		}
	}
	return candidates[0]
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// clip truncates at a rune boundary at or below n bytes.
func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
