package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"quadforge/internal/cad"
	"quadforge/internal/council"
	"quadforge/internal/fusion"
	"quadforge/internal/geometry"
	"quadforge/internal/logging"
	"quadforge/internal/parts"
	"quadforge/internal/physics"
	"quadforge/internal/rules"
)

// ErrUnvalidated means every repair attempt ran out without a buildable,
// compatible design.
var ErrUnvalidated = errors.New("pipeline: design failed validation")

// session is the mutable state of one validation loop.
type session struct {
	plan     *council.EngineeringPlan
	sheet    *council.SpecSheet
	bom      []*parts.Part
	failures []council.FailureReport
	stuck    *council.BuyItem // last buy line that found nothing
}

// validate sources the spec sheet and loops until the inspector, the
// compatibility rulebase and the geometry check all pass, repairing or
// re-architecting between rounds. On success the design carries the
// validated BOM, blueprint and check reports.
func (d *Designer) validate(ctx context.Context, design *Design, sheet *council.SpecSheet) error {
	maxAttempts := d.cfg.Pipeline.MaxValidationAttempts
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	s := &session{plan: design.Plan, sheet: sheet}

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		design.trace("validate", "attempt %d of %d", attempt, maxAttempts)
		done, err := d.round(ctx, design, s, attempt)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
	}

	// Autonomy ran out. A sourcing dead end is worth one operator-aided
	// retry before giving up.
	if s.stuck != nil && d.clarify != nil {
		design.trace("escalate", "sourcing dead end on %s, asking the operator", s.stuck.PartType)
		if d.escalate(ctx, design, s) {
			done, err := d.round(ctx, design, s, maxAttempts+1)
			if err != nil {
				return err
			}
			if done {
				return nil
			}
		}
	}
	return fmt.Errorf("%w after %d attempts", ErrUnvalidated, maxAttempts)
}

// round runs one source-inspect-check pass. It reports done=true when
// the design cleared every check.
func (d *Designer) round(ctx context.Context, design *Design, s *session, attempt int) (bool, error) {
	att := Attempt{Round: attempt}

	// Source the sheet whenever the BOM was reset.
	if s.bom == nil {
		stuck, err := d.source(ctx, s)
		if err != nil {
			return false, err
		}
		if stuck != nil {
			s.stuck = stuck
			failure := council.SourcingFailure(stuck.PartType, stuck.SearchQuery)
			s.failures = append(s.failures, failure)
			att.Failure = council.FailureSourcing
			att.Detail = fmt.Sprintf("%s: %q found nothing", stuck.PartType, stuck.SearchQuery)
			att.Result = ResultRearchitect
			if err := d.rearchitectSourcing(ctx, design, s, failure); err != nil {
				att.Result = ResultRetry
				logging.PipelineWarn("re-architecture unavailable: %v", err)
			}
			s.bom = nil
			design.ValidationLog = append(design.ValidationLog, att)
			return false, nil
		}
	}
	att.BOM = bomNames(s.bom)

	// Conceptual check: can these parts form one craft at all?
	blueprint, err := d.council.Inspector.Blueprint(ctx, s.bom)
	if err != nil {
		return false, fmt.Errorf("inspector: %w", err)
	}
	if !blueprint.IsBuildable {
		reason := blueprint.IncompatibilityReason
		if reason == "" {
			reason = "inspector rejected the bill of materials"
		}
		failure := council.ConceptualFailure(reason)
		s.failures = append(s.failures, failure)
		att.Failure = council.FailureConceptual
		att.Detail = reason
		design.trace("inspector", "not buildable: %s", clip(reason, 140))

		remedy, derr := d.council.Optimizer.Diagnose(ctx, s.bom, failure)
		if derr != nil {
			return false, fmt.Errorf("optimizer: %w", derr)
		}
		att.Fix = remedy.Strategy
		if remedy.RequiresRearchitecture() {
			att.Result = ResultRearchitect
			d.rearchitect(ctx, design, s, remedy)
		} else {
			att.Result = ResultRetry
			s.bom, _ = d.applySwap(ctx, s.bom, remedy.Replacements[0])
		}
		design.ValidationLog = append(design.ValidationLog, att)
		return false, nil
	}

	// Deterministic checks: the rulebase and the geometry model.
	faults, compat, geo, err := d.check(design, s)
	if err != nil {
		return false, err
	}
	if len(faults) > 0 {
		failure := council.GeometricFailure(faults)
		s.failures = append(s.failures, failure)
		att.Failure = council.FailureGeometric
		att.Detail = strings.Join(faults, "; ")
		design.trace("geometry", "%d faults: %s", len(faults), clip(att.Detail, 140))

		remedy, derr := d.council.Optimizer.Diagnose(ctx, s.bom, failure)
		if derr != nil {
			return false, fmt.Errorf("optimizer: %w", derr)
		}
		att.Fix = remedy.Strategy
		att.Result = ResultRetry
		// Fitment faults always come down to one wrong part.
		s.bom, _ = d.applySwap(ctx, s.bom, remedy.Replacements[0])
		design.ValidationLog = append(design.ValidationLog, att)
		return false, nil
	}

	att.Result = ResultSuccess
	design.ValidationLog = append(design.ValidationLog, att)
	design.BOM = s.bom
	design.Blueprint = blueprint
	design.Compat = compat
	design.Geometry = geo
	design.trace("validate", "design validated on attempt %d", attempt)
	return true, nil
}

// source resolves every buy line into a concrete part. The plan's
// forced anchor fills its slot without a fresh search. A line that
// finds nothing is returned as stuck, with the partial BOM kept on the
// session for anchoring.
func (d *Designer) source(ctx context.Context, s *session) (*council.BuyItem, error) {
	bom := make([]*parts.Part, 0, len(s.sheet.BuyList))
	for i := range s.sheet.BuyList {
		item := &s.sheet.BuyList[i]
		if anchor := s.plan.ForcedAnchor; anchor != nil && fusion.CategoryForPartType(item.PartType) == anchor.Category {
			logging.Pipeline("anchor fills %s: %s", item.PartType, anchor.Name)
			bom = append(bom, anchor)
			continue
		}
		part, err := d.resolver.Resolve(ctx, item.PartType, item.SearchQuery)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			logging.PipelineWarn("sourcing failed for %s: %v", item.PartType, err)
			s.bom = bom
			return item, nil
		}
		bom = append(bom, part)
	}
	s.bom = bom
	return nil, nil
}

// rearchitectSourcing rebuilds the spec sheet after a sourcing dead
// end: whatever did resolve is pinned as the anchor, and the optimizer
// rewrites the stuck line's query.
func (d *Designer) rearchitectSourcing(ctx context.Context, design *Design, s *session, failure council.FailureReport) error {
	if len(s.bom) > 0 {
		s.plan.ForcedAnchor = s.bom[0]
		design.trace("rearchitect", "anchoring on %s", s.bom[0].Name)
	}
	remedy, err := d.council.Optimizer.Diagnose(ctx, s.bom, failure)
	if err != nil {
		return err
	}
	sheet, err := d.council.Sourcer.SpecSheet(ctx, s.plan)
	if err != nil {
		return err
	}
	overrideQuery(sheet, remedy.Replacements[0])
	s.sheet = sheet
	s.bom = nil
	return nil
}

// rearchitect handles a condemned concept: the optimizer's replacement
// is resolved into a real part, pinned as the anchor, and the sheet is
// rewritten around it. The BOM resets so the next round re-sources.
func (d *Designer) rearchitect(ctx context.Context, design *Design, s *session, remedy *council.Remedy) {
	rep := remedy.Replacements[0]
	design.trace("rearchitect", "concept condemned, rebuilding around %s", rep.PartType)

	if anchor, err := d.resolver.Resolve(ctx, rep.PartType, rep.NewSearchQuery); err == nil {
		s.plan.ForcedAnchor = anchor
	} else {
		logging.PipelineWarn("anchor sourcing failed, re-architecting without one: %v", err)
	}
	sheet, err := d.council.Sourcer.SpecSheet(ctx, s.plan)
	if err != nil {
		logging.PipelineWarn("spec sheet rewrite failed, keeping current sheet: %v", err)
	} else {
		s.sheet = sheet
	}
	s.bom = nil
}

// applySwap sources a replacement and splices it over the part of the
// same category. A failed replacement keeps the old part; the next
// round diagnoses again.
func (d *Designer) applySwap(ctx context.Context, bom []*parts.Part, rep council.Replacement) ([]*parts.Part, bool) {
	part, err := d.resolver.Resolve(ctx, rep.PartType, rep.NewSearchQuery)
	if err != nil {
		logging.PipelineWarn("replacement %s not sourceable: %v", rep.PartType, err)
		return bom, false
	}
	category := fusion.CategoryForPartType(rep.PartType)
	out := make([]*parts.Part, len(bom))
	copy(out, bom)
	for i, p := range out {
		if p.Category == category {
			logging.Pipeline("replacing %q with %q", p.Name, part.Name)
			out[i] = part
			return out, true
		}
	}
	return append(out, part), true
}

// check runs the compatibility rulebase and the fitment model over the
// current BOM, returning every fault in one list.
func (d *Designer) check(design *Design, s *session) ([]string, *rules.Verdict, *geometry.Report, error) {
	target := rules.Target{
		VoltageV:   s.plan.Topology.VoltageV(),
		PropInches: s.plan.Topology.PropSizeInch,
	}
	verdict, err := d.checker.Check(target, s.bom)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("compatibility check: %w", err)
	}

	cadPlan := cad.PlanFromBOM(s.bom)
	layout := geometry.Layout{
		WheelbaseMM:    cadPlan.WheelbaseMM,
		PropDiameterMM: cadPlan.PropDiameterMM,
		FCMountMM:      cadPlan.FCMountMM,
	}
	if in, perr := physics.Prepare(s.bom); perr == nil {
		layout.TotalWeightG = float64(in.TotalWeightG)
	}
	geo := geometry.Check(layout)

	var faults []string
	for _, f := range verdict.Findings {
		faults = append(faults, f.Detail)
	}
	faults = append(faults, geo.Errors...)
	return faults, verdict, &geo, nil
}

// escalate asks the operator one interviewer-framed question about the
// stuck line and turns the reply into a new search query. Reports
// whether a retry is worth running.
func (d *Designer) escalate(ctx context.Context, design *Design, s *session) bool {
	clar, err := d.council.Interviewer.Clarify(ctx, s.plan.BuildSummary, s.failures)
	if err != nil {
		logging.PipelineWarn("interviewer unavailable: %v", err)
		return false
	}
	answer, err := d.clarify.Ask(ctx, clar)
	if err != nil || strings.TrimSpace(answer) == "" {
		logging.Pipeline("operator declined to intervene")
		return false
	}
	design.ValidationLog = append(design.ValidationLog, Attempt{
		Round:   len(design.ValidationLog) + 1,
		Failure: council.FailureSourcing,
		Detail:  fmt.Sprintf("operator override for %s: %q", s.stuck.PartType, answer),
		Result:  ResultEscalate,
	})
	overrideQuery(s.sheet, council.Replacement{PartType: s.stuck.PartType, NewSearchQuery: answer})
	s.bom = nil
	return true
}

// overrideQuery rewrites the matching buy line's search query in place.
func overrideQuery(sheet *council.SpecSheet, rep council.Replacement) {
	for i := range sheet.BuyList {
		if sheet.BuyList[i].PartType == rep.PartType {
			sheet.BuyList[i].SearchQuery = rep.NewSearchQuery
			return
		}
	}
	sheet.BuyList = append(sheet.BuyList, council.BuyItem{
		PartType:    rep.PartType,
		SearchQuery: rep.NewSearchQuery,
		Quantity:    1,
	})
}
