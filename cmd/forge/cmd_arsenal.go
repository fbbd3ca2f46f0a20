package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"quadforge/internal/arsenal"
	"quadforge/internal/council"
	"quadforge/internal/parts"
	"quadforge/internal/pipeline"
	"quadforge/internal/tui"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var seedPerClass int

// seedCmd stocks the arsenal ahead of design runs
var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Stock the arsenal with curated components for every part class",
	Long: `Resolves a curated set of sourcing queries against the live web and
stores the results, so later design runs hit the local arsenal instead
of re-scraping vendors. Classes run concurrently; individual failures
are logged and skipped.

Seeding works without an API key, but vision-assisted spec extraction
is skipped and stored parts may carry thinner spec sheets. Run
'forge refine' with a key later to heal them.`,
	RunE: runSeed,
}

// refineCmd re-sources parts whose spec sheets are too thin
var refineCmd = &cobra.Command{
	Use:   "refine",
	Short: "Re-source stored parts that are missing critical specs",
	Long: `Walks the arsenal for parts whose spec sheets are too thin to validate
against (no mounting pattern, no cell count, no weight) and re-resolves
them from the live web. Healthy parts are left alone.`,
	RunE: runRefine,
}

// arsenalCmd groups the read-only store inspection commands
var arsenalCmd = &cobra.Command{
	Use:   "arsenal",
	Short: "Inspect the local parts store and design history",
}

var arsenalListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored projects and their status",
	RunE:  runArsenalList,
}

var arsenalShowCmd = &cobra.Command{
	Use:   "show [project]",
	Short: "Show a stored design's full report and build history",
	Args:  cobra.ExactArgs(1),
	RunE:  runArsenalShow,
}

var arsenalSearchCmd = &cobra.Command{
	Use:   "search [term]",
	Short: "Search stored parts by meaning or name",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runArsenalSearch,
}

func init() {
	seedCmd.Flags().IntVar(&seedPerClass, "limit", 0, "Queries per part class (default: arsenal.seed_limit)")

	arsenalCmd.AddCommand(arsenalListCmd)
	arsenalCmd.AddCommand(arsenalShowCmd)
	arsenalCmd.AddCommand(arsenalSearchCmd)

	rootCmd.AddCommand(seedCmd)
	rootCmd.AddCommand(refineCmd)
	rootCmd.AddCommand(arsenalCmd)
}

// seedCatalog lists curated sourcing queries per part class, in
// shopping order. Seeding takes the first seed_limit of each class.
var seedCatalog = []struct {
	partType string
	queries  []string
}{
	{council.PartFrameKit, []string{
		"5 inch freestyle frame kit 225mm",
		"3 inch cinewhoop duct frame",
		"7 inch long range frame kit",
	}},
	{council.PartMotors, []string{
		"2306 1750kv fpv motor",
		"2207 1950kv freestyle motor",
		"1404 3800kv micro motor",
	}},
	{council.PartPropellers, []string{
		"5x4.3x3 tri-blade props",
		"3 inch cinewhoop propellers",
		"7x3.5 long range props",
	}},
	{council.PartFCStack, []string{
		"F7 flight controller 45A ESC stack 30.5mm",
		"F4 20x20 micro stack",
		"F7 55A 4-in-1 ESC stack",
	}},
	{council.PartCameraVTXKit, []string{
		"dji o3 air unit",
		"analog fpv camera vtx combo 5.8ghz",
		"caddx vista digital hd system",
	}},
	{council.PartBattery, []string{
		"6s 1100mah lipo battery",
		"4s 1500mah 100c lipo",
		"6s 3000mah li-ion long range pack",
	}},
	{"GPS_Module", []string{
		"m10 gps module fpv",
		"gps compass module ublox",
	}},
	{"RX_Module", []string{
		"elrs 2.4ghz receiver",
		"crossfire nano receiver",
	}},
}

// runSeed resolves the curated queries concurrently and reports totals
func runSeed(cmd *cobra.Command, args []string) error {
	ctx, cancel := runContext()
	defer cancel()

	store, err := openStore()
	if err != nil {
		return fmt.Errorf("arsenal open failed: %w", err)
	}
	defer store.Close()

	llm, err := newLLM()
	if err != nil {
		logger.Warn("seeding without vision, stored specs will be thinner", zap.Error(err))
		llm = nil
	}

	resolver, browser, err := newResolver(ctx, llm, store)
	if err != nil {
		return err
	}
	defer func() { _ = browser.Shutdown(context.Background()) }()

	limit := cfg.Arsenal.SeedLimit
	if seedPerClass > 0 {
		limit = seedPerClass
	}
	if limit <= 0 {
		limit = 3
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(3)

	var mu sync.Mutex
	stocked, failed := 0, 0

	for _, class := range seedCatalog {
		queries := class.queries
		if len(queries) > limit {
			queries = queries[:limit]
		}
		for _, q := range queries {
			partType, query := class.partType, q
			g.Go(func() error {
				part, rerr := resolver.Resolve(gctx, partType, query)
				mu.Lock()
				defer mu.Unlock()
				if rerr != nil {
					failed++
					logger.Warn("seed query failed", zap.String("query", query), zap.Error(rerr))
					fmt.Printf("✗ %-14s %q: %v\n", partType, query, rerr)
					return nil
				}
				stocked++
				fmt.Printf("✓ %-14s %s\n", partType, part.Name)
				return nil
			})
		}
	}
	_ = g.Wait()
	if ctx.Err() != nil {
		return ctx.Err()
	}

	total, err := store.CountParts(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("\nSeed complete: %d stocked, %d failed, %d parts in the arsenal (%s)\n",
		stocked, failed, total, store.Path())
	return nil
}

// runRefine walks the store and re-resolves thin parts
func runRefine(cmd *cobra.Command, args []string) error {
	ctx, cancel := runContext()
	defer cancel()

	store, err := openStore()
	if err != nil {
		return fmt.Errorf("arsenal open failed: %w", err)
	}
	defer store.Close()

	llm, err := newLLM()
	if err != nil {
		logger.Warn("refining without vision, re-sourced specs may stay thin", zap.Error(err))
		llm = nil
	}

	resolver, browser, err := newResolver(ctx, llm, store)
	if err != nil {
		return err
	}
	defer func() { _ = browser.Shutdown(context.Background()) }()

	examined, healed := 0, 0
	for _, category := range parts.AllCategories {
		stored, err := store.PartsByCategory(ctx, category)
		if err != nil {
			return err
		}
		for _, p := range stored {
			if p.HasCriticalSpecs() {
				continue
			}
			examined++
			// The fuser skips incomplete arsenal entries, so this goes
			// back to the web and the upsert refreshes the row.
			fresh, rerr := resolver.Resolve(ctx, string(p.Category), p.Name)
			if rerr != nil {
				logger.Warn("refine failed", zap.String("part", p.Name), zap.Error(rerr))
				fmt.Printf("✗ %s: %v\n", p.Name, rerr)
				continue
			}
			if fresh.HasCriticalSpecs() {
				healed++
				fmt.Printf("✓ %s\n", fresh.Name)
			} else {
				fmt.Printf("• %s: still missing critical specs\n", fresh.Name)
			}
		}
	}
	fmt.Printf("\nRefine complete: %d thin parts examined, %d healed\n", examined, healed)
	return nil
}

// runArsenalList prints the project table and the parts count
func runArsenalList(cmd *cobra.Command, args []string) error {
	ctx, cancel := runContext()
	defer cancel()

	store, err := openStore()
	if err != nil {
		return fmt.Errorf("arsenal open failed: %w", err)
	}
	defer store.Close()

	projects, err := store.Projects(ctx)
	if err != nil {
		return err
	}
	total, _ := store.CountParts(ctx)

	styles := tui.DefaultStyles()
	if len(projects) == 0 {
		fmt.Println(styles.Muted.Render("no stored projects; run 'forge design' first"))
	} else {
		table := tui.NewTable("Projects", "ID", "Name", "Status", "Updated")
		for _, p := range projects {
			table.AddRow(
				fmt.Sprintf("%d", p.ID),
				p.Name,
				p.Status,
				p.UpdatedAt.Format("2006-01-02 15:04"),
			)
		}
		fmt.Println(table.View(styles))
	}
	fmt.Printf("%d parts in the arsenal (%s)\n", total, store.Path())
	return nil
}

// runArsenalShow renders a stored design's report plus build history
func runArsenalShow(cmd *cobra.Command, args []string) error {
	ctx, cancel := runContext()
	defer cancel()

	store, err := openStore()
	if err != nil {
		return fmt.Errorf("arsenal open failed: %w", err)
	}
	defer store.Close()

	design, proj, err := loadDesign(ctx, store, args[0])
	if err != nil {
		return err
	}

	report, err := tui.Report(design)
	if err != nil {
		return err
	}
	fmt.Println(report)

	entries, err := store.BuildEntries(ctx, proj.ID)
	if err != nil || len(entries) == 0 {
		return err
	}
	styles := tui.DefaultStyles()
	table := tui.NewTable("Build History", "Gen", "Verdict", "Notes", "When")
	for _, e := range entries {
		table.AddRow(
			fmt.Sprintf("%d", e.Generation),
			e.Verdict,
			e.Notes,
			e.At.Format("2006-01-02 15:04"),
		)
	}
	fmt.Println(table.View(styles))
	return nil
}

// runArsenalSearch runs vector similarity (or the LIKE fallback) over
// stored parts
func runArsenalSearch(cmd *cobra.Command, args []string) error {
	ctx, cancel := runContext()
	defer cancel()

	store, err := openStore()
	if err != nil {
		return fmt.Errorf("arsenal open failed: %w", err)
	}
	defer store.Close()

	term := strings.Join(args, " ")
	found, err := store.SimilarParts(ctx, term, 15)
	if err != nil {
		return err
	}

	styles := tui.DefaultStyles()
	if len(found) == 0 {
		fmt.Println(styles.Muted.Render(fmt.Sprintf("nothing in the arsenal matches %q", term)))
		return nil
	}

	mode := "name match"
	if store.HasVectorIndex() {
		mode = "vector similarity"
	}
	table := tui.NewTable(fmt.Sprintf("Arsenal Search (%s)", mode), "Category", "Part", "Price", "Vendor")
	for _, p := range found {
		price := "n/a"
		if p.Price > 0 {
			price = fmt.Sprintf("$%.2f", p.Price)
		}
		vendor := p.Vendor
		if vendor == "" {
			vendor = "n/a"
		}
		table.AddRow(string(p.Category), p.Name, price, vendor)
	}
	fmt.Println(table.View(styles))
	return nil
}

// loadDesign pulls a stored project and decodes its master record.
func loadDesign(ctx context.Context, store *arsenal.Store, name string) (*pipeline.Design, *arsenal.Project, error) {
	proj, err := store.ProjectByName(ctx, name)
	if err != nil {
		return nil, nil, err
	}
	if proj == nil {
		return nil, nil, fmt.Errorf("no stored project named %q; 'forge arsenal list' shows what's there", name)
	}
	if len(proj.Design) == 0 {
		return nil, nil, fmt.Errorf("project %q has no master record (status %s)", name, proj.Status)
	}
	design := &pipeline.Design{}
	if err := json.Unmarshal(proj.Design, design); err != nil {
		return nil, nil, fmt.Errorf("master record for %q won't parse: %w", name, err)
	}
	return design, proj, nil
}
