package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"quadforge/internal/cad"
	"quadforge/internal/council"
	"quadforge/internal/dashboard"
	"quadforge/internal/pipeline"
	"quadforge/internal/tui"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// watchCmd keeps dashboards fresh while designs change on disk
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch the designs directory and rebuild dashboards on change",
	Long: `Watches the output directory and every design directory under it. When
a master_record.json changes (a pipeline run finishing, a manual edit),
that design's dashboard is reassembled in place from the record and
whatever meshes are on disk. Runs until interrupted.`,
	RunE: runWatch,
}

// statusCmd reports configuration and tool health
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show forge configuration and tool health",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(statusCmd)
}

// runWatch registers the output root and its design directories with
// fsnotify and rebuilds a dashboard whenever its master record lands
func runWatch(cmd *cobra.Command, args []string) error {
	root := outputRoot()
	if err := os.MkdirAll(root, 0755); err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watcher failed: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(root); err != nil {
		return err
	}
	entries, err := os.ReadDir(root)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.IsDir() {
			_ = watcher.Add(filepath.Join(root, e.Name()))
		}
	}

	fmt.Printf("Watching %s for design changes. Ctrl+C stops.\n", root)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// One rebuild per directory per second; a pipeline run touches the
	// record more than once on the way out.
	lastRun := make(map[string]time.Time)

	for {
		select {
		case <-sigCh:
			fmt.Println("\nWatch stopped")
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&fsnotify.Create != 0 {
				if info, serr := os.Stat(event.Name); serr == nil && info.IsDir() {
					_ = watcher.Add(event.Name)
					continue
				}
			}
			if filepath.Base(event.Name) != "master_record.json" {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			dir := filepath.Dir(event.Name)
			if time.Since(lastRun[dir]) < time.Second {
				continue
			}
			lastRun[dir] = time.Now()

			if path, rerr := reassembleDashboard(dir); rerr != nil {
				logger.Warn("dashboard rebuild failed", zap.String("dir", dir), zap.Error(rerr))
				fmt.Printf("✗ %s: %v\n", dir, rerr)
			} else {
				fmt.Printf("✓ rebuilt %s\n", path)
			}

		case werr, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("watch error", zap.Error(werr))
		}
	}
}

// reassembleDashboard rebuilds one design directory's dashboard from
// its master record and the meshes already on disk.
func reassembleDashboard(dir string) (string, error) {
	raw, err := os.ReadFile(filepath.Join(dir, "master_record.json"))
	if err != nil {
		return "", err
	}
	design := &pipeline.Design{}
	if err := json.Unmarshal(raw, design); err != nil {
		return "", fmt.Errorf("master record won't parse: %w", err)
	}

	slug := filepath.Base(dir)
	stls := make(map[string]string, len(dashboard.PartSlots))
	for _, slot := range dashboard.PartSlots {
		p := filepath.Join(dir, fmt.Sprintf("%s_%s.stl", slug, slot))
		if _, serr := os.Stat(p); serr == nil {
			stls[slot] = p
		}
	}

	var steps []council.GuideStep
	if design.Guide != nil {
		steps = design.Guide.Steps
	}

	return dashboard.Assemble(dir, dashboard.Artifacts{
		Name:        design.Name,
		WheelbaseMM: cad.PlanFromBOM(design.BOM).WheelbaseMM,
		PartSTLs:    stls,
		Physics:     design.Physics,
		Cost:        design.Cost,
		Steps:       steps,
		FlightLog:   design.FlightLog,
	})
}

// runStatus checks each external dependency and the arsenal
func runStatus(cmd *cobra.Command, args []string) error {
	ctx, cancel := runContext()
	defer cancel()

	styles := tui.DefaultStyles()
	fmt.Println(styles.Header.Render("quadforge status"))
	fmt.Println()

	check := func(ok bool, label string) {
		mark := styles.Success.Render("✓")
		if !ok {
			mark = styles.Error.Render("✗")
		}
		fmt.Printf("%s %s\n", mark, label)
	}

	check(true, "workspace: "+workspace)

	if cfg.LLM.APIKey != "" {
		check(true, fmt.Sprintf("Gemini key configured (model %s)", cfg.LLM.Model))
	} else {
		check(false, "Gemini key missing: set GEMINI_API_KEY or .forge/config.json")
	}

	if path, err := exec.LookPath(cfg.CAD.OpenSCADBinary); err == nil {
		check(true, "openscad: "+path)
	} else {
		check(false, fmt.Sprintf("openscad not found (%q); renders fall back to placeholder meshes", cfg.CAD.OpenSCADBinary))
	}

	if path, err := exec.LookPath(cfg.CAD.DotBinary); err == nil {
		check(true, "graphviz dot: "+path)
	} else {
		check(false, fmt.Sprintf("dot not found (%q); schematics stay as DOT source", cfg.CAD.DotBinary))
	}

	browserBin := cfg.Browser.BinaryPath
	if browserBin == "" {
		for _, candidate := range []string{"chromium", "chromium-browser", "google-chrome", "chrome"} {
			if _, err := exec.LookPath(candidate); err == nil {
				browserBin = candidate
				break
			}
		}
	}
	if browserBin != "" {
		check(true, "browser: "+browserBin)
	} else {
		check(false, "no Chromium-family browser found; rod downloads one on first scrape")
	}

	store, err := openStore()
	if err != nil {
		check(false, fmt.Sprintf("arsenal: %v", err))
		return nil
	}
	defer store.Close()

	partCount, _ := store.CountParts(ctx)
	projects, _ := store.Projects(ctx)
	mode := "name matching"
	if store.HasVectorIndex() {
		mode = "vector index"
	}
	check(true, fmt.Sprintf("arsenal: %s (%d parts, %d projects, %s)",
		store.Path(), partCount, len(projects), mode))
	return nil
}
