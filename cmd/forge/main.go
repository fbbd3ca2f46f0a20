package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"quadforge/internal/arsenal"
	"quadforge/internal/config"
	"quadforge/internal/embedding"
	"quadforge/internal/fusion"
	"quadforge/internal/gemini"
	"quadforge/internal/logging"
	"quadforge/internal/scrape"
	"quadforge/internal/search"
	"quadforge/internal/secrets"
	"quadforge/internal/vision"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// Global flags
	verbose   bool
	cfgFile   string
	workspace string
	timeout   time.Duration

	// Logger
	logger *zap.Logger

	// Loaded configuration, set by PersistentPreRunE before any RunE.
	cfg *config.Config
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "forge",
	Short: "quadforge - autonomous FPV drone design pipeline",
	Long: `quadforge turns a natural-language request into a buildable FPV drone.

An LLM design council interprets the request and drafts a spec sheet,
live web sourcing resolves every line to a purchasable component,
Datalog compatibility rules and a flight physics gate validate the
package, and OpenSCAD renders the printable airframe around the real
parts. Every run leaves a designs/<name>/ directory holding the meshes,
the wiring schematic, the cost manifest, the flight log and a
single-file 3D dashboard.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Initialize logger
		zcfg := zap.NewProductionConfig()
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		// Resolve workspace
		if workspace == "" {
			if workspace, err = config.FindWorkspaceRoot(); err != nil {
				workspace, _ = os.Getwd()
			}
		}
		if err := logging.Initialize(workspace); err != nil {
			logger.Warn("file logging unavailable", zap.Error(err))
		}

		// File-backed secrets surface as env vars, so viper's env
		// bindings and config.Load see the same key either way.
		if loadedSecrets, serr := secrets.Load(filepath.Join(workspace, ".forge", "secrets")); serr != nil {
			logger.Warn("secrets load failed", zap.Error(serr))
		} else {
			secrets.ApplyEnv(loadedSecrets)
		}

		cfg, err = loadConfig()
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.CloseAll()
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (default: forge.yaml in the workspace)")
	rootCmd.PersistentFlags().StringVarP(&workspace, "workspace", "w", "", "Workspace directory (default: nearest .forge or go.mod)")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 15*time.Minute, "Operation timeout")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// envOverrides maps config keys to the environment variables that
// override them, the same set config.Load honors for YAML-only callers.
var envOverrides = map[string]string{
	"llm.api_key":           "GEMINI_API_KEY",
	"llm.model":             "FORGE_MODEL",
	"llm.base_url":          "FORGE_LLM_URL",
	"arsenal.database_path": "FORGE_DB",
	"cad.openscad_binary":   "FORGE_OPENSCAD",
	"cad.output_dir":        "FORGE_OUTPUT_DIR",
	"browser.binary_path":   "FORGE_BROWSER_BIN",
}

// loadConfig reads forge.yaml through viper, layering defaults, the
// config file, environment overrides and the operator's
// .forge/config.json secrets, in that order.
func loadConfig() (*config.Config, error) {
	v := viper.New()
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("forge")
		v.SetConfigType("yaml")
		v.AddConfigPath(workspace)
		v.AddConfigPath(filepath.Join(workspace, ".forge"))
	}
	for key, env := range envOverrides {
		_ = v.BindEnv(key, env)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		// Running on pure defaults is fine; a named file that won't
		// read is not.
		if cfgFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	loaded := config.DefaultConfig()
	if err := v.Unmarshal(loaded, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "yaml" // config structs carry yaml tags only
	}); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	user, err := config.LoadUserConfig(filepath.Join(workspace, ".forge", "config.json"))
	if err != nil {
		return nil, err
	}
	if key := user.ActiveAPIKey(); key != "" {
		loaded.LLM.APIKey = key
	}
	if user.Model != "" {
		loaded.LLM.Model = user.Model
	}
	return loaded, nil
}

// runContext builds a command context carrying the global timeout and
// cancellation on SIGINT/SIGTERM.
func runContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			logger.Info("Received shutdown signal")
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}

// outputRoot is where designs/<name>/ directories land, anchored to the
// workspace when the configured path is relative.
func outputRoot() string {
	dir := cfg.CAD.OutputDir
	if dir == "" {
		dir = "designs"
	}
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(workspace, dir)
	}
	return dir
}

// openStore opens the arsenal, wiring the vector engine when one can be
// built. A missing engine degrades similarity search, never startup.
func openStore() (*arsenal.Store, error) {
	dbPath := cfg.Arsenal.DatabasePath
	if dbPath == "" {
		dbPath = "data/arsenal.db"
	}
	if !filepath.IsAbs(dbPath) {
		dbPath = filepath.Join(workspace, dbPath)
	}

	var embedder embedding.Engine
	if cfg.Embedding.Enabled {
		eng, err := embedding.NewEngine(embedding.Config{
			Provider:       cfg.Embedding.Provider,
			APIKey:         cfg.LLM.APIKey,
			Model:          cfg.Embedding.Model,
			OllamaEndpoint: cfg.Embedding.OllamaEndpoint,
		})
		if err != nil {
			logger.Warn("embedding engine unavailable, similarity search falls back to name matching", zap.Error(err))
		} else {
			embedder = eng
		}
	}

	return arsenal.Open(dbPath, embedder)
}

// newLLM builds the Gemini client. Commands that deliberate or inspect
// need it; offline commands never call this.
func newLLM() (*gemini.Client, error) {
	if cfg.LLM.APIKey == "" {
		return nil, fmt.Errorf("no Gemini API key: set GEMINI_API_KEY, llm.api_key in forge.yaml, or gemini_api_key in .forge/config.json")
	}
	gc := gemini.DefaultConfig(cfg.LLM.APIKey)
	if cfg.LLM.BaseURL != "" {
		gc.BaseURL = cfg.LLM.BaseURL
	}
	if cfg.LLM.Model != "" {
		gc.Model = cfg.LLM.Model
	}
	if cfg.LLM.VisionModel != "" {
		gc.VisionModel = cfg.LLM.VisionModel
	}
	gc.Timeout = cfg.GetLLMTimeout()
	if cfg.LLM.MaxOutputTokens > 0 {
		gc.MaxOutputTokens = cfg.LLM.MaxOutputTokens
	}
	return gemini.NewWithConfig(gc), nil
}

// newResolver assembles the sourcing stack: DuckDuckGo search, the rod
// scraping browser and, when an LLM is around, the vision inspector.
// The caller shuts the returned browser down when done.
func newResolver(ctx context.Context, llm *gemini.Client, store fusion.Store) (*fusion.Fuser, *scrape.SessionManager, error) {
	sc := scrape.DefaultConfig()
	sc.Headless = cfg.Browser.Headless
	if cfg.Browser.ViewportWidth > 0 {
		sc.ViewportWidth = cfg.Browser.ViewportWidth
	}
	if cfg.Browser.ViewportHeight > 0 {
		sc.ViewportHeight = cfg.Browser.ViewportHeight
	}
	sc.NavigationTimeoutMs = int(cfg.GetNavigationTimeout() / time.Millisecond)
	sc.SessionStore = filepath.Join(workspace, ".forge", "browser_sessions.json")
	if bin := cfg.Browser.BinaryPath; bin != "" {
		sc.Launch = []string{bin}
	}

	browser := scrape.NewSessionManager(sc)
	if err := browser.Start(ctx); err != nil {
		return nil, nil, fmt.Errorf("browser start failed: %w", err)
	}

	search.SetBlocklist(cfg.Search.Blocklist)
	searcher := search.NewMulti(search.NewDuckDuckGo(&http.Client{Timeout: cfg.GetSearchTimeout()}))

	var inspector fusion.Inspector
	if llm != nil {
		inspector = vision.NewAnalyzer(llm)
	}

	fuser := fusion.New(searcher, browser, inspector, store)
	fuser.SetCandidateLimit(cfg.Search.ResultLimit)
	return fuser, browser, nil
}
