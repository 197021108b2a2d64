// Package cmd wires the strata CLI.
package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-billy/v5/osfs"
	"github.com/spf13/cobra"

	"github.com/agentic-research/strata/internal/chunk"
	"github.com/agentic-research/strata/internal/config"
	"github.com/agentic-research/strata/internal/events"
	"github.com/agentic-research/strata/internal/ingest"
	"github.com/agentic-research/strata/internal/octree"
	"github.com/agentic-research/strata/internal/query"
	"github.com/agentic-research/strata/internal/snapshot"
	"github.com/agentic-research/strata/internal/tools"
)

const version = "0.1.0"

var (
	flagConfig  string
	flagExport  string
	flagVerbose bool
)

var rootCmd = &cobra.Command{
	Use:   "strata",
	Short: "Token-budgeted retrieval over building-model entity graphs",
	Long: `Strata indexes a building model's entities into an octree and a set of
token-bounded chunks, then answers natural-language questions about the
model through a token-limited language model endpoint.`,
	SilenceUsage: true,
}

// Execute runs the CLI.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&flagConfig, "config", "c", "strata.hcl", "Path to HCL config file")
	rootCmd.PersistentFlags().StringVarP(&flagExport, "export", "e", "", "Path to the entity export JSON")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "Enable debug logging")
	cobra.OnInitialize(setupLogging)
}

func setupLogging() {
	level := slog.LevelInfo
	if flagVerbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

// app is everything a command needs after a model is loaded.
type app struct {
	cfg      *config.Config
	store    *chunk.Store
	bus      *events.Bus
	models   *snapshot.Manager
	registry *tools.Registry
	env      *tools.Env
	ctl      *snapshot.Controller
}

func (a *app) Close() {
	if a.ctl != nil {
		_ = a.ctl.Close()
	}
	if a.store != nil {
		_ = a.store.Close()
	}
}

// modelIDFrom derives a stable model ID from the export filename.
func modelIDFrom(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// loadApp loads config, opens storage, and builds a snapshot from the
// --export file when one is given.
func loadApp(requireExport bool) (*app, error) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return nil, err
	}
	if requireExport && flagExport == "" {
		return nil, fmt.Errorf("--export is required")
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	store, err := chunk.OpenStore(filepath.Join(cfg.DataDir, "chunks.db"))
	if err != nil {
		return nil, err
	}
	ctl, err := snapshot.OpenControl(filepath.Join(cfg.DataDir, "control"))
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	a := &app{
		cfg:    cfg,
		store:  store,
		bus:    events.NewBus(),
		models: snapshot.NewManager(),
		ctl:    ctl,
	}
	a.env = &tools.Env{
		Models:  a.models,
		Bus:     a.bus,
		Weights: cfg.Weights(),
		Regions: cfg.RegionResolver(),
		Log:     slog.Default(),
	}
	a.registry = tools.NewRegistry(slog.Default())
	tools.RegisterAll(a.registry, a.env)

	if flagExport != "" {
		if err := a.loadExport(flagExport); err != nil {
			a.Close()
			return nil, err
		}
	}
	return a, nil
}

func (a *app) loadExport(path string) error {
	loader := ingest.NewLoader(osfs.New(filepath.Dir(path)))
	entities, err := loader.LoadEntities(filepath.Base(path))
	if err != nil {
		return err
	}

	builder := snapshot.NewBuilder(a.store, a.bus, a.ctl, slog.Default())
	m, err := builder.Build(modelIDFrom(path), entities, snapshot.BuildConfig{
		TokenTarget: a.cfg.Retrieval.TokenTarget,
		TokenMax:    a.cfg.Retrieval.TokenMax,
		CacheBytes:  a.cfg.Retrieval.CacheBytes,
		TreeOptions: octree.DefaultOptions(),
		PersistDir:  a.cfg.DataDir,
	})
	if err != nil {
		return err
	}
	a.models.Swap(m)
	return nil
}

// engine builds the retrieval pipeline for the loaded model.
func (a *app) engine() (*query.Engine, *snapshot.Model, error) {
	m := a.models.Current()
	if m == nil {
		return nil, nil, fmt.Errorf("no model loaded; pass --export")
	}
	scorer := query.NewScorer(a.cfg.Weights(), a.cfg.RegionResolver())
	assembler := query.NewAssembler(m.Cache, len(m.Entities))
	return query.NewEngine(m.Indices, scorer, assembler, slog.Default()), m, nil
}
