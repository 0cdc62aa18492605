package main

import (
	"fmt"
	"os"

	"github.com/alecthomas/kong"
	_ "github.com/joho/godotenv/autoload" // Load .env before settings read the environment
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/nikbrunner/bmsort/internal/ai"
	"github.com/nikbrunner/bmsort/internal/engine"
	"github.com/nikbrunner/bmsort/internal/logger"
	"github.com/nikbrunner/bmsort/internal/metrics"
	"github.com/nikbrunner/bmsort/internal/storage"
)

// Globals are flags shared by every command.
type Globals struct {
	Config   string `type:"path" help:"Settings file (.json or .yaml). Defaults to ~/.config/bmsort/config.json." env:"BMSORT_CONFIG"`
	DB       string `type:"path" name:"db" help:"SQLite database. Uses the JSON store when unset and no default database exists." env:"BMSORT_DB"`
	Data     string `type:"path" help:"JSON store file. Defaults to ~/.config/bmsort/bookmarks.json."`
	LogLevel string `name:"log-level" default:"info" enum:"debug,info,warn,error,disabled" help:"Log level (${enum})."`
	Pretty   bool   `help:"Human-readable log output."`
}

// CLI is the top-level command structure for bmsort.
type CLI struct {
	Globals

	Stats    StatsCmd    `cmd:"" help:"Show bookmark and folder counts."`
	Folders  FoldersCmd  `cmd:"" help:"List folders, optionally fuzzy-filtered."`
	Analyze  AnalyzeCmd  `cmd:"" help:"Categorize bookmarks with the AI classifier and print the plan."`
	Organize OrganizeCmd `cmd:"" help:"Rebuild the folder tree from a plan."`
	Backup   BackupCmd   `cmd:"" help:"Write a JSON backup of the whole tree."`
	Restore  RestoreCmd  `cmd:"" help:"Merge a JSON backup into the store."`
	Import   ImportCmd   `cmd:"" help:"Import a Netscape bookmark HTML file."`
	Export   ExportCmd   `cmd:"" help:"Export bookmarks to Netscape HTML."`
	Ignore   IgnoreCmd   `cmd:"" help:"Pick folders that organize leaves untouched."`
	Check    CheckCmd    `cmd:"" help:"Find bookmarks whose URLs no longer resolve."`
	Serve    ServeCmd    `cmd:"" help:"Serve the HTTP API."`
}

// app holds what a command needs once the store and settings are open.
type app struct {
	store    storage.Backend
	settings storage.Settings
	engine   *engine.Engine
	metrics  *metrics.Metrics
	log      zerolog.Logger
}

// open loads settings, opens the store and builds the engine. Collectors
// are registered on reg; nil keeps them private.
func (g *Globals) open(reg prometheus.Registerer) (*app, error) {
	settingsPath := g.Config
	if settingsPath == "" {
		var err error
		if settingsPath, err = storage.DefaultSettingsPath(); err != nil {
			return nil, fmt.Errorf("settings path: %w", err)
		}
	}
	settings, err := storage.LoadSettings(settingsPath)
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}

	store, err := storage.Open(storage.OpenParams{SQLitePath: g.DB, JSONPath: g.Data})
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	gateway, err := ai.NewGateway(settings.Provider, settings.RequestsPerMinute)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("classifier: %w", err)
	}

	log := logger.New(logger.Config{Level: g.LogLevel, Pretty: g.Pretty})
	m := metrics.New(reg)
	return &app{
		store:    store,
		settings: *settings,
		metrics:  m,
		log:      log,
		engine: engine.New(engine.Params{
			Store:        store,
			Gateway:      gateway,
			Settings:     *settings,
			SettingsPath: settingsPath,
			Logger:       log,
			Metrics:      m,
		}),
	}, nil
}

func (a *app) Close() error {
	return a.store.Close()
}

func main() {
	cli := CLI{}
	parser, err := kong.New(&cli,
		kong.Name("bmsort"),
		kong.Description("AI-assisted bookmark categorization and folder reconciliation."),
		kong.UsageOnError(),
		kong.Exit(func(code int) {
			os.Exit(code)
		}),
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "bmsort: %v\n", err)
		os.Exit(1)
	}
	ctx, err := parser.Parse(os.Args[1:])
	parser.FatalIfErrorf(err)

	logger.Init(logger.Config{Level: cli.LogLevel, Pretty: cli.Pretty})

	err = ctx.Run(&cli.Globals)
	ctx.FatalIfErrorf(err)
}
