package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/atotto/clipboard"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	"golang.org/x/term"

	"github.com/nikbrunner/bmsort/internal/backup"
	"github.com/nikbrunner/bmsort/internal/culler"
	"github.com/nikbrunner/bmsort/internal/exporter"
	"github.com/nikbrunner/bmsort/internal/model"
	"github.com/nikbrunner/bmsort/internal/picker"
	"github.com/nikbrunner/bmsort/internal/reconcile"
	"github.com/nikbrunner/bmsort/internal/search"
	"github.com/nikbrunner/bmsort/internal/server"
	"github.com/nikbrunner/bmsort/internal/tree"
	"github.com/nikbrunner/bmsort/internal/tui"
)

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

// interactive reports whether progress bars and prompts can be shown.
func interactive() bool {
	return term.IsTerminal(int(os.Stdout.Fd())) && term.IsTerminal(int(os.Stdin.Fd()))
}

// withProgress runs fn behind a progress bar on a terminal, or plainly
// otherwise. Runs are not interruptible: when ctx ends fn keeps going and
// withProgress still waits for it.
func withProgress(ctx context.Context, a *app, title string, plain bool, fn func(context.Context) error) error {
	if plain || !interactive() {
		stop := context.AfterFunc(ctx, func() {
			fmt.Fprintf(os.Stderr, "%s continues, waiting for it to finish...\n", title)
		})
		defer stop()
		return fn(context.WithoutCancel(ctx))
	}
	return tui.Run(ctx, a.engine, title, nil, fn)
}

type StatsCmd struct{}

func (cmd *StatsCmd) Run(g *Globals) error {
	a, err := g.open(nil)
	if err != nil {
		return err
	}
	defer a.Close()

	stats, err := a.engine.Stats(context.Background())
	if err != nil {
		return err
	}
	fmt.Printf("Bookmarks:     %d\n", stats.TotalBookmarks)
	fmt.Printf("Folders:       %d\n", stats.TotalFolders)
	fmt.Printf("Uncategorized: %d\n", stats.Uncategorized)
	return nil
}

type FoldersCmd struct {
	Query string `arg:"" optional:"" help:"Fuzzy filter on folder paths."`
	IDs   bool   `name:"ids" help:"Print folder ids."`
}

func (cmd *FoldersCmd) Run(g *Globals) error {
	a, err := g.open(nil)
	if err != nil {
		return err
	}
	defer a.Close()

	folders, err := a.engine.Folders(context.Background())
	if err != nil {
		return err
	}
	ignored := model.NewIgnoreSet(a.settings.IgnoreFolders...)
	for _, r := range search.Folders(folders, cmd.Query) {
		line := r.Folder.Path
		if cmd.IDs {
			line = r.Folder.ID + "\t" + line
		}
		if ignored.Has(r.Folder.ID) {
			line += "  (ignored)"
		}
		fmt.Println(line)
	}
	return nil
}

type AnalyzeCmd struct {
	Out   string `short:"o" type:"path" help:"Write the plan as JSON to this file."`
	Plain bool   `help:"Disable the progress bar."`
}

func (cmd *AnalyzeCmd) Run(g *Globals) error {
	a, err := g.open(nil)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signalContext()
	defer stop()

	cm, err := analyze(ctx, a, cmd.Plain)
	if err != nil {
		return err
	}
	printPlan(os.Stdout, cm)

	if cmd.Out == "" {
		return nil
	}
	data, err := json.MarshalIndent(cm, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(cmd.Out, data, 0644); err != nil {
		return err
	}
	fmt.Printf("Plan written to %s\n", cmd.Out)
	return nil
}

func analyze(ctx context.Context, a *app, plain bool) (*model.CategoryMap, error) {
	var cm *model.CategoryMap
	err := withProgress(ctx, a, "Analyzing bookmarks", plain, func(ctx context.Context) error {
		var err error
		cm, err = a.engine.Analyze(ctx)
		return err
	})
	return cm, err
}

func printPlan(w io.Writer, cm *model.CategoryMap) {
	for _, path := range cm.Paths() {
		fmt.Fprintf(w, "%-50s %4d\n", path, len(cm.Get(path)))
	}
	fmt.Fprintf(w, "\n%d bookmarks in %d folders (%d top-level)\n", cm.Total(), cm.Len(), len(cm.Roots()))
}

type OrganizeCmd struct {
	Plan  string `type:"existingfile" help:"Apply a plan written by analyze instead of running a new analysis."`
	Yes   bool   `short:"y" help:"Apply without asking."`
	Plain bool   `help:"Disable the progress bar."`
}

func (cmd *OrganizeCmd) Run(g *Globals) error {
	a, err := g.open(nil)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signalContext()
	defer stop()

	var cm *model.CategoryMap
	if cmd.Plan != "" {
		data, err := os.ReadFile(cmd.Plan)
		if err != nil {
			return err
		}
		cm = model.NewCategoryMap()
		if err := json.Unmarshal(data, cm); err != nil {
			return fmt.Errorf("read plan %s: %w", cmd.Plan, err)
		}
	} else if cm, err = analyze(ctx, a, cmd.Plain); err != nil {
		return err
	}
	printPlan(os.Stdout, cm)

	if !cmd.Yes && !confirm(os.Stdin, os.Stdout, "Rebuild the folder tree from this plan?") {
		fmt.Println("Aborted.")
		return nil
	}

	var report reconcile.Report
	err = withProgress(ctx, a, "Organizing bookmarks", cmd.Plain, func(ctx context.Context) error {
		var err error
		report, err = a.engine.Organize(ctx, cm)
		return err
	})
	printReport(os.Stdout, report)
	return err
}

func printReport(w io.Writer, r reconcile.Report) {
	fmt.Fprintf(w, "Evacuated %d, removed %d folders, created %d folders, filed %d bookmarks\n",
		r.Evacuated, r.Removed, r.Created, r.Filed)
	for _, f := range r.Failures {
		fmt.Fprintf(w, "  warning: %v\n", f)
	}
}

// confirm asks a yes/no question. Anything but y or yes declines.
func confirm(in io.Reader, out io.Writer, question string) bool {
	fmt.Fprintf(out, "%s [y/N] ", question)
	line, _ := bufio.NewReader(in).ReadString('\n')
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	}
	return false
}

type BackupCmd struct {
	Path      string `arg:"" optional:"" type:"path" help:"Output file. Defaults to ~/Downloads/bookmarks-backup-DATE.json."`
	Clipboard bool   `short:"c" help:"Copy the backup to the clipboard instead of writing a file."`
}

func (cmd *BackupCmd) Run(g *Globals) error {
	a, err := g.open(nil)
	if err != nil {
		return err
	}
	defer a.Close()

	doc, err := a.engine.Backup(context.Background())
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := backup.Encode(&buf, doc); err != nil {
		return err
	}

	if cmd.Clipboard {
		if err := clipboard.WriteAll(buf.String()); err != nil {
			return fmt.Errorf("copy to clipboard: %w", err)
		}
		fmt.Println("Backup copied to clipboard")
		return nil
	}

	path := cmd.Path
	if path == "" {
		if path, err = backup.DefaultPath(time.Now()); err != nil {
			return err
		}
	}
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return err
	}
	fmt.Printf("Backup written to %s\n", path)
	return nil
}

type RestoreCmd struct {
	Path string `arg:"" type:"existingfile" help:"Backup file to restore."`
}

func (cmd *RestoreCmd) Run(g *Globals) error {
	a, err := g.open(nil)
	if err != nil {
		return err
	}
	defer a.Close()

	f, err := os.Open(cmd.Path)
	if err != nil {
		return err
	}
	defer f.Close()

	doc, err := backup.Decode(f)
	if err != nil {
		return err
	}
	res, err := a.engine.Restore(context.Background(), doc)
	if err != nil {
		return err
	}
	fmt.Printf("Restored %d bookmarks, %d folders (%d already present)\n", res.Created, res.Folders, res.Skipped)
	return nil
}

type ImportCmd struct {
	File string `arg:"" type:"existingfile" help:"Netscape bookmark HTML file."`
	Into string `default:"1" help:"Folder id to import into. Defaults to the bookmarks bar."`
}

func (cmd *ImportCmd) Run(g *Globals) error {
	a, err := g.open(nil)
	if err != nil {
		return err
	}
	defer a.Close()

	file, err := os.Open(cmd.File)
	if err != nil {
		return err
	}
	defer file.Close()

	res, err := a.engine.Import(context.Background(), file, cmd.Into)
	if err != nil {
		return err
	}

	fmt.Printf("Imported %d bookmarks, %d folders", res.Created, res.Folders)
	if res.Skipped > 0 {
		fmt.Printf(" (%d duplicates skipped)", res.Skipped)
	}
	fmt.Println()
	return nil
}

type ExportCmd struct {
	Path string `arg:"" optional:"" type:"path" help:"Output file. Defaults to ~/Downloads/bookmarks-export-DATE.html."`
}

func (cmd *ExportCmd) Run(g *Globals) error {
	a, err := g.open(nil)
	if err != nil {
		return err
	}
	defer a.Close()

	outputPath := cmd.Path
	if outputPath == "" {
		if outputPath, err = exporter.DefaultExportPath(); err != nil {
			return err
		}
	}

	root, err := a.engine.Tree(context.Background())
	if err != nil {
		return err
	}
	if err := os.WriteFile(outputPath, []byte(exporter.ExportHTML(root)), 0644); err != nil {
		return err
	}

	stats := tree.ComputeStats(root)
	fmt.Printf("Exported %d bookmarks, %d folders to %s\n", stats.TotalBookmarks, stats.TotalFolders, outputPath)
	return nil
}

type IgnoreCmd struct {
	Clear bool `help:"Remove every folder from the ignore list."`
}

func (cmd *IgnoreCmd) Run(g *Globals) error {
	a, err := g.open(nil)
	if err != nil {
		return err
	}
	defer a.Close()

	settings := a.engine.Settings()
	if cmd.Clear {
		settings.IgnoreFolders = []string{}
		return a.engine.UpdateSettings(settings)
	}

	folders, err := a.engine.Folders(context.Background())
	if err != nil {
		return err
	}
	if len(folders) == 0 {
		fmt.Println("No folders to ignore.")
		return nil
	}

	ids, ok, err := picker.Run(folders, settings.IgnoreFolders)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	settings.IgnoreFolders = ids
	if err := a.engine.UpdateSettings(settings); err != nil {
		return err
	}
	fmt.Printf("Ignoring %d folders\n", len(ids))
	return nil
}

type CheckCmd struct {
	Concurrency int           `default:"10" help:"Parallel requests."`
	Timeout     time.Duration `default:"10s" help:"Per-request timeout."`
	Exclude     []string      `help:"Domains where 404 means private, not dead."`
	Remove      bool          `help:"Remove dead bookmarks after confirmation."`
	Yes         bool          `short:"y" help:"Remove without asking."`
}

func (cmd *CheckCmd) Run(g *Globals) error {
	a, err := g.open(nil)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signalContext()
	defer stop()

	root, err := a.engine.Tree(ctx)
	if err != nil {
		return err
	}
	results := culler.CheckURLs(ctx, tree.Flatten(root), culler.Options{
		Concurrency:    cmd.Concurrency,
		Timeout:        cmd.Timeout,
		ExcludeDomains: cmd.Exclude,
		OnProgress: func(completed, total int) {
			fmt.Fprintf(os.Stderr, "\rChecked %d/%d", completed, total)
		},
	})
	fmt.Fprintln(os.Stderr)

	dead := culler.Filter(results, culler.Dead)
	for _, r := range dead {
		fmt.Printf("dead        %3d  %s  %s\n", r.StatusCode, r.Bookmark.Title, r.Bookmark.URL)
	}
	for _, r := range culler.Filter(results, culler.Unreachable) {
		fmt.Printf("unreachable      %s  %s  (%s)\n", r.Bookmark.Title, r.Bookmark.URL, r.Error)
	}
	fmt.Printf("%d checked, %d dead\n", len(results), len(dead))

	if !cmd.Remove || len(dead) == 0 {
		return nil
	}
	if !cmd.Yes && !confirm(os.Stdin, os.Stdout, fmt.Sprintf("Remove %d dead bookmarks?", len(dead))) {
		return nil
	}
	ids := make([]string, len(dead))
	for i, r := range dead {
		ids[i] = r.Bookmark.ID
	}
	removed, err := a.engine.RemoveBookmarks(context.WithoutCancel(ctx), ids)
	fmt.Printf("Removed %d bookmarks\n", removed)
	return err
}

type ServeCmd struct {
	Addr string  `default:"127.0.0.1:8377" env:"BMSORT_ADDR" help:"Listen address."`
	RPS  float64 `name:"rps" default:"2" help:"Mutating requests per second per client (0 disables)."`
}

func (cmd *ServeCmd) Run(g *Globals) error {
	a, err := g.open(prometheus.DefaultRegisterer)
	if err != nil {
		return err
	}
	defer a.Close()

	s := server.NewServer(server.Params{
		Addr:              cmd.Addr,
		Engine:            a.engine,
		Metrics:           a.metrics,
		Logger:            a.log,
		RequestsPerSecond: cmd.RPS,
	})

	done := make(chan bool, 1)
	go s.GracefulShutdown(done)

	if err := s.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}

	<-done
	log.Info().Msg("Graceful shutdown complete.")
	return nil
}
