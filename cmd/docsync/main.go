package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/fatih/color"

	"github.com/dgallion1/notiondocs/internal/app"
	"github.com/dgallion1/notiondocs/internal/config"
	"github.com/dgallion1/notiondocs/internal/metrics"
	"github.com/dgallion1/notiondocs/internal/pipeline"
)

// CLI is the docsync command line.
type CLI struct {
	Config  string `short:"c" help:"Configuration file path (YAML)"`
	Verbose bool   `short:"v" help:"Enable verbose logging"`

	Build  BuildCmd  `cmd:"" help:"Fetch the content tree and build the site once"`
	Search SearchCmd `cmd:"" help:"Search the built site"`
	Nav    NavCmd    `cmd:"" help:"Print the navigation of the built site"`
	Doc    DocCmd    `cmd:"" help:"Render a single document from the source by heading id"`
}

var logger = slog.Default()

// AfterApply runs after flag parsing; setup logging once.
func (c *CLI) AfterApply() error {
	level := slog.LevelInfo
	if c.Verbose {
		level = slog.LevelDebug
	}
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return nil
}

func (c *CLI) open() (*app.App, error) {
	cfg, err := config.Load(c.Config)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return app.New(cfg, metrics.NoopRecorder{}, logger)
}

var (
	okStyle    = color.New(color.FgGreen, color.Bold)
	failStyle  = color.New(color.FgRed, color.Bold)
	titleStyle = color.New(color.FgCyan, color.Bold)
	dimStyle   = color.New(color.Faint)
)

// BuildCmd implements the 'build' command.
type BuildCmd struct{}

func (b *BuildCmd) Run(root *CLI) error {
	a, err := root.open()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	job := pipeline.NewJob(pipeline.TriggerCLI)
	start := time.Now()
	err = a.Worker.Process(ctx, job)
	snap := job.Snapshot()
	if err != nil {
		failStyle.Fprintf(os.Stderr, "build failed in %s: %v\n", snap.Phase, err)
		return err
	}

	okStyle.Printf("build complete in %s\n", time.Since(start).Round(time.Millisecond))
	fmt.Printf("  nodes     %d\n", snap.Progress.Nodes)
	fmt.Printf("  pages     %d\n", snap.Progress.Pages)
	fmt.Printf("  sections  %d\n", snap.Progress.Sections)
	fmt.Printf("  indexed   %d\n", snap.Progress.Indexed)
	dimStyle.Printf("  hash      %s\n", snap.ContentHash)
	return nil
}

// SearchCmd implements the 'search' command.
type SearchCmd struct {
	Query string `arg:"" help:"Search query"`
	Limit int    `short:"n" help:"Maximum number of results (0 uses the configured default)"`
}

func (s *SearchCmd) Run(root *CLI) error {
	a, err := root.open()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := context.Background()
	if _, err := a.Worker.Reindex(ctx); err != nil {
		return err
	}
	results, err := a.Indexer.Search(ctx, s.Query, s.Limit)
	if err != nil {
		return fmt.Errorf("search: %w", err)
	}
	if len(results) == 0 {
		dimStyle.Println("no results")
		return nil
	}
	for _, r := range results {
		if r.PageTitle != "" && r.PageTitle != r.Title {
			fmt.Printf("%s %s\n", titleStyle.Sprint(r.Title), dimStyle.Sprintf("(%s)", r.PageTitle))
		} else {
			titleStyle.Println(r.Title)
		}
		fmt.Printf("  %s\n", r.URL)
	}
	return nil
}

// NavCmd implements the 'nav' command.
type NavCmd struct{}

func (n *NavCmd) Run(root *CLI) error {
	a, err := root.open()
	if err != nil {
		return err
	}
	defer a.Close()

	nav, err := a.Store.Navigation(context.Background())
	if err != nil {
		return fmt.Errorf("read navigation: %w", err)
	}
	if len(nav) == 0 {
		dimStyle.Println("no navigation, run build first")
		return nil
	}
	for _, section := range nav {
		titleStyle.Println(section.Title)
		for _, l := range section.Links {
			fmt.Printf("  %-40s %s\n", l.Title, dimStyle.Sprint(l.Href))
		}
	}
	return nil
}

// DocCmd implements the 'doc' command.
type DocCmd struct {
	ID string `arg:"" help:"Heading block id"`
}

func (d *DocCmd) Run(root *CLI) error {
	a, err := root.open()
	if err != nil {
		return err
	}
	defer a.Close()

	doc, err := a.Docs.Document(context.Background(), d.ID)
	if err != nil {
		return err
	}
	titleStyle.Println(doc.Title)
	fmt.Println()
	fmt.Println(doc.Content)
	return nil
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("docsync"),
		kong.Description("Build and query a documentation site from a Notion page tree."),
		kong.UsageOnError(),
	)
	ctx.FatalIfErrorf(ctx.Run(&cli))
}
