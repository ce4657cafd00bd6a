// Package app assembles the build components selected by the configuration.
package app

import (
	"fmt"
	"log/slog"

	"github.com/dgallion1/notiondocs/internal/config"
	"github.com/dgallion1/notiondocs/internal/docs"
	"github.com/dgallion1/notiondocs/internal/metrics"
	"github.com/dgallion1/notiondocs/internal/notion"
	"github.com/dgallion1/notiondocs/internal/pathstore"
	"github.com/dgallion1/notiondocs/internal/pipeline"
	"github.com/dgallion1/notiondocs/internal/search"
	"github.com/dgallion1/notiondocs/internal/sink"
	"github.com/dgallion1/notiondocs/internal/source"
)

// App holds the wired components shared by the server and the CLI.
type App struct {
	Source  source.NodeSource
	File    *source.File   // set when the source is a JSON export
	Notion  *notion.Client // set when the source is the Notion API
	Store   sink.Store
	Indexer *search.Indexer
	Worker  *pipeline.Worker
	Docs    *docs.Service
}

// New builds the source, store, indexer and worker for cfg. The caller
// must Close the result.
func New(cfg config.Config, recorder metrics.Recorder, log *slog.Logger) (*App, error) {
	ranking, err := search.ParseRanking(cfg.SearchRanking)
	if err != nil {
		return nil, err
	}

	a := &App{}
	var images docs.ImageResolver
	switch cfg.Source {
	case config.SourceFile:
		a.File = source.NewFile(cfg.SourceFile, log)
		a.Source = a.File
	default:
		a.Notion = notion.NewClient(notion.Config{
			Token:         cfg.NotionToken,
			BaseURL:       cfg.NotionBaseURL,
			Version:       cfg.NotionVersion,
			MaxConcurrent: cfg.MaxConcurrentFetch,
		}, log)
		a.Source = source.NewNotion(a.Notion, cfg.NotionPageID)
		images = a.Notion
	}

	a.Store, err = openStore(cfg, log)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.Indexer = search.NewIndexer(ranking, cfg.SearchDefaultLimit, log)
	a.Worker = pipeline.NewWorker(a.Source, a.Store, a.Indexer, recorder, log)
	a.Docs = docs.NewService(a.Source, images, cfg.MaxConcurrentFetch, recorder, log)
	return a, nil
}

func openStore(cfg config.Config, log *slog.Logger) (sink.Store, error) {
	switch cfg.Sink {
	case config.SinkSQLite:
		s, err := sink.NewSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return s, nil
	case config.SinkPathstore:
		client := pathstore.NewClient(cfg.PathstoreURL, cfg.PathstoreAPIKey)
		return sink.NewPathstore(client, cfg.PathstorePrefix), nil
	case config.SinkMemory:
		return sink.NewMemory(), nil
	default:
		s, err := sink.NewFS(cfg.OutputDir)
		if err != nil {
			return nil, fmt.Errorf("open output dir: %w", err)
		}
		log.Info("writing site to filesystem", "root", s.Root())
		return s, nil
	}
}

// SourceStats returns the Notion call statistics, or nil for file sources.
func (a *App) SourceStats() *notion.CallStats {
	if a.Notion == nil {
		return nil
	}
	return a.Notion.Stats()
}

// Close releases the store and the API client.
func (a *App) Close() error {
	var err error
	if a.Store != nil {
		err = a.Store.Close()
	}
	if a.Notion != nil {
		a.Notion.Close()
	}
	return err
}
