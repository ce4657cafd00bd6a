// Package docs renders a single document straight from the source tree,
// without going through a site build.
package docs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/dgallion1/notiondocs/internal/doctree"
	"github.com/dgallion1/notiondocs/internal/metrics"
	"github.com/dgallion1/notiondocs/internal/render"
	"github.com/dgallion1/notiondocs/internal/source"
)

// ErrNotFound is returned when no top-level heading has the requested id.
var ErrNotFound = errors.New("block not found")

// ImageResolver returns a fresh image payload for an image node id.
type ImageResolver interface {
	ResolveImage(ctx context.Context, id string) (*doctree.Image, error)
}

// Document is a rendered heading and the content under it.
type Document struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// Service looks up documents by heading id.
type Service struct {
	source        source.NodeSource
	images        ImageResolver // nil disables refreshing
	maxConcurrent int
	recorder      metrics.Recorder
	log           *slog.Logger
}

func NewService(src source.NodeSource, images ImageResolver, maxConcurrent int, recorder metrics.Recorder, log *slog.Logger) *Service {
	if maxConcurrent <= 0 {
		maxConcurrent = 3
	}
	if recorder == nil {
		recorder = metrics.NoopRecorder{}
	}
	return &Service{
		source:        src,
		images:        images,
		maxConcurrent: maxConcurrent,
		recorder:      recorder,
		log:           log,
	}
}

// Document renders the top-level heading with the given id together with the
// nodes that follow it, up to the next heading of the same or a higher level.
func (s *Service) Document(ctx context.Context, id string) (Document, error) {
	nodes, err := s.source.Nodes(ctx)
	if err != nil {
		return Document{}, fmt.Errorf("load source: %w", err)
	}

	target := -1
	for i, n := range nodes {
		if n.IsHeading(0) && n.ID == id {
			target = i
			break
		}
	}
	if target < 0 {
		return Document{}, ErrNotFound
	}
	heading := nodes[target]

	var content []*doctree.Node
	for _, n := range nodes[target+1:] {
		if n.IsHeading(0) && n.Level <= heading.Level {
			break
		}
		content = append(content, n.Clone())
	}

	s.refreshImages(ctx, content)

	var sb strings.Builder
	for _, n := range content {
		sb.WriteString(render.Render(n))
	}
	return Document{
		Title:   render.PlainText(heading.Spans),
		Content: strings.TrimSpace(sb.String()),
	}, nil
}

// refreshImages replaces the URL of every API-hosted image under nodes.
// Failures are logged and the stale URL is kept.
func (s *Service) refreshImages(ctx context.Context, nodes []*doctree.Node) {
	if s.images == nil {
		return
	}
	var targets []*doctree.Node
	var collect func([]*doctree.Node)
	collect = func(ns []*doctree.Node) {
		for _, n := range ns {
			if n.Kind == doctree.KindImage && n.Image != nil && n.Image.Source == doctree.ImageFile {
				targets = append(targets, n)
			}
			collect(n.Children)
		}
	}
	collect(nodes)
	if len(targets) == 0 {
		return
	}

	sem := make(chan struct{}, s.maxConcurrent)
	var wg sync.WaitGroup
	for _, n := range targets {
		wg.Add(1)
		sem <- struct{}{}
		go func(n *doctree.Node) {
			defer wg.Done()
			defer func() { <-sem }()
			img, err := s.images.ResolveImage(ctx, n.ID)
			if err != nil {
				s.log.Warn("image refresh failed", "block_id", n.ID, "error", err)
				s.recorder.IncImageRefreshFailure()
				return
			}
			n.Image.URL = img.URL
		}(n)
	}
	wg.Wait()
}
