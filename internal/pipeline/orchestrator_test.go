package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/dgallion1/notiondocs/internal/notion"
	"github.com/dgallion1/notiondocs/internal/sink"
)

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestOrchestrator_SubmitQueueFull(t *testing.T) {
	w, _ := newTestWorker(&scriptedSource{nodes: siteNodes()}, sink.NewMemory())
	o := NewOrchestrator(Options{MaxQueueSize: 1}, w, slog.New(slog.DiscardHandler))

	first, err := o.Trigger(TriggerAPI)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if o.QueueDepth() != 1 {
		t.Errorf("expected queue depth 1, got %d", o.QueueDepth())
	}

	second, err := o.Trigger(TriggerAPI)
	if !errors.Is(err, ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}
	if second.Snapshot().Status != StatusFailed {
		t.Errorf("expected rejected job to be failed, got %q", second.Snapshot().Status)
	}
	if o.GetJob(second.ID) == nil {
		t.Error("expected rejected job to be pollable")
	}
	if o.GetJob(first.ID).Snapshot().Status != StatusQueued {
		t.Errorf("expected first job queued, got %q", o.GetJob(first.ID).Snapshot().Status)
	}
}

func TestOrchestrator_RunsTriggeredBuild(t *testing.T) {
	store := sink.NewMemory()
	w, _ := newTestWorker(&scriptedSource{nodes: siteNodes()}, store)
	o := NewOrchestrator(Options{WorkerCount: 2}, w, slog.New(slog.DiscardHandler))
	if err := o.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer o.Stop()

	job, err := o.Trigger(TriggerStartup)
	if err != nil {
		t.Fatal(err)
	}
	waitFor(t, 5*time.Second, func() bool {
		return o.GetJob(job.ID).Snapshot().Status == StatusCompleted
	})

	pages, _ := store.Pages(context.Background())
	if len(pages) != 2 {
		t.Errorf("expected 2 pages, got %d", len(pages))
	}
}

func TestOrchestrator_FailedBuildIsRecorded(t *testing.T) {
	src := &scriptedSource{errs: []error{&notion.APIError{StatusCode: 404, Message: "no such page"}}}
	w, _ := newTestWorker(src, sink.NewMemory())
	o := NewOrchestrator(Options{}, w, slog.New(slog.DiscardHandler))
	if err := o.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer o.Stop()

	job, err := o.Trigger(TriggerAPI)
	if err != nil {
		t.Fatal(err)
	}
	waitFor(t, 5*time.Second, func() bool {
		return job.Snapshot().Status == StatusFailed
	})
	if len(job.Snapshot().Progress.Errors) == 0 {
		t.Error("expected failure reason on job")
	}
}

func TestOrchestrator_PeriodicRebuild(t *testing.T) {
	src := &scriptedSource{nodes: siteNodes()}
	w, _ := newTestWorker(src, sink.NewMemory())
	o := NewOrchestrator(Options{RebuildInterval: 50 * time.Millisecond}, w, slog.New(slog.DiscardHandler))
	if err := o.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer o.Stop()

	waitFor(t, 5*time.Second, func() bool { return src.Calls() >= 2 })
}

func TestOrchestrator_SubmitAfterStop(t *testing.T) {
	w, _ := newTestWorker(&scriptedSource{nodes: siteNodes()}, sink.NewMemory())
	o := NewOrchestrator(Options{}, w, slog.New(slog.DiscardHandler))
	if err := o.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	o.Stop()
	o.Stop()

	if _, err := o.Trigger(TriggerAPI); !errors.Is(err, ErrStopped) {
		t.Fatalf("expected ErrStopped, got %v", err)
	}
}
