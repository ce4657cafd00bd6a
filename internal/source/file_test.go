package source

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dgallion1/notiondocs/internal/doctree"
)

const exportArray = `[
  {"id":"h1","type":"heading_1","heading_1":{"rich_text":[{"plain_text":"Intro","annotations":{}}]}},
  {"id":"h2","type":"heading_2","heading_2":{"rich_text":[{"plain_text":"Overview","annotations":{}}]}},
  {"id":"t","type":"toggle","has_children":true,"toggle":{"rich_text":[{"plain_text":"More","annotations":{}}]},
   "children":[{"id":"p","type":"paragraph","paragraph":{"rich_text":[{"plain_text":"inside","annotations":{}}]}}]}
]`

func writeFile(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "export.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestFile_NodesFromArray(t *testing.T) {
	path := writeFile(t, t.TempDir(), exportArray)
	nodes, err := NewFile(path, slog.New(slog.DiscardHandler)).Nodes(context.Background())
	require.NoError(t, err)
	require.Len(t, nodes, 3)
	assert.True(t, nodes[0].IsHeading(1))
	assert.True(t, nodes[1].IsHeading(2))
	assert.Equal(t, doctree.KindToggle, nodes[2].Kind)
	require.Len(t, nodes[2].Children, 1)
	assert.Equal(t, "inside", nodes[2].Children[0].Spans[0].Text)
}

func TestFile_NodesFromListResponse(t *testing.T) {
	path := writeFile(t, t.TempDir(), `{"object":"list","results":`+exportArray+`,"has_more":false}`)
	nodes, err := NewFile(path, slog.New(slog.DiscardHandler)).Nodes(context.Background())
	require.NoError(t, err)
	assert.Len(t, nodes, 3)
}

func TestFile_Errors(t *testing.T) {
	dir := t.TempDir()
	_, err := NewFile(filepath.Join(dir, "missing.json"), slog.New(slog.DiscardHandler)).Nodes(context.Background())
	assert.Error(t, err)

	path := writeFile(t, dir, "not json")
	_, err = NewFile(path, slog.New(slog.DiscardHandler)).Nodes(context.Background())
	assert.Error(t, err)
}

func TestFile_WatchDebouncesChanges(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, exportArray)
	f := NewFile(path, slog.New(slog.DiscardHandler))

	ctx, cancel := context.WithCancel(context.Background())
	changed := make(chan struct{}, 16)
	done := make(chan error, 1)
	go func() {
		done <- f.Watch(ctx, 50*time.Millisecond, func() { changed <- struct{}{} })
	}()

	// Other files in the directory are ignored.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.json"), []byte("[]"), 0o644))

	deadline := time.After(5 * time.Second)
	tick := time.NewTicker(200 * time.Millisecond)
	defer tick.Stop()
loop:
	for {
		select {
		case <-changed:
			break loop
		case <-tick.C:
			require.NoError(t, os.WriteFile(path, []byte(exportArray), 0o644))
		case <-deadline:
			t.Fatal("no change notification")
		}
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watch did not stop")
	}
}
