package source

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/dgallion1/notiondocs/internal/doctree"
	"github.com/dgallion1/notiondocs/internal/notion"
)

// File reads a JSON export of the root page: either an array of blocks or an
// API list response ({"results": [...]}), with nested blocks inline under
// "children".
type File struct {
	path string
	log  *slog.Logger
}

func NewFile(path string, log *slog.Logger) *File {
	return &File{path: path, log: log}
}

func (f *File) Path() string { return f.path }

func (f *File) Nodes(ctx context.Context) ([]*doctree.Node, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(f.path)
	if err != nil {
		return nil, fmt.Errorf("read source file: %w", err)
	}
	blocks, err := decodeExport(data)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", f.path, err)
	}
	return notion.DecodeAll(blocks), nil
}

func decodeExport(data []byte) ([]notion.Block, error) {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '{' {
		var list struct {
			Results []notion.Block `json:"results"`
		}
		if err := json.Unmarshal(data, &list); err != nil {
			return nil, err
		}
		return list.Results, nil
	}
	var blocks []notion.Block
	if err := json.Unmarshal(data, &blocks); err != nil {
		return nil, err
	}
	return blocks, nil
}

// Watch calls onChange after the file is written, created or renamed into
// place, once per burst of events separated by less than debounce. It blocks
// until ctx is done.
func (f *File) Watch(ctx context.Context, debounce time.Duration, onChange func()) error {
	abs, err := filepath.Abs(f.path)
	if err != nil {
		return fmt.Errorf("resolve source path: %w", err)
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create file watcher: %w", err)
	}
	defer watcher.Close()

	// Editors often replace files by rename; watching the directory survives that.
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}
	f.log.Info("watching source file", "path", abs)

	name := filepath.Base(abs)
	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != name {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			f.log.Debug("source file changed", "op", event.Op.String())
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(debounce, onChange)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			f.log.Error("source watcher error", "error", err)
		}
	}
}
