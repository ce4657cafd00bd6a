// Package notion reads block trees from the Notion REST API and decodes them
// into content nodes.
package notion

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dgallion1/notiondocs/internal/doctree"
)

const (
	DefaultBaseURL = "https://api.notion.com"
	DefaultVersion = "2022-06-28"

	pageSize = 100
)

// Config configures a Client. Zero values get defaults.
type Config struct {
	Token         string
	BaseURL       string
	Version       string
	MaxConcurrent int // concurrent child listings during tree expansion
	Timeout       time.Duration
}

// Client calls the Notion API.
type Client struct {
	baseURL       string
	token         string
	version       string
	maxConcurrent int
	httpClient    *http.Client
	stats         *CallStats
	log           *slog.Logger
}

func NewClient(cfg Config, log *slog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Version == "" {
		cfg.Version = DefaultVersion
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 3
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{
		baseURL:       strings.TrimRight(cfg.BaseURL, "/"),
		token:         cfg.Token,
		version:       cfg.Version,
		maxConcurrent: cfg.MaxConcurrent,
		httpClient:    &http.Client{Timeout: cfg.Timeout},
		stats:         NewCallStats(time.Hour),
		log:           log,
	}
}

// Stats returns the rolling latency statistics of API calls.
func (c *Client) Stats() *CallStats { return c.stats }

type listResponse struct {
	Results    []Block `json:"results"`
	NextCursor *string `json:"next_cursor"`
	HasMore    bool    `json:"has_more"`
}

// ListChildren returns the direct children of a block, following pagination.
func (c *Client) ListChildren(ctx context.Context, blockID string) ([]Block, error) {
	var all []Block
	cursor := ""
	for {
		q := url.Values{}
		q.Set("page_size", strconv.Itoa(pageSize))
		if cursor != "" {
			q.Set("start_cursor", cursor)
		}
		var resp listResponse
		if err := c.get(ctx, "/v1/blocks/"+url.PathEscape(blockID)+"/children", q, &resp); err != nil {
			return nil, fmt.Errorf("list children of %s: %w", blockID, err)
		}
		all = append(all, resp.Results...)
		if !resp.HasMore || resp.NextCursor == nil || *resp.NextCursor == "" {
			return all, nil
		}
		cursor = *resp.NextCursor
	}
}

// Retrieve fetches a single block.
func (c *Client) Retrieve(ctx context.Context, blockID string) (Block, error) {
	var b Block
	if err := c.get(ctx, "/v1/blocks/"+url.PathEscape(blockID), nil, &b); err != nil {
		return Block{}, fmt.Errorf("retrieve block %s: %w", blockID, err)
	}
	return b, nil
}

// Blocks returns the children of rootID with every nested child list
// expanded. Sibling order is preserved; at most MaxConcurrent listings run at
// once.
func (c *Client) Blocks(ctx context.Context, rootID string) ([]Block, error) {
	sem := make(chan struct{}, c.maxConcurrent)
	return c.expand(ctx, rootID, sem)
}

func (c *Client) expand(ctx context.Context, id string, sem chan struct{}) ([]Block, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	select {
	case sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	blocks, err := c.ListChildren(ctx, id)
	<-sem
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	errs := make([]error, len(blocks))
	for i := range blocks {
		if !blocks[i].HasChildren {
			continue
		}
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			children, err := c.expand(ctx, blocks[i].ID, sem)
			if err != nil {
				errs[i] = err
				cancel()
				return
			}
			blocks[i].Children = children
		}(i)
	}
	wg.Wait()
	return blocks, firstError(errs)
}

// firstError prefers a real failure over the cancellations it caused.
func firstError(errs []error) error {
	var canceled error
	for _, err := range errs {
		if err == nil {
			continue
		}
		if !errors.Is(err, context.Canceled) {
			return err
		}
		if canceled == nil {
			canceled = err
		}
	}
	return canceled
}

// Tree fetches and decodes the full content tree under rootID.
func (c *Client) Tree(ctx context.Context, rootID string) ([]*doctree.Node, error) {
	blocks, err := c.Blocks(ctx, rootID)
	if err != nil {
		return nil, err
	}
	return DecodeAll(blocks), nil
}

// ResolveImage re-reads an image block to obtain a fresh URL for
// API-hosted files.
func (c *Client) ResolveImage(ctx context.Context, blockID string) (*doctree.Image, error) {
	b, err := c.Retrieve(ctx, blockID)
	if err != nil {
		return nil, err
	}
	return imageOf(b)
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Notion-Version", c.version)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.stats.Record(time.Since(start).Milliseconds(), true)
		return fmt.Errorf("notion api: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	c.stats.Record(time.Since(start).Milliseconds(), err != nil || resp.StatusCode != http.StatusOK)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		c.log.Debug("notion retryable status", "path", path, "status", resp.StatusCode)
		return &RetryableError{
			StatusCode: resp.StatusCode,
			Message:    string(body),
			RetryAfter: retryAfter(resp.Header.Get("Retry-After")),
		}
	}
	if resp.StatusCode != http.StatusOK {
		apiErr := &APIError{}
		if json.Unmarshal(body, apiErr) != nil || apiErr.Message == "" {
			apiErr.Message = string(body)
		}
		apiErr.StatusCode = resp.StatusCode
		return apiErr
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func retryAfter(v string) time.Duration {
	secs, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

// Close releases idle connections.
func (c *Client) Close() {
	c.httpClient.CloseIdleConnections()
}
