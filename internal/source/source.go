// Package source supplies the content tree a site is built from.
package source

import (
	"context"

	"github.com/dgallion1/notiondocs/internal/doctree"
	"github.com/dgallion1/notiondocs/internal/notion"
)

// NodeSource yields the ordered top-level content nodes of the root page.
type NodeSource interface {
	Nodes(ctx context.Context) ([]*doctree.Node, error)
}

// Notion reads the tree live from the Notion API.
type Notion struct {
	client *notion.Client
	pageID string
}

func NewNotion(client *notion.Client, pageID string) *Notion {
	return &Notion{client: client, pageID: pageID}
}

func (n *Notion) Nodes(ctx context.Context) ([]*doctree.Node, error) {
	return n.client.Tree(ctx, n.pageID)
}
