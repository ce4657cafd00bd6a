// Package slug maps display text to URL-safe identifiers.
package slug

import (
	"fmt"
	"regexp"
	"strings"
)

var nonAlnum = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify lowercases text, replaces every run of characters outside [a-z0-9]
// with a single hyphen and trims hyphens from both ends. Two different inputs
// may yield the same slug.
func Slugify(text string) string {
	s := nonAlnum.ReplaceAllString(strings.ToLower(text), "-")
	return strings.Trim(s, "-")
}

// Counter disambiguates repeated slugs: the first occurrence is returned bare,
// later ones get a numeric suffix starting at 2. Not safe for concurrent use.
type Counter struct {
	seen map[string]int
}

func NewCounter() *Counter {
	return &Counter{seen: make(map[string]int)}
}

// Slug returns a slug for text that is unique since the last Reset.
func (c *Counter) Slug(text string) string {
	return c.Claim(Slugify(text))
}

// Claim registers an already-computed slug and returns its unique form.
func (c *Counter) Claim(s string) string {
	n := c.seen[s]
	c.seen[s] = n + 1
	if n == 0 {
		return s
	}
	for {
		candidate := fmt.Sprintf("%s-%d", s, n+1)
		if c.seen[candidate] == 0 {
			c.seen[candidate] = 1
			return candidate
		}
		n++
		c.seen[s] = n + 1
	}
}

// Reset forgets all previously issued slugs.
func (c *Counter) Reset() {
	clear(c.seen)
}
