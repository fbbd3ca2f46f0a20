// Package search finds candidate product pages for part queries. The
// default backend scrapes the DuckDuckGo HTML endpoint, which needs no
// API key; Multi fans a query across several backends and merges.
package search

import (
	"context"
	"strings"
)

// Result is one search hit.
type Result struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
	Source  string `json:"source"`
}

// Backend is a single search engine.
type Backend interface {
	Search(ctx context.Context, query string, limit int) ([]Result, error)
}

const (
	defaultLimit = 10
	maxLimit     = 30
)

// Hosts that never carry purchasable product pages.
var domainBlocklist = []string{
	"reddit.com", "facebook.com", "youtube.com", "twitter.com",
	"instagram.com", "forum", "pinterest",
}

// SetBlocklist replaces the domain blocklist, letting config own the
// list. An empty slice keeps the defaults.
func SetBlocklist(domains []string) {
	if len(domains) == 0 {
		return
	}
	domainBlocklist = domains
}

// Blocked reports whether the link sits on a blocklisted host.
func Blocked(link string) bool {
	l := strings.ToLower(link)
	for _, bad := range domainBlocklist {
		if strings.Contains(l, bad) {
			return true
		}
	}
	return false
}

// commerceQuery biases a query toward e-commerce results.
func commerceQuery(q string) string {
	lower := strings.ToLower(q)
	if strings.Contains(lower, "buy") || strings.Contains(lower, "price") {
		return q
	}
	return q + " buy"
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultLimit
	}
	if limit > maxLimit {
		return maxLimit
	}
	return limit
}
