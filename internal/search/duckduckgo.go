package search

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html"

	"quadforge/internal/logging"
)

const (
	ddgBaseURL     = "https://html.duckduckgo.com/html"
	requestTimeout = 30 * time.Second
	maxBodyBytes   = 1 << 20
)

// DuckDuckGo searches the HTML endpoint and parses the result list.
type DuckDuckGo struct {
	client  *http.Client
	baseURL string
}

// NewDuckDuckGo builds the backend. A nil client uses http.DefaultClient.
func NewDuckDuckGo(client *http.Client) *DuckDuckGo {
	if client == nil {
		client = http.DefaultClient
	}
	return &DuckDuckGo{client: client, baseURL: ddgBaseURL}
}

// Search runs one query and returns up to limit unblocked results.
func (d *DuckDuckGo) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	limit = clampLimit(limit)
	searchURL := fmt.Sprintf("%s/?q=%s", d.baseURL, url.QueryEscape(commerceQuery(query)))

	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
	if err != nil {
		return nil, fmt.Errorf("duckduckgo: build request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36")
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("duckduckgo: request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("duckduckgo: HTTP %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("duckduckgo: read response: %w", err)
	}

	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("duckduckgo: parse HTML: %w", err)
	}

	all := collectResults(doc)
	results := make([]Result, 0, limit)
	blocked := 0
	for _, r := range all {
		if Blocked(r.URL) {
			blocked++
			continue
		}
		results = append(results, r)
		if len(results) >= limit {
			break
		}
	}
	logging.Search("[ddg] %q -> %d results (%d blocked)", query, len(results), blocked)
	return results, nil
}

// collectResults walks the document for result divs. The HTML endpoint
// marks them with both "result" and "results_links" classes.
func collectResults(doc *html.Node) []Result {
	var results []Result
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "div" {
			for _, attr := range n.Attr {
				if attr.Key == "class" &&
					strings.Contains(attr.Val, "result") &&
					strings.Contains(attr.Val, "results_links") {
					r := extractResult(n)
					if r.URL != "" && r.Title != "" {
						results = append(results, r)
					}
					return
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return results
}

func extractResult(n *html.Node) Result {
	var r Result
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			for _, attr := range n.Attr {
				if attr.Key != "class" {
					continue
				}
				if strings.Contains(attr.Val, "result__a") {
					r.URL = unwrapRedirect(attrValue(n, "href"))
					r.Title = textContent(n)
				} else if strings.Contains(attr.Val, "result__snippet") {
					r.Snippet = textContent(n)
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)

	if u, err := url.Parse(r.URL); err == nil && u.Host != "" {
		r.Source = u.Host
	}
	return r
}

// unwrapRedirect decodes DuckDuckGo's /l/?uddg= redirect links back to
// the destination URL.
func unwrapRedirect(raw string) string {
	for _, prefix := range []string{"//duckduckgo.com/l/?uddg=", "/l/?uddg="} {
		if !strings.HasPrefix(raw, prefix) {
			continue
		}
		decoded, err := url.QueryUnescape(strings.TrimPrefix(raw, prefix))
		if err != nil {
			return raw
		}
		if idx := strings.Index(decoded, "&"); idx > 0 {
			decoded = decoded[:idx]
		}
		return decoded
	}
	return raw
}

func attrValue(n *html.Node, key string) string {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return attr.Val
		}
	}
	return ""
}

func textContent(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(strings.TrimSpace(n.Data))
			sb.WriteString(" ")
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.TrimSpace(sb.String())
}
