package search

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const ddgPage = `<html><body><div class="serp__results">
<div class="result results_links results_links_deep web-result">
  <h2 class="result__title">
    <a class="result__a" href="//duckduckgo.com/l/?uddg=https%3A%2F%2Fwww.getfpv.com%2Fmotor&amp;rut=abc123">RCINPOWER GTS V3 2207 Motor</a>
  </h2>
  <a class="result__snippet" href="#">High power 6S freestyle motor with 1750KV winding.</a>
</div>
<div class="result results_links web-result">
  <a class="result__a" href="https://www.reddit.com/r/fpv/motors">Best motors? : fpv</a>
  <a class="result__snippet" href="#">discussion thread</a>
</div>
<div class="result results_links web-result">
  <a class="result__a" href="https://pyrodrone.com/products/hyperlite-motor">Hyperlite 2207.5 Motor</a>
  <a class="result__snippet" href="#">Race proven motor.</a>
</div>
</div></body></html>`

type fakeBackend struct {
	results []Result
	err     error
}

func (f *fakeBackend) Search(context.Context, string, int) ([]Result, error) {
	return f.results, f.err
}

func TestDuckDuckGoSearch(t *testing.T) {
	var gotQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("q")
		io.WriteString(w, ddgPage)
	}))
	defer server.Close()

	d := NewDuckDuckGo(server.Client())
	d.baseURL = server.URL

	results, err := d.Search(context.Background(), "2207 1750kv motor", 10)
	require.NoError(t, err)

	assert.Equal(t, "2207 1750kv motor buy", gotQuery)
	require.Len(t, results, 2, "reddit result should be blocked")

	assert.Equal(t, "RCINPOWER GTS V3 2207 Motor", results[0].Title)
	assert.Equal(t, "https://www.getfpv.com/motor", results[0].URL, "redirect should unwrap")
	assert.Equal(t, "www.getfpv.com", results[0].Source)
	assert.Contains(t, results[0].Snippet, "1750KV")

	assert.Equal(t, "https://pyrodrone.com/products/hyperlite-motor", results[1].URL)
	assert.Equal(t, "pyrodrone.com", results[1].Source)
}

func TestDuckDuckGoSearchLimit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, ddgPage)
	}))
	defer server.Close()

	d := NewDuckDuckGo(server.Client())
	d.baseURL = server.URL

	results, err := d.Search(context.Background(), "motor", 1)
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestDuckDuckGoSearchHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	d := NewDuckDuckGo(server.Client())
	d.baseURL = server.URL

	_, err := d.Search(context.Background(), "motor", 5)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP 503")
}

func TestUnwrapRedirect(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"protocol relative", "//duckduckgo.com/l/?uddg=https%3A%2F%2Fexample.com%2Fp&rut=x", "https://example.com/p"},
		{"relative", "/l/?uddg=https%3A%2F%2Fexample.com%2Fp", "https://example.com/p"},
		{"plain url untouched", "https://example.com/p", "https://example.com/p"},
		{"empty", "", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, unwrapRedirect(tc.in))
		})
	}
}

func TestBlocked(t *testing.T) {
	assert.True(t, Blocked("https://www.reddit.com/r/fpv"))
	assert.True(t, Blocked("https://intofpv.com/forum/thread-123"))
	assert.True(t, Blocked("https://www.pinterest.com/pin/1"))
	assert.False(t, Blocked("https://www.getfpv.com/motor"))
	assert.False(t, Blocked("https://pyrodrone.com/products/x"))
}

func TestCommerceQuery(t *testing.T) {
	assert.Equal(t, "2207 motor buy", commerceQuery("2207 motor"))
	assert.Equal(t, "2207 motor buy now", commerceQuery("2207 motor buy now"))
	assert.Equal(t, "2207 motor price", commerceQuery("2207 motor price"))
}

func TestMultiSearchMergesAndDedups(t *testing.T) {
	a := &fakeBackend{results: []Result{
		{Title: "A1", URL: "https://a.com/1"},
		{Title: "Shared", URL: "https://shared.com/p"},
	}}
	b := &fakeBackend{results: []Result{
		{Title: "Shared", URL: "https://shared.com/p"},
		{Title: "B1", URL: "https://b.com/1"},
	}}

	m := NewMulti(a, b)
	results, err := m.Search(context.Background(), "motor", 10)
	require.NoError(t, err)

	require.Len(t, results, 3)
	urls := make(map[string]bool)
	for _, r := range results {
		urls[r.URL] = true
	}
	assert.True(t, urls["https://a.com/1"])
	assert.True(t, urls["https://b.com/1"])
	assert.True(t, urls["https://shared.com/p"])
}

func TestMultiSearchPartialFailure(t *testing.T) {
	ok := &fakeBackend{results: []Result{{Title: "A", URL: "https://a.com/1"}}}
	bad := &fakeBackend{err: fmt.Errorf("engine down")}

	m := NewMulti(ok, bad)
	results, err := m.Search(context.Background(), "motor", 10)
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestMultiSearchAllFail(t *testing.T) {
	m := NewMulti(
		&fakeBackend{err: fmt.Errorf("engine down")},
		&fakeBackend{err: fmt.Errorf("engine down")},
	)
	_, err := m.Search(context.Background(), "motor", 10)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "all 2 backends failed")
}

func TestMultiSearchNoBackends(t *testing.T) {
	m := NewMulti()
	_, err := m.Search(context.Background(), "motor", 10)
	require.Error(t, err)
}

func TestMultiSearchTruncatesToLimit(t *testing.T) {
	a := &fakeBackend{results: []Result{
		{URL: "https://a.com/1", Title: "1"},
		{URL: "https://a.com/2", Title: "2"},
		{URL: "https://a.com/3", Title: "3"},
	}}
	m := NewMulti(a)
	results, err := m.Search(context.Background(), "motor", 2)
	require.NoError(t, err)
	assert.Len(t, results, 2)
}
