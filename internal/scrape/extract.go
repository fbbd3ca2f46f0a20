package scrape

import (
	"encoding/json"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"
)

const maxTextLen = 12000

// PageData is the distilled view of one product page.
type PageData struct {
	Title    string  `json:"title"`
	Price    float64 `json:"price"`
	Currency string  `json:"currency"`
	ImageURL string  `json:"image_url"`
	Text     string  `json:"text"`
}

// Extract distills raw page HTML into PageData. It never fails; fields
// it cannot find stay zero and the caller degrades to search data.
func Extract(htmlSrc, baseURL string) *PageData {
	data := &PageData{}
	doc, err := html.Parse(strings.NewReader(htmlSrc))
	if err != nil {
		return data
	}
	data.Title = documentTitle(doc)
	data.Price, data.Currency = extractPrice(doc)
	data.ImageURL = findBestImage(doc, baseURL)
	data.Text = specText(doc)
	return data
}

var priceRe = regexp.MustCompile(`\$\s?(\d{1,3}(?:,\d{3})*(?:\.\d{2})?)`)

// extractPrice hunts for a price in JSON-LD, then meta tags, then a
// dollar-sign scan over the first stretch of visible text.
func extractPrice(doc *html.Node) (float64, string) {
	var price float64
	var currency string

	walk(doc, func(n *html.Node) bool {
		if price > 0 {
			return false
		}
		if n.Type == html.ElementNode && n.Data == "script" && attr(n, "type") == "application/ld+json" {
			var v interface{}
			if err := json.Unmarshal([]byte(rawText(n)), &v); err == nil {
				switch typed := v.(type) {
				case []interface{}:
					for _, item := range typed {
						if p, c := schemaPrice(item); p > 0 {
							price, currency = p, c
							break
						}
					}
				default:
					if p, c := schemaPrice(v); p > 0 {
						price, currency = p, c
					}
				}
			}
			return false
		}
		return true
	})

	if price == 0 {
		for _, prop := range []string{"product:price:amount", "og:price:amount"} {
			if f := toFloat(meta(doc, prop)); f > 0 {
				price = f
				break
			}
		}
		if price > 0 {
			for _, prop := range []string{"product:price:currency", "og:price:currency"} {
				if c := meta(doc, prop); c != "" {
					currency = c
					break
				}
			}
		}
	}

	if price == 0 {
		blob := cleanText(doc)
		if len(blob) > 5000 {
			blob = blob[:5000]
		}
		for _, m := range priceRe.FindAllStringSubmatch(blob, -1) {
			if f := toFloat(m[1]); f > 0 {
				price = f
				break
			}
		}
	}

	if price > 0 && currency == "" {
		currency = "USD"
	}
	return price, currency
}

// schemaPrice pulls a price out of a schema.org Product node.
func schemaPrice(v interface{}) (float64, string) {
	obj, ok := v.(map[string]interface{})
	if !ok {
		return 0, ""
	}
	if t, _ := obj["@type"].(string); t != "Product" {
		return 0, ""
	}
	switch offers := obj["offers"].(type) {
	case map[string]interface{}:
		return offerPrice(offers)
	case []interface{}:
		if len(offers) > 0 {
			if o, ok := offers[0].(map[string]interface{}); ok {
				return offerPrice(o)
			}
		}
	}
	return 0, ""
}

func offerPrice(offer map[string]interface{}) (float64, string) {
	currency, _ := offer["priceCurrency"].(string)
	return toFloat(offer["price"]), currency
}

// findBestImage prefers known storefront hero-image slots, then the
// OpenGraph image, then the first plausible product shot.
func findBestImage(doc *html.Node, baseURL string) string {
	var imgs []*html.Node
	walk(doc, func(n *html.Node) bool {
		if n.Type == html.ElementNode && n.Data == "img" {
			imgs = append(imgs, n)
		}
		return true
	})

	candidates := []func(*html.Node) bool{
		func(n *html.Node) bool { return attr(n, "id") == "landingImage" },
		func(n *html.Node) bool { return attr(n, "id") == "imgBlkFront" },
		func(n *html.Node) bool { return strings.Contains(attr(n, "class"), "magnifier-image") },
		func(n *html.Node) bool { return strings.Contains(attr(n, "class"), "product__image") },
		func(n *html.Node) bool { return attr(n, "data-zoom-image") != "" },
		func(n *html.Node) bool { return attr(n, "data-old-hires") != "" },
	}
	for _, match := range candidates {
		for _, img := range imgs {
			if !match(img) {
				continue
			}
			src := firstNonEmpty(attr(img, "data-zoom-image"), attr(img, "data-old-hires"), attr(img, "src"))
			if src != "" {
				return fixURL(src, baseURL)
			}
		}
	}

	if og := meta(doc, "og:image"); og != "" {
		return fixURL(og, baseURL)
	}

	for _, img := range imgs {
		src := attr(img, "src")
		if src == "" || strings.Contains(src, "base64") || strings.Contains(src, ".gif") {
			continue
		}
		lower := strings.ToLower(src)
		if strings.Contains(lower, "logo") || strings.Contains(lower, "icon") ||
			strings.Contains(lower, "sprite") || strings.Contains(lower, "avatar") {
			continue
		}
		if strings.Contains(lower, "product") || strings.Contains(lower, "main") ||
			strings.Contains(lower, "600") || strings.Contains(lower, "large") {
			return fixURL(src, baseURL)
		}
	}
	return ""
}

// Tags whose subtrees carry no spec data.
var strippedTags = map[string]bool{
	"script": true, "style": true, "nav": true, "footer": true,
	"header": true, "svg": true, "iframe": true, "noscript": true,
	"button": true,
}

// specText gathers spec tables and bullet lists; thin pages fall back
// to the whole visible text. Capped so LLM prompts stay bounded.
func specText(doc *html.Node) string {
	var sb strings.Builder
	walk(doc, func(n *html.Node) bool {
		if n.Type == html.ElementNode {
			if strippedTags[n.Data] {
				return false
			}
			switch n.Data {
			case "table":
				sb.WriteString(joinedText(n, " | "))
				sb.WriteString("\n")
				return false
			case "ul":
				sb.WriteString(joinedText(n, "\n"))
				sb.WriteString("\n")
				return false
			}
		}
		return true
	})

	if sb.Len() < 50 {
		sb.WriteString(cleanText(doc))
	}

	text := strings.Join(strings.Fields(sb.String()), " ")
	if len(text) > maxTextLen {
		cut := maxTextLen
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		text = text[:cut]
	}
	return text
}

func documentTitle(doc *html.Node) string {
	title := ""
	walk(doc, func(n *html.Node) bool {
		if title != "" {
			return false
		}
		if n.Type == html.ElementNode && n.Data == "title" {
			title = joinedText(n, " ")
			return false
		}
		return true
	})
	return strings.TrimSpace(title)
}

// walk runs fn over the tree in document order. Returning false skips
// the node's subtree.
func walk(n *html.Node, fn func(*html.Node) bool) {
	if !fn(n) {
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, fn)
	}
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

// meta returns the content of a meta tag matched by property or name.
func meta(doc *html.Node, key string) string {
	content := ""
	walk(doc, func(n *html.Node) bool {
		if content != "" {
			return false
		}
		if n.Type == html.ElementNode && n.Data == "meta" {
			if attr(n, "property") == key || attr(n, "name") == key {
				content = attr(n, "content")
			}
		}
		return true
	})
	return content
}

// rawText concatenates direct text children, for script bodies.
func rawText(n *html.Node) string {
	var sb strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			sb.WriteString(c.Data)
		}
	}
	return sb.String()
}

// joinedText joins every trimmed text chunk under n with sep.
func joinedText(n *html.Node, sep string) string {
	var chunks []string
	walk(n, func(c *html.Node) bool {
		if c.Type == html.TextNode {
			if t := strings.TrimSpace(c.Data); t != "" {
				chunks = append(chunks, t)
			}
		}
		return true
	})
	return strings.Join(chunks, sep)
}

// cleanText is the whole document text with scripts and chrome removed.
func cleanText(doc *html.Node) string {
	var chunks []string
	walk(doc, func(n *html.Node) bool {
		if n.Type == html.ElementNode && strippedTags[n.Data] {
			return false
		}
		if n.Type == html.TextNode {
			if t := strings.TrimSpace(n.Data); t != "" {
				chunks = append(chunks, t)
			}
		}
		return true
	})
	return strings.Join(chunks, " ")
}

func toFloat(v interface{}) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case string:
		f, err := strconv.ParseFloat(strings.ReplaceAll(strings.TrimSpace(t), ",", ""), 64)
		if err == nil {
			return f
		}
	case json.Number:
		f, _ := t.Float64()
		return f
	}
	return 0
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// fixURL resolves relative and protocol-relative image sources.
func fixURL(src, base string) string {
	if src == "" {
		return ""
	}
	if strings.HasPrefix(src, "//") {
		return "https:" + src
	}
	if strings.HasPrefix(src, "http") {
		return src
	}
	b, err := url.Parse(base)
	if err != nil {
		return src
	}
	ref, err := url.Parse(src)
	if err != nil {
		return src
	}
	return b.ResolveReference(ref).String()
}
