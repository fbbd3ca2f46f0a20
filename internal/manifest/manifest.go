// Package manifest prices a sourced bill of materials: per-vendor
// grouping, subtotal, and flat shipping and tax estimates.
package manifest

import (
	"math"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"quadforge/internal/logging"
	"quadforge/internal/parts"
)

// Estimate buffers applied on top of the listed prices.
const (
	ShippingRate = 0.05
	TaxRate      = 0.08
)

// UnknownVendor groups parts whose listing URL did not parse.
const UnknownVendor = "Unknown"

// Line is one priced part under a vendor.
type Line struct {
	Part  string  `json:"part"`
	Name  string  `json:"name"`
	Price float64 `json:"price"`
	Link  string  `json:"link"`
}

// Manifest is the procurement summary for one build.
type Manifest struct {
	Currency          string            `json:"currency"`
	Subtotal          float64           `json:"subtotal"`
	EstimatedShipping float64           `json:"estimated_shipping"`
	EstimatedTax      float64           `json:"estimated_tax"`
	TotalEstimated    float64           `json:"total_estimated_cost"`
	Vendors           map[string][]Line `json:"vendors"`
}

// Procurement totals the BOM and groups lines by vendor domain. Parts
// without a scraped price fall back to a price pattern in their
// description; parts without either count as zero.
func Procurement(bom []*parts.Part) *Manifest {
	m := &Manifest{
		Currency: "USD",
		Vendors:  make(map[string][]Line),
	}

	subtotal := 0.0
	for _, p := range bom {
		if p == nil {
			continue
		}
		price := p.Price
		if price <= 0 {
			price = ParsePrice(p.Description)
		}
		vendor := vendorDomain(p.URL)
		subtotal += price

		m.Vendors[vendor] = append(m.Vendors[vendor], Line{
			Part:  string(p.Category),
			Name:  p.Name,
			Price: price,
			Link:  p.URL,
		})
	}

	m.Subtotal = round2(subtotal)
	m.EstimatedShipping = round2(subtotal * ShippingRate)
	m.EstimatedTax = round2(subtotal * TaxRate)
	m.TotalEstimated = round2(subtotal + subtotal*ShippingRate + subtotal*TaxRate)

	logging.Cost("Procurement manifest: %d parts, %d vendors, total $%.2f",
		len(bom), len(m.Vendors), m.TotalEstimated)
	return m
}

// pricePattern matches amounts with a two-digit decimal part.
var pricePattern = regexp.MustCompile(`(\d+[.,]\d{2})`)

// ParsePrice pulls the first price-looking amount out of free text.
// Returns 0 when nothing matches.
func ParsePrice(text string) float64 {
	match := pricePattern.FindStringSubmatch(text)
	if match == nil {
		return 0
	}
	cleaned := strings.ReplaceAll(match[1], ",", "")
	value, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		logging.CostDebug("Unparsable price fragment %q", match[1])
		return 0
	}
	return value
}

func vendorDomain(rawURL string) string {
	if rawURL == "" {
		return UnknownVendor
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return UnknownVendor
	}
	return strings.TrimPrefix(u.Host, "www.")
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
