package manifest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quadforge/internal/parts"
)

func TestProcurementGroupsAndTotals(t *testing.T) {
	bom := []*parts.Part{
		{
			Category: parts.CategoryMotor,
			Name:     "iFlight XING2 2207",
			Price:    24.99,
			URL:      "https://www.getfpv.com/xing2-2207",
		},
		{
			Category: parts.CategoryFrame,
			Name:     "Source One V5",
			Price:    39.99,
			URL:      "https://getfpv.com/source-one-v5",
		},
		{
			Category: parts.CategoryBattery,
			Name:     "CNHL 6S 1300mAh",
			Price:    31.50,
			URL:      "https://chinahobbyline.com/cnhl-1300",
		},
	}

	m := Procurement(bom)

	assert.Equal(t, "USD", m.Currency)
	assert.Equal(t, 96.48, m.Subtotal)
	assert.Equal(t, 4.82, m.EstimatedShipping)
	assert.Equal(t, 7.72, m.EstimatedTax)
	assert.Equal(t, 109.02, m.TotalEstimated)

	require.Len(t, m.Vendors, 2, "www prefix folds into the bare domain")
	require.Len(t, m.Vendors["getfpv.com"], 2)
	require.Len(t, m.Vendors["chinahobbyline.com"], 1)

	line := m.Vendors["chinahobbyline.com"][0]
	assert.Equal(t, "battery", line.Part)
	assert.Equal(t, 31.50, line.Price)
	assert.Equal(t, "https://chinahobbyline.com/cnhl-1300", line.Link)
}

func TestProcurementPriceFallback(t *testing.T) {
	bom := []*parts.Part{
		{
			Category:    parts.CategoryProp,
			Name:        "HQProp 5x4.3x3",
			Description: "Set of 4, only $3.99 per set",
			URL:         "https://pyrodrone.com/hqprop",
		},
		{
			Category: parts.CategoryCamera,
			Name:     "Mystery Cam",
		},
	}

	m := Procurement(bom)
	assert.Equal(t, 3.99, m.Subtotal)
	require.Len(t, m.Vendors[UnknownVendor], 1)
	assert.Equal(t, 0.0, m.Vendors[UnknownVendor][0].Price)
}

func TestProcurementEmptyBOM(t *testing.T) {
	m := Procurement(nil)
	assert.Equal(t, 0.0, m.Subtotal)
	assert.Equal(t, 0.0, m.TotalEstimated)
	assert.Empty(t, m.Vendors)
}

func TestParsePrice(t *testing.T) {
	cases := []struct {
		text string
		want float64
	}{
		{"$24.99", 24.99},
		{"Price: USD 31.50 in stock", 31.50},
		{"free shipping", 0},
		{"15", 0},
		{"", 0},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, ParsePrice(tc.text), "text %q", tc.text)
	}
}
