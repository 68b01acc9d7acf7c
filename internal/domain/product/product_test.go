package product

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestImage_WithBaseURL(t *testing.T) {
	img := Image{Thumbnail: "pho/thumb.jpg", Desktop: "pho/desktop.jpg"}

	got := img.WithBaseURL("https://cdn.example.com")
	assert.Equal(t, "https://cdn.example.com/pho/thumb.jpg", got.Thumbnail)
	assert.Equal(t, "https://cdn.example.com/pho/desktop.jpg", got.Desktop)
	assert.Empty(t, got.Mobile)

	assert.Equal(t, img, img.WithBaseURL(""))
}

func TestProduct_FindOption(t *testing.T) {
	p := Product{Options: []Option{
		{ID: "egg", Name: "Extra egg", Price: decimal.NewFromInt(5000)},
	}}

	o, ok := p.FindOption("egg")
	assert.True(t, ok)
	assert.Equal(t, "Extra egg", o.Name)

	_, ok = p.FindOption("beef")
	assert.False(t, ok)
}
