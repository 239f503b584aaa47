package page

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPage_DisplayTitle(t *testing.T) {
	assert.Equal(t, "Roadmap", Page{ID: "p1", Title: "  Roadmap "}.DisplayTitle())
	assert.Equal(t, "p1", Page{ID: "p1", Title: "   "}.DisplayTitle())
}

func TestPage_PropertyMap(t *testing.T) {
	assert.Nil(t, Page{}.PropertyMap())

	p := Page{Properties: []Property{
		{Name: "Status", Type: "select", Value: "Draft"},
		{Name: "Owner", Type: "people", Value: "ana"},
		{Name: "Status", Type: "select", Value: "Done"},
	}}
	assert.Equal(t, map[string]string{"Status": "Done", "Owner": "ana"}, p.PropertyMap())
}
