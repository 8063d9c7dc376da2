package chart

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/IBM/fp-go/v2/option"
	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Qubut/IP-Claim/packages/dpma_processor/internal/models"
)

func summary() []models.AggregateRow {
	return []models.AggregateRow{
		{Key: option.Some("10115"), Count: 40, Associated: "Berlin"},
		{Key: option.Some("70469"), Count: 25, Associated: "Stuttgart"},
		{Key: option.Some("80333"), Count: 90, Associated: "Muenchen, München"},
		{Key: option.Some("20095"), Count: 40, Associated: "Hamburg"},
		{Key: option.None[string](), Count: 300, Associated: "Street 5"},
	}
}

func TestSelect(t *testing.T) {
	selected := Select(summary(), 25)

	keys := make([]string, len(selected))
	for i, r := range selected {
		keys[i] = key(r)
	}
	assert.Equal(t, []string{"80333", "10115", "20095"}, keys)
	assert.Empty(t, Select(summary(), 1000))
}

func TestRender(t *testing.T) {
	r := &Renderer{MinPatents: 25}
	var buf bytes.Buffer
	require.NoError(t, r.Render(&buf, summary()))

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, Title, doc.Find("title").Text())

	script := doc.Find("script").Text()
	assert.Contains(t, script, "PLZ 80333")
	assert.Contains(t, script, "Muenchen, München")
	assert.Contains(t, script, "Only PLZs with more than 25 patents are shown")
	assert.NotContains(t, script, "PLZ 70469")
	assert.NotContains(t, script, "Street 5")
}

func TestRenderFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plz_frequencies.html")
	require.NoError(t, (&Renderer{MinPatents: 0}).RenderFile(path, summary()))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Positive(t, info.Size())

	assert.Error(t, (&Renderer{}).RenderFile(filepath.Join(t.TempDir(), "missing", "chart.html"), summary()))
}
