package output

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFormat(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Format
		wantErr bool
	}{
		{name: "table", input: "table", want: FormatTable},
		{name: "empty defaults to table", input: "", want: FormatTable},
		{name: "json", input: "json", want: FormatJSON},
		{name: "uppercase normalized", input: "JSON", want: FormatJSON},
		{name: "yaml", input: "yaml", want: FormatYAML},
		{name: "yml alias", input: "yml", want: FormatYAML},
		{name: "surrounding whitespace", input: "  yaml ", want: FormatYAML},
		{name: "unsupported", input: "xml", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseFormat(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFormatString(t *testing.T) {
	assert.Equal(t, "table", FormatTable.String())
	assert.Equal(t, "json", FormatJSON.String())
	assert.Equal(t, "yaml", FormatYAML.String())
}

func TestPrintJSON(t *testing.T) {
	report := struct {
		Locator string `json:"locator"`
		Warmed  int    `json:"warmed"`
	}{Locator: "cdn/hero.webp", Warmed: 3}

	var buf bytes.Buffer
	require.NoError(t, PrintJSON(&buf, report))

	out := buf.String()
	assert.Contains(t, out, `"locator": "cdn/hero.webp"`)
	assert.Contains(t, out, `"warmed": 3`)
}

func TestPrintYAML(t *testing.T) {
	report := struct {
		Locator string `yaml:"locator"`
		Warmed  int    `yaml:"warmed"`
	}{Locator: "cdn/hero.webp", Warmed: 3}

	var buf bytes.Buffer
	require.NoError(t, PrintYAML(&buf, report))

	out := buf.String()
	assert.Contains(t, out, "locator: cdn/hero.webp")
	assert.Contains(t, out, "warmed: 3")
}

func TestPrintYAMLSequence(t *testing.T) {
	assets := []struct {
		Locator string `yaml:"locator"`
	}{
		{Locator: "cdn/a.webp"},
		{Locator: "cdn/b.webp"},
	}

	var buf bytes.Buffer
	require.NoError(t, PrintYAML(&buf, assets))

	out := buf.String()
	assert.Contains(t, out, "- locator: cdn/a.webp")
	assert.Contains(t, out, "- locator: cdn/b.webp")
}
