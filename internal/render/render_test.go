package render_test

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/Sumatoshi-tech/didiforget/internal/render"
	"github.com/Sumatoshi-tech/didiforget/pkg/report"
)

func sample() []report.Record {
	return []report.Record{
		{Path: "A.txt", CoupledPath: "B.txt", SharedCommits: 2, TotalCommits: 3, Confidence: 2.0 / 3.0},
		{Path: "C.txt", CoupledPath: "D.txt", SharedCommits: 4, TotalCommits: 4, Confidence: 1},
	}
}

func TestRender_CSV(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	require.NoError(t, render.Render(&buf, sample(), render.Options{Format: render.FormatCSV}))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "Changed file,Top coupled file,Shared commits,Confidence", lines[0])
	assert.Equal(t, "A.txt,B.txt,2,0.67", lines[1])
	assert.Equal(t, "C.txt,D.txt,4,1", lines[2])
}

func TestRender_Table(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	require.NoError(t, render.Render(&buf, sample(), render.Options{Format: render.FormatTable, NoColor: true}))

	out := buf.String()
	assert.Contains(t, out, "Changed file")
	assert.Contains(t, out, "Top coupled file")
	assert.Contains(t, out, "0.67")
	assert.Contains(t, out, "B.txt")
	assert.Contains(t, out, "Total: 2")
}

func TestRender_TableEmpty(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	require.NoError(t, render.Render(&buf, nil, render.Options{NoColor: true}))
	assert.Equal(t, "No coupled files above the threshold.\n", buf.String())
}

func TestRender_JSONIncludesSummary(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	require.NoError(t, render.Render(&buf, sample(), render.Options{Format: render.FormatJSON}))

	var doc render.Document

	require.NoError(t, json.Unmarshal(buf.Bytes(), &doc))
	assert.Len(t, doc.Records, 2)
	assert.Equal(t, 2, doc.Summary.Records)
	assert.Equal(t, 2, doc.Summary.StrongCouplings)
	assert.Contains(t, buf.String(), `"coupled_path": "B.txt"`)
}

func TestRender_JSONEmptyIsArray(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	require.NoError(t, render.Render(&buf, nil, render.Options{Format: render.FormatJSON}))
	assert.Contains(t, buf.String(), `"records": []`)
}

func TestRender_YAML(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	require.NoError(t, render.Render(&buf, sample(), render.Options{Format: render.FormatYAML}))

	var doc render.Document

	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &doc))
	require.Len(t, doc.Records, 2)
	assert.Equal(t, "D.txt", doc.Records[1].CoupledPath)
	assert.InDelta(t, 1.0, doc.Summary.MaxConfidence, 1e-9)
}

func TestRender_UnknownFormat(t *testing.T) {
	t.Parallel()

	err := render.Render(&bytes.Buffer{}, sample(), render.Options{Format: "xml"})
	assert.ErrorIs(t, err, render.ErrUnknownFormat)
}

func TestParseFormat(t *testing.T) {
	t.Parallel()

	for _, f := range render.Formats() {
		got, err := render.ParseFormat(string(f))
		require.NoError(t, err)
		assert.Equal(t, f, got)
	}

	_, err := render.ParseFormat("TABLE")
	assert.ErrorIs(t, err, render.ErrUnknownFormat)
}

func TestFormatConfidence(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "0.67", render.FormatConfidence(2.0/3.0))
	assert.Equal(t, "0.5", render.FormatConfidence(0.5))
	assert.Equal(t, "1", render.FormatConfidence(1))
	assert.Equal(t, "0", render.FormatConfidence(0))
}
