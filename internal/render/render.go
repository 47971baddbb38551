// Package render writes coupling reports as a table, CSV, JSON or YAML.
package render

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"gopkg.in/yaml.v3"

	"github.com/Sumatoshi-tech/didiforget/pkg/report"
)

// Format names an output format.
type Format string

// Supported formats.
const (
	FormatTable Format = "table"
	FormatCSV   Format = "csv"
	FormatJSON  Format = "json"
	FormatYAML  Format = "yaml"
)

// ErrUnknownFormat is returned for a format outside Formats.
var ErrUnknownFormat = errors.New("unknown output format")

const (
	confidenceHigh   = 0.8
	confidenceMedium = 0.5

	msgNoCouplings = "No coupled files above the threshold."
)

var header = table.Row{"Changed file", "Top coupled file", "Shared commits", "Confidence"}

// Formats lists the supported formats.
func Formats() []Format {
	return []Format{FormatTable, FormatCSV, FormatJSON, FormatYAML}
}

// ParseFormat resolves a format name.
func ParseFormat(name string) (Format, error) {
	for _, f := range Formats() {
		if string(f) == name {
			return f, nil
		}
	}

	return "", fmt.Errorf("%w: %q", ErrUnknownFormat, name)
}

// Options configures Render.
type Options struct {
	Format  Format
	NoColor bool
}

// Document is the structured form of a report.
type Document struct {
	Records []report.Record `json:"records" yaml:"records"`
	Summary report.Summary  `json:"summary" yaml:"summary"`
}

// Render writes records to w.
func Render(w io.Writer, records []report.Record, opts Options) error {
	switch opts.Format {
	case FormatTable, "":
		return renderTable(w, records, opts.NoColor)
	case FormatCSV:
		return renderCSV(w, records)
	case FormatJSON:
		return renderJSON(w, records)
	case FormatYAML:
		return renderYAML(w, records)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFormat, opts.Format)
	}
}

func newDocument(records []report.Record) Document {
	if records == nil {
		records = []report.Record{}
	}

	return Document{Records: records, Summary: report.Summarize(records)}
}

func newTable(records []report.Record, confidence func(float64) string) table.Writer {
	tbl := table.NewWriter()
	tbl.AppendHeader(header)

	for _, r := range records {
		tbl.AppendRow(table.Row{r.Path, r.CoupledPath, r.SharedCommits, confidence(r.Confidence)})
	}

	return tbl
}

func renderTable(w io.Writer, records []report.Record, noColor bool) error {
	if len(records) == 0 {
		_, err := fmt.Fprintln(w, msgNoCouplings)

		return err
	}

	tbl := newTable(records, func(c float64) string { return colorize(c, noColor) })
	tbl.SetStyle(table.StyleLight)
	tbl.Style().Options.SeparateRows = false
	tbl.Style().Format.Header = text.FormatDefault
	tbl.Style().Format.Footer = text.FormatDefault

	summary := report.Summarize(records)
	tbl.AppendFooter(table.Row{
		fmt.Sprintf("Total: %d", summary.Records), "", "",
		"max " + FormatConfidence(summary.MaxConfidence),
	})

	_, err := fmt.Fprintln(w, tbl.Render())

	return err
}

func renderCSV(w io.Writer, records []report.Record) error {
	tbl := newTable(records, FormatConfidence)

	_, err := fmt.Fprintln(w, tbl.RenderCSV())

	return err
}

func renderJSON(w io.Writer, records []report.Record) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	err := enc.Encode(newDocument(records))
	if err != nil {
		return fmt.Errorf("encode json: %w", err)
	}

	return nil
}

func renderYAML(w io.Writer, records []report.Record) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)

	err := enc.Encode(newDocument(records))
	if err != nil {
		return fmt.Errorf("encode yaml: %w", err)
	}

	return enc.Close()
}

// FormatConfidence renders a confidence rounded to two decimals without
// trailing zeros.
func FormatConfidence(confidence float64) string {
	return strconv.FormatFloat(report.Round(confidence), 'f', -1, 64)
}

func colorize(confidence float64, noColor bool) string {
	text := FormatConfidence(confidence)
	if noColor {
		return text
	}

	switch {
	case confidence >= confidenceHigh:
		return color.New(color.FgRed, color.Bold).Sprint(text)
	case confidence >= confidenceMedium:
		return color.New(color.FgYellow).Sprint(text)
	default:
		return text
	}
}
