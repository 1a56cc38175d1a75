// Copyright © 2025 Steve Taranto staranto@gmail.com
// SPDX-License-Identifier: MIT

package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/apex/log"
	"github.com/charmbracelet/lipgloss/v2"
	"github.com/charmbracelet/lipgloss/v2/table"
	"github.com/tidwall/gjson"
	"gopkg.in/yaml.v3"
)

// Formats accepted by Emit.
var Formats = []string{"text", "json", "yaml"}

// Attr selects one column: a gjson path into each item, and the title it is
// shown under.
type Attr struct {
	Path  string
	Title string
}

// ParseAttrs parses a comma-separated list of "path" or "path:title" items.
func ParseAttrs(list string) []Attr {
	var attrs []Attr
	for _, part := range strings.Split(list, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		path, title, ok := strings.Cut(part, ":")
		if !ok || title == "" {
			title = path
			if i := strings.LastIndex(path, "."); i >= 0 {
				title = path[i+1:]
			}
		}
		attrs = append(attrs, Attr{Path: path, Title: title})
	}
	return attrs
}

// Options controls Emit.
type Options struct {
	Format string
	Attrs  []Attr
	Titles bool
}

// Emit renders items, which must marshal to a JSON array, projecting each
// element through opts.Attrs.
func Emit(w io.Writer, items any, opts Options) error {
	if w == nil {
		w = os.Stdout
	}

	raw, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("failed to marshal results: %w", err)
	}
	doc := gjson.ParseBytes(raw)
	if !doc.IsArray() {
		return fmt.Errorf("results must be a list, got %s", doc.Type)
	}
	log.Debugf("emitting %d results as %s", len(doc.Array()), opts.Format)

	switch opts.Format {
	case "", "text":
		return emitText(w, doc, opts)
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(project(doc, opts.Attrs))
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(project(doc, opts.Attrs)); err != nil {
			return err
		}
		return enc.Close()
	}
	return fmt.Errorf("unknown output format %q: must be one of %v", opts.Format, Formats)
}

// project keeps only the selected attributes. With no attributes each item
// is passed through whole.
func project(doc gjson.Result, attrs []Attr) []any {
	out := []any{}
	doc.ForEach(func(_, item gjson.Result) bool {
		if len(attrs) == 0 {
			out = append(out, item.Value())
			return true
		}
		row := make(map[string]any, len(attrs))
		for _, a := range attrs {
			row[a.Title] = item.Get(a.Path).Value()
		}
		out = append(out, row)
		return true
	})
	return out
}

func emitText(w io.Writer, doc gjson.Result, opts Options) error {
	attrs := opts.Attrs
	if len(attrs) == 0 {
		// Fall back to the top-level keys of the first item.
		first := doc.Get("0")
		first.ForEach(func(k, _ gjson.Result) bool {
			attrs = append(attrs, Attr{Path: k.String(), Title: k.String()})
			return true
		})
	}

	var rows [][]string
	doc.ForEach(func(_, item gjson.Result) bool {
		row := make([]string, len(attrs))
		for i, a := range attrs {
			row[i] = item.Get(a.Path).String()
		}
		rows = append(rows, row)
		return true
	})
	if len(rows) == 0 {
		return nil
	}

	t := table.New().
		BorderBottom(false).
		BorderTop(false).
		BorderLeft(false).
		BorderRight(false).
		Border(lipgloss.HiddenBorder()).
		Rows(rows...)

	if opts.Titles {
		titles := make([]string, len(attrs))
		for i, a := range attrs {
			titles[i] = strings.ToUpper(a.Title)
		}
		t = t.Headers(titles...).BorderHeader(false)
	}

	_, err := fmt.Fprintln(w, t)
	return err
}
