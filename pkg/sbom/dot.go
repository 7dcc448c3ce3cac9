package sbom

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/goccy/go-graphviz"

	"github.com/matzehuels/cppsbom/pkg/core/deps"
	"github.com/matzehuels/cppsbom/pkg/scanner"
)

// ToDOT converts the component graph of res to Graphviz DOT.
//
// Direct components are drawn bold and build-only components dashed.
// Children that are not components themselves appear as grey placeholders.
func ToDOT(res *scanner.Result) string {
	if res.Tree == nil {
		res.BuildTree()
	}
	comps := append([]*deps.Component(nil), res.Tree.All...)
	sort.SliceStable(comps, func(i, j int) bool { return comps[i].Name < comps[j].Name })

	var buf bytes.Buffer
	buf.WriteString("digraph G {\n")
	buf.WriteString("  rankdir=LR;\n")
	buf.WriteString("  bgcolor=\"transparent\";\n")
	buf.WriteString("  node [shape=box, style=\"rounded,filled\", fillcolor=white, fontsize=14, margin=\"0.2,0.1\"];\n")
	buf.WriteString("  ranksep=0.5;\n")
	buf.WriteString("  nodesep=0.3;\n")
	buf.WriteString("\n")

	for _, c := range comps {
		fmt.Fprintf(&buf, "  %q [%s];\n", c.Name, strings.Join(nodeAttrs(c), ", "))
	}

	var placeholders []string
	seen := make(map[string]bool)
	var edges bytes.Buffer
	for _, c := range comps {
		children := append([]string(nil), c.Dependencies...)
		sort.Strings(children)
		for _, name := range children {
			target := name
			if child, ok := res.Tree.Lookup(name); ok {
				target = child.Name
			} else if !seen[name] {
				seen[name] = true
				placeholders = append(placeholders, name)
			}
			fmt.Fprintf(&edges, "  %q -> %q;\n", c.Name, target)
		}
	}
	sort.Strings(placeholders)
	for _, name := range placeholders {
		fmt.Fprintf(&buf, "  %q [label=%q, style=\"rounded,dotted\", fontcolor=grey];\n", name, name)
	}

	buf.WriteString("\n")
	buf.Write(edges.Bytes())
	buf.WriteString("}\n")
	return buf.String()
}

func nodeAttrs(c *deps.Component) []string {
	label := c.Name
	if c.HasVersion() {
		label += "\n" + c.Version
	}
	styles := []string{"rounded", "filled"}
	if c.Kind.IsBuildOnly() {
		styles = append(styles, "dashed")
	}
	if c.IsDirect {
		styles = append(styles, "bold")
	}
	attrs := []string{fmt.Sprintf("label=%q", label), fmt.Sprintf("style=%q", strings.Join(styles, ","))}
	if c.Kind.IsBuildOnly() {
		attrs = append(attrs, "fillcolor=lightgrey")
	}
	return attrs
}

// RenderSVG renders a DOT graph to SVG using Graphviz.
func RenderSVG(ctx context.Context, dot string) ([]byte, error) {
	gv, err := graphviz.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("init graphviz: %w", err)
	}
	defer gv.Close()

	g, err := graphviz.ParseBytes([]byte(dot))
	if err != nil {
		return nil, fmt.Errorf("parse DOT: %w", err)
	}
	defer g.Close()

	var buf bytes.Buffer
	if err := gv.Render(ctx, g, graphviz.SVG, &buf); err != nil {
		return nil, fmt.Errorf("render: %w", err)
	}
	return normalizeViewBox(buf.Bytes()), nil
}

var (
	svgTagRe  = regexp.MustCompile(`<svg[^>]*>`)
	viewBoxRe = regexp.MustCompile(`viewBox="([0-9.]+)\s+([0-9.]+)\s+([0-9.]+)\s+([0-9.]+)"`)
)

// normalizeViewBox rewrites the root element so the SVG scales from a
// zero origin.
func normalizeViewBox(svg []byte) []byte {
	match := viewBoxRe.FindSubmatch(svg)
	if match == nil {
		return svg
	}

	w, _ := strconv.ParseFloat(string(match[3]), 64)
	h, _ := strconv.ParseFloat(string(match[4]), 64)
	if w == 0 || h == 0 {
		return svg
	}

	root := fmt.Sprintf(`<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 %.2f %.2f" width="%.0f" height="%.0f">`,
		w, h, w, h)
	return svgTagRe.ReplaceAll(svg, []byte(root))
}
