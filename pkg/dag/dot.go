package dag

import (
	"fmt"
	"strings"
)

// DOTOptions control the Graphviz rendering of a graph.
type DOTOptions struct {
	// Collapse renders each embedded graph as a single vertex instead of
	// a cluster of its inner nodes.
	Collapse bool
	// RankDir sets the layout direction ("LR", "TB"). Graphviz's default
	// applies when empty.
	RankDir string
	// EdgeLabels annotates each edge with "srcField -> dstField".
	EdgeLabels bool
}

// DOT renders the graph in Graphviz dot syntax. Output order follows
// definition order, so the text is stable for identical graph structure.
func (g *Graph) DOT(opts DOTOptions) string {
	var b strings.Builder
	fmt.Fprintf(&b, "digraph %s {\n", dotID(g.name))
	if opts.RankDir != "" {
		fmt.Fprintf(&b, "  rankdir=%s;\n", opts.RankDir)
	}
	b.WriteString("  node [shape=box];\n")
	if opts.Collapse {
		g.writeCollapsed(&b, opts)
	} else {
		g.writeExpanded(&b, "", "  ")
		for _, e := range g.collectEdges("") {
			writeDotEdge(&b, "  ", e, opts.EdgeLabels)
		}
	}
	b.WriteString("}\n")
	return b.String()
}

type dotEdge struct {
	src, srcField string
	dst, dstField string
}

// writeCollapsed renders this level only: embedded graphs become single
// tab-shaped vertices and edges keep their export aliases.
func (g *Graph) writeCollapsed(b *strings.Builder, opts DOTOptions) {
	for _, name := range g.order {
		if n, ok := g.nodes[name]; ok {
			fmt.Fprintf(b, "  %s [label=%s];\n", dotID(name), dotLabel(name, n.step.ID()))
			continue
		}
		fmt.Fprintf(b, "  %s [shape=tab, label=%s];\n", dotID(name), dotLabel(name))
	}
	for _, c := range g.conns {
		e := dotEdge{src: c.From.Instance, srcField: c.From.Field, dst: c.To.Instance, dstField: c.To.Field}
		writeDotEdge(b, "  ", e, opts.EdgeLabels)
	}
}

// writeExpanded renders nodes recursively, wrapping each embedded graph in
// a cluster. Vertex IDs are the dot-qualified flattened names.
func (g *Graph) writeExpanded(b *strings.Builder, prefix, indent string) {
	for _, name := range g.order {
		if n, ok := g.nodes[name]; ok {
			fmt.Fprintf(b, "%s%s [label=%s];\n", indent, dotID(prefix+name), dotLabel(name, n.step.ID()))
			continue
		}
		s := g.subs[name]
		fmt.Fprintf(b, "%ssubgraph %s {\n", indent, dotID("cluster_"+prefix+name))
		fmt.Fprintf(b, "%s  label=%s;\n", indent, dotID(name))
		s.writeExpanded(b, prefix+name+".", indent+"  ")
		fmt.Fprintf(b, "%s}\n", indent)
	}
}

// collectEdges resolves every connection at every level down to the
// innermost endpoints, qualified for the expanded rendering.
func (g *Graph) collectEdges(prefix string) []dotEdge {
	var out []dotEdge
	for _, name := range g.order {
		if s, ok := g.subs[name]; ok {
			out = append(out, s.collectEdges(prefix+name+".")...)
		}
	}
	for _, c := range g.conns {
		src, srcField, err := g.resolveOutputEndpoint(prefix, c.From)
		if err != nil {
			continue
		}
		dst, dstField, err := g.resolveInputEndpoint(prefix, c.To)
		if err != nil {
			continue
		}
		out = append(out, dotEdge{src: src, srcField: srcField, dst: dst, dstField: dstField})
	}
	return out
}

func writeDotEdge(b *strings.Builder, indent string, e dotEdge, labels bool) {
	if labels {
		fmt.Fprintf(b, "%s%s -> %s [label=%s];\n",
			indent, dotID(e.src), dotID(e.dst), dotLabel(e.srcField+" -> "+e.dstField))
		return
	}
	fmt.Fprintf(b, "%s%s -> %s;\n", indent, dotID(e.src), dotID(e.dst))
}

var dotEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`)

func dotID(s string) string {
	return `"` + dotEscaper.Replace(s) + `"`
}

// dotLabel joins lines with the dot newline escape.
func dotLabel(lines ...string) string {
	escaped := make([]string, len(lines))
	for i, l := range lines {
		escaped[i] = dotEscaper.Replace(l)
	}
	return `"` + strings.Join(escaped, `\n`) + `"`
}
