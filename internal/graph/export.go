package graph

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/groblegark/kdeps/internal/model"
)

// Format selects the export rendering.
type Format string

const (
	FormatText    Format = "text"
	FormatDOT     Format = "dot"
	FormatMermaid Format = "mermaid"
)

// ParseFormat validates a format name. Empty means text.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case "":
		return FormatText, nil
	case FormatText, FormatDOT, FormatMermaid:
		return f, nil
	}
	return "", fmt.Errorf("%w: unknown format %q (want text, dot or mermaid)", ErrInvalidArgument, s)
}

// Export writes the graph to w. With a root id, output is limited to the
// root and everything it transitively blocks, connected by blocks edges.
func (e *Engine) Export(ctx context.Context, w io.Writer, format Format, root string) (err error) {
	ctx, span := e.start(ctx, "graph.Export")
	defer func() { endSpan(span, err) }()

	if root != "" {
		if err := e.requireExists(ctx, root); err != nil {
			return err
		}
	}
	issues, edges, err := e.snapshot(ctx)
	if err != nil {
		return err
	}

	view := exportView(issues, edges, root)
	bw := bufio.NewWriter(w)
	switch format {
	case FormatText, "":
		for _, row := range view.rows {
			fmt.Fprintln(bw, row.String())
		}
	case FormatDOT:
		writeDOT(bw, view)
	case FormatMermaid:
		writeMermaid(bw, view)
	default:
		return fmt.Errorf("%w: unknown format %q", ErrInvalidArgument, format)
	}
	return bw.Flush()
}

type graphView struct {
	nodes  []string
	issues map[string]*model.Issue
	rows   []model.Edge // text rows
	arcs   []model.Edge // drawn edges, depends_on folded into blocks
}

func exportView(issues []*model.Issue, edges []model.Edge, root string) *graphView {
	v := &graphView{issues: make(map[string]*model.Issue, len(issues))}
	for _, issue := range issues {
		v.issues[issue.ID] = issue
	}

	if root != "" {
		g := newBlockGraph(edges)
		v.nodes = g.reach(root)
		for _, id := range v.nodes {
			for _, dep := range g.dependents(id) {
				arc := model.Edge{Source: id, Relation: model.Blocks, Target: dep}
				v.rows = append(v.rows, arc)
				v.arcs = append(v.arcs, arc)
			}
		}
		model.SortEdges(v.rows)
		model.SortEdges(v.arcs)
		return v
	}

	v.rows = edges
	seenArc := make(map[model.Edge]bool)
	seenNode := make(map[string]bool)
	for _, issue := range issues {
		seenNode[issue.ID] = true
		v.nodes = append(v.nodes, issue.ID)
	}
	for _, row := range edges {
		arc := row.Canonical()
		if !seenArc[arc] {
			seenArc[arc] = true
			v.arcs = append(v.arcs, arc)
		}
		for _, id := range []string{arc.Source, arc.Target} {
			if !seenNode[id] {
				seenNode[id] = true
				v.nodes = append(v.nodes, id)
			}
		}
	}
	model.SortEdges(v.arcs)
	return v
}

// writeDOT renders Graphviz DOT. Pipe to graphviz: kd deps --format dot | dot -Tsvg
func writeDOT(w io.Writer, v *graphView) {
	fmt.Fprintln(w, "digraph kd {")
	fmt.Fprintln(w, "  rankdir=LR;")
	fmt.Fprintln(w, `  node [shape=box, style="rounded,filled", fontname="Helvetica", fontsize=11];`)
	for _, id := range v.nodes {
		status := model.Status("missing")
		if issue := v.issues[id]; issue != nil {
			status = issue.Status
		}
		fmt.Fprintf(w, "  \"%s\" [label=\"%s\\n%s\", fillcolor=\"%s\"];\n",
			dotEscape(id), dotEscape(id), status, dotFill(status))
	}
	for _, arc := range v.arcs {
		fmt.Fprintf(w, "  \"%s\" -> \"%s\" [label=\"%s\"%s];\n",
			dotEscape(arc.Source), dotEscape(arc.Target), arc.Relation, dotEdgeStyle(arc.Relation))
	}
	fmt.Fprintln(w, "}")
}

func dotEdgeStyle(r model.Relation) string {
	switch r {
	case model.ParentOf:
		return `, style=dashed, arrowhead=empty`
	case model.RelatesTo:
		return `, style=dotted, arrowhead=none`
	}
	return ""
}

func dotFill(s model.Status) string {
	switch s {
	case model.StatusOpen:
		return "#e8f4fd"
	case model.StatusInProgress, model.StatusReview:
		return "#fff3cd"
	case model.StatusBlocked:
		return "#f8d7da"
	case model.StatusClosed:
		return "#d4edda"
	}
	return "#e2e3e5"
}

// dotEscape escapes characters that would break a quoted DOT string.
func dotEscape(s string) string {
	return strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(s)
}

// writeMermaid renders a Mermaid flowchart. Node ids are aliased so issue
// ids never collide with Mermaid syntax.
func writeMermaid(w io.Writer, v *graphView) {
	fmt.Fprintln(w, "flowchart TD")
	alias := make(map[string]string, len(v.nodes))
	for i, id := range v.nodes {
		alias[id] = fmt.Sprintf("n%d", i)
		label := id
		if issue := v.issues[id]; issue != nil && issue.Title != "" {
			label = id + ": " + issue.Title
		}
		label = strings.NewReplacer(`\`, `\\`, `"`, `#quot;`).Replace(label)
		fmt.Fprintf(w, "  %s[\"%s\"]\n", alias[id], label)
	}
	for _, arc := range v.arcs {
		arrow := "-->"
		if arc.Relation == model.RelatesTo {
			arrow = "-.->"
		}
		fmt.Fprintf(w, "  %s %s|%s| %s\n", alias[arc.Source], arrow, arc.Relation, alias[arc.Target])
	}
}
