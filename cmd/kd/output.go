package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/groblegark/kdeps/internal/graph"
	"github.com/groblegark/kdeps/internal/model"
	"github.com/groblegark/kdeps/internal/ui"
)

func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling JSON: %w", err)
	}
	fmt.Fprintln(w, string(data))
	return nil
}

func printIssue(w io.Writer, issue *model.Issue) {
	fmt.Fprintf(w, "ID:          %s\n", issue.ID)
	fmt.Fprintf(w, "Title:       %s\n", issue.Title)
	fmt.Fprintf(w, "Status:      %s\n", ui.RenderStatus(issue.Status))
	fmt.Fprintf(w, "Priority:    %s\n", issue.Priority)
	for _, rel := range []struct {
		label string
		ids   []string
	}{
		{"Blocks:      ", issue.Blocks},
		{"Depends On:  ", issue.DependsOn},
		{"Parent Of:   ", issue.ParentOf},
		{"Relates To:  ", issue.RelatesTo},
	} {
		if len(rel.ids) > 0 {
			fmt.Fprintf(w, "%s%s\n", rel.label, strings.Join(rel.ids, ", "))
		}
	}
}

func printIssueTable(w io.Writer, issues []*model.Issue) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATUS\tPRIORITY\tTITLE")
	for _, i := range issues {
		title := i.Title
		if len(title) > 50 {
			title = title[:47] + "..."
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", i.ID, i.Status, i.Priority, title)
	}
	return tw.Flush()
}

func printIssues(w io.Writer, issues []*model.Issue, empty string) error {
	if jsonOutput {
		if issues == nil {
			issues = []*model.Issue{}
		}
		return printJSON(w, issues)
	}
	if len(issues) == 0 {
		fmt.Fprintln(w, empty)
		return nil
	}
	return printIssueTable(w, issues)
}

// printChanges reports status transitions, including cascaded ones.
func printChanges(w io.Writer, changes []graph.StatusChange) error {
	if jsonOutput {
		if changes == nil {
			changes = []graph.StatusChange{}
		}
		return printJSON(w, changes)
	}
	for _, c := range changes {
		fmt.Fprintf(w, "%s: %s -> %s\n", c.ID, c.From, ui.RenderStatus(c.To))
	}
	return nil
}

func printEdgeResult(w io.Writer, verb string, res *graph.Result) error {
	if jsonOutput {
		return printJSON(w, res)
	}
	if !res.Changed {
		fmt.Fprintf(w, "Unchanged: %s\n", res.Edge)
	} else {
		fmt.Fprintf(w, "%s %s\n", verb, res.Edge)
	}
	return printChanges(w, res.Status)
}

func printEdges(w io.Writer, edges []model.Edge) error {
	if jsonOutput {
		if edges == nil {
			edges = []model.Edge{}
		}
		return printJSON(w, edges)
	}
	if len(edges) == 0 {
		fmt.Fprintln(w, "No edges.")
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SOURCE\tRELATION\tTARGET")
	for _, e := range edges {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", e.Source, e.Relation, e.Target)
	}
	return tw.Flush()
}

func printDepSet(w io.Writer, deps *graph.DepSet) error {
	if jsonOutput {
		return printJSON(w, deps)
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "%s\n", ui.RenderAccent(deps.ID))
	for _, rel := range []struct {
		name model.Relation
		ids  []string
	}{
		{model.Blocks, deps.Blocks},
		{model.DependsOn, deps.DependsOn},
		{model.ParentOf, deps.ParentOf},
		{model.RelatesTo, deps.RelatesTo},
	} {
		list := ui.RenderMuted("-")
		if len(rel.ids) > 0 {
			list = strings.Join(rel.ids, ", ")
		}
		fmt.Fprintf(tw, "  %s\t%s\n", rel.name, list)
	}
	return tw.Flush()
}
