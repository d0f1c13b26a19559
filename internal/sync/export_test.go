package sync

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/groblegark/kdeps/internal/model"
)

func TestExportJSONL_Empty(t *testing.T) {
	g := newFakeGraph(t)
	var buf bytes.Buffer
	if err := ExportJSONL(context.Background(), g, &buf); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	lines := nonEmptyLines(buf.String())
	if len(lines) != 1 {
		t.Fatalf("expected 1 line (header only), got %d", len(lines))
	}

	var h header
	if err := json.Unmarshal([]byte(lines[0]), &h); err != nil {
		t.Fatalf("unmarshal header: %v", err)
	}
	if h.Version != "1" || h.Type != "header" || h.IssueCount != 0 || h.EdgeCount != 0 {
		t.Fatalf("unexpected header: %+v", h)
	}
}

func TestExportJSONL_WithIssuesAndEdges(t *testing.T) {
	// Created out of id order to verify sorting.
	g := newFakeGraph(t, "kd-zzz", "kd-aaa")
	g.edges = []model.Edge{
		{Source: "kd-aaa", Relation: model.Blocks, Target: "kd-zzz"},
		{Source: "kd-zzz", Relation: model.DependsOn, Target: "kd-aaa"},
	}

	var buf bytes.Buffer
	if err := ExportJSONL(context.Background(), g, &buf); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	lines := nonEmptyLines(buf.String())
	// 1 header + 2 issues + 2 edges = 5 lines
	if len(lines) != 5 {
		t.Fatalf("expected 5 lines, got %d:\n%s", len(lines), buf.String())
	}

	var h header
	if err := json.Unmarshal([]byte(lines[0]), &h); err != nil {
		t.Fatalf("unmarshal header: %v", err)
	}
	if h.IssueCount != 2 || h.EdgeCount != 2 {
		t.Fatalf("header counts: issue=%d edge=%d", h.IssueCount, h.EdgeCount)
	}

	var ids []string
	for _, line := range lines[1:3] {
		var rec struct {
			Type string      `json:"type"`
			Data model.Issue `json:"data"`
		}
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			t.Fatalf("unmarshal issue: %v", err)
		}
		if rec.Type != "issue" {
			t.Fatalf("expected issue type, got %q", rec.Type)
		}
		ids = append(ids, rec.Data.ID)
	}
	if ids[0] != "kd-aaa" || ids[1] != "kd-zzz" {
		t.Fatalf("issues not sorted: %v", ids)
	}

	var rec struct {
		Type string     `json:"type"`
		Data model.Edge `json:"data"`
	}
	if err := json.Unmarshal([]byte(lines[3]), &rec); err != nil {
		t.Fatalf("unmarshal edge: %v", err)
	}
	if rec.Type != "edge" || rec.Data != g.edges[0] {
		t.Fatalf("edge record = %+v", rec)
	}
	if !strings.Contains(lines[3], `"relation":"blocks"`) {
		t.Errorf("relation should be written by name: %s", lines[3])
	}
}

func TestExportJSONL_EdgeError(t *testing.T) {
	g := newFakeGraph(t, "kd-a")
	g.err = errors.New("index unreadable")
	if err := ExportJSONL(context.Background(), g, &bytes.Buffer{}); err == nil {
		t.Fatal("expected error")
	}
}

func nonEmptyLines(s string) []string {
	var result []string
	for _, line := range strings.Split(s, "\n") {
		if strings.TrimSpace(line) != "" {
			result = append(result, line)
		}
	}
	return result
}
