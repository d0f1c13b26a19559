package main

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"github.com/spf13/cobra"

	"github.com/groblegark/kdeps/internal/ui"
)

var (
	// Unindented line ending in ":" such as "Graph:" or "Flags:".
	helpHeader = regexp.MustCompile(`(?m)^([A-Z][^\n]*:)\s*$`)
	// Two-space indented command name followed by its short description.
	helpCommand = regexp.MustCompile(`(?m)^(  )(\S+)(  )`)
	// Flag value type, e.g. "--root string".
	helpFlagType = regexp.MustCompile(`(--?\S+\s+)(string|int|bool|duration)\b`)
	helpDefault  = regexp.MustCompile(`\(default [^)]*\)`)
)

// colorizedHelpFunc renders cobra's usage text, colored when stdout
// supports it.
func colorizedHelpFunc() func(*cobra.Command, []string) {
	return func(cmd *cobra.Command, _ []string) {
		out := cmd.OutOrStdout()
		if !ui.ShouldUseColor() {
			_ = cmd.Usage()
			return
		}
		var buf bytes.Buffer
		cmd.SetOut(&buf)
		_ = cmd.Usage()
		cmd.SetOut(out)
		fmt.Fprint(out, colorizeHelp(buf.String()))
	}
}

func colorizeHelp(s string) string {
	s = helpHeader.ReplaceAllStringFunc(s, func(m string) string {
		if strings.HasPrefix(m, "Usage:") {
			return m
		}
		return ui.RenderAccent(strings.TrimSpace(m))
	})
	s = helpCommand.ReplaceAllString(s, "$1"+ui.RenderCommand("$2")+"$3")
	s = helpFlagType.ReplaceAllString(s, "$1"+ui.RenderMuted("$2"))
	return helpDefault.ReplaceAllStringFunc(s, ui.RenderMuted)
}
