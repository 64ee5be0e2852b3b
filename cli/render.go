// Output formatting for CLI commands.

package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
	"golang.org/x/term"

	"github.com/richinex/musicbi/orchestration"
)

// renderMarkdown writes md to w, styled with glamour when w is a terminal.
func renderMarkdown(w io.Writer, md string) {
	if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(terminalWidth(f)))
		if err == nil {
			if out, err := r.Render(md); err == nil {
				fmt.Fprint(w, out)
				return
			}
		}
	}
	fmt.Fprintln(w, strings.TrimRight(md, "\n"))
}

func terminalWidth(f *os.File) int {
	width, _, err := term.GetSize(int(f.Fd()))
	if err != nil || width <= 0 {
		return 100
	}
	return width
}

// truncateString truncates a string to maxLen runes, preserving UTF-8 boundaries.
func truncateString(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen]) + "..."
}

const maxObservationLen = 400

// printRoute prints the router's branch and the specialist calls it made.
func printRoute(w io.Writer, route orchestration.RouteResult) {
	fmt.Fprintln(w, "--- Route ---")
	fmt.Fprintf(w, "Decision: %s\n", route.Decision)
	for i, inv := range route.Invocations {
		fmt.Fprintf(w, "[%d] %s %s\n", i+1, inv.Tool, truncateString(string(inv.Arguments), 100))
		if inv.Error != "" {
			fmt.Fprintf(w, "    Error: %s\n", inv.Error)
			continue
		}
		fmt.Fprintf(w, "    Observation: %s\n", truncateString(inv.Output, maxObservationLen))
	}
	fmt.Fprintln(w, "-------------")
	fmt.Fprintln(w)
}

// printTokenStats prints token usage statistics.
func printTokenStats(w io.Writer, stats orchestration.TokenStats, elapsedMs uint64) {
	fmt.Fprintf(w, "\nToken Usage:\n")
	fmt.Fprintf(w, "  LLM calls: %d\n", stats.LLMCalls)
	fmt.Fprintf(w, "  Prompt tokens: %d\n", stats.PromptTokens)
	fmt.Fprintf(w, "  Completion tokens: %d\n", stats.CompletionTokens)
	fmt.Fprintf(w, "  Total tokens: %d\n", stats.TotalTokens)
	if elapsedMs > 0 {
		fmt.Fprintf(w, "  Time: %dms\n", elapsedMs)
	}
}
