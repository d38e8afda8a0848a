package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/Veraticus/disaster-response-pipeline/internal/pipeline"
)

// RenderSearchResults writes the top ranked grid search candidates as a
// table. A non-positive top writes all of them.
func RenderSearchResults(w io.Writer, results []pipeline.SearchResult, top int) error {
	if len(results) == 0 {
		_, err := fmt.Fprintln(w, FormatInfo("No search results."))
		return err
	}
	if top > 0 && top < len(results) {
		results = results[:top]
	}

	rankCol := []string{TableHeaderStyle.Render("Rank")}
	scoreCol := []string{TableHeaderStyle.Render("Mean score")}
	paramCol := []string{TableHeaderStyle.Render("Parameters")}
	for _, r := range results {
		rankCol = append(rankCol, fmt.Sprintf("%d", r.Rank))
		scoreCol = append(scoreCol, fmt.Sprintf("%.4f ± %.4f", r.Mean, r.Std))
		label := r.Label()
		if label == "" {
			label = SubtleStyle.Render("(defaults)")
		}
		paramCol = append(paramCol, label)
	}

	table := lipgloss.JoinHorizontal(lipgloss.Top,
		TableCellStyle.Render(strings.Join(rankCol, "\n")),
		TableCellStyle.Render(strings.Join(scoreCol, "\n")),
		strings.Join(paramCol, "\n"),
	)
	_, err := fmt.Fprintln(w, table)
	return err
}
