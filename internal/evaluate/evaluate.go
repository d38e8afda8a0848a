package evaluate

import (
	"fmt"
	"io"

	"github.com/Veraticus/disaster-response-pipeline/internal/common"
	"github.com/Veraticus/disaster-response-pipeline/internal/model"
)

// CategoryReport is the classification report of one category column.
type CategoryReport struct {
	Category string
	Report   ClassReport
}

// Options controls how Evaluate writes reports.
type Options struct {
	// Heading styles the "For column" line. Nil writes it plain.
	Heading func(string) string
}

// Evaluate writes one classification report per category to w, in the
// order of test.Categories, and returns them. Every predicted row must be
// exactly len(test.Categories) wide; anything else is a misalignment and
// nothing is written.
func Evaluate(pred []model.LabelVector, test *model.Dataset, w io.Writer, opts Options) ([]CategoryReport, error) {
	if len(pred) != test.Len() {
		return nil, fmt.Errorf("%d predictions for %d test messages", len(pred), test.Len())
	}
	for i, row := range pred {
		if err := common.CheckAlignment(fmt.Sprintf("prediction %d", i), len(row), len(test.Categories)); err != nil {
			return nil, err
		}
	}
	if err := test.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrMisaligned, err)
	}

	heading := opts.Heading
	if heading == nil {
		heading = func(s string) string { return s }
	}

	reports := make([]CategoryReport, len(test.Categories))
	for j, name := range test.Categories {
		predicted := make([]uint8, len(pred))
		for i, row := range pred {
			predicted[i] = row[j]
		}
		r, err := Report(test.Column(j), predicted)
		if err != nil {
			return nil, fmt.Errorf("category %s: %w", name, err)
		}
		reports[j] = CategoryReport{Category: name, Report: r}
	}

	for _, cr := range reports {
		if _, err := fmt.Fprintf(w, "%s\n%s\n", heading(fmt.Sprintf("For column %s:", cr.Category)), cr.Report); err != nil {
			return nil, fmt.Errorf("writing report for %s: %w", cr.Category, err)
		}
	}
	return reports, nil
}

// Summary averages the per-class weighted F1 and accuracy across categories.
type Summary struct {
	Categories     int
	MeanAccuracy   float64
	MeanWeightedF1 float64
	MeanPositiveF1 float64
}

// Summarize reduces category reports to their means. The positive F1 mean
// counts a category with no positive samples or predictions as 0.
func Summarize(reports []CategoryReport) Summary {
	s := Summary{Categories: len(reports)}
	if len(reports) == 0 {
		return s
	}
	n := float64(len(reports))
	for _, cr := range reports {
		s.MeanAccuracy += cr.Report.Accuracy / n
		s.MeanWeightedF1 += cr.Report.WeightedAvg.F1 / n
		if pos, ok := cr.Report.Class(1); ok {
			s.MeanPositiveF1 += pos.F1 / n
		}
	}
	return s
}
