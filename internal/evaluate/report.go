// Package evaluate scores predicted label columns against the truth and
// renders scikit-learn style classification reports.
package evaluate

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// ClassMetrics holds the scores of one class value within a label column.
type ClassMetrics struct {
	Label     string
	Precision float64
	Recall    float64
	F1        float64
	Support   int
}

// ClassReport is the precision/recall/F1/support breakdown of one column.
type ClassReport struct {
	Classes     []ClassMetrics
	Accuracy    float64
	MacroAvg    ClassMetrics
	WeightedAvg ClassMetrics
	Total       int
}

// Report compares one predicted column with its true values. Classes are
// the sorted union of values seen in either column. Undefined ratios
// (no predicted or no true samples of a class) score 0.
func Report(truth, pred []uint8) (ClassReport, error) {
	if len(truth) != len(pred) {
		return ClassReport{}, fmt.Errorf("%d true values but %d predictions", len(truth), len(pred))
	}
	if len(truth) == 0 {
		return ClassReport{}, fmt.Errorf("no samples to report on")
	}

	var labels []uint8
	for _, v := range append(slices.Clone(truth), pred...) {
		if !slices.Contains(labels, v) {
			labels = append(labels, v)
		}
	}
	slices.Sort(labels)

	r := ClassReport{Total: len(truth)}
	correct := 0
	for i := range truth {
		if truth[i] == pred[i] {
			correct++
		}
	}
	r.Accuracy = float64(correct) / float64(len(truth))

	for _, label := range labels {
		var tp, fp, fn int
		for i := range truth {
			switch {
			case truth[i] == label && pred[i] == label:
				tp++
			case truth[i] != label && pred[i] == label:
				fp++
			case truth[i] == label && pred[i] != label:
				fn++
			}
		}
		m := ClassMetrics{
			Label:     strconv.Itoa(int(label)),
			Precision: ratio(tp, tp+fp),
			Recall:    ratio(tp, tp+fn),
			Support:   tp + fn,
		}
		if m.Precision+m.Recall > 0 {
			m.F1 = 2 * m.Precision * m.Recall / (m.Precision + m.Recall)
		}
		r.Classes = append(r.Classes, m)
	}

	r.MacroAvg = ClassMetrics{Label: "macro avg", Support: r.Total}
	r.WeightedAvg = ClassMetrics{Label: "weighted avg", Support: r.Total}
	n := float64(len(r.Classes))
	for _, c := range r.Classes {
		r.MacroAvg.Precision += c.Precision / n
		r.MacroAvg.Recall += c.Recall / n
		r.MacroAvg.F1 += c.F1 / n

		w := float64(c.Support) / float64(r.Total)
		r.WeightedAvg.Precision += c.Precision * w
		r.WeightedAvg.Recall += c.Recall * w
		r.WeightedAvg.F1 += c.F1 * w
	}
	return r, nil
}

// Class returns the metrics of one class value, if it occurred.
func (r ClassReport) Class(label uint8) (ClassMetrics, bool) {
	want := strconv.Itoa(int(label))
	for _, c := range r.Classes {
		if c.Label == want {
			return c, true
		}
	}
	return ClassMetrics{}, false
}

// String renders the report in the layout of scikit-learn's
// classification_report with two digits.
func (r ClassReport) String() string {
	const digits = 2
	width := len("weighted avg")
	for _, c := range r.Classes {
		width = max(width, len(c.Label))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%*s  %9s %9s %9s %9s\n\n", width, "", "precision", "recall", "f1-score", "support")

	row := func(m ClassMetrics) {
		fmt.Fprintf(&b, "%*s  %9.*f %9.*f %9.*f %9d\n",
			width, m.Label, digits, m.Precision, digits, m.Recall, digits, m.F1, m.Support)
	}
	for _, c := range r.Classes {
		row(c)
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "%*s  %9s %9s %9.*f %9d\n", width, "accuracy", "", "", digits, r.Accuracy, r.Total)
	row(r.MacroAvg)
	row(r.WeightedAvg)
	return b.String()
}

func ratio(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}
