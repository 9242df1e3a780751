package ml

import (
	"errors"
	"fmt"
	"io"
	"sort"
)

// ClassMetrics are the per-class rows of a classification report.
type ClassMetrics struct {
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`
	Support   int     `json:"support"`
}

// Report summarizes held-out performance of a binary classifier.
type Report struct {
	Classes     [2]ClassMetrics `json:"classes"`
	Accuracy    float64         `json:"accuracy"`
	MacroAvg    ClassMetrics    `json:"macro_avg"`
	WeightedAvg ClassMetrics    `json:"weighted_avg"`
	// Confusion[i][j] counts rows with true label i predicted as j.
	Confusion [2][2]int `json:"confusion"`
	AUC       float64   `json:"auc"`
}

// Evaluate builds a report from true labels, predicted labels and scores for label 1.
func Evaluate(yTrue, yPred []int, scores []float64) (Report, error) {
	if len(yTrue) == 0 {
		return Report{}, errors.New("evaluate: no rows")
	}
	if len(yPred) != len(yTrue) || len(scores) != len(yTrue) {
		return Report{}, fmt.Errorf("evaluate: length mismatch (%d labels, %d predictions, %d scores)", len(yTrue), len(yPred), len(scores))
	}

	var r Report
	for i := range yTrue {
		if yTrue[i] < 0 || yTrue[i] > 1 || yPred[i] < 0 || yPred[i] > 1 {
			return Report{}, fmt.Errorf("evaluate: non-binary label at row %d", i)
		}
		r.Confusion[yTrue[i]][yPred[i]]++
	}

	n := len(yTrue)
	r.Accuracy = float64(r.Confusion[0][0]+r.Confusion[1][1]) / float64(n)
	for c := 0; c < 2; c++ {
		tp := r.Confusion[c][c]
		predicted := r.Confusion[0][c] + r.Confusion[1][c]
		actual := r.Confusion[c][0] + r.Confusion[c][1]
		m := ClassMetrics{Support: actual}
		if predicted > 0 {
			m.Precision = float64(tp) / float64(predicted)
		}
		if actual > 0 {
			m.Recall = float64(tp) / float64(actual)
		}
		if m.Precision+m.Recall > 0 {
			m.F1 = 2 * m.Precision * m.Recall / (m.Precision + m.Recall)
		}
		r.Classes[c] = m
	}

	for _, m := range r.Classes {
		r.MacroAvg.Precision += m.Precision / 2
		r.MacroAvg.Recall += m.Recall / 2
		r.MacroAvg.F1 += m.F1 / 2
		w := float64(m.Support) / float64(n)
		r.WeightedAvg.Precision += m.Precision * w
		r.WeightedAvg.Recall += m.Recall * w
		r.WeightedAvg.F1 += m.F1 * w
	}
	r.MacroAvg.Support = n
	r.WeightedAvg.Support = n

	auc, err := ROCAUC(yTrue, scores)
	if err != nil {
		return Report{}, err
	}
	r.AUC = auc
	return r, nil
}

// ROCAUC computes the area under the ROC curve as the Mann-Whitney statistic, averaging ranks
// over tied scores. It is undefined when only one class is present.
func ROCAUC(yTrue []int, scores []float64) (float64, error) {
	if len(yTrue) != len(scores) {
		return 0, fmt.Errorf("roc auc: %d labels but %d scores", len(yTrue), len(scores))
	}
	idx := make([]int, len(scores))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return scores[idx[a]] < scores[idx[b]] })

	var nPos, nNeg int
	var rankSum float64
	for i := 0; i < len(idx); {
		j := i
		for j < len(idx) && scores[idx[j]] == scores[idx[i]] {
			j++
		}
		// ranks are 1-based; tied block i..j-1 shares the mean rank
		rank := float64(i+1+j) / 2
		for k := i; k < j; k++ {
			if yTrue[idx[k]] == 1 {
				nPos++
				rankSum += rank
			} else {
				nNeg++
			}
		}
		i = j
	}
	if nPos == 0 || nNeg == 0 {
		return 0, errors.New("roc auc: only one class present in labels")
	}
	return (rankSum - float64(nPos)*float64(nPos+1)/2) / (float64(nPos) * float64(nNeg)), nil
}

// Summary flattens the report into the figures stored with a bundle. Per-class figures are
// those of the anomaly class.
func (r Report) Summary() (auc, f1, precision, recall, accuracy float64) {
	pos := r.Classes[1]
	return r.AUC, pos.F1, pos.Precision, pos.Recall, r.Accuracy
}

// Write prints the classification report, confusion matrix and ROC-AUC for operators.
func (r Report) Write(w io.Writer) error {
	lines := []string{
		"=== Classification Report ===",
		fmt.Sprintf("%12s %10s %10s %10s %10s", "", "precision", "recall", "f1-score", "support"),
		"",
	}
	for c, m := range r.Classes {
		lines = append(lines, fmt.Sprintf("%12d %10.2f %10.2f %10.2f %10d", c, m.Precision, m.Recall, m.F1, m.Support))
	}
	total := r.MacroAvg.Support
	lines = append(lines,
		"",
		fmt.Sprintf("%12s %10s %10s %10.2f %10d", "accuracy", "", "", r.Accuracy, total),
		fmt.Sprintf("%12s %10.2f %10.2f %10.2f %10d", "macro avg", r.MacroAvg.Precision, r.MacroAvg.Recall, r.MacroAvg.F1, total),
		fmt.Sprintf("%12s %10.2f %10.2f %10.2f %10d", "weighted avg", r.WeightedAvg.Precision, r.WeightedAvg.Recall, r.WeightedAvg.F1, total),
		"",
		"=== Confusion Matrix ===",
		fmt.Sprintf("[[%d %d]", r.Confusion[0][0], r.Confusion[0][1]),
		fmt.Sprintf(" [%d %d]]", r.Confusion[1][0], r.Confusion[1][1]),
		"",
		"=== ROC AUC Score ===",
		fmt.Sprintf("%.6f", r.AUC),
	)
	for _, l := range lines {
		if _, err := fmt.Fprintln(w, l); err != nil {
			return err
		}
	}
	return nil
}
