// Package ranker evaluates a trained gradient-boosted decision tree
// ensemble over Featurizer rows, grounded on
// boosting_decision_making.BoostingDecisionMaker's call shape (see
// _examples/original_source/test/test_boosting_model.py:
// BoostingDecisionMaker(folder), get_feature_ids(), predict(matrix) ->
// (labels, probabilities)). The original library behind that class
// (xgboost/catboost, picked up via a pickled model file) has no Go
// equivalent anywhere in the retrieved corpus, so LoadGBDT reads a small
// JSON-encoded forest instead of fabricating a binding to a library the
// corpus never imports. See DESIGN.md.
package ranker

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
)

// Ranker predicts a binary label and its class probabilities for each row
// of a feature matrix, and reports which feature columns it expects plus a
// human-readable identity for SuggestAnalysisResult.ModelInfo.
type Ranker interface {
	FeatureIDs() []int
	Predict(matrix [][]float64) (labels []int, probabilities [][2]float64)
	ModelInfo() []string
}

// node is one decision-tree node: an internal split (FeatureID/Threshold/
// Left/Right) or a leaf (Leaf true, Value set).
type node struct {
	FeatureID int     `json:"feature_id"`
	Threshold float64 `json:"threshold"`
	Left      int     `json:"left"`
	Right     int     `json:"right"`
	Leaf      bool    `json:"leaf"`
	Value     float64 `json:"value"`
}

// tree is a flat node array; index 0 is the root.
type tree struct {
	Nodes []node `json:"nodes"`
}

// forestFile is the on-disk model format LoadGBDT reads: model.json inside
// the given folder.
type forestFile struct {
	FeatureIDs []int    `json:"feature_ids"`
	ModelInfo  []string `json:"model_info"`
	Bias       float64  `json:"bias"`
	Trees      []tree   `json:"trees"`
}

// gbdt is the minimal stdlib tree-ensemble evaluator LoadGBDT returns:
// logistic regression over the summed leaf values of every tree.
type gbdt struct {
	featureIDs []int
	modelInfo  []string
	bias       float64
	trees      []tree
}

// LoadGBDT reads a JSON-encoded forest from <folder>/model.json.
func LoadGBDT(folder string) (Ranker, error) {
	data, err := os.ReadFile(filepath.Join(folder, "model.json"))
	if err != nil {
		return nil, fmt.Errorf("ranker: read model: %w", err)
	}
	var f forestFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("ranker: decode model: %w", err)
	}
	return &gbdt{
		featureIDs: f.FeatureIDs,
		modelInfo:  f.ModelInfo,
		bias:       f.Bias,
		trees:      f.Trees,
	}, nil
}

func (g *gbdt) FeatureIDs() []int { return g.featureIDs }

func (g *gbdt) ModelInfo() []string { return g.modelInfo }

// Predict evaluates every tree for every row, sums the leaf values plus the
// bias, and squashes the result through a logistic function to get a
// positive-class probability. label is 1 when probability >= 0.5.
func (g *gbdt) Predict(matrix [][]float64) (labels []int, probabilities [][2]float64) {
	labels = make([]int, len(matrix))
	probabilities = make([][2]float64, len(matrix))
	for i, row := range matrix {
		raw := g.bias
		for _, t := range g.trees {
			raw += evalTree(t, row)
		}
		p1 := sigmoid(raw)
		probabilities[i] = [2]float64{1 - p1, p1}
		if p1 >= 0.5 {
			labels[i] = 1
		}
	}
	return labels, probabilities
}

// evalTree walks t from the root, following Left/Right by comparing
// row[node.FeatureID] against node.Threshold, until it reaches a leaf.
func evalTree(t tree, row []float64) float64 {
	if len(t.Nodes) == 0 {
		return 0
	}
	idx := 0
	for {
		n := t.Nodes[idx]
		if n.Leaf {
			return n.Value
		}
		var feature float64
		if n.FeatureID >= 0 && n.FeatureID < len(row) {
			feature = row[n.FeatureID]
		}
		if feature <= n.Threshold {
			idx = n.Left
		} else {
			idx = n.Right
		}
		if idx < 0 || idx >= len(t.Nodes) {
			return 0
		}
	}
}

// sigmoid is the standard logistic function, written to keep the exponent
// argument non-positive (math.Exp(-|x|)) so it never overflows for large
// |x|.
func sigmoid(x float64) float64 {
	if x >= 0 {
		z := math.Exp(-x)
		return 1 / (1 + z)
	}
	z := math.Exp(x)
	return z / (1 + z)
}
