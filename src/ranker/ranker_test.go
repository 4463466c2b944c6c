package ranker

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func writeModel(t *testing.T, f forestFile) string {
	t.Helper()
	dir := t.TempDir()
	data, err := json.Marshal(f)
	if err != nil {
		t.Fatalf("marshal model: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "model.json"), data, 0o644); err != nil {
		t.Fatalf("write model: %v", err)
	}
	return dir
}

func singleSplitTree() tree {
	return tree{Nodes: []node{
		{FeatureID: 0, Threshold: 0.5, Left: 1, Right: 2},
		{Leaf: true, Value: -3},
		{Leaf: true, Value: 3},
	}}
}

func TestLoadGBDT_ReadsFeatureIDsAndModelInfo(t *testing.T) {
	dir := writeModel(t, forestFile{
		FeatureIDs: []int{0, 1, 2},
		ModelInfo:  []string{"boost_model_v1"},
		Trees:      []tree{singleSplitTree()},
	})

	r, err := LoadGBDT(dir)
	if err != nil {
		t.Fatalf("LoadGBDT: %v", err)
	}
	if got := r.FeatureIDs(); len(got) != 3 {
		t.Errorf("FeatureIDs = %v, want 3 entries", got)
	}
	if got := r.ModelInfo(); len(got) != 1 || got[0] != "boost_model_v1" {
		t.Errorf("ModelInfo = %v, want [boost_model_v1]", got)
	}
}

func TestLoadGBDT_MissingFolderErrors(t *testing.T) {
	if _, err := LoadGBDT(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Error("LoadGBDT with a missing model file should error")
	}
}

func TestPredict_SplitsOnThreshold(t *testing.T) {
	dir := writeModel(t, forestFile{
		FeatureIDs: []int{0},
		Trees:      []tree{singleSplitTree()},
	})
	r, err := LoadGBDT(dir)
	if err != nil {
		t.Fatalf("LoadGBDT: %v", err)
	}

	labels, probs := r.Predict([][]float64{{0.1}, {0.9}})
	if labels[0] != 0 || labels[1] != 1 {
		t.Errorf("labels = %v, want [0 1]", labels)
	}
	if probs[0][1] >= 0.5 || probs[1][1] < 0.5 {
		t.Errorf("probabilities = %v, want low then high positive-class probability", probs)
	}
	if probs[0][0]+probs[0][1] < 0.999 || probs[0][0]+probs[0][1] > 1.001 {
		t.Errorf("probs[0] = %v, should sum to 1", probs[0])
	}
}

func TestPredict_SumsMultipleTrees(t *testing.T) {
	dir := writeModel(t, forestFile{
		FeatureIDs: []int{0},
		Trees:      []tree{singleSplitTree(), singleSplitTree()},
	})
	r, err := LoadGBDT(dir)
	if err != nil {
		t.Fatalf("LoadGBDT: %v", err)
	}

	_, probs := r.Predict([][]float64{{0.9}})
	if probs[0][1] <= 0.5 {
		t.Errorf("summed-tree probability = %v, want > 0.5", probs[0][1])
	}
}

func TestPredict_OutOfRangeFeatureIDTreatedAsZero(t *testing.T) {
	dir := writeModel(t, forestFile{
		FeatureIDs: []int{5},
		Trees: []tree{{Nodes: []node{
			{FeatureID: 5, Threshold: 0.5, Left: 1, Right: 2},
			{Leaf: true, Value: -1},
			{Leaf: true, Value: 1},
		}}},
	})
	r, err := LoadGBDT(dir)
	if err != nil {
		t.Fatalf("LoadGBDT: %v", err)
	}

	// a one-column row can't satisfy feature id 5; evalTree should treat
	// the missing feature as 0 and take the <= branch rather than panic.
	labels, _ := r.Predict([][]float64{{0.1}})
	if labels[0] != 0 {
		t.Errorf("label = %v, want 0 (left branch for missing feature)", labels[0])
	}
}
