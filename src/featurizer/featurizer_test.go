package featurizer

import (
	"testing"

	"github.com/reportflow/analyzer-core/src/contracts"
	"github.com/reportflow/analyzer-core/src/indexgw"
	"github.com/reportflow/analyzer-core/src/similarity"
)

func testConfig() Config {
	return Config{
		SimilarityConfig: similarity.Config{MaxQueryTerms: 50, MinWordLength: 2, MinShouldMatch: "80%"},
		FilterFields:     []string{"detected_message_with_numbers"},
	}
}

func TestAnalyzeFeatures_GroupsByIssueType(t *testing.T) {
	query := contracts.LogDocument{DetectedMessageWithNumbers: "connection refused"}
	pair := QueryHitsPair{
		Query: query,
		Hits: []indexgw.Hit{
			{ID: "1", Score: 3.0, Source: contracts.LogDocument{IssueType: "pb001", TestItem: 10, DetectedMessageWithNumbers: "connection refused"}},
			{ID: "2", Score: 1.0, Source: contracts.LogDocument{IssueType: "ab001", TestItem: 11, DetectedMessageWithNumbers: "timeout"}},
		},
	}

	matrix, labels, scores := AnalyzeFeatures([]QueryHitsPair{pair}, testConfig(), nil, nil)

	if len(labels) != 2 {
		t.Fatalf("labels = %v, want 2 groups", labels)
	}
	if len(matrix) != len(labels) {
		t.Fatalf("matrix rows = %d, want %d", len(matrix), len(labels))
	}
	pb := scores["pb001"]
	if pb.MrHit.ID != "1" {
		t.Errorf("pb001 MrHit = %v, want hit 1", pb.MrHit.ID)
	}
	if pb.Score <= 0 || pb.Score > 1.0001 {
		t.Errorf("pb001 normalized score = %v, want in (0,1]", pb.Score)
	}
}

func TestAnalyzeFeatures_KeepsHigherScoringHitAsMrHit(t *testing.T) {
	query := contracts.LogDocument{DetectedMessageWithNumbers: "x"}
	pairs := []QueryHitsPair{
		{Query: query, Hits: []indexgw.Hit{
			{ID: "1", Score: 1.0, Source: contracts.LogDocument{IssueType: "pb001", TestItem: 10}},
		}},
		{Query: query, Hits: []indexgw.Hit{
			{ID: "2", Score: 5.0, Source: contracts.LogDocument{IssueType: "pb001", TestItem: 20}},
		}},
	}

	_, _, scores := AnalyzeFeatures(pairs, testConfig(), nil, nil)
	entry := scores["pb001"]
	if entry.MrHit.ID != "2" {
		t.Errorf("MrHit = %v, want the higher-scoring hit 2", entry.MrHit.ID)
	}
}

func TestAnalyzeFeatures_ZeroTotalScoreSkipsQuery(t *testing.T) {
	pair := QueryHitsPair{
		Query: contracts.LogDocument{},
		Hits: []indexgw.Hit{
			{ID: "1", Score: 0, Source: contracts.LogDocument{IssueType: "pb001"}},
		},
	}

	matrix, labels, _ := AnalyzeFeatures([]QueryHitsPair{pair}, testConfig(), nil, nil)
	if len(labels) != 0 || len(matrix) != 0 {
		t.Errorf("labels/matrix = %v/%v, want empty when total score is 0", labels, matrix)
	}
}

func TestSuggestFeatures_GroupsByTestItemInFirstSeenOrder(t *testing.T) {
	query := contracts.LogDocument{DetectedMessageWithNumbers: "oom killed"}
	pairs := []QueryHitsPair{
		{Query: query, Hits: []indexgw.Hit{
			{ID: "1", Score: 2.0, Source: contracts.LogDocument{TestItem: 20, DetectedMessageWithNumbers: "oom killed"}},
			{ID: "2", Score: 4.0, Source: contracts.LogDocument{TestItem: 10, DetectedMessageWithNumbers: "oom killed"}},
		}},
		{Query: query, Hits: []indexgw.Hit{
			{ID: "3", Score: 6.0, Source: contracts.LogDocument{TestItem: 20, DetectedMessageWithNumbers: "oom killed"}},
		}},
	}

	matrix, ids, scores := SuggestFeatures(pairs, testConfig(), nil, nil)
	if len(ids) != 2 || ids[0] != 20 || ids[1] != 10 {
		t.Fatalf("testItemIDs = %v, want [20 10] in first-seen order", ids)
	}
	if len(matrix) != 2 {
		t.Fatalf("matrix rows = %d, want 2", len(matrix))
	}
	if scores["20"].MrHit.ID != "3" {
		t.Errorf("test item 20's MrHit = %v, want hit 3 (higher score)", scores["20"].MrHit.ID)
	}
}

type fixedDefectModel struct{ score float64 }

func (m fixedDefectModel) Predict(contracts.LogDocument) float64 { return m.score }

func TestFeatureRow_AppendsDefectModelScore(t *testing.T) {
	pair := QueryHitsPair{
		Query: contracts.LogDocument{DetectedMessageWithNumbers: "x"},
		Hits:  []indexgw.Hit{{ID: "1", Score: 1.0, Source: contracts.LogDocument{IssueType: "pb001"}}},
	}

	_, _, scores := AnalyzeFeatures([]QueryHitsPair{pair}, testConfig(), nil, fixedDefectModel{score: 0.9})
	row := featureRow(scores["pb001"], testConfig(), nil, fixedDefectModel{score: 0.9}, 0)
	if row[len(row)-1] != 0.9 {
		t.Errorf("last feature = %v, want defect model score 0.9", row[len(row)-1])
	}
}

func TestFeatureRow_DefaultsToNeutralDefectScore(t *testing.T) {
	entry := ScoreEntry{MrHit: indexgw.Hit{Score: 1.0}, ComparedLog: contracts.LogDocument{}}
	row := featureRow(entry, testConfig(), nil, nil, 0)
	if row[len(row)-1] != neutralDefectScore {
		t.Errorf("last feature = %v, want neutral default %v", row[len(row)-1], neutralDefectScore)
	}
}

// TestFeatureRow_BooleanAndAggregatedFeatures exercises the feature columns
// spec.md §4.7 names beyond similarity/score/defect: is_auto_analyzed,
// unique_id/launch_name match flags, rank position, and the three
// aggregated features (issue-type fraction, score gap, hit count).
func TestFeatureRow_BooleanAndAggregatedFeatures(t *testing.T) {
	cfg := testConfig()
	entry := ScoreEntry{
		MrHit: indexgw.Hit{
			Score: 4.0,
			Source: contracts.LogDocument{
				IsAutoAnalyzed: true,
				UniqueID:       "u1",
				LaunchName:     "nightly",
			},
		},
		EsPosition:  2,
		ComparedLog: contracts.LogDocument{UniqueID: "u1", LaunchName: "nightly"},
		HitCount:    5,
		TopScore:    4.0,
		SecondScore: 1.5,
	}

	row := featureRow(entry, cfg, nil, nil, 0.75)
	k := len(cfg.FilterFields)

	if got, want := row[k], 4.0/5.0; got != want {
		t.Errorf("scaled mrHit score = %v, want %v", got, want)
	}
	if row[k+2] != 2 {
		t.Errorf("rank position = %v, want 2", row[k+2])
	}
	if row[k+3] != 1 {
		t.Errorf("is_auto_analyzed = %v, want 1", row[k+3])
	}
	if row[k+4] != 1 {
		t.Errorf("unique_id match = %v, want 1", row[k+4])
	}
	if row[k+5] != 1 {
		t.Errorf("launch_name match = %v, want 1", row[k+5])
	}
	if row[k+6] != 0.75 {
		t.Errorf("issue-type fraction = %v, want 0.75", row[k+6])
	}
	if got, want := row[k+7], 2.5; got != want {
		t.Errorf("score gap = %v, want %v", got, want)
	}
	if row[k+8] != 5 {
		t.Errorf("hit count = %v, want 5", row[k+8])
	}
}

func TestFeatureRow_BoolFeaturesFalseWhenQueryFieldsEmpty(t *testing.T) {
	cfg := testConfig()
	entry := ScoreEntry{
		MrHit:       indexgw.Hit{Source: contracts.LogDocument{UniqueID: "u1", LaunchName: "nightly"}},
		ComparedLog: contracts.LogDocument{},
	}
	row := featureRow(entry, cfg, nil, nil, 0)
	k := len(cfg.FilterFields)
	if row[k+4] != 0 {
		t.Errorf("unique_id match = %v, want 0 when query has no unique_id", row[k+4])
	}
	if row[k+5] != 0 {
		t.Errorf("launch_name match = %v, want 0 when query has no launch_name", row[k+5])
	}
}

func TestAnalyzeFeatures_IssueTypeFractionReflectsSharedLabels(t *testing.T) {
	query := contracts.LogDocument{}
	pair := QueryHitsPair{
		Query: query,
		Hits: []indexgw.Hit{
			{ID: "1", Score: 3.0, Source: contracts.LogDocument{IssueType: "pb001"}},
			{ID: "2", Score: 2.0, Source: contracts.LogDocument{IssueType: "pb001"}},
			{ID: "3", Score: 1.0, Source: contracts.LogDocument{IssueType: "ab001"}},
		},
	}

	matrix, labels, _ := AnalyzeFeatures([]QueryHitsPair{pair}, testConfig(), nil, nil)
	k := len(testConfig().FilterFields)
	for i, label := range labels {
		want := map[string]float64{"pb001": 2.0 / 3.0, "ab001": 1.0 / 3.0}[label]
		if got := matrix[i][k+6]; got != want {
			t.Errorf("issue-type fraction for %q = %v, want %v", label, got, want)
		}
	}
}

func TestSelectFeatures_NarrowsToDeclaredColumns(t *testing.T) {
	row := []float64{10, 20, 30, 40}
	got := SelectFeatures(row, []int{3, 0})
	want := []float64{40, 10}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("SelectFeatures = %v, want %v", got, want)
	}
}

func TestSelectFeatures_EmptyIDsReturnsRowUnchanged(t *testing.T) {
	row := []float64{1, 2, 3}
	got := SelectFeatures(row, nil)
	if len(got) != len(row) {
		t.Fatalf("SelectFeatures with no ids = %v, want row unchanged", got)
	}
	for i := range row {
		if got[i] != row[i] {
			t.Errorf("SelectFeatures[%d] = %v, want %v", i, got[i], row[i])
		}
	}
}

func TestSelectFeatures_OutOfRangeIDYieldsZero(t *testing.T) {
	got := SelectFeatures([]float64{1, 2}, []int{5})
	if len(got) != 1 || got[0] != 0 {
		t.Errorf("SelectFeatures with out-of-range id = %v, want [0]", got)
	}
}
