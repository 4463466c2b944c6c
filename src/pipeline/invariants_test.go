package pipeline

import (
	"context"
	"net/http"
	"reflect"
	"testing"

	"github.com/reportflow/analyzer-core/src/config"
	"github.com/reportflow/analyzer-core/src/contracts"
	"github.com/reportflow/analyzer-core/src/featurizer"
	"github.com/reportflow/analyzer-core/src/indexgw"
	"github.com/reportflow/analyzer-core/src/logger"
)

// TestSuggestScenario_DedupDropsIdenticalCandidateByStartTime is spec.md
// §8 end-to-end scenario 6: three hits, two identical on the three dedup
// fields, ranker marks all positive -> two results emitted, ordered by
// (prob, start_time) desc.
func TestSuggestScenario_DedupDropsIdenticalCandidateByStartTime(t *testing.T) {
	source := func(testItem int, startTime string) map[string]any {
		return map[string]any{
			"test_item":                      testItem,
			"issue_type":                     "pb001",
			"message_extended":               "connection refused",
			"detected_message_extended":      "connection refused",
			"detected_message_with_numbers":  "connection refused",
			"stacktrace_extended":            "trace A",
			"stacktrace":                     "trace A",
			"merged_small_logs":              "connection refused trace A",
			"launch_name":                    "nightly",
			"start_time":                     startTime,
		}
	}

	p := newTestSuggestPipeline(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead || (r.Method == http.MethodGet && r.URL.Path == "/1") {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.Write(searchHitsResponse([]map[string]any{
			{"_id": "1", "_score": 3.0, "_source": source(1, "2024-01-01T00:00:00Z")},
			{"_id": "2", "_score": 2.0, "_source": source(2, "2024-06-01T00:00:00Z")},
			{"_id": "3", "_score": 1.0, "_source": map[string]any{
				"test_item": 3, "issue_type": "ab001",
				"message_extended": "totally unrelated", "detected_message_extended": "totally unrelated",
				"detected_message_with_numbers": "totally unrelated", "stacktrace_extended": "trace B",
				"stacktrace": "trace B", "merged_small_logs": "totally unrelated trace B",
				"launch_name": "nightly", "start_time": "2024-03-01T00:00:00Z",
			}},
		}))
	}, constantRanker(0.8))

	results, err := p.Suggest(context.Background(), suggestInfo(), 10)
	if err != nil {
		t.Fatalf("Suggest: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("results = %v, want 2 (the near-duplicate of item 1 or 2 dropped)", results)
	}
	for _, r := range results {
		if r.RelevantItem != 2 && r.RelevantItem != 3 {
			t.Errorf("unexpected surviving RelevantItem %d; want 2 (later start_time wins over 1) and 3", r.RelevantItem)
		}
	}
}

// TestSuggestPipeline_RankingIsDeterministic asserts the ranking
// determinism invariant: identical inputs and model produce an identical
// result list, including ordering and scores.
func TestSuggestPipeline_RankingIsDeterministic(t *testing.T) {
	handler := func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead || (r.Method == http.MethodGet && r.URL.Path == "/1") {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.Write(searchHitsResponse([]map[string]any{
			{"_id": "77", "_score": 4.5, "_source": map[string]any{
				"test_item": 77, "issue_type": "pb001", "message_extended": "connection refused",
			}},
		}))
	}

	run := func() []contracts.SuggestAnalysisResult {
		p := newTestSuggestPipeline(t, handler, constantRanker(0.9))
		results, err := p.Suggest(context.Background(), suggestInfo(), 5)
		if err != nil {
			t.Fatalf("Suggest: %v", err)
		}
		return results
	}

	first := run()
	second := run()
	if !reflect.DeepEqual(first, second) {
		t.Errorf("Suggest is not deterministic:\nfirst:  %+v\nsecond: %+v", first, second)
	}
}

// TestDeduplicateSuggestions_IsIdempotent asserts the dedup-idempotence
// invariant: applying the dedup step a second time on its own output
// leaves it unchanged.
func TestDeduplicateSuggestions_IsIdempotent(t *testing.T) {
	scores := featurizer.ScoresByGroup{
		"1": {MrHit: indexgw.Hit{Source: contracts.LogDocument{
			IssueType: "pb001", DetectedMessageWithNumbers: "a", Stacktrace: "b", MergedSmallLogs: "a b",
		}}},
		"2": {MrHit: indexgw.Hit{Source: contracts.LogDocument{
			IssueType: "pb001", DetectedMessageWithNumbers: "a", Stacktrace: "b", MergedSmallLogs: "a b",
		}}},
		"3": {MrHit: indexgw.Hit{Source: contracts.LogDocument{
			IssueType: "ab001", DetectedMessageWithNumbers: "c", Stacktrace: "d", MergedSmallLogs: "c d",
		}}},
	}
	testItemIDs := []int64{1, 2, 3}
	cfg := config.SearchConfig{MaxQueryTerms: 50, MinWordLength: 0}

	once := deduplicateSuggestions([]int{0, 1, 2}, testItemIDs, scores, cfg, nil)
	twice := deduplicateSuggestions(once, testItemIDs, scores, cfg, nil)

	if !reflect.DeepEqual(once, twice) {
		t.Errorf("deduplicateSuggestions is not idempotent: once=%v twice=%v", once, twice)
	}
}

// TestSuggestPipeline_AllResultsMeetThresholdAndCountCap asserts the
// suggest-pipeline invariant: at most numItems results, all with
// probability >= contracts.SuggestThreshold.
func TestSuggestPipeline_AllResultsMeetThresholdAndCountCap(t *testing.T) {
	source := func(testItem int) map[string]any {
		return map[string]any{
			"test_item": testItem, "issue_type": "pb001",
			"message_extended": "connection refused", "launch_name": "nightly",
		}
	}
	p := newTestSuggestPipeline(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead || (r.Method == http.MethodGet && r.URL.Path == "/1") {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.Write(searchHitsResponse([]map[string]any{
			{"_id": "1", "_score": 1.0, "_source": source(1)},
			{"_id": "2", "_score": 1.0, "_source": source(2)},
			{"_id": "3", "_score": 1.0, "_source": source(3)},
		}))
	}, constantRanker(0.5))

	results, err := p.Suggest(context.Background(), suggestInfo(), 2)
	if err != nil {
		t.Fatalf("Suggest: %v", err)
	}
	if len(results) > 2 {
		t.Fatalf("results = %v, want at most numItems=2", results)
	}
	for _, r := range results {
		if r.MatchScore < contracts.SuggestThreshold*100 {
			t.Errorf("MatchScore = %v, want >= %v", r.MatchScore, contracts.SuggestThreshold*100)
		}
	}
}
