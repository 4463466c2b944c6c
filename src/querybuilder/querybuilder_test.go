package querybuilder

import (
	"testing"

	"github.com/reportflow/analyzer-core/src/config"
	"github.com/reportflow/analyzer-core/src/contracts"
	"github.com/reportflow/analyzer-core/src/indexgw"
)

func testSearchConfig() config.SearchConfig {
	return config.SearchConfig{
		MaxQueryTerms:            50,
		MinDocFreq:               1,
		MinTermFreq:              1,
		MinShouldMatch:           "80%",
		SearchLogsMinShouldMatch: "90%",
		BoostUniqueID:            2.0,
		BoostAA:                  -2.0,
		BoostLaunch:              2.0,
	}
}

func digInto(t *testing.T, q indexgw.Query, path ...string) any {
	t.Helper()
	var cur any = q
	for _, key := range path {
		m, ok := cur.(indexgw.Query)
		if !ok {
			t.Fatalf("expected indexgw.Query at %q, got %T", key, cur)
		}
		cur = m[key]
	}
	return cur
}

func TestBuildAnalyzeQuery_DefaultMode(t *testing.T) {
	launch := contracts.Launch{
		LaunchName: "nightly",
		AnalyzerConfig: contracts.AnalyzerConfig{
			AnalyzerMode: contracts.ModeAll,
		},
	}

	q := BuildAnalyzeQuery(testSearchConfig(), launch, "u1", "connection refused")
	boolClause, ok := digInto(t, q, "query", "bool").(indexgw.Query)
	if !ok {
		t.Fatal("expected bool clause")
	}
	should, ok := boolClause["should"].([]indexgw.Query)
	if !ok || len(should) != 3 {
		t.Fatalf("should clauses = %v, want 3 (unique_id, is_auto_analyzed, launch_name boost)", should)
	}
}

func TestBuildAnalyzeQuery_LaunchNameMode(t *testing.T) {
	launch := contracts.Launch{
		LaunchName: "nightly",
		AnalyzerConfig: contracts.AnalyzerConfig{
			AnalyzerMode: contracts.ModeLaunchName,
		},
	}

	q := BuildAnalyzeQuery(testSearchConfig(), launch, "u1", "connection refused")
	boolClause := digInto(t, q, "query", "bool").(indexgw.Query)
	must, ok := boolClause["must"].([]indexgw.Query)
	if !ok {
		t.Fatal("expected must clauses")
	}
	foundLaunchTerm := false
	for _, clause := range must {
		if term, ok := clause["term"].(indexgw.Query); ok {
			if _, ok := term["launch_name"]; ok {
				foundLaunchTerm = true
			}
		}
	}
	if !foundLaunchTerm {
		t.Error("LAUNCH_NAME mode should add a must term on launch_name")
	}
}

func TestBuildSuggestQuery_EmptyMessageFallsBackToMergedSmallLogs(t *testing.T) {
	info := contracts.SuggestAnalyzerConfig{
		LaunchName: "suite",
		AnalyzerConfig: contracts.AnalyzerConfig{
			AnalyzerMode:     contracts.ModeAll,
			NumberOfLogLines: -1,
		},
	}
	doc := contracts.LogDocument{MergedSmallLogs: "merged text"}
	fields := FieldTriple{}

	q := BuildSuggestQuery(testSearchConfig(), info, doc, fields)
	boolClause := digInto(t, q, "query", "bool").(indexgw.Query)
	mustNot, ok := boolClause["must_not"].([]indexgw.Query)
	if !ok || len(mustNot) != 3 {
		t.Fatalf("must_not = %v, want the TI*/ti* exclusions plus a wildcard(message,*) clause", mustNot)
	}
	if wc, _ := mustNot[2]["wildcard"].(indexgw.Query); wc["message"] != "*" {
		t.Errorf("must_not[2] = %v, want wildcard(message,*)", mustNot[2])
	}
}

func TestBuildSuggestQuery_NonEmptyMessageFiltersNonMerged(t *testing.T) {
	info := contracts.SuggestAnalyzerConfig{
		AnalyzerConfig: contracts.AnalyzerConfig{
			AnalyzerMode:     contracts.ModeAll,
			NumberOfLogLines: -1,
		},
	}
	doc := contracts.LogDocument{}
	fields := FieldTriple{
		MessageField:         "message_extended",
		MessageValue:         "connection refused",
		DetectedMessageField: "detected_message_extended",
		DetectedMessageValue: "connection refused",
		StacktraceField:      "stacktrace_extended",
	}

	q := BuildSuggestQuery(testSearchConfig(), info, doc, fields)
	boolClause := digInto(t, q, "query", "bool").(indexgw.Query)
	filter, ok := boolClause["filter"].([]indexgw.Query)
	if !ok || len(filter) != 1 {
		t.Fatalf("filter = %v, want is_merged=false", filter)
	}
}

func TestBuildTestItemQuery_ScopesToTestItemAndMergedFlag(t *testing.T) {
	q := BuildTestItemQuery(42, true)
	boolClause := digInto(t, q, "query", "bool").(indexgw.Query)
	must, ok := boolClause["must"].([]indexgw.Query)
	if !ok || len(must) != 2 {
		t.Fatalf("must = %v, want test_item + is_merged terms", must)
	}
	foundMerged := false
	for _, clause := range must {
		if term, ok := clause["term"].(indexgw.Query); ok {
			if body, ok := term["is_merged"].(indexgw.Query); ok && body["value"] == true {
				foundMerged = true
			}
		}
	}
	if !foundMerged {
		t.Error("expected an is_merged=true term clause")
	}
}

func TestBuildSearchTestItemIDsQuery_FiltersUnmergedWithIssueType(t *testing.T) {
	q := BuildSearchTestItemIDsQuery([]contracts.DocID{"1", "2"})
	boolClause := digInto(t, q, "query", "bool").(indexgw.Query)
	must, ok := boolClause["must"].([]indexgw.Query)
	if !ok || len(must) != 4 {
		t.Fatalf("must = %v, want 4 clauses (log_level, issue_type exists, is_merged, terms)", must)
	}
}

func TestBuildSearchLogsQuery_ExcludesOwnItem(t *testing.T) {
	req := contracts.SearchLogsRequest{
		ItemID:            7,
		FilteredLaunchIDs: []int64{1, 2},
	}

	q := BuildSearchLogsQuery(testSearchConfig(), req, "timeout")
	boolClause := digInto(t, q, "query", "bool").(indexgw.Query)
	mustNot, ok := boolClause["must_not"].(indexgw.Query)
	if !ok {
		t.Fatal("expected a must_not term clause excluding the request's own test item")
	}
	term, ok := mustNot["term"].(indexgw.Query)
	if !ok {
		t.Fatal("expected must_not to be a term clause")
	}
	if _, ok := term["test_item"]; !ok {
		t.Error("must_not should be scoped to test_item")
	}
}
