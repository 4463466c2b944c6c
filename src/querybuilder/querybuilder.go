// Package querybuilder assembles the JSON query bodies QueryBuilder sends
// to the index store: the analyze query, the suggest query, and the
// search-logs query. It is a direct Go transliteration of
// EsClient.build_analyze_query / build_more_like_this_query /
// build_search_query and SuggestService.build_suggest_query (see
// _examples/original_source/commons/esclient.py and
// _examples/original_source/service/suggest_service.py).
package querybuilder

import (
	"fmt"
	"strings"

	"github.com/reportflow/analyzer-core/src/config"
	"github.com/reportflow/analyzer-core/src/contracts"
	"github.com/reportflow/analyzer-core/src/indexgw"
)

// FieldTriple carries the three field/value pairs a suggest query varies
// across its three rounds (extended, without-params-extended,
// without-params-and-brackets), plus the always-extended stacktrace.
type FieldTriple struct {
	MessageField string
	MessageValue string

	DetectedMessageField string
	DetectedMessageValue string

	StacktraceField string
	StacktraceValue string
}

// BuildAnalyzeQuery assembles the query used by AnalyzerPipeline to find
// historical merged documents similar to message for the given unique id
// within launch's analyzer mode.
func BuildAnalyzeQuery(cfg config.SearchConfig, launch contracts.Launch, uniqueID string, message string) indexgw.Query {
	ac := launch.AnalyzerConfig

	minDocFreq := ac.MinDocFreq
	if minDocFreq <= 0 {
		minDocFreq = cfg.MinDocFreq
	}
	minTermFreq := ac.MinTermFreq
	if minTermFreq <= 0 {
		minTermFreq = cfg.MinTermFreq
	}
	minShouldMatch := cfg.MinShouldMatch
	if ac.MinShouldMatch > 0 {
		minShouldMatch = fmt.Sprintf("%d%%", ac.MinShouldMatch)
	}

	must := []indexgw.Query{
		rangeQuery("log_level", map[string]any{"gte": contracts.ErrorLevel}),
		existsQuery("issue_type"),
		termQuery("is_merged", true, 0),
	}
	should := []indexgw.Query{
		termQuery("unique_id", uniqueID, absFloat(cfg.BoostUniqueID)),
		termQuery("is_auto_analyzed", boolString(cfg.BoostAA < 0), absFloat(cfg.BoostAA)),
	}
	mustNot := []indexgw.Query{
		wildcardQuery("issue_type", "TI*"),
		wildcardQuery("issue_type", "ti*"),
	}

	mlt := moreLikeThisQuery([]string{"message"}, message, minDocFreq, minTermFreq, cfg.MaxQueryTerms, minShouldMatch)

	switch ac.AnalyzerMode {
	case contracts.ModeLaunchName:
		must = append(must, termQuery("launch_name", launch.LaunchName, 0), mlt)
	case contracts.ModeCurrentLaunch:
		must = append(must, termQuery("launch_id", launch.LaunchID, 0), mlt)
	default:
		should = append(should, termQuery("launch_name", launch.LaunchName, absFloat(cfg.BoostLaunch)))
		must = append(must, mlt)
	}

	return indexgw.Query{
		"size": 10,
		"query": boolQuery(indexgw.Query{
			"must":     must,
			"must_not": mustNot,
			"should":   should,
		}),
	}
}

// BuildSuggestQuery assembles one round of the suggest query for info's
// query log doc, scoped to the field names/values in fields.
func BuildSuggestQuery(cfg config.SearchConfig, info contracts.SuggestAnalyzerConfig, doc contracts.LogDocument, fields FieldTriple) indexgw.Query {
	ac := info.AnalyzerConfig

	minShouldMatch := cfg.MinShouldMatch
	if ac.MinShouldMatch > 0 {
		minShouldMatch = fmt.Sprintf("%d%%", ac.MinShouldMatch)
	}

	must := []indexgw.Query{
		rangeQuery("log_level", map[string]any{"gte": contracts.ErrorLevel}),
		existsQuery("issue_type"),
	}
	should := []indexgw.Query{}
	filter := []indexgw.Query{}
	mustNot := []indexgw.Query{
		wildcardQuery("issue_type", "TI*"),
		wildcardQuery("issue_type", "ti*"),
	}

	switch ac.AnalyzerMode {
	case contracts.ModeLaunchName:
		must = append(must, termQuery("launch_name", info.LaunchName, 0))
	case contracts.ModeCurrentLaunch:
		must = append(must, termQuery("launch_id", info.LaunchID, 0))
	default:
		should = append(should, termQuery("launch_name", info.LaunchName, absFloat(cfg.BoostLaunch)))
	}

	if strings.TrimSpace(fields.MessageValue) != "" {
		filter = append(filter, termQuery("is_merged", false, 0))

		if ac.NumberOfLogLines == -1 {
			must = append(must, moreLikeThisField(fields.DetectedMessageField, fields.DetectedMessageValue, "60%", 4.0, ""))
			if strings.TrimSpace(fields.StacktraceValue) != "" {
				must = append(must, moreLikeThisField(fields.StacktraceField, fields.StacktraceValue, "60%", 2.0, ""))
			} else {
				mustNot = append(mustNot, wildcardQuery(fields.StacktraceField, "*"))
			}
		} else {
			must = append(must, moreLikeThisField(fields.MessageField, fields.MessageValue, "60%", 4.0, ""))
			should = append(should, moreLikeThisField(fields.StacktraceField, fields.StacktraceValue, "60%", 1.0, ""))
			should = append(should, moreLikeThisField("detected_message_without_params_extended", doc.DetectedMessageWithoutParamsExtended, "60%", 1.0, ""))
		}

		should = append(should, moreLikeThisField("merged_small_logs", doc.MergedSmallLogs, "80%", 0.5, ""))
		should = append(should, moreLikeThisField("only_numbers", doc.OnlyNumbers, "1", 4.0, "1"))
		should = append(should, moreLikeThisField("message_params", doc.MessageParams, "1", 4.0, "1"))
		should = append(should, moreLikeThisField("urls", doc.Urls, "1", 4.0, "1"))
		should = append(should, moreLikeThisField("paths", doc.Paths, "1", 4.0, "1"))
	} else {
		filter = append(filter, termQuery("is_merged", true, 0))
		mustNot = append(mustNot, wildcardQuery("message", "*"))
		must = append(must, moreLikeThisField("merged_small_logs", doc.MergedSmallLogs, minShouldMatch, 2.0, ""))
	}

	should = append(should, moreLikeThisField("found_exceptions_extended", doc.FoundExceptionsExtended, "1", 4.0, "1"))
	should = append(should, moreLikeThisField("potential_status_codes", doc.PotentialStatusCodes, "1", 4.0, "1"))

	return indexgw.Query{
		"size": 10,
		"query": boolQuery(indexgw.Query{
			"must":     must,
			"must_not": mustNot,
			"should":   should,
			"filter":   filter,
		}),
	}
}

// BuildSearchLogsQuery assembles the query used by the search-logs
// operation to find historical merged documents similar to message,
// excluding req's own test item and restricted to req's launches.
func BuildSearchLogsQuery(cfg config.SearchConfig, req contracts.SearchLogsRequest, message string) indexgw.Query {
	mlt := moreLikeThisQuery([]string{"message"}, message, 1, 1, cfg.MaxQueryTerms, cfg.SearchLogsMinShouldMatch)

	return indexgw.Query{
		"query": boolQuery(indexgw.Query{
			"must_not": termQuery("test_item", req.ItemID, 1.0),
			"must": []indexgw.Query{
				rangeQuery("log_level", map[string]any{"gte": contracts.ErrorLevel}),
				existsQuery("issue_type"),
				termQuery("is_merged", true, 0),
				boolQuery(indexgw.Query{
					"should": []indexgw.Query{
						wildcardQuery("issue_type", "TI*"),
						wildcardQuery("issue_type", "ti*"),
					},
				}),
				indexgw.Query{"terms": indexgw.Query{"launch_id": req.FilteredLaunchIDs}},
				mlt,
			},
			"should": []indexgw.Query{
				termQuery("is_auto_analyzed", "false", 1.0),
			},
		}),
	}
}

// BuildTestItemQuery assembles the query IndexingService uses to fetch
// every (merged or unmerged) document belonging to one test item, a direct
// transliteration of EsClient.get_test_item_query.
func BuildTestItemQuery(testItemID int64, isMerged bool) indexgw.Query {
	return indexgw.Query{
		"size": contracts.MaxHitsPerSearch,
		"query": boolQuery(indexgw.Query{
			"must": []indexgw.Query{
				termQuery("test_item", testItemID, 0),
				termQuery("is_merged", isMerged, 0),
			},
		}),
	}
}

// BuildSearchTestItemIDsQuery assembles the query IndexingService.DeleteLogs
// uses to resolve which test items own a set of raw log ids before
// re-merging them, a transliteration of
// EsClient.build_search_test_item_ids_query.
func BuildSearchTestItemIDsQuery(logIDs []contracts.DocID) indexgw.Query {
	return indexgw.Query{
		"size": contracts.MaxHitsPerSearch,
		"query": boolQuery(indexgw.Query{
			"must": []indexgw.Query{
				rangeQuery("log_level", map[string]any{"gte": contracts.ErrorLevel}),
				existsQuery("issue_type"),
				termQuery("is_merged", false, 0),
				indexgw.Query{"terms": indexgw.Query{"_id": logIDs}},
			},
		}),
	}
}

func boolQuery(clauses indexgw.Query) indexgw.Query {
	return indexgw.Query{"bool": clauses}
}

func termQuery(field string, value any, boost float64) indexgw.Query {
	body := indexgw.Query{"value": value}
	if boost != 0 {
		body["boost"] = boost
	}
	return indexgw.Query{"term": indexgw.Query{field: body}}
}

func rangeQuery(field string, bounds map[string]any) indexgw.Query {
	return indexgw.Query{"range": indexgw.Query{field: bounds}}
}

func existsQuery(field string) indexgw.Query {
	return indexgw.Query{"exists": indexgw.Query{"field": field}}
}

func wildcardQuery(field, pattern string) indexgw.Query {
	return indexgw.Query{"wildcard": indexgw.Query{field: pattern}}
}

func moreLikeThisQuery(fields []string, like string, minDocFreq, minTermFreq, maxQueryTerms int, minShouldMatch string) indexgw.Query {
	return indexgw.Query{
		"more_like_this": indexgw.Query{
			"fields":               fields,
			"like":                 like,
			"min_doc_freq":         minDocFreq,
			"min_term_freq":        minTermFreq,
			"minimum_should_match": "5<" + minShouldMatch,
			"max_query_terms":      maxQueryTerms,
		},
	}
}

// moreLikeThisField builds a single-field more_like_this clause scoped to
// one suggest-query field, optionally overriding minimum_should_match
// with a literal value (used for the "match any token" fields).
func moreLikeThisField(field, like, minShouldMatch string, boost float64, overrideMinShouldMatch string) indexgw.Query {
	effective := minShouldMatch
	if overrideMinShouldMatch != "" {
		effective = overrideMinShouldMatch
	}
	return indexgw.Query{
		"more_like_this": indexgw.Query{
			"fields":               []string{field},
			"like":                 like,
			"minimum_should_match": effective,
			"boost":                boost,
		},
	}
}

func absFloat(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
