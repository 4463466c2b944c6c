// Package logmerge collapses the many small logs of one test item into a
// single merged log per log level, and splits large logs into their own
// retrievable units. It is a direct Go transliteration of the original
// EsClient.decompose_logs_merged_and_without_duplicates /
// merge_big_and_small_logs pair (see
// _examples/original_source/commons/esclient.py), generalized from
// Elasticsearch hit dicts to contracts.LogDocument values.
package logmerge

import (
	"sort"
	"strings"

	"github.com/reportflow/analyzer-core/src/contracts"
	"github.com/reportflow/analyzer-core/src/textnorm"
)

// smallLogMaxLines is the line-count threshold at or below which a log
// counts as "small" rather than "big" for merge purposes.
const smallLogMaxLines = 2

// SplitSmallAndBig partitions docs into small logs (at most
// smallLogMaxLines non-empty lines in their original message) and big
// logs (everything else).
func SplitSmallAndBig(docs []contracts.LogDocument) (small, big []contracts.LogDocument) {
	for _, doc := range docs {
		if textnorm.CalculateLineNumber(doc.OriginalMessage) <= smallLogMaxLines {
			small = append(small, doc)
		} else {
			big = append(big, doc)
		}
	}
	return small, big
}

// MergeLogs produces the replacement set of merged documents for one test
// item's existing, non-merged documents. docs must carry their
// store-assigned ID (LogDocument.ID) since merged ids are derived from it.
//
// Per log level:
//   - small logs are deduplicated by normalized message and concatenated
//     in input order with "\r\n" separators into a merged text;
//   - each big log contributes a "<id>_big" copy of itself and, if the
//     level has any merged small-log text, a "<id>_m" copy whose message
//     is the big log's own message followed by the merged text;
//   - if a level has no big logs at all, a single "<id>_m" document is
//     emitted from a representative small log (the first one seen for
//     that level), carrying the merged text.
func MergeLogs(docs []contracts.LogDocument) []contracts.LogDocument {
	type levelState struct {
		order          int
		mergedText     strings.Builder
		seenNormalized map[string]struct{}
		representative *contracts.LogDocument
		bigIDs         map[contracts.DocID]struct{}
	}

	levels := make(map[int]*levelState)
	levelOrder := make([]int, 0)
	nextOrder := 0

	stateFor := func(level int) *levelState {
		st, ok := levels[level]
		if !ok {
			st = &levelState{
				order:          nextOrder,
				seenNormalized: make(map[string]struct{}),
				bigIDs:         make(map[contracts.DocID]struct{}),
			}
			nextOrder++
			levels[level] = st
			levelOrder = append(levelOrder, level)
		}
		return st
	}

	for _, doc := range docs {
		if strings.TrimSpace(doc.Message) == "" {
			continue
		}
		st := stateFor(doc.LogLevel)

		if textnorm.CalculateLineNumber(doc.OriginalMessage) <= smallLogMaxLines {
			if st.representative == nil {
				d := doc
				st.representative = &d
			}
			norm := normalizeForDedup(doc.Message)
			if _, seen := st.seenNormalized[norm]; !seen {
				st.seenNormalized[norm] = struct{}{}
				st.mergedText.WriteString(doc.Message)
				st.mergedText.WriteString("\r\n")
			}
		} else {
			st.bigIDs[doc.ID] = struct{}{}
		}
	}

	sort.Ints(levelOrder)

	var merged []contracts.LogDocument
	for _, level := range levelOrder {
		st := levels[level]
		mergedText := st.mergedText.String()

		for _, doc := range docs {
			if doc.LogLevel != level {
				continue
			}
			if _, isBig := st.bigIDs[doc.ID]; !isBig {
				continue
			}
			merged = append(merged, withMergedMessage(doc, idWithSuffix(doc.ID, "_big"), doc.Message))
			if strings.TrimSpace(mergedText) != "" {
				combined := doc.Message + "\r\n" + mergedText
				merged = append(merged, withMergedMessage(doc, idWithSuffix(doc.ID, "_m"), combined))
			}
		}

		if len(st.bigIDs) == 0 && st.representative != nil {
			rep := *st.representative
			merged = append(merged, withMergedMessage(rep, idWithSuffix(rep.ID, "_m"), mergedText))
		}
	}

	return merged
}

func withMergedMessage(doc contracts.LogDocument, id contracts.DocID, message string) contracts.LogDocument {
	doc.ID = id
	doc.IsMerged = true
	doc.Message = message
	return doc
}

func idWithSuffix(id contracts.DocID, suffix string) contracts.DocID {
	return contracts.DocID(string(id) + suffix)
}

func normalizeForDedup(message string) string {
	fields := strings.Fields(strings.ToLower(strings.TrimSpace(message)))
	return strings.Join(fields, " ")
}
