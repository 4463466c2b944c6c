// Package featurizer turns raw index-store search hits into the fixed-width
// feature rows the Ranker consumes. It generalizes
// EsClient.calculate_scores's running normalized-score voting (see
// _examples/original_source/commons/esclient.py) from "pick the best
// issue_type" into a grouping-and-feature-row pipeline reused by both the
// analyze and the suggest pipelines, and follows the call shape
// SuggestService.suggest_items/gather_features_info exposes (see
// _examples/original_source/service/suggest_service.py): gather grouped
// hits, keep the most-relevant hit per group, emit one feature row per
// group alongside the group's id.
package featurizer

import (
	"sort"
	"strconv"

	"github.com/reportflow/analyzer-core/src/contracts"
	"github.com/reportflow/analyzer-core/src/indexgw"
	"github.com/reportflow/analyzer-core/src/similarity"
)

// DefectTypeModel scores how likely a candidate log's issue type is the
// correct defect-type label, folded in as an extra feature column. The
// caller of pipeline.NewSuggestPipeline supplies it; nothing in the module
// loads one from config.SearchConfig.DefectTypeModelFolders, and a nil
// model yields neutralDefectScore.
type DefectTypeModel interface {
	Predict(doc contracts.LogDocument) float64
}

// neutralDefectScore is used in featureRow when no defect-type model is
// configured for a project.
const neutralDefectScore = 0.5

// QueryHitsPair is one query log document together with the index hits
// gathered for it, in index-store relevance order.
type QueryHitsPair struct {
	Query contracts.LogDocument
	Hits  []indexgw.Hit
}

// ScoreEntry is the Go analogue of the Python scores_by_issue_type /
// scores_by_test_item bookkeeping dict: the most relevant hit seen so far
// for a grouping key, its score, and the query log it was last compared
// against. Score is the accumulated normalized score in AnalyzeFeatures;
// SuggestFeatures does not accumulate it and stores the MrHit's raw score. HitCount/TopScore/SecondScore accumulate
// across every hit folded into the group, independent of which one ends up
// as MrHit, so the aggregated features in featureRow (hit count, gap
// between the top two scores) reflect the whole group rather than just its
// winner.
type ScoreEntry struct {
	MrHit       indexgw.Hit
	EsPosition  int
	Score       float64
	ComparedLog contracts.LogDocument
	HitCount    int
	TopScore    float64
	SecondScore float64
}

// addHit folds one hit's raw score into e, tracking HitCount and the two
// highest scores seen regardless of which hit is currently MrHit.
func (e *ScoreEntry) addHit(score float64) {
	e.HitCount++
	switch {
	case score > e.TopScore:
		e.SecondScore = e.TopScore
		e.TopScore = score
	case score > e.SecondScore:
		e.SecondScore = score
	}
}

// ScoresByGroup keys ScoreEntry by the grouping label: issue-type strings
// for AnalyzeFeatures, decimal test-item ids for SuggestFeatures.
type ScoresByGroup map[string]ScoreEntry

// Config carries the similarity and feature-selection knobs a featurizer
// run needs.
type Config struct {
	SimilarityConfig similarity.Config
	FilterFields     []string // LogDocument fields compared for similarity features
	TopHitsPerQuery  int      // k in EsClient.calculate_scores(res, k, ...); 0 means defaultTopHits
}

const defaultTopHits = 10

// AnalyzeFeatures groups search hits by issue_type the way
// EsClient.calculate_scores does: within each query's top-k hits, every
// hit's score is normalized by that query's total score and accumulated
// per issue_type, with the highest-scoring hit kept as the group's MrHit.
// Rows are returned sorted by group label for determinism.
func AnalyzeFeatures(pairs []QueryHitsPair, cfg Config, weights similarity.WordWeights, defectModel DefectTypeModel) (matrix [][]float64, groupLabels []string, scores ScoresByGroup) {
	scores = ScoresByGroup{}
	for _, pair := range pairs {
		accumulate(scores, pair, topHits(pair.Hits, cfg.TopHitsPerQuery))
	}
	issueTypeCounts, totalHits := issueTypeStats(pairs, cfg.TopHitsPerQuery)

	groupLabels = make([]string, 0, len(scores))
	for label := range scores {
		groupLabels = append(groupLabels, label)
	}
	sort.Strings(groupLabels)

	matrix = make([][]float64, len(groupLabels))
	for i, label := range groupLabels {
		entry := scores[label]
		fraction := issueTypeFraction(issueTypeCounts, totalHits, entry.MrHit.Source.IssueType)
		matrix[i] = featureRow(entry, cfg, weights, defectModel, fraction)
	}
	return matrix, groupLabels, scores
}

// accumulate folds one query's top-k hits into scores, grouped by
// issue_type, mirroring EsClient.calculate_scores's total-score
// normalization within a single search response.
func accumulate(scores ScoresByGroup, pair QueryHitsPair, hits []indexgw.Hit) {
	var total float64
	for _, h := range hits {
		total += h.Score
	}
	if total == 0 {
		return
	}
	for i, h := range hits {
		label := h.Source.IssueType
		entry := scores[label]
		if entry.MrHit.ID == "" || h.Score > entry.MrHit.Score {
			entry.MrHit = h
			entry.EsPosition = i
			entry.ComparedLog = pair.Query
		}
		entry.Score += h.Score / total
		entry.addHit(h.Score)
		scores[label] = entry
	}
}

// issueTypeStats tallies, across every hit examined in pairs (independent
// of how the caller groups them), how many carry each issue_type label and
// how many hits were examined in total - the raw material for the
// "fraction of hits sharing the predicted issue-type" feature.
func issueTypeStats(pairs []QueryHitsPair, topHitsPerQuery int) (counts map[string]int, total int) {
	counts = map[string]int{}
	for _, pair := range pairs {
		for _, h := range topHits(pair.Hits, topHitsPerQuery) {
			counts[h.Source.IssueType]++
			total++
		}
	}
	return counts, total
}

// issueTypeFraction is counts[issueType]/total, or 0 when total is 0.
func issueTypeFraction(counts map[string]int, total int, issueType string) float64 {
	if total == 0 {
		return 0
	}
	return float64(counts[issueType]) / float64(total)
}

// SuggestFeatures groups search hits by test_item, keeping the
// highest-scoring hit seen across every round of suggest queries as that
// item's MrHit. Group order is first-seen, matching the order
// SuggestService.query_es_for_suggested_items issues its rounds in.
func SuggestFeatures(pairs []QueryHitsPair, cfg Config, weights similarity.WordWeights, defectModel DefectTypeModel) (matrix [][]float64, testItemIDs []int64, scores ScoresByGroup) {
	scores = ScoresByGroup{}
	var order []string
	for _, pair := range pairs {
		hits := topHits(pair.Hits, cfg.TopHitsPerQuery)
		for i, h := range hits {
			label := strconv.FormatInt(h.Source.TestItem, 10)
			entry, seen := scores[label]
			if !seen {
				order = append(order, label)
			}
			if !seen || h.Score > entry.MrHit.Score {
				entry.MrHit, entry.EsPosition, entry.ComparedLog, entry.Score = h, i, pair.Query, h.Score
			}
			entry.addHit(h.Score)
			scores[label] = entry
		}
	}
	issueTypeCounts, totalHits := issueTypeStats(pairs, cfg.TopHitsPerQuery)

	testItemIDs = make([]int64, 0, len(order))
	matrix = make([][]float64, 0, len(order))
	for _, label := range order {
		id, err := strconv.ParseInt(label, 10, 64)
		if err != nil {
			continue
		}
		entry := scores[label]
		fraction := issueTypeFraction(issueTypeCounts, totalHits, entry.MrHit.Source.IssueType)
		testItemIDs = append(testItemIDs, id)
		matrix = append(matrix, featureRow(entry, cfg, weights, defectModel, fraction))
	}
	return matrix, testItemIDs, scores
}

func topHits(hits []indexgw.Hit, k int) []indexgw.Hit {
	if k <= 0 {
		k = defaultTopHits
	}
	if len(hits) > k {
		return hits[:k]
	}
	return hits
}

// featureRow builds one feature vector, spec.md §4.7's full named set, in a
// fixed column order every caller and FeatureIDs index agree on:
//
//	[0, len(FilterFields))  cosine similarity per cfg.FilterFields field
//	len(FilterFields)+0     scaled mrHit _score (bounded to [0,1))
//	len(FilterFields)+1     ScoreEntry.Score (vote share for AnalyzeFeatures, mrHit raw _score for SuggestFeatures)
//	len(FilterFields)+2     mrHit's rank position in the hit list it came from
//	len(FilterFields)+3     is_auto_analyzed (0/1)
//	len(FilterFields)+4     unique_id matches between query and mrHit (0/1)
//	len(FilterFields)+5     launch_name matches between query and mrHit (0/1)
//	len(FilterFields)+6     fraction of examined hits sharing mrHit's issue_type
//	len(FilterFields)+7     gap between the group's top two raw scores
//	len(FilterFields)+8     number of hits folded into the group
//	len(FilterFields)+9     defect-type model's prediction for mrHit (last)
//
// issueTypeFraction is computed by the caller (AnalyzeFeatures/SuggestFeatures)
// since it depends on hits outside this single group.
func featureRow(entry ScoreEntry, cfg Config, weights similarity.WordWeights, defectModel DefectTypeModel, issueTypeFraction float64) []float64 {
	key := similarity.PairKey{QueryID: "query", HitID: "hit"}
	pairs := []similarity.QueryHitPair{{
		QueryID: key.QueryID,
		HitID:   key.HitID,
		Query:   entry.ComparedLog,
		Hit:     entry.MrHit.Source,
	}}
	sims := similarity.Calculate(pairs, cfg.FilterFields, cfg.SimilarityConfig, weights)

	row := make([]float64, 0, len(cfg.FilterFields)+10)
	for _, field := range cfg.FilterFields {
		row = append(row, sims[field][key].Similarity)
	}

	query, hit := entry.ComparedLog, entry.MrHit.Source
	row = append(row,
		scaleScore(entry.MrHit.Score),
		entry.Score,
		float64(entry.EsPosition),
		boolFeature(hit.IsAutoAnalyzed),
		boolFeature(query.UniqueID != "" && query.UniqueID == hit.UniqueID),
		boolFeature(query.LaunchName != "" && query.LaunchName == hit.LaunchName),
		issueTypeFraction,
		entry.TopScore-entry.SecondScore,
		float64(entry.HitCount),
	)

	defectScore := neutralDefectScore
	if defectModel != nil {
		defectScore = defectModel.Predict(entry.MrHit.Source)
	}
	return append(row, defectScore)
}

// scaleScore bounds a raw, unbounded index-store _score to [0,1) so it sits
// on a comparable footing with the row's other features.
func scaleScore(score float64) float64 {
	if score <= 0 {
		return 0
	}
	return score / (score + 1)
}

func boolFeature(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// SelectFeatures reorders/narrows a full featureRow down to the columns a
// Ranker declares via Ranker.FeatureIDs() - spec.md §4.7's "the model
// declares the subset it needs". An out-of-range id yields 0 for that
// column rather than panicking; an empty ids list returns row unchanged, so
// a Ranker that doesn't implement column selection keeps working.
func SelectFeatures(row []float64, featureIDs []int) []float64 {
	if len(featureIDs) == 0 {
		return row
	}
	selected := make([]float64, len(featureIDs))
	for i, id := range featureIDs {
		if id >= 0 && id < len(row) {
			selected[i] = row[id]
		}
	}
	return selected
}
