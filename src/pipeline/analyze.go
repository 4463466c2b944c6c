package pipeline

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/reportflow/analyzer-core/src/config"
	"github.com/reportflow/analyzer-core/src/contracts"
	"github.com/reportflow/analyzer-core/src/featurizer"
	"github.com/reportflow/analyzer-core/src/indexgw"
	"github.com/reportflow/analyzer-core/src/logdoc"
	"github.com/reportflow/analyzer-core/src/logger"
	"github.com/reportflow/analyzer-core/src/logmerge"
	"github.com/reportflow/analyzer-core/src/querybuilder"
)

// analyzeTopHits is k in EsClient.calculate_scores(res, k, issue_types).
const analyzeTopHits = 10

// AnalyzerPipeline auto-classifies each test item in a launch by searching
// the index store for similar historical merged documents and voting on
// their issue types, a direct transliteration of EsClient.analyze_logs.
type AnalyzerPipeline struct {
	gw  *indexgw.Gateway
	cfg config.SearchConfig
	log logger.Logger
}

// NewAnalyzerPipeline returns an AnalyzerPipeline backed by gw.
func NewAnalyzerPipeline(gw *indexgw.Gateway, cfg config.SearchConfig, log logger.Logger) *AnalyzerPipeline {
	return &AnalyzerPipeline{gw: gw, cfg: cfg, log: log}
}

// Analyze classifies every test item in launch, returning one
// AnalysisResult per test item that found a predicted issue type.
func (p *AnalyzerPipeline) Analyze(ctx context.Context, launch contracts.Launch) ([]contracts.AnalysisResult, error) {
	p.log.Debug("Started analysis for launch %d", launch.LaunchID)

	var results []contracts.AnalysisResult
	for _, item := range launch.TestItems {
		scores, err := p.searchForTestItem(ctx, launch, item)
		if err != nil {
			return nil, fmt.Errorf("analyze: test item %d: %w", item.TestItemID, err)
		}

		predicted := pickPredictedIssueType(scores)
		if predicted == "" {
			continue
		}
		results = append(results, contracts.AnalysisResult{
			TestItem:     item.TestItemID,
			IssueType:    predicted,
			RelevantItem: scores[predicted].MrHit.Source.TestItem,
		})
	}

	p.log.Debug("Finished analysis for launch %d with %d results", launch.LaunchID, len(results))
	return results, nil
}

// searchForTestItem builds item's merged candidate documents in memory
// (decompose_logs_merged_and_without_duplicates, applied purely to the
// item's own logs rather than to stored index documents), runs the analyze
// query for each one, and folds the hits into a per-issue-type score table
// via featurizer.AnalyzeFeatures, which embeds the same voting rule as
// EsClient.calculate_scores.
func (p *AnalyzerPipeline) searchForTestItem(ctx context.Context, launch contracts.Launch, item contracts.TestItem) (featurizer.ScoresByGroup, error) {
	project := strconv.FormatInt(launch.Project, 10)

	var docs []contracts.LogDocument
	for _, log := range item.Logs {
		doc := logdoc.PrepareLogDocument(launch, item, log)
		doc.ID = contracts.DocID(strconv.FormatInt(log.LogID, 10))
		docs = append(docs, doc)
	}
	merged := logmerge.MergeLogs(docs)

	var pairs []featurizer.QueryHitsPair
	for _, doc := range merged {
		if doc.LogLevel < contracts.ErrorLevel && strings.TrimSpace(doc.Message) != "" {
			continue
		}
		query := querybuilder.BuildAnalyzeQuery(p.cfg, launch, item.UniqueID, doc.Message)
		hits, err := p.gw.Search(ctx, project, query)
		if err != nil {
			p.log.Error("Search failed for test item %d: %v", item.TestItemID, err)
			continue
		}
		pairs = append(pairs, featurizer.QueryHitsPair{Query: doc, Hits: hits})
	}

	_, _, scores := featurizer.AnalyzeFeatures(pairs, featurizer.Config{TopHitsPerQuery: analyzeTopHits}, nil, nil)
	return scores, nil
}

// pickPredictedIssueType picks the highest-scoring label in scores. Per
// the analyze tie-break decision, ties are broken by highest mrHit _score,
// then lexicographically smaller issue_type, so the result never depends
// on map iteration order.
func pickPredictedIssueType(scores featurizer.ScoresByGroup) string {
	best := ""
	var bestScore, bestHitScore float64
	for label, entry := range scores {
		if best == "" || better(entry.Score, entry.MrHit.Score, label, bestScore, bestHitScore, best) {
			best, bestScore, bestHitScore = label, entry.Score, entry.MrHit.Score
		}
	}
	return best
}

func better(score, hitScore float64, label string, bestScore, bestHitScore float64, best string) bool {
	if score != bestScore {
		return score > bestScore
	}
	if hitScore != bestHitScore {
		return hitScore > bestHitScore
	}
	return label < best
}
