package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/reportflow/analyzer-core/src/broker"
	"github.com/reportflow/analyzer-core/src/config"
	"github.com/reportflow/analyzer-core/src/contracts"
	"github.com/reportflow/analyzer-core/src/featurizer"
	"github.com/reportflow/analyzer-core/src/indexgw"
	"github.com/reportflow/analyzer-core/src/logdoc"
	"github.com/reportflow/analyzer-core/src/logger"
	"github.com/reportflow/analyzer-core/src/logmerge"
	"github.com/reportflow/analyzer-core/src/namespace"
	"github.com/reportflow/analyzer-core/src/querybuilder"
	"github.com/reportflow/analyzer-core/src/ranker"
	"github.com/reportflow/analyzer-core/src/similarity"
)

// suggestTopHits is k for SuggestFeatures' per-round hit cap.
const suggestTopHits = 10

// namespaceBoostFactor nudges a candidate's group-score feature (the
// mrHit's raw _score in suggest rows) upward when its launch name falls under one of the project's chosen
// namespaces (boosting_config["chosen_namespaces"] in
// _examples/original_source/service/suggest_service.py), so a recurring
// convention of the project outranks an equally-scored one-off launch.
const namespaceBoostFactor = 1.1

// SuggestPipeline finds previously analyzed test items relevant to a new
// one, a direct transliteration of SuggestService.suggest_items.
type SuggestPipeline struct {
	gw          *indexgw.Gateway
	cfg         config.SearchConfig
	ranker      ranker.Ranker
	weights     similarity.WordWeights
	defectModel featurizer.DefectTypeModel
	ns          *namespace.Tracker
	br          broker.Broker
	exchange    string
	appVersion  string
	log         logger.Logger
}

// NewSuggestPipeline returns a SuggestPipeline. r may be nil, in which
// case Suggest returns zero results for every request rather than
// panicking (spec.md §7's error-handling design).
func NewSuggestPipeline(
	gw *indexgw.Gateway,
	cfg config.SearchConfig,
	r ranker.Ranker,
	weights similarity.WordWeights,
	defectModel featurizer.DefectTypeModel,
	ns *namespace.Tracker,
	br broker.Broker,
	exchange string,
	appVersion string,
	log logger.Logger,
) *SuggestPipeline {
	return &SuggestPipeline{
		gw: gw, cfg: cfg, ranker: r, weights: weights, defectModel: defectModel,
		ns: ns, br: br, exchange: exchange, appVersion: appVersion, log: log,
	}
}

// Suggest returns up to numItems ranked candidates for info's test item,
// each with a predicted match probability at or above
// contracts.SuggestThreshold.
func (p *SuggestPipeline) Suggest(ctx context.Context, info contracts.SuggestAnalyzerConfig, numItems int) ([]contracts.SuggestAnalysisResult, error) {
	start := time.Now()
	p.log.Info("Started suggesting test items")

	project := strconv.FormatInt(info.Project, 10)
	exists, err := p.gw.IndexExists(ctx, project)
	if err != nil {
		return nil, fmt.Errorf("suggest: check index exists: %w", err)
	}
	if !exists {
		p.log.Info("Project %q doesn't exist", project)
		return nil, nil
	}

	if p.ranker == nil {
		p.log.Info("No ranker configured, returning zero results")
		return nil, nil
	}

	merged := p.prepareQueryLogs(info)
	pairs, err := p.searchSuggestedItems(ctx, info, merged)
	if err != nil {
		return nil, fmt.Errorf("suggest: search: %w", err)
	}

	filterFields := chooseFilterFields(info.AnalyzerConfig.NumberOfLogLines)
	featCfg := featurizer.Config{
		SimilarityConfig: similarity.Config{
			MaxQueryTerms:    p.cfg.MaxQueryTerms,
			MinWordLength:    p.cfg.MinWordLength,
			MinShouldMatch:   "40%",
			NumberOfLogLines: info.AnalyzerConfig.NumberOfLogLines,
		},
		FilterFields:    filterFields,
		TopHitsPerQuery: suggestTopHits,
	}
	matrix, testItemIDs, scores := featurizer.SuggestFeatures(pairs, featCfg, p.weights, p.defectModel)

	results := p.rankAndEmit(ctx, info, numItems, filterFields, matrix, testItemIDs, scores)

	go p.publishStats(info, len(results), start)

	p.log.Info("Finished suggesting for test item with %d results", len(results))
	return results, nil
}

// prepareQueryLogs dedups info's logs by message, keeps only error-level
// ones, builds their LogDocuments, and merges them the same way
// IndexingService does for stored logs.
func (p *SuggestPipeline) prepareQueryLogs(info contracts.SuggestAnalyzerConfig) []contracts.LogDocument {
	seen := map[string]struct{}{}
	var docs []contracts.LogDocument
	for _, log := range info.Logs {
		if log.LogLevel < contracts.ErrorLevel {
			continue
		}
		if _, dup := seen[log.Message]; dup {
			continue
		}
		seen[log.Message] = struct{}{}

		doc := logdoc.PrepareSuggestLogDocument(info, log)
		doc.ID = contracts.DocID(strconv.FormatInt(log.LogID, 10))
		docs = append(docs, doc)
	}
	return logmerge.MergeLogs(docs)
}

// searchSuggestedItems runs the three suggest-query rounds (extended,
// without-params-extended, without-params-and-brackets) for each merged
// query document, sequentially and in that fixed order, per spec.md §5's
// determinism requirement. A failed search is logged and that round is
// skipped; the other rounds and logs still run.
func (p *SuggestPipeline) searchSuggestedItems(ctx context.Context, info contracts.SuggestAnalyzerConfig, docs []contracts.LogDocument) ([]featurizer.QueryHitsPair, error) {
	project := strconv.FormatInt(info.Project, 10)

	var pairs []featurizer.QueryHitsPair
	for _, doc := range docs {
		if doc.LogLevel < contracts.ErrorLevel || (strings.TrimSpace(doc.Message) == "" && strings.TrimSpace(doc.MergedSmallLogs) == "") {
			continue
		}

		rounds := []querybuilder.FieldTriple{
			{
				MessageField: "message_extended", MessageValue: doc.MessageExtended,
				DetectedMessageField: "detected_message_extended", DetectedMessageValue: doc.DetectedMessageExtended,
				StacktraceField: "stacktrace_extended", StacktraceValue: doc.StacktraceExtended,
			},
			{
				MessageField: "message_without_params_extended", MessageValue: doc.MessageWithoutParamsExtended,
				DetectedMessageField: "detected_message_without_params_extended", DetectedMessageValue: doc.DetectedMessageWithoutParamsExtended,
				StacktraceField: "stacktrace_extended", StacktraceValue: doc.StacktraceExtended,
			},
			{
				MessageField: "message_without_params_and_brackets", MessageValue: doc.MessageWithoutParamsAndBrackets,
				DetectedMessageField: "detected_message_without_params_and_brackets", DetectedMessageValue: doc.DetectedMessageWithoutParamsAndBrackets,
				StacktraceField: "stacktrace_extended", StacktraceValue: doc.StacktraceExtended,
			},
		}

		for _, fields := range rounds {
			query := querybuilder.BuildSuggestQuery(p.cfg, info, doc, fields)
			hits, err := p.gw.Search(ctx, project, query)
			if err != nil {
				p.log.Error("Suggest search failed for log %q: %v", doc.ID, err)
				continue
			}
			if len(hits) == 0 {
				continue
			}
			pairs = append(pairs, featurizer.QueryHitsPair{Query: doc, Hits: hits})
		}
	}
	return pairs, nil
}

// rankAndEmit predicts, ranks, dedups, and formats the final results for
// one Suggest call.
func (p *SuggestPipeline) rankAndEmit(
	ctx context.Context,
	info contracts.SuggestAnalyzerConfig,
	numItems int,
	filterFields []string,
	matrix [][]float64,
	testItemIDs []int64,
	scores featurizer.ScoresByGroup,
) []contracts.SuggestAnalysisResult {
	if len(matrix) == 0 {
		p.log.Debug("No results for test item %d", info.TestItemID)
		return nil
	}

	if p.ns != nil {
		project := strconv.FormatInt(info.Project, 10)
		chosen, err := p.ns.ChosenNamespaces(ctx, project)
		if err != nil {
			p.log.Error("Couldn't load chosen namespaces for project %q: %v", project, err)
		} else {
			applyNamespaceBoost(matrix, testItemIDs, scores, filterFields, chosen)
		}
	}

	featureIDs := p.ranker.FeatureIDs()
	selected := make([][]float64, len(matrix))
	for i, row := range matrix {
		selected[i] = featurizer.SelectFeatures(row, featureIDs)
	}

	_, probabilities := p.ranker.Predict(selected)
	order := sortSuggestOrder(testItemIDs, scores, probabilities)
	order = deduplicateSuggestions(order, testItemIDs, scores, p.cfg, p.weights)

	minShouldMatch := findMinShouldMatchThreshold(info.AnalyzerConfig, p.cfg)
	modelInfo := strings.Join(p.ranker.ModelInfo(), ";")
	featureNames := joinInts(featureIDs)

	var results []contracts.SuggestAnalysisResult
	for pos, idx := range order {
		if len(results) >= numItems {
			break
		}
		prob := probabilities[idx][1]
		if prob < contracts.SuggestThreshold {
			continue
		}

		testItemID := testItemIDs[idx]
		entry := scores[strconv.FormatInt(testItemID, 10)]
		results = append(results, contracts.SuggestAnalysisResult{
			TestItem:           info.TestItemID,
			TestItemLogID:      entry.ComparedLog.ID.RealID(),
			IssueType:          entry.MrHit.Source.IssueType,
			RelevantItem:       testItemID,
			RelevantLogID:      entry.MrHit.ID.RealID(),
			MatchScore:         round2(prob * 100),
			EsScore:            round2(entry.MrHit.Score),
			EsPosition:         entry.EsPosition,
			ModelFeatureNames:  featureNames,
			ModelFeatureValues: joinFloats(selected[idx]),
			ModelInfo:          modelInfo,
			ResultPosition:     pos,
			UsedLogLines:       info.AnalyzerConfig.NumberOfLogLines,
			MinShouldMatch:     minShouldMatch,
		})
	}
	return results
}

// sortSuggestOrder returns row indices sorted by (predicted probability of
// the positive class, MrHit start time) descending, mirroring
// SuggestService.sort_results.
func sortSuggestOrder(testItemIDs []int64, scores featurizer.ScoresByGroup, probabilities [][2]float64) []int {
	order := make([]int, len(testItemIDs))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		pa := round2(probabilities[order[a]][1])
		pb := round2(probabilities[order[b]][1])
		if pa != pb {
			return pa > pb
		}
		ta := scores[strconv.FormatInt(testItemIDs[order[a]], 10)].MrHit.Source.StartTime
		tb := scores[strconv.FormatInt(testItemIDs[order[b]], 10)].MrHit.Source.StartTime
		return ta > tb
	})
	return order
}

// deduplicateSuggestions drops a later candidate in order whenever an
// earlier-ranked candidate shares its issue type and its MrHit is at least
// contracts.SimilarityDedupThreshold similar on every dedup field, a
// transliteration of SuggestService.deduplicate_results.
func deduplicateSuggestions(order []int, testItemIDs []int64, scores featurizer.ScoresByGroup, cfg config.SearchConfig, weights similarity.WordWeights) []int {
	dedupFields := []string{"detected_message_with_numbers", "stacktrace", "merged_small_logs"}
	simCfg := similarity.Config{MaxQueryTerms: cfg.MaxQueryTerms, MinWordLength: cfg.MinWordLength, MinShouldMatch: "98%"}

	deleted := map[int]bool{}
	var filtered []int
	for i := 0; i < len(order); i++ {
		if deleted[order[i]] {
			continue
		}
		entryI := scores[strconv.FormatInt(testItemIDs[order[i]], 10)]
		for j := i + 1; j < len(order); j++ {
			if deleted[order[j]] {
				continue
			}
			entryJ := scores[strconv.FormatInt(testItemIDs[order[j]], 10)]
			if entryI.MrHit.Source.IssueType != entryJ.MrHit.Source.IssueType {
				continue
			}
			pair := similarity.QueryHitPair{QueryID: "i", HitID: "j", Query: entryI.MrHit.Source, Hit: entryJ.MrHit.Source}
			sims := similarity.Calculate([]similarity.QueryHitPair{pair}, dedupFields, simCfg, weights)
			key := similarity.PairKey{QueryID: "i", HitID: "j"}
			if allAboveDedupThreshold(sims, dedupFields, key) {
				deleted[order[j]] = true
			}
		}
		filtered = append(filtered, order[i])
	}
	return filtered
}

func allAboveDedupThreshold(sims similarity.ResultSet, fields []string, key similarity.PairKey) bool {
	for _, field := range fields {
		if sims[field][key].Similarity < contracts.SimilarityDedupThreshold {
			return false
		}
	}
	return true
}

// applyNamespaceBoost nudges the group-score feature column (the second
// column after FilterFields, see featureRow) of any candidate whose
// MrHit launch name falls under one of the project's chosen namespaces.
func applyNamespaceBoost(matrix [][]float64, testItemIDs []int64, scores featurizer.ScoresByGroup, filterFields []string, chosenNamespaces []string) {
	if len(chosenNamespaces) == 0 {
		return
	}
	chosen := make(map[string]struct{}, len(chosenNamespaces))
	for _, ns := range chosenNamespaces {
		chosen[ns] = struct{}{}
	}

	scoreCol := len(filterFields) + 1
	for i, testItemID := range testItemIDs {
		entry := scores[strconv.FormatInt(testItemID, 10)]
		if _, ok := chosen[launchNamespace(entry.MrHit.Source.LaunchName)]; ok && scoreCol < len(matrix[i]) {
			matrix[i][scoreCol] *= namespaceBoostFactor
		}
	}
}

func launchNamespace(launchName string) string {
	name := strings.ToLower(strings.TrimSpace(launchName))
	if idx := strings.IndexAny(name, "./"); idx > 0 {
		return name[:idx]
	}
	return name
}

// chooseFilterFields picks the similarity fields compared during feature
// extraction, matching SuggestService.choose_fields_to_filter_suggests.
func chooseFilterFields(numberOfLogLines int) []string {
	if numberOfLogLines == -1 {
		return []string{
			"detected_message_extended",
			"detected_message_without_params_extended",
			"detected_message_without_params_and_brackets",
		}
	}
	return []string{
		"message_extended",
		"message_without_params_extended",
		"message_without_params_and_brackets",
	}
}

// findMinShouldMatchThreshold resolves the per-launch minShouldMatch
// override, falling back to the global search config default.
func findMinShouldMatchThreshold(ac contracts.AnalyzerConfig, cfg config.SearchConfig) int {
	if ac.MinShouldMatch > 0 {
		return ac.MinShouldMatch
	}
	pct := strings.TrimSuffix(strings.TrimSpace(cfg.MinShouldMatch), "%")
	n, err := strconv.Atoi(pct)
	if err != nil {
		return 0
	}
	return n
}

func round2(v float64) float64 {
	return float64(int(v*100+0.5)) / 100
}

func joinInts(values []int) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, ";")
}

func joinFloats(values []float64) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = strconv.FormatFloat(v, 'g', -1, 64)
	}
	return strings.Join(parts, ";")
}

// publishStats fires the stats_info message asynchronously; a failure here
// never affects the Suggest response, only the log, per spec.md §7.
func (p *SuggestPipeline) publishStats(info contracts.SuggestAnalyzerConfig, foundItems int, start time.Time) {
	if p.br == nil {
		return
	}
	ctx := context.Background()

	msg := contracts.StatsInfoMessage{
		Method:           "suggest",
		Project:          info.Project,
		GatherDate:       time.Now().UTC().Format("2006-01-02"),
		NumberOfItems:    foundItems,
		NumberOfLogLines: info.AnalyzerConfig.NumberOfLogLines,
		ModelInfo:        strings.Join(p.ranker.ModelInfo(), ";"),
		MinShouldMatch:   findMinShouldMatchThreshold(info.AnalyzerConfig, p.cfg),
		SavedTimePerItem: time.Since(start).Seconds(),
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		p.log.Error("Couldn't marshal stats_info: %v", err)
		return
	}
	if err := p.br.Publish(ctx, contracts.RoutingKeyStatsInfo, strconv.FormatInt(info.Project, 10), payload); err != nil {
		p.log.Error("Couldn't publish stats_info: %v", err)
	}
}
