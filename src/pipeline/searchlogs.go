package pipeline

import (
	"context"
	"strconv"

	"github.com/reportflow/analyzer-core/src/config"
	"github.com/reportflow/analyzer-core/src/contracts"
	"github.com/reportflow/analyzer-core/src/indexgw"
	"github.com/reportflow/analyzer-core/src/logger"
	"github.com/reportflow/analyzer-core/src/querybuilder"
	"github.com/reportflow/analyzer-core/src/similarity"
	"github.com/reportflow/analyzer-core/src/textnorm"
)

// SearchLogsPipeline finds historical logs similar to a set of caller-
// supplied messages, a transliteration of EsClient.search_logs (see
// _examples/original_source/commons/esclient.py) enriched with the
// cosine-similarity threshold spec.md §4.5/§6 calls for
// (SearchLogsMinSimilarity) in place of the original's unfiltered id
// collection — the original never filters by similarity at all, it simply
// returns every hit's raw log id.
type SearchLogsPipeline struct {
	gw  *indexgw.Gateway
	cfg config.SearchConfig
	log logger.Logger
}

// NewSearchLogsPipeline returns a SearchLogsPipeline backed by gw.
func NewSearchLogsPipeline(gw *indexgw.Gateway, cfg config.SearchConfig, log logger.Logger) *SearchLogsPipeline {
	return &SearchLogsPipeline{gw: gw, cfg: cfg, log: log}
}

// SearchLogs returns every historical log found similar to one of req's
// messages, deduplicated by log id. An empty message is skipped entirely
// rather than searched (spec.md §8 scenario 2); a candidate whose message
// similarity to the query falls below cfg.SearchLogsMinSimilarity is
// dropped (scenario 3). A failed search for one message is logged and that
// message is skipped.
func (p *SearchLogsPipeline) SearchLogs(ctx context.Context, req contracts.SearchLogsRequest) ([]contracts.SearchLogsResult, error) {
	p.log.Debug("Started searching logs for request %+v", req)

	project := strconv.FormatInt(req.ProjectID, 10)
	seen := map[int64]struct{}{}
	var results []contracts.SearchLogsResult

	for _, message := range req.LogMessages {
		sanitized := textnorm.SanitizeText(textnorm.FirstLines(message, req.LogLines))
		if sanitized == "" {
			continue
		}

		query := querybuilder.BuildSearchLogsQuery(p.cfg, req, sanitized)
		hits, err := p.gw.Search(ctx, project, query)
		if err != nil {
			p.log.Error("Search logs failed for project %q: %v", project, err)
			continue
		}

		queryDoc := contracts.LogDocument{Message: sanitized}
		simCfg := similarity.Config{MaxQueryTerms: p.cfg.MaxQueryTerms, MinWordLength: p.cfg.MinWordLength}

		for _, hit := range hits {
			logID := hit.ID.RealID()
			if _, dup := seen[logID]; dup {
				continue
			}

			pair := similarity.QueryHitPair{QueryID: "q", HitID: "h", Query: queryDoc, Hit: hit.Source}
			sims := similarity.Calculate([]similarity.QueryHitPair{pair}, []string{"message"}, simCfg, nil)
			sim := sims["message"][similarity.PairKey{QueryID: "q", HitID: "h"}].Similarity
			if sim < p.cfg.SearchLogsMinSimilarity {
				continue
			}

			seen[logID] = struct{}{}
			results = append(results, contracts.SearchLogsResult{
				LogID:      logID,
				TestItemID: hit.Source.TestItem,
			})
		}
	}

	p.log.Debug("Finished searching logs for request with %d results", len(results))
	return results, nil
}
