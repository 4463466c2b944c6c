// Package pipeline orchestrates the collaborators built by the other
// packages (indexgw, querybuilder, logdoc, logmerge, similarity,
// featurizer, ranker, namespace, retrain) into the operations the
// surrounding platform actually calls: indexing/deleting logs, analyzing a
// launch, suggesting relevant items for one test item, and searching for
// logs similar to given messages. Grounded on the
// teacher's pipeline.AgenticPipeline/LegacyPipeline constructor-wires-
// collaborators shape, with the exact sequencing of each operation
// transliterated from EsClient.index_logs/_merge_logs/_delete_merged_logs/
// delete_logs and EsClient.analyze_logs/SuggestService.suggest_items (see
// _examples/original_source/commons/esclient.py and
// _examples/original_source/service/suggest_service.py).
package pipeline

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/reportflow/analyzer-core/src/contracts"
	"github.com/reportflow/analyzer-core/src/indexgw"
	"github.com/reportflow/analyzer-core/src/logdoc"
	"github.com/reportflow/analyzer-core/src/logger"
	"github.com/reportflow/analyzer-core/src/logmerge"
	"github.com/reportflow/analyzer-core/src/namespace"
	"github.com/reportflow/analyzer-core/src/querybuilder"
	"github.com/reportflow/analyzer-core/src/retrain"
)

// IndexingService indexes raw logs into the index store and keeps each test
// item's merged documents in sync with its unmerged ones, a direct
// transliteration of EsClient.index_logs/_merge_logs/_delete_merged_logs/
// delete_logs.
type IndexingService struct {
	gw        *indexgw.Gateway
	ns        *namespace.Tracker
	retrainer *retrain.Registry
	log       logger.Logger
	locks     keyedLocks
}

// NewIndexingService returns an IndexingService backed by gw, with ns and
// retrainer updated as a side effect of every successful IndexLogs call.
func NewIndexingService(gw *indexgw.Gateway, ns *namespace.Tracker, retrainer *retrain.Registry, log logger.Logger) *IndexingService {
	return &IndexingService{gw: gw, ns: ns, retrainer: retrainer, log: log, locks: newKeyedLocks()}
}

// IndexLogs indexes every error-level, non-empty log in launches, then
// re-merges the affected test items so their merged documents reflect the
// newly-indexed logs. The bulk insert runs without a lock; the merge step
// for each project runs under that project's lock, so concurrent IndexLogs
// calls for the same project never interleave their merges.
func (s *IndexingService) IndexLogs(ctx context.Context, launches []contracts.Launch) (indexgw.BulkResponse, error) {
	s.log.Debug("Indexing logs for %d launches", len(launches))

	testItemsByProject := map[string][]string{}
	launchNamesByProject := map[string][]string{}
	defectLogsByProject := map[string]int{}
	var ops []indexgw.BulkOp

	for _, launch := range launches {
		project := strconv.FormatInt(launch.Project, 10)
		if err := s.gw.CreateIndexIfNotExists(ctx, project); err != nil {
			return indexgw.BulkResponse{}, fmt.Errorf("indexing: ensure index %q: %w", project, err)
		}
		launchNamesByProject[project] = append(launchNamesByProject[project], launch.LaunchName)

		for _, item := range launch.TestItems {
			added := false
			for _, log := range item.Logs {
				if log.LogLevel < contracts.ErrorLevel || log.Message == "" {
					continue
				}
				doc := logdoc.PrepareLogDocument(launch, item, log)
				id := contracts.DocID(strconv.FormatInt(log.LogID, 10))
				ops = append(ops, indexgw.BulkOp{Type: indexgw.BulkIndex, Index: project, ID: id, Doc: doc})
				added = true
				if item.IssueType != "" {
					defectLogsByProject[project]++
				}
			}
			if added {
				testItemsByProject[project] = append(testItemsByProject[project], strconv.FormatInt(item.TestItemID, 10))
			}
		}
	}

	result, err := s.gw.Bulk(ctx, ops, true)
	if err != nil {
		return result, fmt.Errorf("indexing: bulk index: %w", err)
	}

	for project, testItemIDs := range testItemsByProject {
		mu := s.locks.forProject(project)
		mu.Lock()
		mergeErr := s.mergeTestItems(ctx, project, testItemIDs)
		mu.Unlock()
		if mergeErr != nil {
			return result, fmt.Errorf("indexing: merge test items for project %q: %w", project, mergeErr)
		}

		if s.ns != nil {
			if err := s.ns.Update(ctx, project, launchNamesByProject[project]); err != nil {
				s.log.Error("Couldn't update namespaces for project %q: %v", project, err)
			}
		}
		if s.retrainer != nil && defectLogsByProject[project] > 0 {
			if err := s.retrainer.Add(ctx, project, retrain.ModelTypeDefect, defectLogsByProject[project]); err != nil {
				s.log.Error("Couldn't record retraining count for project %q: %v", project, err)
			}
		}
	}

	s.log.Debug("Finished indexing logs for %d launches", len(launches))
	return result, nil
}

// DeleteLogs removes ids from project's index and re-merges whichever test
// items those logs belonged to, a transliteration of EsClient.delete_logs.
func (s *IndexingService) DeleteLogs(ctx context.Context, project string, ids []int64) (indexgw.BulkResponse, error) {
	s.log.Debug("Deleting %d logs for project %q", len(ids), project)

	docIDs := make([]contracts.DocID, len(ids))
	for i, id := range ids {
		docIDs[i] = contracts.DocID(strconv.FormatInt(id, 10))
	}

	testItemSet := map[string]struct{}{}
	hits, err := s.gw.Search(ctx, project, querybuilder.BuildSearchTestItemIDsQuery(docIDs))
	if err != nil {
		s.log.Error("Couldn't find test items for logs in project %q: %v", project, err)
	} else {
		for _, h := range hits {
			testItemSet[strconv.FormatInt(h.Source.TestItem, 10)] = struct{}{}
		}
	}

	ops := make([]indexgw.BulkOp, len(docIDs))
	for i, id := range docIDs {
		ops[i] = indexgw.BulkOp{Type: indexgw.BulkDelete, Index: project, ID: id}
	}
	result, err := s.gw.Bulk(ctx, ops, true)
	if err != nil {
		return result, fmt.Errorf("indexing: bulk delete: %w", err)
	}

	testItemIDs := make([]string, 0, len(testItemSet))
	for id := range testItemSet {
		testItemIDs = append(testItemIDs, id)
	}

	mu := s.locks.forProject(project)
	mu.Lock()
	mergeErr := s.mergeTestItems(ctx, project, testItemIDs)
	mu.Unlock()
	if mergeErr != nil {
		return result, fmt.Errorf("indexing: re-merge after delete for project %q: %w", project, mergeErr)
	}

	s.log.Debug("Finished deleting logs for project %q", project)
	return result, nil
}

// mergeTestItems recomputes each test item's merged documents from its
// current unmerged ones and reconciles them against what's already stored.
// Per spec.md's "conservative behavior" mandate, an existing merged
// document that would come out identical is left untouched rather than
// rewritten, and stale merged documents with no surviving counterpart are
// deleted.
func (s *IndexingService) mergeTestItems(ctx context.Context, project string, testItemIDs []string) error {
	var ops []indexgw.BulkOp
	for _, idStr := range testItemIDs {
		testItemID, err := strconv.ParseInt(idStr, 10, 64)
		if err != nil {
			continue
		}

		unmergedHits, err := s.gw.Search(ctx, project, querybuilder.BuildTestItemQuery(testItemID, false))
		if err != nil {
			return fmt.Errorf("search unmerged docs for test item %d: %w", testItemID, err)
		}
		mergedHits, err := s.gw.Search(ctx, project, querybuilder.BuildTestItemQuery(testItemID, true))
		if err != nil {
			return fmt.Errorf("search merged docs for test item %d: %w", testItemID, err)
		}

		docs := make([]contracts.LogDocument, len(unmergedHits))
		for i, h := range unmergedHits {
			doc := h.Source
			doc.ID = h.ID
			docs[i] = doc
		}

		newMerged := logmerge.MergeLogs(docs)
		ops = append(ops, diffMergedOps(project, newMerged, mergedHits)...)
	}

	if len(ops) == 0 {
		return nil
	}
	_, err := s.gw.Bulk(ctx, ops, true)
	return err
}

// diffMergedOps compares newly computed merged documents against what's
// already stored for their test item and emits only the ops needed to
// reconcile the two: a full index for a brand-new merged id, a partial
// update when only the message text changed, nothing when it's unchanged,
// and a delete for any stored merged id that no longer exists.
func diffMergedOps(project string, newMerged []contracts.LogDocument, existingMerged []indexgw.Hit) []indexgw.BulkOp {
	existingByID := make(map[contracts.DocID]indexgw.Hit, len(existingMerged))
	for _, h := range existingMerged {
		existingByID[h.ID] = h
	}

	var ops []indexgw.BulkOp
	seen := map[contracts.DocID]struct{}{}
	for _, doc := range newMerged {
		seen[doc.ID] = struct{}{}
		existing, ok := existingByID[doc.ID]
		switch {
		case !ok:
			ops = append(ops, indexgw.BulkOp{Type: indexgw.BulkIndex, Index: project, ID: doc.ID, Doc: doc})
		case existing.Source.Message != doc.Message:
			ops = append(ops, indexgw.BulkOp{
				Type:  indexgw.BulkUpdate,
				Index: project,
				ID:    doc.ID,
				Partial: map[string]any{
					"message":   doc.Message,
					"is_merged": true,
				},
			})
		}
	}
	for id := range existingByID {
		if _, ok := seen[id]; !ok {
			ops = append(ops, indexgw.BulkOp{Type: indexgw.BulkDelete, Index: project, ID: id})
		}
	}
	return ops
}

// keyedLocks hands out one *sync.Mutex per project, creating it on first
// use, so IndexLogs/DeleteLogs serialize their merge step per project
// without blocking unrelated projects.
type keyedLocks struct {
	mu    sync.Mutex
	perID map[string]*sync.Mutex
}

func newKeyedLocks() keyedLocks {
	return keyedLocks{perID: make(map[string]*sync.Mutex)}
}

func (k *keyedLocks) forProject(project string) *sync.Mutex {
	k.mu.Lock()
	defer k.mu.Unlock()
	m, ok := k.perID[project]
	if !ok {
		m = &sync.Mutex{}
		k.perID[project] = m
	}
	return m
}
