// Package indexgw talks REST-over-HTTP to the Elasticsearch-compatible
// index store: creating/deleting indices, bulk-indexing, scrolling, and
// running search queries. It is grounded on the original EsClient
// constructor (timeout=30, max_retries=5, retry_on_timeout=True, see
// _examples/original_source/commons/esclient.py) and on the teacher's
// habit of wrapping a raw client with typed, logged, error-wrapped
// methods (src/store/postgres.go, src/broker/redpanda.go). No
// Elasticsearch client library appears anywhere in the retrieved corpus,
// so this is the one component that is justifiably stdlib-only; see
// DESIGN.md.
package indexgw

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"net/http"
	"time"

	"github.com/reportflow/analyzer-core/src/config"
	"github.com/reportflow/analyzer-core/src/contracts"
	"github.com/reportflow/analyzer-core/src/logger"
)

const (
	requestTimeout = 30 * time.Second
	maxRetries     = 5
	scrollSize     = 1000
	scrollTTL      = "1m"
)

// Query is the JSON request body sent to the index store's _search
// endpoint, assembled by the querybuilder package.
type Query map[string]any

// Hit is one search result: the store-assigned id, its relevance score,
// and the stored document.
type Hit struct {
	ID     contracts.DocID
	Score  float64
	Source contracts.LogDocument
}

// BulkOpType enumerates the bulk operation kinds the gateway supports.
type BulkOpType string

const (
	BulkIndex  BulkOpType = "index"
	BulkUpdate BulkOpType = "update"
	BulkDelete BulkOpType = "delete"
)

// BulkOp is one operation within a bulk request.
type BulkOp struct {
	Type  BulkOpType
	Index string
	ID    contracts.DocID
	// Doc is the full document body for BulkIndex.
	Doc contracts.LogDocument
	// Partial is the partial field set for BulkUpdate.
	Partial map[string]any
}

// BulkResponse mirrors the shape callers use to decide whether to retry
// or surface a partial-failure condition.
type BulkResponse struct {
	Took   int
	Errors bool
}

// Gateway is the index store client.
type Gateway struct {
	httpClient *http.Client
	host       string
	logger     logger.Logger
}

// New constructs a Gateway from the index-store connection settings in
// cfg. Only EsHost is read: the TLS and client-certificate settings
// (EsUseSSL, EsVerifyCerts, TurnOffSSLVerification and the cert/key
// paths) are not applied, so HTTPS hosts use Go's default TLS verification.
func New(cfg config.Config, log logger.Logger) *Gateway {
	return &Gateway{
		httpClient: &http.Client{Timeout: requestTimeout},
		host:       cfg.EsHost,
		logger:     log,
	}
}

var defaultIndexSettings = map[string]any{
	"settings": map[string]any{
		"number_of_shards": 1,
		"analysis": map[string]any{
			"analyzer": map[string]any{
				"standard_english_analyzer": map[string]any{
					"type":      "standard",
					"stopwords": "_english_",
				},
			},
		},
	},
	"mappings": map[string]any{
		"properties": map[string]any{
			"test_item":        map[string]any{"type": "keyword"},
			"issue_type":       map[string]any{"type": "keyword"},
			"message":          map[string]any{"type": "text", "analyzer": "standard_english_analyzer"},
			"log_level":        map[string]any{"type": "integer"},
			"launch_name":      map[string]any{"type": "keyword"},
			"unique_id":        map[string]any{"type": "keyword"},
			"is_auto_analyzed": map[string]any{"type": "keyword"},
			"is_merged":        map[string]any{"type": "boolean"},
		},
	},
}

// CreateIndex creates name with the default settings/mapping.
func (g *Gateway) CreateIndex(ctx context.Context, name string) error {
	g.logger.Debug("Creating %q index", name)
	_, err := g.do(ctx, http.MethodPut, "/"+name, defaultIndexSettings)
	if err != nil {
		g.logger.Error("Couldn't create index %q: %v", name, err)
		return fmt.Errorf("create index %q: %w", name, err)
	}
	g.logger.Debug("Created %q index", name)
	return nil
}

// IndexExists reports whether name already exists.
func (g *Gateway) IndexExists(ctx context.Context, name string) (bool, error) {
	status, _, err := g.request(ctx, http.MethodGet, "/"+name, nil)
	if err != nil {
		return false, fmt.Errorf("check index %q exists: %w", name, err)
	}
	return status == http.StatusOK, nil
}

// CreateIndexIfNotExists creates name only if it's missing.
func (g *Gateway) CreateIndexIfNotExists(ctx context.Context, name string) error {
	exists, err := g.IndexExists(ctx, name)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	return g.CreateIndex(ctx, name)
}

// EnsureStatsIndex creates contracts.StatsIndexName if it doesn't already
// exist. New does not call it and no pipeline writes to the stats index;
// a caller that wants the index created runs it once itself.
func (g *Gateway) EnsureStatsIndex(ctx context.Context) error {
	return g.CreateIndexIfNotExists(ctx, contracts.StatsIndexName)
}

// DeleteIndex removes name and every document in it.
func (g *Gateway) DeleteIndex(ctx context.Context, name string) error {
	_, err := g.do(ctx, http.MethodDelete, "/"+name, nil)
	if err != nil {
		g.logger.Error("Not found %q for deleting: %v", name, err)
		return fmt.Errorf("delete index %q: %w", name, err)
	}
	g.logger.Debug("Deleted index %q", name)
	return nil
}

// Search runs query against index and returns every hit in the response
// (capped at contracts.MaxHitsPerSearch by the query's own "size").
func (g *Gateway) Search(ctx context.Context, index string, query Query) ([]Hit, error) {
	body, err := g.do(ctx, http.MethodPost, "/"+index+"/_search", query)
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", index, err)
	}
	return parseHits(body)
}

// Scroll lazily iterates every hit matching query in index using the
// store's scroll API, fetching scrollSize hits per round trip. Iteration
// stops early (without fetching further pages) if the consumer stops
// ranging.
func (g *Gateway) Scroll(ctx context.Context, index string, query Query) iter.Seq[Hit] {
	return func(yield func(Hit) bool) {
		scrolled := Query{}
		for k, v := range query {
			scrolled[k] = v
		}
		scrolled["size"] = scrollSize

		body, err := g.do(ctx, http.MethodPost, "/"+index+"/_search?scroll="+scrollTTL, scrolled)
		if err != nil {
			g.logger.Error("Scroll init failed for %q: %v", index, err)
			return
		}

		var page scrollPage
		if err := json.Unmarshal(body, &page); err != nil {
			g.logger.Error("Scroll init decode failed for %q: %v", index, err)
			return
		}

		for {
			hits, err := parseHits(body)
			if err != nil {
				g.logger.Error("Scroll decode failed for %q: %v", index, err)
				return
			}
			if len(hits) == 0 {
				g.clearScroll(ctx, page.ScrollID)
				return
			}
			for _, hit := range hits {
				if !yield(hit) {
					g.clearScroll(ctx, page.ScrollID)
					return
				}
			}

			nextBody, err := g.do(ctx, http.MethodPost, "/_search/scroll", map[string]any{
				"scroll":    scrollTTL,
				"scroll_id": page.ScrollID,
			})
			if err != nil {
				g.logger.Error("Scroll continuation failed for %q: %v", index, err)
				return
			}
			body = nextBody
			if err := json.Unmarshal(body, &page); err != nil {
				g.logger.Error("Scroll continuation decode failed for %q: %v", index, err)
				return
			}
		}
	}
}

func (g *Gateway) clearScroll(ctx context.Context, scrollID string) {
	if scrollID == "" {
		return
	}
	if _, err := g.do(ctx, http.MethodDelete, "/_search/scroll", map[string]any{"scroll_id": scrollID}); err != nil {
		g.logger.Debug("Failed clearing scroll %q: %v", scrollID, err)
	}
}

// Bulk sends ops to the store's _bulk endpoint in chunks of
// contracts.BulkChunkSize. If a chunk fails because the index went
// read-only, the gateway clears the read-only block once and retries
// that chunk a single time, matching the original EsClient's bulk
// recovery behavior.
func (g *Gateway) Bulk(ctx context.Context, ops []BulkOp, refresh bool) (BulkResponse, error) {
	g.logger.Debug("Indexing %d logs...", len(ops))

	total := BulkResponse{}
	for start := 0; start < len(ops); start += contracts.BulkChunkSize {
		end := start + contracts.BulkChunkSize
		if end > len(ops) {
			end = len(ops)
		}
		chunk := ops[start:end]

		resp, err := g.bulkChunk(ctx, chunk, refresh)
		if err != nil && isReadOnlyErr(err) {
			g.logger.Debug("Index read-only, clearing block and retrying chunk once")
			if clearErr := g.clearReadOnlyBlock(ctx, chunk); clearErr == nil {
				resp, err = g.bulkChunk(ctx, chunk, refresh)
			}
		}
		if err != nil {
			g.logger.Error("Error in bulk: %v", err)
			return BulkResponse{Took: 0, Errors: true}, nil
		}

		total.Took += resp.Took
		total.Errors = total.Errors || resp.Errors
	}

	g.logger.Debug("Processed %d logs", total.Took)
	return total, nil
}

func (g *Gateway) bulkChunk(ctx context.Context, ops []BulkOp, refresh bool) (BulkResponse, error) {
	var buf bytes.Buffer
	for _, op := range ops {
		if err := writeBulkOp(&buf, op); err != nil {
			return BulkResponse{}, err
		}
	}

	path := "/_bulk"
	if refresh {
		path += "?refresh=true"
	}

	body, err := g.doNDJSON(ctx, path, buf.Bytes())
	if err != nil {
		return BulkResponse{}, err
	}

	var parsed bulkResult
	if err := json.Unmarshal(body, &parsed); err != nil {
		return BulkResponse{}, fmt.Errorf("decode bulk response: %w", err)
	}

	took := 0
	hadErrors := parsed.Errors
	for _, item := range parsed.Items {
		for _, result := range item {
			if result.Status >= 200 && result.Status < 300 {
				took++
			} else {
				hadErrors = true
			}
		}
	}
	return BulkResponse{Took: took, Errors: hadErrors}, nil
}

func writeBulkOp(buf *bytes.Buffer, op BulkOp) error {
	action := map[string]any{
		string(op.Type): map[string]any{
			"_index": op.Index,
			"_id":    string(op.ID),
		},
	}
	if err := writeJSONLine(buf, action); err != nil {
		return err
	}

	switch op.Type {
	case BulkIndex:
		return writeJSONLine(buf, op.Doc)
	case BulkUpdate:
		return writeJSONLine(buf, map[string]any{"doc": op.Partial})
	case BulkDelete:
		return nil
	default:
		return fmt.Errorf("unknown bulk op type %q", op.Type)
	}
}

func writeJSONLine(buf *bytes.Buffer, v any) error {
	encoded, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode bulk line: %w", err)
	}
	buf.Write(encoded)
	buf.WriteByte('\n')
	return nil
}

// clearReadOnlyBlock lifts the read-only-allow-delete block on every
// index referenced by ops.
func (g *Gateway) clearReadOnlyBlock(ctx context.Context, ops []BulkOp) error {
	seen := map[string]struct{}{}
	for _, op := range ops {
		if _, ok := seen[op.Index]; ok {
			continue
		}
		seen[op.Index] = struct{}{}
		settings := map[string]any{
			"index": map[string]any{
				"blocks": map[string]any{
					"read_only_allow_delete": nil,
				},
			},
		}
		if _, err := g.do(ctx, http.MethodPut, "/"+op.Index+"/_settings", settings); err != nil {
			return err
		}
	}
	return nil
}

func isReadOnlyErr(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return containsFold(msg, "read_only") || containsFold(msg, "cluster_block_exception")
}

func containsFold(s, substr string) bool {
	return len(s) >= len(substr) && indexFold(s, substr) >= 0
}

func indexFold(s, substr string) int {
	sl, subl := len(s), len(substr)
	if subl == 0 {
		return 0
	}
	for i := 0; i+subl <= sl; i++ {
		if equalFold(s[i:i+subl], substr) {
			return i
		}
	}
	return -1
}

func equalFold(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := 0; i < len(a); i++ {
		ca, cb := a[i], b[i]
		if ca >= 'A' && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if cb >= 'A' && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}

type scrollPage struct {
	ScrollID string `json:"_scroll_id"`
}

type bulkResult struct {
	Errors bool                        `json:"errors"`
	Items  []map[string]bulkItemResult `json:"items"`
}

type bulkItemResult struct {
	Status int `json:"status"`
}

type searchResponse struct {
	Hits struct {
		Hits []struct {
			ID     string                `json:"_id"`
			Score  float64               `json:"_score"`
			Source contracts.LogDocument `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

func parseHits(body []byte) ([]Hit, error) {
	var resp searchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}
	hits := make([]Hit, 0, len(resp.Hits.Hits))
	for _, h := range resp.Hits.Hits {
		source := h.Source
		source.ID = contracts.DocID(h.ID)
		hits = append(hits, Hit{ID: contracts.DocID(h.ID), Score: h.Score, Source: source})
	}
	return hits, nil
}

// do sends a JSON request with retry-on-timeout (up to maxRetries
// attempts, per the original EsClient's max_retries=5,
// retry_on_timeout=True) and returns the decoded response body.
func (g *Gateway) do(ctx context.Context, method, path string, payload any) ([]byte, error) {
	var body []byte
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		body = encoded
	}

	status, respBody, err := g.request(ctx, method, path, body)
	if err != nil {
		return nil, err
	}
	if status >= 400 {
		return nil, fmt.Errorf("index store returned status %d: %s", status, string(respBody))
	}
	return respBody, nil
}

func (g *Gateway) doNDJSON(ctx context.Context, path string, body []byte) ([]byte, error) {
	status, respBody, err := g.requestRaw(ctx, http.MethodPost, path, body, "application/x-ndjson")
	if err != nil {
		return nil, err
	}
	if status >= 400 {
		return nil, fmt.Errorf("index store returned status %d: %s", status, string(respBody))
	}
	return respBody, nil
}

func (g *Gateway) request(ctx context.Context, method, path string, body []byte) (int, []byte, error) {
	return g.requestRaw(ctx, method, path, body, "application/json")
}

func (g *Gateway) requestRaw(ctx context.Context, method, path string, body []byte, contentType string) (int, []byte, error) {
	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, method, g.host+path, bytes.NewReader(body))
		if err != nil {
			return 0, nil, fmt.Errorf("build request: %w", err)
		}
		if body != nil {
			req.Header.Set("Content-Type", contentType)
		}

		resp, err := g.httpClient.Do(req)
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				return 0, nil, ctx.Err()
			}
			continue
		}

		respBody, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			lastErr = readErr
			continue
		}
		return resp.StatusCode, respBody, nil
	}
	return 0, nil, fmt.Errorf("request failed after %d attempts: %w", maxRetries, lastErr)
}
