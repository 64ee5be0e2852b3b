package vectorindex

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/richinex/musicbi/internal/apperror"
)

// DefaultQdrantURL is used when no base URL is configured.
const DefaultQdrantURL = "http://localhost:6333"

// keyPayload is the payload field holding the record key. Qdrant point
// ids must be integers or UUIDs, so the key travels in the payload.
const keyPayload = "key"

// qdrantStatus supports both `status: "ok"` and `status: {"error":"..."}`.
type qdrantStatus struct {
	State string
	Error string
}

func (s *qdrantStatus) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		s.State = strings.ToLower(v)
		return nil
	}
	var obj struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(b, &obj); err != nil {
		return err
	}
	if obj.Error != "" {
		s.State = "error"
		s.Error = obj.Error
	}
	return nil
}

type qdrantEnvelope[T any] struct {
	Status qdrantStatus `json:"status"`
	Time   float64      `json:"time"`
	Result T            `json:"result"`
}

type qdrantVectorParams struct {
	Size     int    `json:"size"`
	Distance string `json:"distance"`
}

type qdrantCollectionInfo struct {
	Config struct {
		Params struct {
			Vectors qdrantVectorParams `json:"vectors"`
		} `json:"params"`
	} `json:"config"`
}

type qdrantPoint struct {
	ID      string         `json:"id"`
	Vector  []float32      `json:"vector"`
	Payload map[string]any `json:"payload"`
}

type qdrantScoredPoint struct {
	ID      json.RawMessage `json:"id"`
	Score   float32         `json:"score"`
	Payload map[string]any  `json:"payload"`
}

// errQdrantNotFound marks a 404 from the collection endpoint.
var errQdrantNotFound = errors.New("qdrant: not found")

// Qdrant is an Index backed by a Qdrant collection over its REST API.
type Qdrant struct {
	baseURL    string
	apiKey     string
	collection string
	dim        int
	metric     Metric
	client     *http.Client
}

// NewQdrant creates a Qdrant index handle. Nothing is sent until Create.
func NewQdrant(baseURL, apiKey, collection string, dim int, metric Metric) (*Qdrant, error) {
	if baseURL == "" {
		baseURL = DefaultQdrantURL
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, apperror.Wrap(apperror.CodeConfig, "qdrant url", err)
	}
	if collection == "" {
		return nil, apperror.Config("qdrant collection name is empty")
	}
	if dim <= 0 {
		return nil, apperror.Config("vector dimension must be positive, got %d", dim)
	}
	if metric == "" {
		metric = Cosine
	}
	return &Qdrant{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		collection: collection,
		dim:        dim,
		metric:     metric,
		client:     &http.Client{Timeout: 15 * time.Second},
	}, nil
}

func (q *Qdrant) distance() string {
	switch q.metric {
	case Dot:
		return "Dot"
	case Euclidean:
		return "Euclid"
	default:
		return "Cosine"
	}
}

func (q *Qdrant) collectionPath(suffix string) string {
	return fmt.Sprintf("/collections/%s%s", url.PathEscape(q.collection), suffix)
}

// Create provisions the collection, or verifies an existing one.
func (q *Qdrant) Create(ctx context.Context) error {
	var info qdrantEnvelope[qdrantCollectionInfo]
	err := q.do(ctx, http.MethodGet, q.collectionPath(""), nil, &info)
	switch {
	case err == nil:
		got := info.Result.Config.Params.Vectors
		if got.Size != q.dim {
			return apperror.Config("qdrant collection %q has dimension %d, embedder produces %d", q.collection, got.Size, q.dim)
		}
		if got.Distance != "" && !strings.EqualFold(got.Distance, q.distance()) {
			return apperror.Config("qdrant collection %q uses distance %s, configured %s", q.collection, got.Distance, q.distance())
		}
		return nil
	case errors.Is(err, errQdrantNotFound):
	default:
		return err
	}

	req := map[string]any{
		"vectors": qdrantVectorParams{Size: q.dim, Distance: q.distance()},
	}
	err = q.do(ctx, http.MethodPut, q.collectionPath(""), req, nil)
	if err != nil && strings.Contains(strings.ToLower(err.Error()), "already exists") {
		return nil
	}
	return err
}

// Clear deletes every point carrying a key.
func (q *Qdrant) Clear(ctx context.Context) error {
	req := map[string]any{
		"filter": map[string]any{
			"must_not": []map[string]any{
				{"is_empty": map[string]any{"key": keyPayload}},
			},
		},
	}
	return q.do(ctx, http.MethodPost, q.collectionPath("/points/delete?wait=true"), req, nil)
}

// Upsert writes records as points with deterministic UUIDs.
func (q *Qdrant) Upsert(ctx context.Context, records []Record) error {
	if err := checkRecords(q.dim, records); err != nil {
		return err
	}
	if len(records) == 0 {
		return nil
	}
	points := make([]qdrantPoint, len(records))
	for i, r := range records {
		payload := map[string]any{keyPayload: r.Key}
		for k, v := range r.Metadata {
			if k != keyPayload {
				payload[k] = v
			}
		}
		points[i] = qdrantPoint{
			ID:      PointID(r.Key),
			Vector:  r.Vector,
			Payload: payload,
		}
	}
	return q.do(ctx, http.MethodPut, q.collectionPath("/points?wait=true"), map[string]any{"points": points}, nil)
}

// queryOverfetch is how many extra points Query asks for beyond topK, so
// ties across the cutoff are broken locally by key.
const queryOverfetch = 16

// maxQueryLimit bounds the widening search for a tie at the cutoff.
const maxQueryLimit = 4096

// Query searches the collection and re-ranks locally for deterministic ties.
// While the worst returned point still ties the point at the cutoff, the
// search widens.
func (q *Qdrant) Query(ctx context.Context, vector []float32, topK int) ([]Match, error) {
	if err := checkQuery(q.dim, vector, topK); err != nil {
		return nil, err
	}
	limit := topK + queryOverfetch
	for {
		matches, err := q.search(ctx, vector, limit)
		if err != nil {
			return nil, err
		}
		Rank(q.metric, matches)
		exhausted := len(matches) < limit || limit >= maxQueryLimit
		if exhausted || len(matches) <= topK || matches[len(matches)-1].Score != matches[topK-1].Score {
			if len(matches) > topK {
				matches = matches[:topK]
			}
			return matches, nil
		}
		limit *= 2
	}
}

func (q *Qdrant) search(ctx context.Context, vector []float32, limit int) ([]Match, error) {
	req := map[string]any{
		"vector":       vector,
		"limit":        limit,
		"with_payload": true,
	}
	var resp qdrantEnvelope[[]qdrantScoredPoint]
	if err := q.do(ctx, http.MethodPost, q.collectionPath("/points/search"), req, &resp); err != nil {
		return nil, err
	}
	matches := make([]Match, 0, len(resp.Result))
	for _, p := range resp.Result {
		key, _ := p.Payload[keyPayload].(string)
		if key == "" {
			return nil, apperror.Consistency("qdrant point %s has no %q payload", string(p.ID), keyPayload)
		}
		matches = append(matches, Match{Key: key, Score: p.Score})
	}
	return matches, nil
}

// Dimension returns the fixed vector length.
func (q *Qdrant) Dimension() int { return q.dim }

// Metric returns the ranking metric.
func (q *Qdrant) Metric() Metric { return q.metric }

// PointID maps a record key onto the UUID used as its Qdrant point id.
func PointID(key string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(key)).String()
}

func (q *Qdrant) do(ctx context.Context, method, path string, body any, out any) error {
	u := q.baseURL + path

	buf := bytes.NewBuffer(nil)
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		buf = bytes.NewBuffer(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if q.apiKey != "" {
		req.Header.Set("api-key", q.apiKey)
	}
	resp, err := q.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return err
		}
		return apperror.Transient("qdrant "+method+" "+path, err)
	}
	defer resp.Body.Close()

	payload, _ := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if resp.StatusCode == http.StatusNotFound {
		return errQdrantNotFound
	}
	if resp.StatusCode >= 400 {
		var env qdrantEnvelope[json.RawMessage]
		_ = json.Unmarshal(payload, &env)
		msg := strings.TrimSpace(string(payload))
		if env.Status.Error != "" {
			msg = env.Status.Error
		}
		cause := fmt.Errorf("http %d: %s", resp.StatusCode, msg)
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return apperror.Transient("qdrant "+method+" "+path, cause)
		}
		return apperror.Internal("qdrant "+method+" "+path, cause)
	}

	if out != nil && len(payload) > 0 {
		if err := json.Unmarshal(payload, out); err != nil {
			return fmt.Errorf("decode qdrant response: %w", err)
		}
	}
	return nil
}

var _ Index = (*Qdrant)(nil)
