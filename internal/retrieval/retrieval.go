package retrieval

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/oklog/ulid/v2"

	"github.com/jxiee/campus-qa/internal/models"
)

// Retriever returns documents relevant to a query. Implementations are
// opaque to the pipeline; the orchestrator treats every failure as "no
// documents found".
type Retriever interface {
	Search(ctx context.Context, query string, topK int) ([]models.Document, error)
}

type searchRequest struct {
	ReqID string `json:"req_id"`
	Query string `json:"query"`
	TopK  int    `json:"top_k"`
}

type searchResponse struct {
	ReqID     string            `json:"req_id"`
	Documents []models.Document `json:"documents"`
	Error     string            `json:"error,omitempty"`
}

// NATSRetriever asks the vector-search worker over NATS request/reply. A nil
// connection produces a disabled retriever that reports no documents, so the
// server runs without a broker.
type NATSRetriever struct {
	conn    *nats.Conn
	subject string
	timeout time.Duration
}

func NewNATSRetriever(conn *nats.Conn, subject string, timeout time.Duration) *NATSRetriever {
	return &NATSRetriever{conn: conn, subject: subject, timeout: timeout}
}

func (r *NATSRetriever) Search(ctx context.Context, query string, topK int) ([]models.Document, error) {
	if r.conn == nil {
		return nil, fmt.Errorf("retrieval backend not connected")
	}

	reqID := ulid.Make().String()
	data, err := json.Marshal(searchRequest{ReqID: reqID, Query: query, TopK: topK})
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	msg, err := r.conn.RequestWithContext(ctx, r.subject, data)
	if err != nil {
		return nil, fmt.Errorf("search request failed: %w", err)
	}

	var resp searchResponse
	if err := json.Unmarshal(msg.Data, &resp); err != nil {
		return nil, fmt.Errorf("malformed search response: %w", err)
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("search backend error: %s", resp.Error)
	}

	slog.Debug("Vector search completed",
		"req_id", reqID,
		"query_len", len(query),
		"documents", len(resp.Documents))
	return resp.Documents, nil
}
