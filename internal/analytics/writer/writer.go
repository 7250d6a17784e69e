package writer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	cbigquery "cloud.google.com/go/bigquery"
	"go.uber.org/multierr"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/farmfresh/marketplace-backend/internal/analytics/types"
	pkgbigquery "github.com/farmfresh/marketplace-backend/pkg/bigquery"
)

const (
	defaultBatchSize      = 1
	defaultMaxAttempts    = 3
	defaultInitialBackoff = 250 * time.Millisecond
	defaultMaximumBackoff = 2 * time.Second
)

// Config controls the sales fact writer.
type Config struct {
	SalesFactsTable string
	BatchSize       int
	RetryPolicy     RetryPolicy
}

type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaximumBackoff time.Duration
}

type tableInserter interface {
	InsertRows(ctx context.Context, table string, rows []cbigquery.ValueSaver) error
}

// BigQueryWriter buffers sales fact rows and streams them into BigQuery.
// Rows carry their event id as insert id so BigQuery drops replays, and after
// a partial failure only the rejected rows are retried. Safe for concurrent
// use by Pub/Sub callbacks.
type BigQueryWriter struct {
	client tableInserter
	table  string
	batch  int
	retry  RetryPolicy

	mu      sync.Mutex
	pending []types.SalesFactRow
}

// New creates a BigQueryWriter backed by a shared client.
func New(client *pkgbigquery.Client, cfg Config) (*BigQueryWriter, error) {
	if client == nil {
		return nil, errors.New("bigquery client required")
	}
	return newWriter(client, cfg)
}

func newWriter(client tableInserter, cfg Config) (*BigQueryWriter, error) {
	table := strings.TrimSpace(cfg.SalesFactsTable)
	if table == "" {
		return nil, errors.New("sales facts table is required")
	}
	w := &BigQueryWriter{client: client, table: table, batch: cfg.BatchSize, retry: cfg.RetryPolicy}
	if w.batch <= 0 {
		w.batch = defaultBatchSize
	}
	if w.retry.MaxAttempts <= 0 {
		w.retry.MaxAttempts = defaultMaxAttempts
	}
	if w.retry.InitialBackoff <= 0 {
		w.retry.InitialBackoff = defaultInitialBackoff
	}
	if w.retry.MaximumBackoff < w.retry.InitialBackoff {
		w.retry.MaximumBackoff = max(defaultMaximumBackoff, w.retry.InitialBackoff)
	}
	return w, nil
}

// InsertSalesFact queues row and writes the batch once it is full.
func (w *BigQueryWriter) InsertSalesFact(ctx context.Context, row types.SalesFactRow) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.pending = append(w.pending, row)
	if len(w.pending) < w.batch {
		return nil
	}
	return w.flushLocked(ctx)
}

// Flush writes whatever is queued.
func (w *BigQueryWriter) Flush(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.flushLocked(ctx)
}

// Pending reports how many rows are waiting for the next flush.
func (w *BigQueryWriter) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.pending)
}

// flushLocked leaves rows that could not be written queued for the next flush.
func (w *BigQueryWriter) flushLocked(ctx context.Context) error {
	if len(w.pending) == 0 {
		return nil
	}
	left, err := w.write(ctx, w.pending)
	w.pending = append(w.pending[:0], left...)
	return err
}

// write returns the rows still unwritten alongside the final error.
func (w *BigQueryWriter) write(ctx context.Context, rows []types.SalesFactRow) ([]types.SalesFactRow, error) {
	backoff := w.retry.InitialBackoff
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return rows, err
		}

		err := w.client.InsertRows(ctx, w.table, savers(rows))
		if err == nil {
			return nil, nil
		}

		var partial cbigquery.PutMultiError
		if errors.As(err, &partial) {
			rows = failedRows(rows, partial)
			err = rowErrors(partial)
		}
		if attempt >= w.retry.MaxAttempts || !retryable(err) {
			return rows, fmt.Errorf("insert %d rows into %s: %w", len(rows), w.table, err)
		}

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return rows, ctx.Err()
		case <-timer.C:
		}
		backoff = min(backoff*2, w.retry.MaximumBackoff)
	}
}

func savers(rows []types.SalesFactRow) []cbigquery.ValueSaver {
	out := make([]cbigquery.ValueSaver, len(rows))
	for i := range rows {
		out[i] = &cbigquery.StructSaver{Struct: &rows[i], InsertID: rows[i].EventID}
	}
	return out
}

func failedRows(rows []types.SalesFactRow, partial cbigquery.PutMultiError) []types.SalesFactRow {
	out := make([]types.SalesFactRow, 0, len(partial))
	for _, rowErr := range partial {
		if rowErr.RowIndex >= 0 && rowErr.RowIndex < len(rows) {
			out = append(out, rows[rowErr.RowIndex])
		}
	}
	return out
}

// rowErrors flattens per-row failures so every reason is visible in logs.
func rowErrors(partial cbigquery.PutMultiError) error {
	var combined error
	for _, rowErr := range partial {
		for _, inner := range rowErr.Errors {
			combined = multierr.Append(combined, fmt.Errorf("row %s: %w", rowErr.InsertID, inner))
		}
	}
	return combined
}

// Row-level reasons reported by insertAll that succeed when resent. "stopped"
// marks valid rows rejected only because a sibling row failed.
var retryableReasons = map[string]bool{
	"backendError":      true,
	"internalError":     true,
	"rateLimitExceeded": true,
	"timeout":           true,
	"stopped":           true,
}

var retryableHTTP = map[int]bool{
	http.StatusRequestTimeout:      true,
	http.StatusTooManyRequests:     true,
	http.StatusInternalServerError: true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
	http.StatusGatewayTimeout:      true,
}

var retryableGRPC = map[codes.Code]bool{
	codes.Aborted:           true,
	codes.DeadlineExceeded:  true,
	codes.Internal:          true,
	codes.ResourceExhausted: true,
	codes.Unavailable:       true,
}

// retryable reports whether every error inside err is transient.
func retryable(err error) bool {
	if err == nil {
		return false
	}
	if errs := multierr.Errors(err); len(errs) > 1 {
		for _, e := range errs {
			if !retryable(e) {
				return false
			}
		}
		return true
	}

	var bqErr *cbigquery.Error
	if errors.As(err, &bqErr) {
		return retryableReasons[bqErr.Reason]
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return retryableHTTP[apiErr.Code]
	}
	if st, ok := status.FromError(err); ok && st.Code() != codes.Unknown {
		return retryableGRPC[st.Code()]
	}
	return false
}

// EncodeJSON renders payload for a BigQuery JSON column. Empty input maps to
// NULL.
func EncodeJSON(payload any) (cbigquery.NullJSON, error) {
	var raw []byte
	switch v := payload.(type) {
	case nil:
		return cbigquery.NullJSON{}, nil
	case cbigquery.NullJSON:
		return v, nil
	case json.RawMessage:
		raw = v
	case []byte:
		raw = v
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return cbigquery.NullJSON{}, fmt.Errorf("marshal json: %w", err)
		}
		raw = encoded
	}
	if len(raw) == 0 {
		return cbigquery.NullJSON{}, nil
	}
	return cbigquery.NullJSON{Valid: true, JSONVal: string(raw)}, nil
}
