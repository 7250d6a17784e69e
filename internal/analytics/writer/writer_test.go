package writer

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	cbigquery "cloud.google.com/go/bigquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/farmfresh/marketplace-backend/internal/analytics/types"
)

func TestNewWriterValidation(t *testing.T) {
	_, err := New(nil, Config{SalesFactsTable: "sales_facts"})
	assert.Error(t, err)

	_, err = newWriter(&fakeInserter{}, Config{SalesFactsTable: " "})
	assert.Error(t, err)

	w, err := newWriter(&fakeInserter{}, Config{SalesFactsTable: "sales_facts"})
	require.NoError(t, err)
	assert.Equal(t, defaultBatchSize, w.batch)
	assert.Equal(t, defaultMaxAttempts, w.retry.MaxAttempts)
	assert.Equal(t, defaultMaximumBackoff, w.retry.MaximumBackoff)
}

func TestEncodeJSON(t *testing.T) {
	nj, err := EncodeJSON(map[string]any{"orderId": "o-1"})
	require.NoError(t, err)
	assert.True(t, nj.Valid)
	assert.JSONEq(t, `{"orderId":"o-1"}`, nj.JSONVal)

	nj, err = EncodeJSON(nil)
	require.NoError(t, err)
	assert.False(t, nj.Valid)

	nj, err = EncodeJSON(json.RawMessage(nil))
	require.NoError(t, err)
	assert.False(t, nj.Valid)

	raw := json.RawMessage(`{"status":"shipped"}`)
	nj, err = EncodeJSON(raw)
	require.NoError(t, err)
	assert.Equal(t, string(raw), nj.JSONVal)

	_, err = EncodeJSON(make(chan int))
	assert.Error(t, err)
}

func TestWriterRetriesTransientErrors(t *testing.T) {
	w, fake := newTestWriter(t, 1)
	fake.responses = []error{
		&googleapi.Error{Code: http.StatusServiceUnavailable},
		status.Error(codes.Unavailable, "backend busy"),
		nil,
	}

	require.NoError(t, w.InsertSalesFact(context.Background(), types.SalesFactRow{EventID: "evt-1"}))
	require.Len(t, fake.calls, 3)
	assert.Equal(t, "sales_facts", fake.calls[2].table)
	assert.Equal(t, []string{"evt-1"}, fake.calls[2].insertIDs)
	assert.Zero(t, w.Pending())
}

func TestWriterKeepsRowsOnPermanentError(t *testing.T) {
	w, fake := newTestWriter(t, 1)
	fake.responses = []error{&googleapi.Error{Code: http.StatusBadRequest}}

	err := w.InsertSalesFact(context.Background(), types.SalesFactRow{EventID: "evt-1"})
	require.Error(t, err)
	assert.Len(t, fake.calls, 1)
	assert.Equal(t, 1, w.Pending())
}

func TestWriterGivesUpAfterMaxAttempts(t *testing.T) {
	w, fake := newTestWriter(t, 1)
	busy := &googleapi.Error{Code: http.StatusTooManyRequests}
	fake.responses = []error{busy, busy, busy, busy}

	err := w.InsertSalesFact(context.Background(), types.SalesFactRow{EventID: "evt-1"})
	require.Error(t, err)
	assert.Len(t, fake.calls, defaultMaxAttempts)
}

func TestWriterRetriesOnlyRejectedRows(t *testing.T) {
	w, fake := newTestWriter(t, 3)
	fake.responses = []error{
		cbigquery.PutMultiError{
			{InsertID: "evt-2", RowIndex: 1, Errors: cbigquery.MultiError{&cbigquery.Error{Reason: "backendError"}}},
			{InsertID: "evt-3", RowIndex: 2, Errors: cbigquery.MultiError{&cbigquery.Error{Reason: "stopped"}}},
		},
		nil,
	}
	ctx := context.Background()
	for _, id := range []string{"evt-1", "evt-2", "evt-3"} {
		require.NoError(t, w.InsertSalesFact(ctx, types.SalesFactRow{EventID: id}))
	}

	require.Len(t, fake.calls, 2)
	assert.Equal(t, []string{"evt-1", "evt-2", "evt-3"}, fake.calls[0].insertIDs)
	assert.Equal(t, []string{"evt-2", "evt-3"}, fake.calls[1].insertIDs)
	assert.Zero(t, w.Pending())
}

func TestWriterStopsOnInvalidRow(t *testing.T) {
	w, fake := newTestWriter(t, 2)
	fake.responses = []error{
		cbigquery.PutMultiError{
			{InsertID: "evt-b", RowIndex: 1, Errors: cbigquery.MultiError{&cbigquery.Error{Reason: "invalid", Message: "no such field: colour"}}},
		},
	}
	ctx := context.Background()
	require.NoError(t, w.InsertSalesFact(ctx, types.SalesFactRow{EventID: "evt-a"}))
	err := w.InsertSalesFact(ctx, types.SalesFactRow{EventID: "evt-b"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "evt-b")
	assert.Len(t, fake.calls, 1)
	assert.Equal(t, 1, w.Pending(), "only the rejected row stays queued")
}

func TestWriterBatchingAndFlush(t *testing.T) {
	w, fake := newTestWriter(t, 2)
	ctx := context.Background()

	require.NoError(t, w.InsertSalesFact(ctx, types.SalesFactRow{EventID: "1"}))
	assert.Empty(t, fake.calls)
	require.NoError(t, w.InsertSalesFact(ctx, types.SalesFactRow{EventID: "2"}))
	require.Len(t, fake.calls, 1)

	require.NoError(t, w.InsertSalesFact(ctx, types.SalesFactRow{EventID: "3"}))
	require.NoError(t, w.Flush(ctx))
	require.Len(t, fake.calls, 2)
	assert.Equal(t, []string{"3"}, fake.calls[1].insertIDs)

	require.NoError(t, w.Flush(ctx))
	assert.Len(t, fake.calls, 2)
}

func TestRetryable(t *testing.T) {
	assert.False(t, retryable(nil))
	assert.False(t, retryable(errors.New("plain")))
	assert.True(t, retryable(&googleapi.Error{Code: http.StatusBadGateway}))
	assert.False(t, retryable(status.Error(codes.InvalidArgument, "bad row")))
	assert.True(t, retryable(&cbigquery.Error{Reason: "rateLimitExceeded"}))
	assert.False(t, retryable(multierr.Combine(
		&cbigquery.Error{Reason: "backendError"},
		&cbigquery.Error{Reason: "invalid"},
	)))
}

type insertCall struct {
	table     string
	insertIDs []string
}

type fakeInserter struct {
	responses []error
	calls     []insertCall
}

func (f *fakeInserter) InsertRows(_ context.Context, table string, rows []cbigquery.ValueSaver) error {
	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.(*cbigquery.StructSaver).InsertID)
	}
	f.calls = append(f.calls, insertCall{table: table, insertIDs: ids})
	if idx := len(f.calls) - 1; idx < len(f.responses) {
		return f.responses[idx]
	}
	return nil
}

func newTestWriter(t *testing.T, batchSize int) (*BigQueryWriter, *fakeInserter) {
	t.Helper()
	fake := &fakeInserter{}
	w, err := newWriter(fake, Config{
		SalesFactsTable: "sales_facts",
		BatchSize:       batchSize,
		RetryPolicy:     RetryPolicy{InitialBackoff: time.Millisecond, MaximumBackoff: 2 * time.Millisecond},
	})
	require.NoError(t, err)
	return w, fake
}
