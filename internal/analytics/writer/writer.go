// Package writer batches commerce rows into the BigQuery streaming API.
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
	"github.com/sethvargo/go-retry"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	defaultBatchSize   = 1
	defaultMaxAttempts = 3
	defaultBaseBackoff = 250 * time.Millisecond
	defaultMaxBackoff  = 2 * time.Second
)

type Config struct {
	CommerceTable string
	BatchSize     int
	MaxAttempts   int
	BaseBackoff   time.Duration
	MaxBackoff    time.Duration
}

// CommerceEventRow is one domain event in the commerce events table.
type CommerceEventRow struct {
	EventID       string             `bigquery:"event_id"`
	EventType     string             `bigquery:"event_type"`
	AggregateType string             `bigquery:"aggregate_type"`
	AggregateID   string             `bigquery:"aggregate_id"`
	OccurredAt    time.Time          `bigquery:"occurred_at"`
	OrderID       *string            `bigquery:"order_id"`
	StoreID       *string            `bigquery:"store_id"`
	PaymentID     *string            `bigquery:"payment_id"`
	PackageID     *string            `bigquery:"package_id"`
	Status        *string            `bigquery:"status"`
	Gateway       *string            `bigquery:"payment_gateway"`
	Amount        *float64           `bigquery:"amount"`
	Payload       cbigquery.NullJSON `bigquery:"payload"`
}

var rowSchema = sync.OnceValues(func() (cbigquery.Schema, error) {
	return cbigquery.InferSchema(CommerceEventRow{})
})

// Inserter is the streaming insert surface of pkg/bigquery.Client.
type Inserter interface {
	InsertRows(ctx context.Context, table string, rows []any) error
}

// BigQueryWriter buffers rows until BatchSize and inserts them with the event
// id as insert id, so a redelivered event is deduplicated by BigQuery.
type BigQueryWriter struct {
	client  Inserter
	table   string
	batch   int
	backoff func() retry.Backoff

	mu     sync.Mutex
	buffer []CommerceEventRow
}

func New(client Inserter, cfg Config) (*BigQueryWriter, error) {
	if client == nil {
		return nil, errors.New("bigquery client required")
	}
	table := strings.TrimSpace(cfg.CommerceTable)
	if table == "" {
		return nil, errors.New("commerce table is required")
	}
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	attempts := cfg.MaxAttempts
	if attempts <= 0 {
		attempts = defaultMaxAttempts
	}
	base, ceiling := cfg.BaseBackoff, cfg.MaxBackoff
	if base <= 0 {
		base = defaultBaseBackoff
	}
	if ceiling < base {
		ceiling = max(base, defaultMaxBackoff)
	}
	return &BigQueryWriter{
		client: client,
		table:  table,
		batch:  batch,
		backoff: func() retry.Backoff {
			b := retry.NewExponential(base)
			b = retry.WithCappedDuration(ceiling, b)
			return retry.WithMaxRetries(uint64(attempts-1), b)
		},
	}, nil
}

// InsertCommerce buffers row and flushes once the batch is full.
func (w *BigQueryWriter) InsertCommerce(ctx context.Context, row CommerceEventRow) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.buffer = append(w.buffer, row)
	if len(w.buffer) < w.batch {
		return nil
	}
	return w.flushLocked(ctx)
}

func (w *BigQueryWriter) Flush(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.flushLocked(ctx)
}

// flushLocked keeps the buffer when the insert fails so the next flush retries it.
func (w *BigQueryWriter) flushLocked(ctx context.Context) error {
	if len(w.buffer) == 0 {
		return nil
	}
	schema, err := rowSchema()
	if err != nil {
		return fmt.Errorf("infer commerce schema: %w", err)
	}
	rows := make([]any, len(w.buffer))
	for i := range w.buffer {
		rows[i] = &cbigquery.StructSaver{Schema: schema, InsertID: w.buffer[i].EventID, Struct: &w.buffer[i]}
	}

	err = retry.Do(ctx, w.backoff(), func(ctx context.Context) error {
		if err := w.client.InsertRows(ctx, w.table, rows); err != nil {
			if transient(err) {
				return retry.RetryableError(err)
			}
			return err
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("insert %d commerce rows: %w", len(rows), err)
	}
	w.buffer = w.buffer[:0]
	return nil
}

// Row-level reasons BigQuery documents as safe to resend. "stopped" marks rows
// rejected only because a sibling row failed.
var transientReasons = map[string]bool{
	"backendError":      true,
	"internalError":     true,
	"rateLimitExceeded": true,
	"stopped":           true,
	"timeout":           true,
}

// transient reports whether every failure inside err is worth retrying.
func transient(err error) bool {
	var rowsErr cbigquery.PutMultiError
	if errors.As(err, &rowsErr) {
		if len(rowsErr) == 0 {
			return false
		}
		for _, row := range rowsErr {
			for _, inner := range row.Errors {
				if !transient(inner) {
					return false
				}
			}
		}
		return true
	}
	var bqErr *cbigquery.Error
	if errors.As(err, &bqErr) {
		return transientReasons[bqErr.Reason]
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusTooManyRequests, http.StatusRequestTimeout,
			http.StatusInternalServerError, http.StatusBadGateway,
			http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return true
		}
		return false
	}
	if st, ok := status.FromError(err); ok {
		switch st.Code() {
		case codes.Aborted, codes.DeadlineExceeded, codes.Internal, codes.ResourceExhausted, codes.Unavailable:
			return true
		}
	}
	return false
}

// JSONColumn wraps an event payload for a BigQuery JSON column. Empty payloads
// are stored as NULL.
func JSONColumn(raw json.RawMessage) cbigquery.NullJSON {
	if len(raw) == 0 || string(raw) == "null" {
		return cbigquery.NullJSON{}
	}
	return cbigquery.NullJSON{Valid: true, JSONVal: string(raw)}
}
