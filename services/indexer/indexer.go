// Package indexer persists committed hub events to SQL so they can be queried
// and exported after the in-memory stream has moved on.
package indexer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"whalehub/core/events"
	"whalehub/core/types"
	"whalehub/observability/metrics"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"

	defaultLimit = 100
	maxLimit     = 1000
)

// ErrUnknownDriver is returned by Open for unsupported drivers.
var ErrUnknownDriver = errors.New("indexer: unknown driver")

// Record is the query form of an indexed event.
type Record struct {
	Seq        uint64            `json:"seq"`
	ID         uuid.UUID         `json:"id"`
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
	IndexedAt  time.Time         `json:"indexed_at"`
}

// Filter narrows an event query. Key and Value match one attribute.
type Filter struct {
	Type     string
	Key      string
	Value    string
	AfterSeq uint64
	Limit    int
}

// Indexer writes events to the database as they are emitted.
type Indexer struct {
	db      *gorm.DB
	logger  *slog.Logger
	metrics *metrics.HubMetrics
	now     func() time.Time
}

// Open connects to driver using dsn and migrates the schema.
func Open(driver, dsn string, logger *slog.Logger) (*Indexer, error) {
	var dialector gorm.Dialector
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case DriverSQLite:
		dialector = sqlite.Open(dsn)
	case DriverPostgres:
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, driver)
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("indexer: open %s: %w", driver, err)
	}
	return New(db, logger)
}

// New wraps an open database.
func New(db *gorm.DB, logger *slog.Logger) (*Indexer, error) {
	if db == nil {
		return nil, errors.New("indexer: database required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("indexer: migrate: %w", err)
	}
	return &Indexer{db: db, logger: logger, metrics: metrics.Hub(), now: time.Now}, nil
}

// Emit implements events.Emitter. Write failures are logged and dropped so a
// database outage never blocks the hub.
func (ix *Indexer) Emit(e events.Event) {
	if ix == nil || e == nil {
		return
	}
	if err := ix.store(context.Background(), events.Render(e)); err != nil {
		ix.logger.Error("index event failed", "event", e.EventType(), "error", err)
		return
	}
	ix.metrics.ObserveIndexed(1)
}

func (ix *Indexer) store(ctx context.Context, ev *types.Event) error {
	payload, err := json.Marshal(ev.Attributes)
	if err != nil {
		return err
	}
	return ix.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rec := EventRecord{
			ID:        uuid.New(),
			Type:      ev.Type,
			Payload:   string(payload),
			IndexedAt: ix.now().UTC(),
		}
		if err := tx.Create(&rec).Error; err != nil {
			return err
		}
		if len(ev.Attributes) == 0 {
			return nil
		}
		attrs := make([]EventAttribute, 0, len(ev.Attributes))
		for k, v := range ev.Attributes {
			attrs = append(attrs, EventAttribute{EventSeq: rec.Seq, Key: k, Value: v})
		}
		return tx.Create(&attrs).Error
	})
}

func (ix *Indexer) scope(ctx context.Context, f Filter) *gorm.DB {
	q := ix.db.WithContext(ctx).Model(&EventRecord{}).Where("seq > ?", f.AfterSeq)
	if f.Type != "" {
		q = q.Where("type = ?", f.Type)
	}
	if f.Key != "" {
		sub := ix.db.Model(&EventAttribute{}).Select("event_seq").Where("attr_key = ?", f.Key)
		if f.Value != "" {
			sub = sub.Where("attr_value = ?", f.Value)
		}
		q = q.Where("seq IN (?)", sub)
	}
	return q.Order("seq asc")
}

// Events returns indexed events matching f in commit order.
func (ix *Indexer) Events(ctx context.Context, f Filter) ([]Record, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	var rows []EventRecord
	if err := ix.scope(ctx, f).Limit(limit).Find(&rows).Error; err != nil {
		return nil, err
	}
	return toRecords(rows)
}

// Count returns the number of indexed events matching f, ignoring its limit.
func (ix *Indexer) Count(ctx context.Context, f Filter) (int64, error) {
	var n int64
	err := ix.scope(ctx, f).Count(&n).Error
	return n, err
}

// Close releases the underlying connection pool.
func (ix *Indexer) Close() error {
	sqlDB, err := ix.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func toRecords(rows []EventRecord) ([]Record, error) {
	out := make([]Record, 0, len(rows))
	for _, row := range rows {
		attrs := map[string]string{}
		if row.Payload != "" {
			if err := json.Unmarshal([]byte(row.Payload), &attrs); err != nil {
				return nil, fmt.Errorf("indexer: decode event %d: %w", row.Seq, err)
			}
		}
		out = append(out, Record{
			Seq:        row.Seq,
			ID:         row.ID,
			Type:       row.Type,
			Attributes: attrs,
			IndexedAt:  row.IndexedAt,
		})
	}
	return out, nil
}
