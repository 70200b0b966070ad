package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"PulsePrice/internal/domain/models"
	domrepo "PulsePrice/internal/domain/repository"
	pkgch "PulsePrice/pkg/clickhouse"
	applogger "PulsePrice/pkg/logger"
)

// sqlDB is the subset of *sql.DB the price store needs.
type sqlDB interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
}

// ClickHousePriceStore archives every written price point. It is a batch
// sink and serves archive range queries.
type ClickHousePriceStore struct {
	db    sqlDB
	table string
	l     *applogger.Logger
}

func NewClickHousePriceStore(ch *pkgch.Client, table string, l *applogger.Logger) *ClickHousePriceStore {
	return newClickHousePriceStore(ch.DB(), table, l)
}

func newClickHousePriceStore(db sqlDB, table string, l *applogger.Logger) *ClickHousePriceStore {
	if table == "" {
		table = "price_points"
	}
	if l == nil {
		l = applogger.NewNop()
	}
	return &ClickHousePriceStore{db: db, table: table, l: l}
}

// Schema returns the DDL for the archive table.
func (s *ClickHousePriceStore) Schema() []string {
	return []string{fmt.Sprintf(`
        CREATE TABLE IF NOT EXISTS %s (
            ts         DateTime64(3, 'UTC'),
            token_id   LowCardinality(String),
            price      Int64,
            open       Int64,
            high       Int64,
            low        Int64,
            close      Int64,
            day_start  DateTime64(3, 'UTC'),
            changed    UInt8
        ) ENGINE = MergeTree
        PARTITION BY toYYYYMM(ts)
        ORDER BY (token_id, ts)
    `, s.table)}
}

func (s *ClickHousePriceStore) Name() string { return "clickhouse" }

// Write inserts the written items of a batch using multi-row VALUES.
func (s *ClickHousePriceStore) Write(ctx context.Context, b models.Batch) error {
	const chunkSize = 2000
	items := make([]models.BatchItem, 0, len(b.Items))
	for _, it := range b.Items {
		if _, ok := b.States[it.TokenID]; ok {
			items = append(items, it)
		}
	}

	for start := 0; start < len(items); start += chunkSize {
		end := min(start+chunkSize, len(items))

		values := make([]string, 0, end-start)
		args := make([]interface{}, 0, (end-start)*9)
		for _, it := range items[start:end] {
			changed := uint8(0)
			if it.Changed {
				changed = 1
			}
			values = append(values, "(?, ?, ?, ?, ?, ?, ?, ?, ?)")
			args = append(args,
				time.UnixMilli(it.Timestamp).UTC(),
				it.TokenID,
				it.Price,
				it.Ohlc.Open,
				it.Ohlc.High,
				it.Ohlc.Low,
				it.Ohlc.Close,
				time.UnixMilli(it.Ohlc.DayStartTimestamp).UTC(),
				changed,
			)
		}
		q := fmt.Sprintf("INSERT INTO %s (ts, token_id, price, open, high, low, close, day_start, changed) VALUES %s", s.table, strings.Join(values, ","))
		if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
			s.l.Error("clickhouse insert error",
				applogger.String("table", s.table),
				applogger.Int("rows", len(values)),
				applogger.Error(err),
			)
			return fmt.Errorf("insert price points: %w", err)
		}
	}
	return nil
}

// Range returns archived points of a token in [from, to], oldest first.
func (s *ClickHousePriceStore) Range(ctx context.Context, tokenID string, from, to time.Time, limit int) ([]models.PricePoint, error) {
	q := fmt.Sprintf("SELECT ts, price FROM %s WHERE token_id = ? AND ts >= ? AND ts <= ? ORDER BY ts ASC LIMIT ?", s.table)
	rows, err := s.db.QueryContext(ctx, q, tokenID, from.UTC(), to.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("query price points: %w", err)
	}
	defer rows.Close()

	out := make([]models.PricePoint, 0, 256)
	for rows.Next() {
		var (
			ts    time.Time
			price int64
		)
		if err := rows.Scan(&ts, &price); err != nil {
			return nil, fmt.Errorf("scan price point: %w", err)
		}
		out = append(out, models.PricePoint{Timestamp: ts.UnixMilli(), Price: price})
	}
	return out, rows.Err()
}

var (
	_ domrepo.BatchSink    = (*ClickHousePriceStore)(nil)
	_ domrepo.PriceArchive = (*ClickHousePriceStore)(nil)
)
