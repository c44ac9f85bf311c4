package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/RysZx1/Dashbort-monitoring-iot/internal/telemetry"
)

// DB je podmnožina *pgxpool.Pool, kterou úložiště potřebuje.
// Díky rozhraní jde v testech podstrčit pgxmock.
type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore ukládá záznamy do tabulky telemetry (Postgres/TimescaleDB).
// Tabulka je append-only, sequence_id je BIGSERIAL.
type PostgresStore struct {
	db DB
}

// NewPostgresStore obalí existující pool. Pool vlastní volající (main) a zavírá ho sám.
func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Connect otevře pool a ověří spojení. Při startu je nedostupná DB fatální chyba.
func Connect(ctx context.Context, url string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("chyba konfigurace DB: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("DB není dostupná: %w", err)
	}
	return pool, nil
}

const (
	insertSQL = `
		INSERT INTO telemetry (device_id, metric, value, unit, raw_payload, received_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING sequence_id`

	selectColumns = `SELECT sequence_id, device_id, metric, value, unit, raw_payload, received_at FROM telemetry`

	recentSQL = selectColumns + `
		ORDER BY sequence_id DESC
		LIMIT $1`

	recentForDeviceSQL = selectColumns + `
		WHERE device_id = $1
		ORDER BY sequence_id DESC
		LIMIT $2`

	// DISTINCT ON vezme pro každé zařízení první řádek podle ORDER BY, tj. max(sequence_id).
	// Index (device_id, sequence_id DESC) z migrace to drží rychlé.
	latestPerDeviceSQL = `
		SELECT DISTINCT ON (device_id)
			sequence_id, device_id, metric, value, unit, raw_payload, received_at
		FROM telemetry
		ORDER BY device_id, sequence_id DESC`
)

func (s *PostgresStore) Append(ctx context.Context, rec telemetry.Record) (int64, error) {
	var seq int64
	err := s.db.QueryRow(ctx, insertSQL,
		rec.DeviceID, rec.Metric, rec.Value, rec.Unit, []byte(rec.RawPayload), rec.ReceivedAt,
	).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("chyba insertu do PG: %w", err)
	}
	return seq, nil
}

func (s *PostgresStore) Recent(ctx context.Context, limit int) ([]telemetry.Record, error) {
	if limit <= 0 {
		return []telemetry.Record{}, nil
	}
	return s.query(ctx, recentSQL, limit)
}

func (s *PostgresStore) RecentForDevice(ctx context.Context, deviceID string, limit int) ([]telemetry.Record, error) {
	if limit <= 0 {
		return []telemetry.Record{}, nil
	}
	return s.query(ctx, recentForDeviceSQL, deviceID, limit)
}

func (s *PostgresStore) LatestPerDevice(ctx context.Context) ([]telemetry.Record, error) {
	return s.query(ctx, latestPerDeviceSQL)
}

func (s *PostgresStore) query(ctx context.Context, sql string, args ...any) ([]telemetry.Record, error) {
	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("selhal SQL dotaz na telemetrii: %w", err)
	}
	defer rows.Close() // Uvolnění spojení zpět do poolu

	out := make([]telemetry.Record, 0, 32)
	for rows.Next() {
		var (
			rec telemetry.Record
			raw []byte
		)
		if err := rows.Scan(&rec.SequenceID, &rec.DeviceID, &rec.Metric, &rec.Value, &rec.Unit, &raw, &rec.ReceivedAt); err != nil {
			return nil, fmt.Errorf("chyba čtení řádku: %w", err)
		}
		rec.RawPayload = raw
		rec.ReceivedAt = rec.ReceivedAt.UTC()
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("chyba iterace výsledků: %w", err)
	}
	return out, nil
}
