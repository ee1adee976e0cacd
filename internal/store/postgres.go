package store

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
)

//go:embed schema.sql
var schemaSQL string

type Postgres struct {
	db *sql.DB
}

func NewPostgres(dsn string) (*Postgres, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &Postgres{db: db}, nil
}

func (p *Postgres) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }

func (p *Postgres) Close() error { return p.db.Close() }

// Migrate creates the history table if missing.
func (p *Postgres) Migrate(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

func (p *Postgres) Add(ctx context.Context, rec RouteRecord) (RouteRecord, error) {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	body, err := json.Marshal(rec.Route)
	if err != nil {
		return RouteRecord{}, fmt.Errorf("encode route: %w", err)
	}
	m := rec.Route.Metrics
	_, err = p.db.ExecContext(ctx, `INSERT INTO route_history (id, vessel_mmsi, vessel_name, origin_port, destination_port, distance_nm, time_hours, cost_usd, route, created_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
        ON CONFLICT (id) DO UPDATE SET route = EXCLUDED.route`,
		rec.ID, rec.VesselMMSI, nullIfEmpty(rec.VesselName), rec.StartPortID, rec.EndPortID,
		m.DistanceNM, m.TimeHours, m.CostUSD, body, rec.CreatedAt)
	if err != nil {
		return RouteRecord{}, err
	}
	return rec, nil
}

func (p *Postgres) List(ctx context.Context, cursor string, limit int) ([]RouteRecord, string, error) {
	if limit <= 0 || limit > 500 {
		limit = defaultLimit
	}
	var rows *sql.Rows
	var err error
	// fetch one extra row to know whether another page exists
	if cursor != "" {
		rows, err = p.db.QueryContext(ctx, `SELECT h.id::text, h.vessel_mmsi, h.vessel_name, h.origin_port, h.destination_port, h.route, h.created_at
            FROM route_history h, route_history c
            WHERE c.id::text = $1 AND (h.created_at, h.id) < (c.created_at, c.id)
            ORDER BY h.created_at DESC, h.id DESC LIMIT $2`, cursor, limit+1)
	} else {
		rows, err = p.db.QueryContext(ctx, `SELECT id::text, vessel_mmsi, vessel_name, origin_port, destination_port, route, created_at
            FROM route_history ORDER BY created_at DESC, id DESC LIMIT $1`, limit+1)
	}
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()
	out := []RouteRecord{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, "", err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, "", err
	}
	var next string
	if len(out) > limit {
		out = out[:limit]
		next = out[limit-1].ID
	}
	return out, next, nil
}

func (p *Postgres) Get(ctx context.Context, id string) (RouteRecord, error) {
	row := p.db.QueryRowContext(ctx, `SELECT id::text, vessel_mmsi, vessel_name, origin_port, destination_port, route, created_at FROM route_history WHERE id::text=$1`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return RouteRecord{}, ErrNotFound
	}
	return rec, err
}

func (p *Postgres) Delete(ctx context.Context, id string) error {
	res, err := p.db.ExecContext(ctx, `DELETE FROM route_history WHERE id::text=$1`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (RouteRecord, error) {
	var rec RouteRecord
	var name sql.NullString
	var body []byte
	if err := s.Scan(&rec.ID, &rec.VesselMMSI, &name, &rec.StartPortID, &rec.EndPortID, &body, &rec.CreatedAt); err != nil {
		return RouteRecord{}, err
	}
	rec.VesselName = name.String
	if err := json.Unmarshal(body, &rec.Route); err != nil {
		return RouteRecord{}, fmt.Errorf("decode route %s: %w", rec.ID, err)
	}
	return rec, nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
