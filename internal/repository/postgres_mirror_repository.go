package repository

import (
	"context"
	"errors"
	"time"

	"mirror-backend/internal/domain"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresMirrorHistorian records mirror pairs in Postgres so the audit trail
// survives restarts. One row per pair: inserted on open, updated on close.
type PostgresMirrorHistorian struct {
	pool *pgxpool.Pool
}

func NewPostgresMirrorHistorian(pool *pgxpool.Pool) *PostgresMirrorHistorian {
	return &PostgresMirrorHistorian{pool: pool}
}

func (r *PostgresMirrorHistorian) RecordOpen(pair *domain.MirrorPair) error {
	if pair == nil {
		return errors.New("nil pair")
	}

	_, err := r.pool.Exec(context.Background(), `
		insert into mirror_pairs(
			original_ticket, reverse_ticket, symbol, original_type,
			reverse_volume, opened_at, status, closed_at, close_reason, profit_loss
		) values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		on conflict (original_ticket) do update set
			reverse_ticket = excluded.reverse_ticket,
			status = excluded.status
	`,
		pair.OriginalTicket,
		pair.ReverseTicket,
		pair.Symbol,
		pair.OriginalType,
		pair.ReverseVolume,
		pair.OpenedAt,
		pair.Status,
		nullableTime(pair.ClosedAt),
		pair.CloseReason,
		nullableFloat(pair.ProfitLoss),
	)
	return err
}

func (r *PostgresMirrorHistorian) RecordClose(pair *domain.MirrorPair) error {
	if pair == nil {
		return errors.New("nil pair")
	}

	_, err := r.pool.Exec(context.Background(), `
		update mirror_pairs set
			status = $2,
			closed_at = $3,
			close_reason = $4,
			profit_loss = $5
		where original_ticket = $1
	`,
		pair.OriginalTicket,
		pair.Status,
		nullableTime(pair.ClosedAt),
		pair.CloseReason,
		nullableFloat(pair.ProfitLoss),
	)
	return err
}

func (r *PostgresMirrorHistorian) History(fromTime time.Time) ([]*domain.MirrorPair, error) {
	rows, err := r.pool.Query(context.Background(), `
		select original_ticket, reverse_ticket, symbol, original_type,
			reverse_volume, opened_at, status, closed_at, close_reason, profit_loss
		from mirror_pairs
		where status = 'CLOSED' and closed_at is not null and closed_at >= $1
		order by closed_at desc
	`, fromTime)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	pairs := make([]*domain.MirrorPair, 0)
	for rows.Next() {
		pair, scanErr := scanMirrorPair(rows)
		if scanErr != nil {
			continue
		}
		pairs = append(pairs, pair)
	}
	return pairs, rows.Err()
}

// Helpers

type scanner interface {
	Scan(dest ...any) error
}

func scanMirrorPair(s scanner) (*domain.MirrorPair, error) {
	var p domain.MirrorPair
	var closedAt pgtype.Timestamptz
	var profitLoss pgtype.Float8

	if err := s.Scan(
		&p.OriginalTicket,
		&p.ReverseTicket,
		&p.Symbol,
		&p.OriginalType,
		&p.ReverseVolume,
		&p.OpenedAt,
		&p.Status,
		&closedAt,
		&p.CloseReason,
		&profitLoss,
	); err != nil {
		return nil, err
	}

	if closedAt.Valid {
		v := closedAt.Time
		p.ClosedAt = &v
	}
	if profitLoss.Valid {
		v := profitLoss.Float64
		p.ProfitLoss = &v
	}

	return &p, nil
}

func nullableFloat(v *float64) any {
	if v == nil {
		return pgtype.Float8{Valid: false}
	}
	return pgtype.Float8{Valid: true, Float64: *v}
}

func nullableTime(v *time.Time) any {
	if v == nil {
		return pgtype.Timestamptz{Valid: false}
	}
	return pgtype.Timestamptz{Valid: true, Time: *v}
}

// compile-time check
var _ domain.MirrorHistorian = (*PostgresMirrorHistorian)(nil)
