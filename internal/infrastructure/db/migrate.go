package db

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Migrate creates the minimal tables needed by this app.
// This keeps setup simple (no external migration tool), but still gives persistence.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`create table if not exists mirror_pairs (
			original_ticket bigint primary key,
			reverse_ticket bigint not null,
			symbol text not null,
			original_type int not null,
			reverse_volume double precision not null,
			opened_at timestamptz not null,
			status text not null,
			closed_at timestamptz null,
			close_reason text not null default '',
			profit_loss double precision null
		);`,
		`create index if not exists mirror_pairs_status_idx on mirror_pairs(status);`,
		`create index if not exists mirror_pairs_closed_at_idx on mirror_pairs(closed_at);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
