// Package repo provides Postgres bindings for guardian storage
package repo

import (
	"context"
	"time"

	perr "warden/internal/platform/errors"
	"warden/internal/platform/store"
	"warden/internal/services/guardian/domain"
)

// PG implements domain.Storage over postgres
type PG struct {
	db store.TxRunner
}

// Compile-time assertion
var _ domain.Storage = (*PG)(nil)

// NewPG returns a Postgres binder for guardian storage
func NewPG(db store.TxRunner) *PG { return &PG{db: db} }

// UpsertMute writes the mute row; a re-mute overwrites the expiry
func (r *PG) UpsertMute(ctx context.Context, rec domain.MuteRecord) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO mutes (guild_id, user_id, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (guild_id, user_id) DO UPDATE SET expires_at = EXCLUDED.expires_at
	`, rec.GuildID, rec.UserID, rec.ExpiresAt)
	if err != nil {
		return perr.FromPostgres(err, "upsert mute")
	}
	return nil
}

// DeleteMute removes the mute row; deleting an absent row is not an error
func (r *PG) DeleteMute(ctx context.Context, guildID, userID string) error {
	_, err := r.db.Exec(ctx,
		`DELETE FROM mutes WHERE guild_id = $1 AND user_id = $2`,
		guildID, userID,
	)
	if err != nil {
		return perr.FromPostgres(err, "delete mute")
	}
	return nil
}

// ListTimed returns every mute with a non-null expiry, oldest first
func (r *PG) ListTimed(ctx context.Context) ([]domain.MuteRecord, error) {
	recs, err := store.Many(ctx, r.db, scanMute, `
		SELECT guild_id, user_id, expires_at
		FROM mutes
		WHERE expires_at IS NOT NULL
		ORDER BY expires_at ASC
	`)
	if err != nil {
		return nil, perr.FromPostgres(err, "list timed mutes")
	}
	return recs, nil
}

func scanMute(row store.Row) (domain.MuteRecord, error) {
	var rec domain.MuteRecord
	var exp *time.Time
	if err := row.Scan(&rec.GuildID, &rec.UserID, &exp); err != nil {
		return rec, err
	}
	rec.ExpiresAt = exp
	return rec, nil
}

// PutSnapshot stores the pre-mute role grants; a re-mute overwrites
func (r *PG) PutSnapshot(ctx context.Context, snap domain.RoleSnapshot) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO role_snapshots (guild_id, user_id, role_ids, taken_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (guild_id, user_id) DO UPDATE
		SET role_ids = EXCLUDED.role_ids, taken_at = now()
	`, snap.GuildID, snap.UserID, snap.RoleIDs)
	if err != nil {
		return perr.FromPostgres(err, "put snapshot")
	}
	return nil
}

// TakeSnapshot reads and deletes the snapshot in one transaction so a
// snapshot restores at most once. Returns perr.ErrNotFound when absent.
func (r *PG) TakeSnapshot(ctx context.Context, guildID, userID string) (domain.RoleSnapshot, error) {
	var snap domain.RoleSnapshot
	err := r.db.Tx(ctx, func(q store.RowQuerier) error {
		got, err := store.One(ctx, q, scanSnapshot, `
			SELECT guild_id, user_id, role_ids
			FROM role_snapshots
			WHERE guild_id = $1 AND user_id = $2
			FOR UPDATE
		`, guildID, userID)
		if err != nil {
			return err
		}
		if _, err := q.Exec(ctx,
			`DELETE FROM role_snapshots WHERE guild_id = $1 AND user_id = $2`,
			guildID, userID,
		); err != nil {
			return err
		}
		snap = got
		return nil
	})
	if err != nil {
		if perr.IsCode(err, perr.ErrorCodeNotFound) {
			return snap, err
		}
		return snap, perr.FromPostgres(err, "take snapshot")
	}
	return snap, nil
}

func scanSnapshot(row store.Row) (domain.RoleSnapshot, error) {
	var snap domain.RoleSnapshot
	if err := row.Scan(&snap.GuildID, &snap.UserID, &snap.RoleIDs); err != nil {
		return snap, err
	}
	return snap, nil
}
