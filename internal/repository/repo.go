package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

func NewRepo(db *sql.DB) *Repo { return &Repo{db: db} }

func (r *Repo) UpsertSettings(ctx context.Context, guild string) (*Settings, error) {
	if _, err := r.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO settings(guild_id) VALUES (?)`, guild,
	); err != nil {
		return nil, err
	}
	return r.GetSettings(ctx, guild)
}

func (r *Repo) GetSettings(ctx context.Context, guild string) (*Settings, error) {
	row := r.db.QueryRowContext(ctx, `
	SELECT guild_id, seconds_wait_after_empty, leave_if_no_listeners, announce_tracks
	FROM settings WHERE guild_id = ?`, guild)

	var s Settings
	var leave, announce int
	if err := row.Scan(&s.GuildID, &s.SecondsWaitAfterEmpty, &leave, &announce); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sql.ErrNoRows
		}
		return nil, err
	}
	s.LeaveIfNoListeners = leave != 0
	s.AnnounceTracks = announce != 0
	return &s, nil
}

func (r *Repo) UpdateSettings(ctx context.Context, s *Settings) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE settings SET
		  seconds_wait_after_empty=?,
		  leave_if_no_listeners=?,
		  announce_tracks=?
		WHERE guild_id=?`,
		s.SecondsWaitAfterEmpty, boolToInt(s.LeaveIfNoListeners), boolToInt(s.AnnounceTracks), s.GuildID,
	)
	return err
}

// CacheTouch records an access to name. With created set it inserts or
// refreshes the size while keeping the original creation time.
func (r *Repo) CacheTouch(ctx context.Context, name, sourceURL string, size int64, created bool) error {
	now := time.Now().UnixNano()
	if created {
		_, err := r.db.ExecContext(ctx, `INSERT OR REPLACE INTO file_cache(name,source_url,bytes,accessed_at,created_at) VALUES (?,?,?,?,COALESCE((SELECT created_at FROM file_cache WHERE name=?),?))`,
			name, sourceURL, size, now, name, now)
		return err
	}
	_, err := r.db.ExecContext(ctx, `UPDATE file_cache SET accessed_at=? WHERE name=?`, now, name)
	return err
}

func (r *Repo) CacheRemove(ctx context.Context, name string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM file_cache WHERE name=?`, name)
	return err
}

func (r *Repo) CacheTotalBytes(ctx context.Context) (int64, error) {
	row := r.db.QueryRowContext(ctx, `SELECT COALESCE(SUM(bytes),0) FROM file_cache`)
	var v int64
	if err := row.Scan(&v); err != nil {
		return 0, err
	}
	return v, nil
}

// CacheLRU returns up to limit entries, least recently accessed first.
func (r *Repo) CacheLRU(ctx context.Context, limit int) ([]CacheFile, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT name, source_url, bytes, accessed_at, created_at FROM file_cache ORDER BY accessed_at ASC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []CacheFile
	for rows.Next() {
		var cf CacheFile
		if err := rows.Scan(&cf.Name, &cf.SourceURL, &cf.Bytes, &cf.AccessedAt, &cf.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, cf)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
