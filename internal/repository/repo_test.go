package repository

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func newTestRepo(t *testing.T) *Repo {
	t.Helper()
	db, err := OpenPath(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("OpenPath: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewRepo(db)
}

func TestMigrationsAreIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "twice.db")
	for i := range 2 {
		db, err := OpenPath(path)
		if err != nil {
			t.Fatalf("open #%d: %v", i+1, err)
		}
		_ = db.Close()
	}
}

func TestSettingsDefaultsAndUpdate(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	if _, err := r.GetSettings(ctx, "g1"); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("GetSettings before upsert = %v, want sql.ErrNoRows", err)
	}

	s, err := r.UpsertSettings(ctx, "g1")
	if err != nil {
		t.Fatalf("UpsertSettings: %v", err)
	}
	if s.SecondsWaitAfterEmpty != 30 || !s.LeaveIfNoListeners || !s.AnnounceTracks {
		t.Errorf("defaults = %+v", s)
	}

	s.SecondsWaitAfterEmpty = 0
	s.AnnounceTracks = false
	if err := r.UpdateSettings(ctx, s); err != nil {
		t.Fatalf("UpdateSettings: %v", err)
	}
	got, err := r.UpsertSettings(ctx, "g1")
	if err != nil {
		t.Fatalf("UpsertSettings again: %v", err)
	}
	if got.SecondsWaitAfterEmpty != 0 || got.AnnounceTracks {
		t.Errorf("after update = %+v", got)
	}
}

func TestCacheBookkeeping(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	if err := r.CacheTouch(ctx, "a.pcm", "https://a", 100, true); err != nil {
		t.Fatal(err)
	}
	time.Sleep(2 * time.Millisecond)
	if err := r.CacheTouch(ctx, "b.pcm", "https://b", 50, true); err != nil {
		t.Fatal(err)
	}

	total, err := r.CacheTotalBytes(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if total != 150 {
		t.Errorf("CacheTotalBytes = %d, want 150", total)
	}

	lru, err := r.CacheLRU(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(lru) != 2 || lru[0].Name != "a.pcm" || lru[1].Name != "b.pcm" {
		t.Fatalf("CacheLRU = %+v, want a.pcm then b.pcm", lru)
	}

	time.Sleep(2 * time.Millisecond)
	if err := r.CacheTouch(ctx, "a.pcm", "", 0, false); err != nil {
		t.Fatal(err)
	}
	lru, err = r.CacheLRU(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(lru) != 1 || lru[0].Name != "b.pcm" {
		t.Errorf("CacheLRU after touch = %+v, want b.pcm", lru)
	}

	lru, err = r.CacheLRU(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	a := lru[1]
	if a.Name != "a.pcm" || a.Bytes != 100 || a.SourceURL != "https://a" {
		t.Errorf("touch changed row: %+v", a)
	}

	if err := r.CacheRemove(ctx, "a.pcm"); err != nil {
		t.Fatal(err)
	}
	if err := r.CacheRemove(ctx, "b.pcm"); err != nil {
		t.Fatal(err)
	}
	if lru, err := r.CacheLRU(ctx, 10); err != nil || len(lru) != 0 {
		t.Errorf("CacheLRU on empty = %v, %v", lru, err)
	}
}
