package repository

import "database/sql"

type Repo struct {
	db *sql.DB
}

type Settings struct {
	GuildID               string
	SecondsWaitAfterEmpty int
	LeaveIfNoListeners    bool
	AnnounceTracks        bool
}

// CacheFile is the bookkeeping row for one file in the audio cache.
type CacheFile struct {
	Name       string
	SourceURL  string
	Bytes      int64
	AccessedAt int64
	CreatedAt  int64
}
