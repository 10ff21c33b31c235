// Package store keeps the last EPG dataset in a SQLite file so a restart can
// serve the guide without refetching every source.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/snapetech/epgbridge/internal/catalog"
)

// ErrNoSnapshot is returned by Load when nothing has been saved yet.
var ErrNoSnapshot = errors.New("store: no snapshot")

const schema = `
CREATE TABLE IF NOT EXISTS snapshot (
	id         INTEGER PRIMARY KEY CHECK (id = 1),
	fetched_at INTEGER NOT NULL,
	sources    TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS channels (
	seq           INTEGER PRIMARY KEY,
	id            TEXT NOT NULL,
	display_name  TEXT NOT NULL,
	normalized_id TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS programmes (
	seq         INTEGER PRIMARY KEY,
	channel_id  TEXT NOT NULL,
	start       TEXT NOT NULL,
	stop        TEXT NOT NULL,
	title       TEXT NOT NULL,
	description TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS raw_blocks (
	seq   INTEGER PRIMARY KEY,
	block TEXT NOT NULL
);`

type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the snapshot database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open snapshot db: %w", err)
	}
	// One writer; SQLite serializes anyway.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init snapshot schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Save replaces the stored snapshot with ds.
func (s *Store) Save(ctx context.Context, ds *catalog.EPGDataset) error {
	sources, err := json.Marshal(ds.Sources)
	if err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	for _, t := range []string{"snapshot", "channels", "programmes", "raw_blocks"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+t); err != nil {
			return fmt.Errorf("clear %s: %w", t, err)
		}
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO snapshot (id, fetched_at, sources) VALUES (1, ?, ?)",
		ds.FetchedAt.UnixNano(), string(sources)); err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}

	chStmt, err := tx.PrepareContext(ctx, "INSERT INTO channels (seq, id, display_name, normalized_id) VALUES (?, ?, ?, ?)")
	if err != nil {
		return err
	}
	defer chStmt.Close()
	for i, ch := range ds.Channels {
		if _, err := chStmt.ExecContext(ctx, i, ch.ID, ch.DisplayName, ch.NormalizedID); err != nil {
			return fmt.Errorf("insert channel %q: %w", ch.ID, err)
		}
	}

	pStmt, err := tx.PrepareContext(ctx, "INSERT INTO programmes (channel_id, start, stop, title, description) VALUES (?, ?, ?, ?, ?)")
	if err != nil {
		return err
	}
	defer pStmt.Close()
	for _, progs := range ds.Programmes {
		for _, p := range progs {
			if _, err := pStmt.ExecContext(ctx, p.ChannelID, p.Start, p.Stop, p.Title, p.Description); err != nil {
				return fmt.Errorf("insert programme: %w", err)
			}
		}
	}

	rStmt, err := tx.PrepareContext(ctx, "INSERT INTO raw_blocks (seq, block) VALUES (?, ?)")
	if err != nil {
		return err
	}
	defer rStmt.Close()
	for i, b := range ds.Raw {
		if _, err := rStmt.ExecContext(ctx, i, b); err != nil {
			return fmt.Errorf("insert raw block: %w", err)
		}
	}
	return tx.Commit()
}

// Load returns the stored snapshot, or ErrNoSnapshot.
func (s *Store) Load(ctx context.Context) (*catalog.EPGDataset, error) {
	var fetchedAt int64
	var sources string
	err := s.db.QueryRowContext(ctx, "SELECT fetched_at, sources FROM snapshot WHERE id = 1").Scan(&fetchedAt, &sources)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoSnapshot
	}
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	ds := catalog.EmptyDataset(time.Unix(0, fetchedAt))
	if err := json.Unmarshal([]byte(sources), &ds.Sources); err != nil {
		return nil, fmt.Errorf("decode sources: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, "SELECT id, display_name, normalized_id FROM channels ORDER BY seq")
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var ch catalog.EPGChannel
		if err := rows.Scan(&ch.ID, &ch.DisplayName, &ch.NormalizedID); err != nil {
			rows.Close()
			return nil, err
		}
		ds.Channels = append(ds.Channels, ch)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = s.db.QueryContext(ctx, "SELECT channel_id, start, stop, title, description FROM programmes ORDER BY seq")
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var p catalog.Programme
		if err := rows.Scan(&p.ChannelID, &p.Start, &p.Stop, &p.Title, &p.Description); err != nil {
			rows.Close()
			return nil, err
		}
		ds.Programmes[p.ChannelID] = append(ds.Programmes[p.ChannelID], p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = s.db.QueryContext(ctx, "SELECT block FROM raw_blocks ORDER BY seq")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var b string
		if err := rows.Scan(&b); err != nil {
			return nil, err
		}
		ds.Raw = append(ds.Raw, b)
	}
	return ds, rows.Err()
}
