// Package postgres persists memories, attachments, and recording
// metadata. Audio and attachment payloads go to the blob store; only
// their paths are kept here.
package postgres

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/memorylane-ai/memorylane/pkg/core"
	"github.com/memorylane-ai/memorylane/pkg/core/memories"
	"github.com/memorylane-ai/memorylane/pkg/store/s3"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Store implements memories.Persistence.
type Store struct {
	pool   *pgxpool.Pool
	blobs  s3.BlobStore
	logger *slog.Logger
}

// New connects to the database and runs pending migrations.
func New(ctx context.Context, dsn string, blobs s3.BlobStore, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	if err := migrate(dsn); err != nil {
		pool.Close()
		return nil, err
	}
	return &Store{pool: pool, blobs: blobs, logger: logger}, nil
}

func migrate(dsn string) error {
	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	db := stdlib.OpenDB(*mustParseConfig(dsn))
	defer db.Close()
	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

func mustParseConfig(dsn string) *pgx.ConnConfig {
	cfg, err := pgx.ParseConfig(dsn)
	if err != nil {
		panic(fmt.Sprintf("invalid postgres dsn: %v", err))
	}
	return cfg
}

// Close releases the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// SaveMemory inserts one memory record.
func (s *Store) SaveMemory(ctx context.Context, record *memories.MemoryRecord) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO memories (id, owner_id, title, narrative, date, place, tags, recipient, recording_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO NOTHING`,
		record.ID, record.OwnerID, record.Title, record.Narrative,
		record.Date, record.Place, record.Tags, record.Recipient,
		record.RecordingID, record.CreatedAt,
	)
	if err != nil {
		return core.NewPersistenceError(err)
	}
	return nil
}

// SaveAttachment uploads the payload and inserts the reference row.
func (s *Store) SaveAttachment(ctx context.Context, att *memories.Attachment, data []byte) error {
	key := fmt.Sprintf("attachments/%s/%s", att.MemoryID, att.ID)
	path, err := s.blobs.Put(ctx, key, data, contentTypeFor(att.Kind))
	if err != nil {
		return core.NewPersistenceError(err)
	}
	att.Path = path

	_, err = s.pool.Exec(ctx, `
		INSERT INTO attachments (id, memory_id, kind, path, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		att.ID, att.MemoryID, att.Kind, att.Path, att.CreatedAt,
	)
	if err != nil {
		return core.NewPersistenceError(err)
	}
	return nil
}

// SaveRecording uploads the mixed audio and upserts the metadata row,
// so a finalize retry after a partial failure does not duplicate it.
func (s *Store) SaveRecording(ctx context.Context, meta *memories.RecordingMetadata, audio []byte) error {
	key := fmt.Sprintf("recordings/%s/%s.wav", meta.OwnerID, meta.SessionID)
	path, err := s.blobs.Put(ctx, key, audio, "audio/wav")
	if err != nil {
		return core.NewPersistenceError(err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO recordings (session_id, owner_id, duration_seconds, byte_size, sample_rate,
			bit_rate, capture_mode, transcript, summary, memory_ids, memory_titles, audio_path)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (session_id) DO UPDATE SET
			transcript = EXCLUDED.transcript,
			summary = EXCLUDED.summary,
			memory_ids = EXCLUDED.memory_ids,
			memory_titles = EXCLUDED.memory_titles`,
		meta.SessionID, meta.OwnerID, meta.DurationSeconds, meta.ByteSize, meta.SampleRate,
		meta.BitRate, meta.CaptureMode, meta.Transcript, meta.Summary,
		meta.MemoryIDs, meta.MemoryTitles, path,
	)
	if err != nil {
		return core.NewPersistenceError(err)
	}
	return nil
}

// GetMemory fetches one memory by id.
func (s *Store) GetMemory(ctx context.Context, id string) (*memories.MemoryRecord, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, owner_id, title, narrative, date, place, tags, recipient, recording_id, created_at
		FROM memories WHERE id = $1`, id)

	var record memories.MemoryRecord
	err := row.Scan(&record.ID, &record.OwnerID, &record.Title, &record.Narrative,
		&record.Date, &record.Place, &record.Tags, &record.Recipient,
		&record.RecordingID, &record.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, core.NewNotFoundError("memory not found")
	}
	if err != nil {
		return nil, core.NewPersistenceError(err)
	}
	return &record, nil
}

// ListMemories returns the owner's most recent memories.
func (s *Store) ListMemories(ctx context.Context, ownerID string, limit int) ([]*memories.MemoryRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, owner_id, title, narrative, date, place, tags, recipient, recording_id, created_at
		FROM memories WHERE owner_id = $1
		ORDER BY created_at DESC LIMIT $2`, ownerID, limit)
	if err != nil {
		return nil, core.NewPersistenceError(err)
	}
	defer rows.Close()

	var out []*memories.MemoryRecord
	for rows.Next() {
		var record memories.MemoryRecord
		if err := rows.Scan(&record.ID, &record.OwnerID, &record.Title, &record.Narrative,
			&record.Date, &record.Place, &record.Tags, &record.Recipient,
			&record.RecordingID, &record.CreatedAt); err != nil {
			return nil, core.NewPersistenceError(err)
		}
		out = append(out, &record)
	}
	if err := rows.Err(); err != nil {
		return nil, core.NewPersistenceError(err)
	}
	return out, nil
}

func contentTypeFor(kind memories.MediaKind) string {
	switch kind {
	case memories.MediaImage:
		return "image/jpeg"
	case memories.MediaAudio:
		return "audio/ogg"
	case memories.MediaVideo:
		return "video/mp4"
	default:
		return "application/octet-stream"
	}
}
