package transcript

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/nikhilbhutani/talk2text/internal/models"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS audio_files (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	file_name     TEXT    NOT NULL,
	transcription TEXT    NOT NULL CHECK (transcription <> ''),
	user_id       TEXT    NOT NULL CHECK (user_id <> ''),
	created_at    INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS audio_files_user_created_idx ON audio_files (user_id, created_at DESC, id DESC);
`

// SQLite stores transcripts in a local database file. created_at is unix nanoseconds.
type SQLite struct {
	db *sql.DB

	mu   sync.Mutex // serializes inserts so created_at never goes backwards
	last time.Time
	now  func() time.Time
}

// OpenSQLite opens (or creates) the database at path; ":memory:" gives a private in-memory store.
func OpenSQLite(ctx context.Context, path string) (*SQLite, error) {
	dsn := path
	if path != ":memory:" {
		dsn = fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// One connection: writes are serialized and ":memory:" stays a single database.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &SQLite{db: db, now: time.Now}, nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLite) Insert(ctx context.Context, ownerID, fileName, text string) (*models.Transcript, error) {
	if err := checkInsert(ownerID, text); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	createdAt := s.now().UTC()
	if createdAt.Before(s.last) {
		createdAt = s.last
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO audio_files (file_name, transcription, user_id, created_at) VALUES (?, ?, ?, ?)`,
		fileName, text, ownerID, createdAt.UnixNano(),
	)
	if err != nil {
		return nil, storageError("insert transcript", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, storageError("insert transcript", err)
	}
	s.last = createdAt

	return &models.Transcript{
		ID:            id,
		OwnerID:       ownerID,
		FileName:      fileName,
		Transcription: text,
		CreatedAt:     time.Unix(0, createdAt.UnixNano()).UTC(),
	}, nil
}

func (s *SQLite) ListByOwner(ctx context.Context, ownerID string) ([]models.Transcript, error) {
	if err := checkOwner(ownerID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, file_name, transcription, created_at
		 FROM audio_files WHERE user_id = ? ORDER BY created_at DESC, id DESC`,
		ownerID,
	)
	if err != nil {
		return nil, storageError("list transcripts", err)
	}
	defer rows.Close()

	out := []models.Transcript{}
	for rows.Next() {
		var t models.Transcript
		var createdAt int64
		if err := rows.Scan(&t.ID, &t.OwnerID, &t.FileName, &t.Transcription, &createdAt); err != nil {
			return nil, storageError("scan transcript", err)
		}
		t.CreatedAt = time.Unix(0, createdAt).UTC()
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, storageError("list transcripts", err)
	}
	return out, nil
}
