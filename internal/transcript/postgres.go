package transcript

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nikhilbhutani/talk2text/internal/models"
)

type Postgres struct {
	db *pgxpool.Pool
}

func NewPostgres(db *pgxpool.Pool) *Postgres {
	return &Postgres{db: db}
}

func (p *Postgres) Insert(ctx context.Context, ownerID, fileName, text string) (*models.Transcript, error) {
	if err := checkInsert(ownerID, text); err != nil {
		return nil, err
	}

	var t models.Transcript
	err := p.db.QueryRow(ctx,
		`INSERT INTO audio_files (file_name, transcription, user_id)
		 VALUES ($1, $2, $3)
		 RETURNING id, user_id, file_name, transcription, created_at`,
		fileName, text, ownerID,
	).Scan(&t.ID, &t.OwnerID, &t.FileName, &t.Transcription, &t.CreatedAt)
	if err != nil {
		return nil, storageError("insert transcript", err)
	}
	return &t, nil
}

func (p *Postgres) ListByOwner(ctx context.Context, ownerID string) ([]models.Transcript, error) {
	if err := checkOwner(ownerID); err != nil {
		return nil, err
	}

	rows, err := p.db.Query(ctx,
		`SELECT id, user_id, file_name, transcription, created_at
		 FROM audio_files WHERE user_id = $1 ORDER BY created_at DESC, id DESC`,
		ownerID,
	)
	if err != nil {
		return nil, storageError("list transcripts", err)
	}
	defer rows.Close()

	out := []models.Transcript{}
	for rows.Next() {
		var t models.Transcript
		if err := rows.Scan(&t.ID, &t.OwnerID, &t.FileName, &t.Transcription, &t.CreatedAt); err != nil {
			return nil, storageError("scan transcript", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, storageError("list transcripts", err)
	}
	return out, nil
}
