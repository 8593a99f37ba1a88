package models

import "time"

// Transcript is one row of the audio_files table.
type Transcript struct {
	ID            int64     `json:"id" db:"id"`
	OwnerID       string    `json:"user_id" db:"user_id"`
	FileName      string    `json:"file_name" db:"file_name"`
	Transcription string    `json:"transcription" db:"transcription"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
}
