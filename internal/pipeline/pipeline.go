// Package pipeline runs one upload through validation, recognition and persistence.
//
// A run moves Received → Validated → Transcribed → Persisted → Completed, or stops in one of
// Rejected, TranscriptionFailed or PersistFailed. Result.Response is the only place a terminal
// state is turned into an HTTP status and body.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/nikhilbhutani/talk2text/internal/metrics"
	"github.com/nikhilbhutani/talk2text/internal/models"
	"github.com/nikhilbhutani/talk2text/internal/speech"
	"github.com/nikhilbhutani/talk2text/internal/transcript"
	"github.com/nikhilbhutani/talk2text/internal/transcription"
	"github.com/nikhilbhutani/talk2text/internal/upload"
)

type Stage string

const (
	StageReceived            Stage = "received"
	StageValidated           Stage = "validated"
	StageTranscribed         Stage = "transcribed"
	StagePersisted           Stage = "persisted"
	StageCompleted           Stage = "completed"
	StageRejected            Stage = "rejected"
	StageTranscriptionFailed Stage = "transcription_failed"
	StagePersistFailed       Stage = "persist_failed"
)

type Reason string

const (
	ReasonNone                 Reason = ""
	ReasonUnauthenticated      Reason = "unauthenticated"
	ReasonMissingFile          Reason = Reason(upload.MissingFile)
	ReasonUnsupportedMediaType Reason = Reason(upload.UnsupportedMediaType)
	ReasonFileTooLarge         Reason = Reason(upload.FileTooLarge)
	ReasonUnreadableUpload     Reason = "unreadable_upload"
	ReasonServiceFailure       Reason = "service_failure"
	ReasonTimeout              Reason = "timeout"
	ReasonNoSpeech             Reason = "no_speech"
	ReasonStorageFailure       Reason = "storage_failure"
)

// Transcriber is the recognition step. *transcription.Gateway satisfies it.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, hint speech.EncodingConfig) transcription.Outcome
}

// Upload is the staged body of the request. *staging.File satisfies it.
type Upload interface {
	ReadAll() ([]byte, error)
	Release()
}

type Request struct {
	OwnerID   string
	FileName  string
	MediaType string

	// Present is false when the request carried no audio part.
	Present bool

	// Size is the number of bytes received, or anything above the cap when staging gave up.
	Size   int64
	Upload Upload
}

type Options struct {
	// SurfaceUnsavedTranscript puts the recognized text in the error body when persisting fails.
	SurfaceUnsavedTranscript bool

	// DetectEncoding reads WAV headers for sample rate and channels instead of using the defaults.
	DetectEncoding bool
}

type Pipeline struct {
	validator   *upload.Validator
	transcriber Transcriber
	repo        transcript.Repository
	opts        Options
}

func New(v *upload.Validator, t Transcriber, repo transcript.Repository, opts Options) *Pipeline {
	return &Pipeline{validator: v, transcriber: t, repo: repo, opts: opts}
}

// Run drives req to a terminal state. It owns req.Upload and releases it before returning.
// Not idempotent: every successful run inserts a new record.
func (p *Pipeline) Run(ctx context.Context, req Request) (res *Result) {
	start := time.Now()
	if req.Upload != nil {
		defer req.Upload.Release()
	}
	defer func() {
		// A collaborator panicked; let the panic through untouched.
		if res == nil {
			return
		}
		metrics.ObservePipeline(string(res.Stage), string(res.Reason), time.Since(start))
		attrs := []any{
			"stage", res.Stage,
			"owner_id", req.OwnerID,
			"file_name", req.FileName,
			"duration_ms", time.Since(start).Milliseconds(),
		}
		switch res.Stage {
		case StageCompleted:
			slog.Info("transcription stored", append(attrs, "transcript_id", res.Record.ID)...)
		case StageRejected:
			slog.Info("upload rejected", append(attrs, "reason", res.Reason)...)
		default:
			slog.Error("transcription pipeline failed", append(attrs, "reason", res.Reason, "error", res.Err)...)
		}
	}()

	if strings.TrimSpace(req.OwnerID) == "" {
		return &Result{Stage: StageRejected, Reason: ReasonUnauthenticated}
	}

	format, err := p.validator.Validate(upload.Descriptor{
		Present:   req.Present,
		MediaType: req.MediaType,
		Size:      req.Size,
	})
	if err != nil {
		return rejected(err)
	}
	if req.Upload == nil {
		return &Result{Stage: StageRejected, Reason: ReasonMissingFile}
	}

	audio, err := req.Upload.ReadAll()
	if err != nil {
		return &Result{Stage: StageTranscriptionFailed, Reason: ReasonUnreadableUpload, Err: err}
	}

	var hint speech.EncodingConfig
	if p.opts.DetectEncoding {
		hint, err = upload.DetectEncoding(format, audio, speech.EncodingConfig{})
		if err != nil {
			return rejected(err)
		}
	}

	out := p.transcriber.Transcribe(ctx, audio, hint)
	switch out.Kind {
	case transcription.Success:
	case transcription.Empty:
		return &Result{Stage: StageTranscriptionFailed, Reason: ReasonNoSpeech}
	default:
		reason := ReasonServiceFailure
		if errors.Is(out.Cause, transcription.ErrTimeout) {
			reason = ReasonTimeout
		}
		return &Result{Stage: StageTranscriptionFailed, Reason: reason, Err: out.Cause}
	}

	rec, err := p.repo.Insert(ctx, req.OwnerID, req.FileName, out.Text)
	if err != nil {
		return &Result{
			Stage:   StagePersistFailed,
			Reason:  ReasonStorageFailure,
			Text:    out.Text,
			Err:     err,
			surface: p.opts.SurfaceUnsavedTranscript,
		}
	}

	return &Result{Stage: StageCompleted, Record: rec, Text: out.Text}
}

func rejected(err error) *Result {
	var r upload.Rejection
	if !errors.As(err, &r) {
		r = upload.UnsupportedMediaType
	}
	return &Result{Stage: StageRejected, Reason: Reason(r), Err: err}
}

// Result is the terminal state of one run.
type Result struct {
	Stage  Stage
	Reason Reason
	Record *models.Transcript
	Err    error

	// Text is the recognized text once the run got past recognition, saved or not.
	Text string

	surface bool
}

func (r *Result) OK() bool { return r.Stage == StageCompleted }

type successBody struct {
	Message       string    `json:"message"`
	Transcription string    `json:"transcription"`
	ID            int64     `json:"id"`
	CreatedAt     time.Time `json:"created_at"`
}

type errorBody struct {
	Error         string `json:"error"`
	Transcription string `json:"transcription,omitempty"`
}

// Response maps the result onto the HTTP status and JSON body returned to the client.
func (r *Result) Response() (int, any) {
	switch r.Stage {
	case StageCompleted:
		return http.StatusOK, successBody{
			Message:       "Success",
			Transcription: r.Record.Transcription,
			ID:            r.Record.ID,
			CreatedAt:     r.Record.CreatedAt,
		}
	case StageRejected:
		switch r.Reason {
		case ReasonUnauthenticated:
			return http.StatusBadRequest, errorBody{Error: "User ID is required"}
		case ReasonMissingFile:
			return http.StatusBadRequest, errorBody{Error: "No file uploaded"}
		case ReasonFileTooLarge:
			return http.StatusRequestEntityTooLarge, errorBody{Error: "File too large"}
		default:
			return http.StatusBadRequest, errorBody{Error: "Invalid file type"}
		}
	case StageTranscriptionFailed:
		if r.Reason == ReasonNoSpeech {
			return http.StatusInternalServerError, errorBody{Error: "No speech detected"}
		}
		return http.StatusInternalServerError, errorBody{Error: "Speech-to-Text failed"}
	case StagePersistFailed:
		body := errorBody{Error: "Failed to save transcription"}
		if r.surface {
			body.Transcription = r.Text
		}
		return http.StatusInternalServerError, body
	default:
		return http.StatusInternalServerError, errorBody{Error: "Unknown error"}
	}
}
