package handlers

import (
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"

	"github.com/nikhilbhutani/talk2text/internal/identity"
	"github.com/nikhilbhutani/talk2text/internal/pipeline"
	"github.com/nikhilbhutani/talk2text/internal/staging"
)

const (
	audioField = "audio"
	ownerField = "user_id"

	// Room for the non-file form fields on top of the audio cap.
	formOverhead = 1 << 20
)

type TranscribeHandler struct {
	pipeline *pipeline.Pipeline
	policy   identity.Policy
	area     *staging.Area
	maxBytes int64
}

func NewTranscribeHandler(p *pipeline.Pipeline, policy identity.Policy, area *staging.Area, maxBytes int64) *TranscribeHandler {
	return &TranscribeHandler{pipeline: p, policy: policy, area: area, maxBytes: maxBytes}
}

// Transcribe handles POST /transcribe (multipart: audio file, user_id field).
func (h *TranscribeHandler) Transcribe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	// Nobody to act for: answer before reading the body.
	if !h.policy.TrustClientOwner && identity.OwnerFromContext(ctx) == nil {
		h.respond(w, h.pipeline.Run(ctx, pipeline.Request{}))
		return
	}

	if h.maxBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes+formOverhead)
	}

	form, err := h.readForm(r)
	if err != nil {
		slog.Warn("malformed upload", "error", err)
		writeError(w, http.StatusBadRequest, "Malformed upload")
		return
	}

	req := pipeline.Request{
		OwnerID:   h.policy.OwnerID(ctx, form.claimedOwner),
		FileName:  form.fileName,
		MediaType: form.mediaType,
		Present:   form.present,
		Size:      form.size,
	}
	if form.file != nil {
		req.Upload = form.file
	}
	h.respond(w, h.pipeline.Run(ctx, req))
}

func (h *TranscribeHandler) respond(w http.ResponseWriter, res *pipeline.Result) {
	status, body := res.Response()
	writeJSON(w, status, body)
}

type uploadForm struct {
	claimedOwner string
	ownerSent    bool
	present      bool
	fileName     string
	mediaType    string
	size         int64
	file         *staging.File
}

// readForm streams the multipart body, staging the first audio part on disk.
// A body that is not multipart at all reads as a form without a file.
func (h *TranscribeHandler) readForm(r *http.Request) (f uploadForm, err error) {
	defer func() {
		if err != nil && f.file != nil {
			f.file.Release()
			f.file = nil
		}
	}()

	mr, err := r.MultipartReader()
	if err != nil {
		return f, nil
	}

	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			return f, nil
		}
		if err != nil {
			if tooLarge(err) && f.present {
				return f, nil
			}
			return f, err
		}

		switch part.FormName() {
		case audioField:
			if f.present {
				continue
			}
			// The owner field came first and names nobody: the upload is refused unread.
			if f.ownerSent && h.policy.OwnerID(r.Context(), f.claimedOwner) == "" {
				return f, nil
			}
			if err := h.stage(&f, part); err != nil {
				return f, err
			}
		case ownerField:
			b, err := io.ReadAll(io.LimitReader(part, 1024))
			if err != nil {
				return f, err
			}
			f.claimedOwner = string(b)
			f.ownerSent = true
		}
	}
}

func (h *TranscribeHandler) stage(f *uploadForm, part *multipart.Part) error {
	f.present = true
	f.fileName = part.FileName()
	f.mediaType = part.Header.Get("Content-Type")

	file, err := h.area.Stage(part)
	switch {
	case err == nil:
		f.file = file
		f.size = file.Size()
		return nil
	case errors.Is(err, staging.ErrTooLarge) || tooLarge(err):
		f.size = h.maxBytes + 1
		return nil
	default:
		return err
	}
}

func tooLarge(err error) bool {
	var mbe *http.MaxBytesError
	return errors.As(err, &mbe)
}
