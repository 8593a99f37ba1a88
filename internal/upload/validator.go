package upload

import (
	"mime"
	"strings"
)

// Format is the container family of an accepted upload.
type Format string

const (
	FormatMP3 Format = "mp3"
	FormatWAV Format = "wav"
)

// Rejection is why an upload was refused before any I/O happened.
type Rejection string

const (
	MissingFile          Rejection = "missing_file"
	UnsupportedMediaType Rejection = "unsupported_media_type"
	FileTooLarge         Rejection = "file_too_large"
)

func (r Rejection) Error() string { return "upload rejected: " + string(r) }

var allowedTypes = map[string]Format{
	"audio/mpeg":     FormatMP3,
	"audio/mp3":      FormatMP3,
	"audio/mpeg3":    FormatMP3,
	"audio/x-mpeg-3": FormatMP3,
	"audio/wav":      FormatWAV,
	"audio/x-wav":    FormatWAV,
	"audio/wave":     FormatWAV,
	"audio/vnd.wave": FormatWAV,
}

// Descriptor is what the client told us about the file, plus how many bytes actually arrived.
type Descriptor struct {
	Present   bool
	MediaType string
	Size      int64
}

type Validator struct {
	maxBytes int64
}

// NewValidator returns a Validator; maxBytes <= 0 disables the size check.
func NewValidator(maxBytes int64) *Validator {
	return &Validator{maxBytes: maxBytes}
}

// Validate classifies d. The returned error is always a Rejection.
func (v *Validator) Validate(d Descriptor) (Format, error) {
	if !d.Present {
		return "", MissingFile
	}

	format, ok := FormatOf(d.MediaType)
	if !ok {
		return "", UnsupportedMediaType
	}

	if v.maxBytes > 0 && d.Size > v.maxBytes {
		return "", FileTooLarge
	}

	return format, nil
}

// FormatOf maps a declared media type onto the allow-list. Parameters are ignored.
func FormatOf(mediaType string) (Format, bool) {
	mt, _, err := mime.ParseMediaType(mediaType)
	if err != nil {
		mt = strings.TrimSpace(mediaType)
	}
	f, ok := allowedTypes[strings.ToLower(mt)]
	return f, ok
}
