package speech

import (
	"context"
	"errors"
)

// Encodings understood by the recognizers.
const (
	EncodingMP3      = "MP3"
	EncodingLinear16 = "LINEAR16"
)

// EncodingConfig mirrors the recognition config sent with every request.
type EncodingConfig struct {
	Encoding          string `json:"encoding,omitempty"`
	SampleRateHertz   int    `json:"sampleRateHertz,omitempty"`
	LanguageCode      string `json:"languageCode,omitempty"`
	AudioChannelCount int    `json:"audioChannelCount,omitempty"`
}

// Audio is the transport envelope: Content holds base64-encoded audio bytes.
type Audio struct {
	Content string `json:"content"`
}

// RecognizeRequest is a single synchronous recognition call.
type RecognizeRequest struct {
	Config EncodingConfig `json:"config"`
	Audio  Audio          `json:"audio"`
}

// Alternative is one hypothesis for a segment.
type Alternative struct {
	Transcript string  `json:"transcript"`
	Confidence float64 `json:"confidence"`
}

// Segment is one recognized span of audio, in service order.
type Segment struct {
	Alternatives []Alternative `json:"alternatives"`
}

// Recognizer is the interface for speech-to-text backends.
type Recognizer interface {
	Recognize(ctx context.Context, req RecognizeRequest) ([]Segment, error)
	Name() string
}

var ErrInvalidContent = errors.New("audio content is not valid base64")
