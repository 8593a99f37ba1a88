package speech

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"math"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIConfig holds configuration for the OpenAI Whisper backend.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string // default: "https://api.openai.com/v1"
	Model   string // default: "whisper-1"
}

// OpenAIRecognizer transcribes audio using OpenAI's Whisper API (or a compatible endpoint).
// Whisper has no alternatives, so each segment carries a single hypothesis whose confidence is
// derived from the segment's average log probability.
type OpenAIRecognizer struct {
	client *openai.Client
	model  string
	name   string
}

// NewOpenAIRecognizer creates an OpenAIRecognizer with sensible defaults applied.
func NewOpenAIRecognizer(cfg OpenAIConfig) *OpenAIRecognizer {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	if cfg.Model == "" {
		cfg.Model = openai.Whisper1
	}
	return &OpenAIRecognizer{
		client: openai.NewClientWithConfig(clientCfg),
		model:  cfg.Model,
		name:   "openai-whisper",
	}
}

func (o *OpenAIRecognizer) Name() string { return o.name }

func (o *OpenAIRecognizer) Recognize(ctx context.Context, req RecognizeRequest) ([]Segment, error) {
	audio, err := base64.StdEncoding.DecodeString(req.Audio.Content)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidContent, err)
	}

	resp, err := o.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    o.model,
		FilePath: uploadName(req.Config.Encoding),
		Reader:   bytes.NewReader(audio),
		Language: baseLanguage(req.Config.LanguageCode),
		Format:   openai.AudioResponseFormatVerboseJSON,
	})
	if err != nil {
		return nil, fmt.Errorf("transcription request: %w", err)
	}

	segments := make([]Segment, 0, len(resp.Segments))
	for _, s := range resp.Segments {
		segments = append(segments, Segment{Alternatives: []Alternative{{
			Transcript: strings.TrimSpace(s.Text),
			Confidence: math.Exp(s.AvgLogprob),
		}}})
	}

	// Some compatible servers only fill the top-level text.
	if len(segments) == 0 && strings.TrimSpace(resp.Text) != "" {
		segments = append(segments, Segment{Alternatives: []Alternative{{Transcript: strings.TrimSpace(resp.Text)}}})
	}

	return segments, nil
}

// uploadName gives the multipart file a name whose extension matches the encoding;
// Whisper sniffs the container from it.
func uploadName(encoding string) string {
	if encoding == EncodingLinear16 {
		return "audio.wav"
	}
	return "audio.mp3"
}

// baseLanguage turns a BCP-47 tag such as "en-US" into the ISO-639-1 code Whisper expects.
func baseLanguage(tag string) string {
	lang, _, _ := strings.Cut(tag, "-")
	return strings.ToLower(lang)
}
