package transcription

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nikhilbhutani/talk2text/internal/metrics"
	"github.com/nikhilbhutani/talk2text/internal/speech"
)

// ErrTimeout is the cause of a ServiceFailure when the recognizer did not answer in time.
var ErrTimeout = errors.New("transcription timed out")

// Kind classifies a gateway outcome.
type Kind int

const (
	Success Kind = iota
	Empty
	ServiceFailure
)

func (k Kind) String() string {
	switch k {
	case Success:
		return "success"
	case Empty:
		return "empty"
	default:
		return "service_failure"
	}
}

// Outcome is the normalized result of one recognition call.
type Outcome struct {
	Kind  Kind
	Text  string
	Cause error
}

// Gateway sends audio to a recognizer and turns its segments into plain text.
// It never retries.
type Gateway struct {
	recognizer speech.Recognizer
	defaults   speech.EncodingConfig
	timeout    time.Duration
}

func NewGateway(recognizer speech.Recognizer, defaults speech.EncodingConfig, timeout time.Duration) *Gateway {
	return &Gateway{
		recognizer: recognizer,
		defaults:   defaults,
		timeout:    timeout,
	}
}

// Transcribe recognizes audio. Non-zero fields of hint override the static defaults.
func (g *Gateway) Transcribe(ctx context.Context, audio []byte, hint speech.EncodingConfig) Outcome {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	req := speech.RecognizeRequest{
		Config: g.config(hint),
		Audio:  speech.Audio{Content: base64.StdEncoding.EncodeToString(audio)},
	}

	start := time.Now()
	segments, err := g.recognizer.Recognize(ctx, req)
	metrics.ObserveRecognizer(g.recognizer.Name(), err, time.Since(start))

	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("%w after %s: %w", ErrTimeout, g.timeout, err)
		}
		slog.Error("recognizer call failed",
			"provider", g.recognizer.Name(),
			"encoding", req.Config.Encoding,
			"sample_rate", req.Config.SampleRateHertz,
			"error", err,
		)
		return Outcome{Kind: ServiceFailure, Cause: err}
	}

	text := JoinSegments(segments)
	if text == "" {
		return Outcome{Kind: Empty}
	}
	return Outcome{Kind: Success, Text: text}
}

func (g *Gateway) config(hint speech.EncodingConfig) speech.EncodingConfig {
	cfg := g.defaults
	if hint.Encoding != "" {
		cfg.Encoding = hint.Encoding
	}
	if hint.SampleRateHertz != 0 {
		cfg.SampleRateHertz = hint.SampleRateHertz
	}
	if hint.LanguageCode != "" {
		cfg.LanguageCode = hint.LanguageCode
	}
	if hint.AudioChannelCount != 0 {
		cfg.AudioChannelCount = hint.AudioChannelCount
	}
	return cfg
}

// JoinSegments takes the highest-confidence alternative of every segment, in order, and joins
// them with newlines. Ties keep the service's ordering. Blank hypotheses are dropped.
func JoinSegments(segments []speech.Segment) string {
	lines := make([]string, 0, len(segments))
	for _, seg := range segments {
		if len(seg.Alternatives) == 0 {
			continue
		}
		best := seg.Alternatives[0]
		for _, alt := range seg.Alternatives[1:] {
			if alt.Confidence > best.Confidence {
				best = alt
			}
		}
		if strings.TrimSpace(best.Transcript) == "" {
			continue
		}
		lines = append(lines, best.Transcript)
	}
	return strings.Join(lines, "\n")
}
