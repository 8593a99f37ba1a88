package transcription

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nikhilbhutani/talk2text/internal/speech"
)

type fakeRecognizer struct {
	segments []speech.Segment
	err      error
	delay    time.Duration
	calls    int
	last     speech.RecognizeRequest
}

func (f *fakeRecognizer) Name() string { return "fake" }

func (f *fakeRecognizer) Recognize(ctx context.Context, req speech.RecognizeRequest) ([]speech.Segment, error) {
	f.calls++
	f.last = req
	if f.delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(f.delay):
		}
	}
	return f.segments, f.err
}

var defaults = speech.EncodingConfig{Encoding: speech.EncodingMP3, SampleRateHertz: 16000, LanguageCode: "en-US"}

func seg(alts ...speech.Alternative) speech.Segment {
	return speech.Segment{Alternatives: alts}
}

func TestGateway_JoinsTopAlternativesInOrder(t *testing.T) {
	for n := 1; n <= 6; n++ {
		t.Run(fmt.Sprintf("n=%d", n), func(t *testing.T) {
			var segments []speech.Segment
			var want []string
			for i := 0; i < n; i++ {
				top := fmt.Sprintf("segment %d", i)
				segments = append(segments, seg(
					speech.Alternative{Transcript: top, Confidence: 0.9},
					speech.Alternative{Transcript: top + " alt", Confidence: 0.2},
				))
				want = append(want, top)
			}

			gw := NewGateway(&fakeRecognizer{segments: segments}, defaults, time.Second)
			out := gw.Transcribe(context.Background(), []byte("audio"), speech.EncodingConfig{})

			require.Equal(t, Success, out.Kind)
			assert.Equal(t, strings.Join(want, "\n"), out.Text)
			assert.NoError(t, out.Cause)
		})
	}
}

func TestGateway_PicksHighestConfidence(t *testing.T) {
	rec := &fakeRecognizer{segments: []speech.Segment{
		seg(speech.Alternative{Transcript: "wreck a nice beach", Confidence: 0.3}, speech.Alternative{Transcript: "recognize speech", Confidence: 0.7}),
		seg(speech.Alternative{Transcript: "first", Confidence: 0}, speech.Alternative{Transcript: "second", Confidence: 0}),
	}}
	out := NewGateway(rec, defaults, 0).Transcribe(context.Background(), []byte("x"), speech.EncodingConfig{})

	require.Equal(t, Success, out.Kind)
	assert.Equal(t, "recognize speech\nfirst", out.Text)
}

func TestGateway_TextIsVerbatim(t *testing.T) {
	rec := &fakeRecognizer{segments: []speech.Segment{seg(speech.Alternative{Transcript: "Hello World, 123!"})}}
	out := NewGateway(rec, defaults, 0).Transcribe(context.Background(), []byte("x"), speech.EncodingConfig{})
	assert.Equal(t, "Hello World, 123!", out.Text)
}

func TestGateway_EmptyOutcomes(t *testing.T) {
	tests := map[string][]speech.Segment{
		"no segments":       nil,
		"no alternatives":   {seg()},
		"blank transcripts": {seg(speech.Alternative{Transcript: "  "}), seg(speech.Alternative{Transcript: ""})},
	}
	for name, segments := range tests {
		t.Run(name, func(t *testing.T) {
			out := NewGateway(&fakeRecognizer{segments: segments}, defaults, 0).Transcribe(context.Background(), []byte("x"), speech.EncodingConfig{})
			assert.Equal(t, Empty, out.Kind)
			assert.Empty(t, out.Text)
			assert.NoError(t, out.Cause)
		})
	}
}

func TestGateway_ServiceFailure(t *testing.T) {
	cause := errors.New("permission denied")
	rec := &fakeRecognizer{err: cause}
	out := NewGateway(rec, defaults, time.Second).Transcribe(context.Background(), []byte("x"), speech.EncodingConfig{})

	assert.Equal(t, ServiceFailure, out.Kind)
	assert.ErrorIs(t, out.Cause, cause)
	assert.Equal(t, 1, rec.calls, "gateway must not retry")
}

func TestGateway_Timeout(t *testing.T) {
	rec := &fakeRecognizer{delay: time.Second}
	out := NewGateway(rec, defaults, 20*time.Millisecond).Transcribe(context.Background(), []byte("x"), speech.EncodingConfig{})

	assert.Equal(t, ServiceFailure, out.Kind)
	assert.ErrorIs(t, out.Cause, ErrTimeout)
	assert.ErrorIs(t, out.Cause, context.DeadlineExceeded)
}

func TestGateway_RequestEnvelope(t *testing.T) {
	rec := &fakeRecognizer{segments: []speech.Segment{seg(speech.Alternative{Transcript: "ok"})}}
	gw := NewGateway(rec, defaults, 0)

	audio := []byte{0x00, 0xFF, 0x10, 'a'}
	gw.Transcribe(context.Background(), audio, speech.EncodingConfig{})
	assert.Equal(t, base64.StdEncoding.EncodeToString(audio), rec.last.Audio.Content)
	assert.Equal(t, defaults, rec.last.Config)

	gw.Transcribe(context.Background(), audio, speech.EncodingConfig{Encoding: speech.EncodingLinear16, SampleRateHertz: 44100, AudioChannelCount: 2})
	assert.Equal(t, speech.EncodingConfig{
		Encoding:          speech.EncodingLinear16,
		SampleRateHertz:   44100,
		LanguageCode:      "en-US",
		AudioChannelCount: 2,
	}, rec.last.Config)
}

func TestKind_String(t *testing.T) {
	assert.Equal(t, "success", Success.String())
	assert.Equal(t, "empty", Empty.String())
	assert.Equal(t, "service_failure", ServiceFailure.String())
}
