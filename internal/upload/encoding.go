package upload

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/nikhilbhutani/talk2text/internal/speech"
)

const wavFormatPCM = 1

// DetectEncoding derives the recognition config from the audio itself. WAV uploads carry their
// sample rate and channel count in the RIFF header; MP3 frames are left to the configured defaults.
// A WAV upload whose header cannot be read is rejected as UnsupportedMediaType.
func DetectEncoding(format Format, audio []byte, defaults speech.EncodingConfig) (speech.EncodingConfig, error) {
	cfg := defaults

	switch format {
	case FormatMP3:
		cfg.Encoding = speech.EncodingMP3
		return cfg, nil
	case FormatWAV:
		h, err := parseWAVHeader(audio)
		if err != nil {
			return cfg, fmt.Errorf("%w: %v", UnsupportedMediaType, err)
		}
		if h.audioFormat != wavFormatPCM || h.bitsPerSample != 16 {
			return cfg, fmt.Errorf("%w: wav is not 16-bit PCM (format %d, %d bits)", UnsupportedMediaType, h.audioFormat, h.bitsPerSample)
		}
		cfg.Encoding = speech.EncodingLinear16
		cfg.SampleRateHertz = int(h.sampleRate)
		cfg.AudioChannelCount = int(h.channels)
		return cfg, nil
	default:
		return cfg, UnsupportedMediaType
	}
}

type wavHeader struct {
	audioFormat   uint16
	channels      uint16
	sampleRate    uint32
	bitsPerSample uint16
}

// parseWAVHeader walks the RIFF chunks until it finds "fmt ".
func parseWAVHeader(b []byte) (wavHeader, error) {
	var h wavHeader
	if len(b) < 12 || !bytes.Equal(b[0:4], []byte("RIFF")) || !bytes.Equal(b[8:12], []byte("WAVE")) {
		return h, fmt.Errorf("missing RIFF/WAVE header")
	}

	off := 12
	for off+8 <= len(b) {
		id := b[off : off+4]
		size := int(binary.LittleEndian.Uint32(b[off+4 : off+8]))
		body := off + 8
		if bytes.Equal(id, []byte("fmt ")) {
			if size < 16 || body+16 > len(b) {
				return h, fmt.Errorf("truncated fmt chunk")
			}
			h.audioFormat = binary.LittleEndian.Uint16(b[body : body+2])
			h.channels = binary.LittleEndian.Uint16(b[body+2 : body+4])
			h.sampleRate = binary.LittleEndian.Uint32(b[body+4 : body+8])
			h.bitsPerSample = binary.LittleEndian.Uint16(b[body+14 : body+16])
			if h.channels == 0 || h.sampleRate == 0 {
				return h, fmt.Errorf("invalid fmt chunk")
			}
			return h, nil
		}
		// Chunks are word aligned.
		off = body + size + size%2
	}
	return h, fmt.Errorf("no fmt chunk")
}
