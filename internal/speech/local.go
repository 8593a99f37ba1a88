package speech

// LocalConfig holds configuration for a local OpenAI-compatible Whisper server.
type LocalConfig struct {
	BaseURL string // default: "http://localhost:8178/v1"
	Model   string
}

// NewLocalRecognizer points the OpenAI recognizer at a local server such as faster-whisper-server.
// No API key is sent.
func NewLocalRecognizer(cfg LocalConfig) *OpenAIRecognizer {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "http://localhost:8178/v1"
	}
	r := NewOpenAIRecognizer(OpenAIConfig{
		BaseURL: baseURL,
		Model:   cfg.Model,
	})
	r.name = "local-whisper"
	return r
}
