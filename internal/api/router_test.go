package api

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nikhilbhutani/talk2text/internal/api/handlers"
	"github.com/nikhilbhutani/talk2text/internal/config"
	"github.com/nikhilbhutani/talk2text/internal/history"
	"github.com/nikhilbhutani/talk2text/internal/identity"
	"github.com/nikhilbhutani/talk2text/internal/pipeline"
	"github.com/nikhilbhutani/talk2text/internal/speech"
	"github.com/nikhilbhutani/talk2text/internal/staging"
	"github.com/nikhilbhutani/talk2text/internal/transcript"
	"github.com/nikhilbhutani/talk2text/internal/transcription"
	"github.com/nikhilbhutani/talk2text/internal/upload"
)

const jwtSecret = "test-secret-with-enough-length-for-hs256"

// scriptedRecognizer "hears" whatever plain text follows an ID3 tag and nothing in a WAV file.
type scriptedRecognizer struct {
	calls int
	last  speech.RecognizeRequest
}

func (s *scriptedRecognizer) Name() string { return "scripted" }

func (s *scriptedRecognizer) Recognize(_ context.Context, req speech.RecognizeRequest) ([]speech.Segment, error) {
	s.calls++
	s.last = req
	audio, err := base64.StdEncoding.DecodeString(req.Audio.Content)
	if err != nil {
		return nil, err
	}
	if bytes.HasPrefix(audio, []byte("FAIL")) {
		return nil, errors.New("upstream 503")
	}
	text, ok := bytes.CutPrefix(audio, []byte("ID3"))
	if !ok {
		return nil, nil
	}
	return []speech.Segment{{Alternatives: []speech.Alternative{{Transcript: string(text), Confidence: 0.93}}}}, nil
}

type testServer struct {
	handler    http.Handler
	store      *transcript.SQLite
	recognizer *scriptedRecognizer
	stagingDir string
}

func newTestServer(t *testing.T, trust bool) *testServer {
	t.Helper()

	cfg := &config.Config{
		Server: config.ServerConfig{
			AllowedOrigins: []string{"http://localhost:5173"},
			RateLimitRPS:   1000,
			RateLimitBurst: 1000,
		},
		Upload: config.UploadConfig{MaxBytes: 2048},
	}

	store, err := transcript.OpenSQLite(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	dir := t.TempDir()
	area, err := staging.NewArea(dir, cfg.Upload.MaxBytes)
	require.NoError(t, err)

	rec := &scriptedRecognizer{}
	gw := transcription.NewGateway(rec, speech.EncodingConfig{
		Encoding:        speech.EncodingMP3,
		SampleRateHertz: 16000,
		LanguageCode:    "en-US",
	}, 5*time.Second)

	policy := identity.Policy{TrustClientOwner: trust}
	p := pipeline.New(upload.NewValidator(cfg.Upload.MaxBytes), gw, store, pipeline.Options{DetectEncoding: true})

	router := NewRouter(cfg, Deps{
		Pipeline: p,
		History:  history.NewService(store, policy),
		Staging:  area,
		Policy:   policy,
		Verifier: identity.NewJWTVerifier(jwtSecret),
		Checks: map[string]handlers.Check{
			"store": store.Ping,
		},
	})
	t.Cleanup(router.Close)

	return &testServer{handler: router.Setup(), store: store, recognizer: rec, stagingDir: dir}
}

type part struct {
	field, fileName, contentType string
	body                         []byte
}

func multipartBody(t *testing.T, parts ...part) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, p := range parts {
		if p.fileName == "" {
			require.NoError(t, mw.WriteField(p.field, string(p.body)))
			continue
		}
		h := textproto.MIMEHeader{}
		h.Set("Content-Disposition", `form-data; name="`+p.field+`"; filename="`+p.fileName+`"`)
		h.Set("Content-Type", p.contentType)
		w, err := mw.CreatePart(h)
		require.NoError(t, err)
		_, err = w.Write(p.body)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func (s *testServer) do(t *testing.T, req *http.Request) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	var body map[string]any
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	}
	return rec, body
}

func (s *testServer) upload(t *testing.T, token string, parts ...part) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	body, ct := multipartBody(t, parts...)
	req := httptest.NewRequest(http.MethodPost, "/transcribe", body)
	req.Header.Set("Content-Type", ct)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return s.do(t, req)
}

func (s *testServer) history(t *testing.T, token, owner string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/transcriptions/"+owner, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return s.do(t, req)
}

func (s *testServer) assertStagingEmpty(t *testing.T) {
	t.Helper()
	entries, err := os.ReadDir(s.stagingDir)
	require.NoError(t, err)
	assert.Empty(t, entries, "staged uploads must be released")
}

func token(t *testing.T, sub string) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, identity.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub,
			Audience:  jwt.ClaimStrings{"authenticated"},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString([]byte(jwtSecret))
	require.NoError(t, err)
	return s
}

func silentWAV() []byte {
	var b bytes.Buffer
	samples := make([]byte, 3200)
	b.WriteString("RIFF")
	binary.Write(&b, binary.LittleEndian, uint32(36+len(samples)))
	b.WriteString("WAVEfmt ")
	binary.Write(&b, binary.LittleEndian, uint32(16))
	binary.Write(&b, binary.LittleEndian, uint16(1))
	binary.Write(&b, binary.LittleEndian, uint16(1))
	binary.Write(&b, binary.LittleEndian, uint32(8000))
	binary.Write(&b, binary.LittleEndian, uint32(16000))
	binary.Write(&b, binary.LittleEndian, uint16(2))
	binary.Write(&b, binary.LittleEndian, uint16(16))
	b.WriteString("data")
	binary.Write(&b, binary.LittleEndian, uint32(len(samples)))
	b.Write(samples)
	return b.Bytes()
}

func mp3(text string) []byte { return []byte("ID3" + text) }

func transcriptions(t *testing.T, body map[string]any) []map[string]any {
	t.Helper()
	raw, ok := body["transcriptions"].([]any)
	require.True(t, ok, "transcriptions must be an array, got %v", body["transcriptions"])
	out := make([]map[string]any, 0, len(raw))
	for _, r := range raw {
		out = append(out, r.(map[string]any))
	}
	return out
}

func TestE2E_SilentWAVStoresNothing(t *testing.T) {
	s := newTestServer(t, true)

	rec, body := s.upload(t, "",
		part{field: "user_id", body: []byte("u1")},
		part{field: "audio", fileName: "silence.wav", contentType: "audio/wav", body: silentWAV()},
	)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "No speech detected", body["error"])
	assert.Equal(t, speech.EncodingLinear16, s.recognizer.last.Config.Encoding)
	assert.Equal(t, 8000, s.recognizer.last.Config.SampleRateHertz)

	list, err := s.store.ListByOwner(context.Background(), "u1")
	require.NoError(t, err)
	assert.Empty(t, list)
	s.assertStagingEmpty(t)
}

func TestE2E_HelloWorldIsPrivateToOwner(t *testing.T) {
	s := newTestServer(t, true)

	rec, _ := s.upload(t, "",
		part{field: "user_id", body: []byte("u1")},
		part{field: "audio", fileName: "old.mp3", contentType: "audio/mpeg", body: mp3("earlier take")},
	)
	require.Equal(t, http.StatusOK, rec.Code)

	rec, body := s.upload(t, "",
		part{field: "audio", fileName: "hello.mp3", contentType: "audio/mpeg", body: mp3("hello world")},
		part{field: "user_id", body: []byte("u1")},
	)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Success", body["message"])
	assert.Equal(t, "hello world", body["transcription"])
	assert.NotZero(t, body["id"])
	assert.NotEmpty(t, body["created_at"])
	assert.Equal(t, speech.EncodingMP3, s.recognizer.last.Config.Encoding)

	rec, body = s.history(t, "", "u1")
	require.Equal(t, http.StatusOK, rec.Code)
	list := transcriptions(t, body)
	require.Len(t, list, 2)
	assert.Equal(t, "hello world", list[0]["transcription"])
	assert.Equal(t, "hello.mp3", list[0]["file_name"])
	assert.Equal(t, "earlier take", list[1]["transcription"])

	rec, body = s.history(t, "", "u2")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, transcriptions(t, body))

	s.assertStagingEmpty(t)
}

func TestE2E_UploadRejections(t *testing.T) {
	tests := []struct {
		name       string
		parts      []part
		wantStatus int
		wantError  string
	}{
		{
			name:       "no file",
			parts:      []part{{field: "user_id", body: []byte("u1")}},
			wantStatus: http.StatusBadRequest,
			wantError:  "No file uploaded",
		},
		{
			name: "text file",
			parts: []part{
				{field: "user_id", body: []byte("u1")},
				{field: "audio", fileName: "notes.txt", contentType: "text/plain", body: []byte("hello")},
			},
			wantStatus: http.StatusBadRequest,
			wantError:  "Invalid file type",
		},
		{
			name: "too large",
			parts: []part{
				{field: "user_id", body: []byte("u1")},
				{field: "audio", fileName: "big.mp3", contentType: "audio/mpeg", body: bytes.Repeat([]byte("A"), 4096)},
			},
			wantStatus: http.StatusRequestEntityTooLarge,
			wantError:  "File too large",
		},
		{
			name:       "no owner",
			parts:      []part{{field: "audio", fileName: "hello.mp3", contentType: "audio/mpeg", body: mp3("hi")}},
			wantStatus: http.StatusBadRequest,
			wantError:  "User ID is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, true)
			rec, body := s.upload(t, "", tt.parts...)
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantError, body["error"])
			assert.Zero(t, s.recognizer.calls)
			s.assertStagingEmpty(t)
		})
	}
}

func TestE2E_BlankOwnerIsRefusedBeforeStaging(t *testing.T) {
	s := newTestServer(t, true)
	// Staging would fail loudly if the audio part were written to disk.
	require.NoError(t, os.RemoveAll(s.stagingDir))

	rec, body := s.upload(t, "",
		part{field: "user_id", body: []byte("   ")},
		part{field: "audio", fileName: "hello.mp3", contentType: "audio/mpeg", body: mp3("hi")},
	)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "User ID is required", body["error"])
	assert.Zero(t, s.recognizer.calls)
	assert.NoDirExists(t, s.stagingDir)
}

func TestE2E_NotMultipart(t *testing.T) {
	s := newTestServer(t, true)
	req := httptest.NewRequest(http.MethodPost, "/transcribe", strings.NewReader(`{"audio":"aGVsbG8="}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token(t, "u1"))

	rec, body := s.do(t, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "No file uploaded", body["error"])
}

func TestE2E_RecognizerFailure(t *testing.T) {
	s := newTestServer(t, true)
	rec, body := s.upload(t, "",
		part{field: "user_id", body: []byte("u1")},
		part{field: "audio", fileName: "x.mp3", contentType: "audio/mpeg", body: []byte("FAIL")},
	)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Speech-to-Text failed", body["error"])
	s.assertStagingEmpty(t)
}

func TestE2E_TokenWinsOverFormField(t *testing.T) {
	s := newTestServer(t, true)

	rec, _ := s.upload(t, token(t, "u1"),
		part{field: "user_id", body: []byte("u2")},
		part{field: "audio", fileName: "hello.mp3", contentType: "audio/mpeg", body: mp3("mine")},
	)
	require.Equal(t, http.StatusOK, rec.Code)

	u1, err := s.store.ListByOwner(context.Background(), "u1")
	require.NoError(t, err)
	assert.Len(t, u1, 1)
	u2, err := s.store.ListByOwner(context.Background(), "u2")
	require.NoError(t, err)
	assert.Empty(t, u2)
}

func TestE2E_StrictIdentity(t *testing.T) {
	s := newTestServer(t, false)

	rec, body := s.upload(t, "",
		part{field: "user_id", body: []byte("u1")},
		part{field: "audio", fileName: "hello.mp3", contentType: "audio/mpeg", body: mp3("hi")},
	)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "User ID is required", body["error"])
	assert.Zero(t, s.recognizer.calls)
	s.assertStagingEmpty(t)

	rec, _ = s.upload(t, token(t, "u1"),
		part{field: "audio", fileName: "hello.mp3", contentType: "audio/mpeg", body: mp3("hi")},
	)
	require.Equal(t, http.StatusOK, rec.Code)

	rec, _ = s.history(t, "", "u1")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, _ = s.history(t, token(t, "u2"), "u1")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, body = s.history(t, token(t, "u1"), "u1")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, transcriptions(t, body), 1)

	rec, _ = s.history(t, "not-a-token", "u1")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestE2E_StoreFailure(t *testing.T) {
	s := newTestServer(t, true)
	require.NoError(t, s.store.Close())

	rec, body := s.upload(t, "",
		part{field: "user_id", body: []byte("u1")},
		part{field: "audio", fileName: "hello.mp3", contentType: "audio/mpeg", body: mp3("lost")},
	)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Failed to save transcription", body["error"])
	assert.Nil(t, body["transcription"])

	rec, body = s.history(t, "", "u1")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Failed to fetch transcriptions", body["error"])

	rec, _ = s.do(t, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHealthEndpoints(t *testing.T) {
	s := newTestServer(t, true)

	rec, _ := s.do(t, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	b, _ := io.ReadAll(rec.Body)
	assert.Equal(t, "API is running...", string(b))

	rec, body := s.do(t, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body["status"])

	rec, body = s.do(t, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]any{"store": "ok"}, body["checks"])
}

func TestCORSPreflight(t *testing.T) {
	s := newTestServer(t, true)
	req := httptest.NewRequest(http.MethodOptions, "/transcribe", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)

	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	assert.Equal(t, "http://localhost:5173", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestAuthRoutesAbsentWithoutSupabase(t *testing.T) {
	s := newTestServer(t, true)
	rec, _ := s.do(t, httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{}`)))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
