package server

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polzovatel/elder-web-guide/internal/config"
)

func TestTranscribeForwardsMultipart(t *testing.T) {
	var gotAuth, gotContentType string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotContentType = r.Header.Get("Content-Type")
		_ = json.NewEncoder(w).Encode(map[string]string{"text": "hello world"})
	}))
	defer upstream.Close()

	cfg := config.DefaultConfig()
	cfg.Speech.TranscribeURL = upstream.URL
	p := newSpeechProxy(cfg.Speech, "test-key", zerolog.Nop())

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "audio.webm")
	require.NoError(t, err)
	_, err = part.Write([]byte("fake audio bytes"))
	require.NoError(t, err)
	require.NoError(t, mw.WriteField("model", "whisper-1"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/transcribe", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	p.handleTranscribe(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "success", body["status"])
	assert.Equal(t, "hello world", body["text"])
	assert.Equal(t, "Bearer test-key", gotAuth)
	assert.Contains(t, gotContentType, "multipart/form-data")
}

func TestTranscribeRejectsNonMultipart(t *testing.T) {
	p := newSpeechProxy(config.DefaultConfig().Speech, "test-key", zerolog.Nop())

	req := httptest.NewRequest(http.MethodPost, "/transcribe", bytes.NewReader([]byte("{}")))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	p.handleTranscribe(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSpeakRelaysAudio(t *testing.T) {
	var gotPayload map[string]string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotPayload))
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write([]byte("mp3 bytes"))
	}))
	defer upstream.Close()

	cfg := config.DefaultConfig()
	cfg.Speech.SpeakURL = upstream.URL
	p := newSpeechProxy(cfg.Speech, "test-key", zerolog.Nop())

	payload, _ := json.Marshal(map[string]string{"text": "read this aloud"})
	req := httptest.NewRequest(http.MethodPost, "/speak", bytes.NewReader(payload))
	rec := httptest.NewRecorder()
	p.handleSpeak(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "audio/mpeg", rec.Header().Get("Content-Type"))
	data, _ := io.ReadAll(rec.Body)
	assert.Equal(t, "mp3 bytes", string(data))
	assert.Equal(t, "read this aloud", gotPayload["input"])
	assert.Equal(t, cfg.Speech.SpeakVoice, gotPayload["voice"])
	assert.Equal(t, cfg.Speech.SpeakModel, gotPayload["model"])
}

func TestSpeakValidation(t *testing.T) {
	p := newSpeechProxy(config.DefaultConfig().Speech, "test-key", zerolog.Nop())

	payload, _ := json.Marshal(map[string]string{"text": "  "})
	req := httptest.NewRequest(http.MethodPost, "/speak", bytes.NewReader(payload))
	rec := httptest.NewRecorder()
	p.handleSpeak(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSpeakUpstreamRejection(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer upstream.Close()

	cfg := config.DefaultConfig()
	cfg.Speech.SpeakURL = upstream.URL
	p := newSpeechProxy(cfg.Speech, "test-key", zerolog.Nop())

	payload, _ := json.Marshal(map[string]string{"text": "hello"})
	req := httptest.NewRequest(http.MethodPost, "/speak", bytes.NewReader(payload))
	rec := httptest.NewRecorder()
	p.handleSpeak(rec, req)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
