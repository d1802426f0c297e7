package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/polzovatel/elder-web-guide/internal/config"
)

// speechProxy relays audio in and out of the OpenAI speech endpoints so the
// extension never holds the API key.
type speechProxy struct {
	cfg    config.SpeechConfig
	apiKey string
	client *http.Client
	logger zerolog.Logger
}

func newSpeechProxy(cfg config.SpeechConfig, apiKey string, logger zerolog.Logger) *speechProxy {
	return &speechProxy{
		cfg:    cfg,
		apiKey: apiKey,
		client: &http.Client{Timeout: 60 * time.Second},
		logger: logger,
	}
}

func (p *speechProxy) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	if p.apiKey == "" {
		writeEnvelope(w, http.StatusInternalServerError, envelope{"status": "error", "message": "speech backend not configured"})
		return
	}
	contentType := r.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "multipart/form-data") {
		writeEnvelope(w, http.StatusBadRequest, envelope{"status": "error", "message": "multipart/form-data body required"})
		return
	}

	// The multipart body is forwarded as-is; only the model field has to be
	// present, and the extension sends it alongside the audio part.
	req, err := http.NewRequestWithContext(r.Context(), http.MethodPost, p.cfg.TranscribeURL, r.Body)
	if err != nil {
		p.fail(w, err, "build transcribe request")
		return
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		p.fail(w, err, "transcribe upstream")
		return
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		p.fail(w, err, "read transcribe response")
		return
	}
	if resp.StatusCode != http.StatusOK {
		p.logger.Error().Int("status", resp.StatusCode).Str("body", string(body)).Msg("transcription rejected")
		writeEnvelope(w, http.StatusInternalServerError, envelope{"status": "error", "message": "transcription failed"})
		return
	}

	var parsed struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		p.fail(w, err, "decode transcribe response")
		return
	}
	writeEnvelope(w, http.StatusOK, envelope{"status": "success", "text": parsed.Text})
}

type speakRequest struct {
	Text  string `json:"text"`
	Voice string `json:"voice"`
}

func (p *speechProxy) handleSpeak(w http.ResponseWriter, r *http.Request) {
	if p.apiKey == "" {
		writeEnvelope(w, http.StatusInternalServerError, envelope{"status": "error", "message": "speech backend not configured"})
		return
	}
	var req speakRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeEnvelope(w, http.StatusBadRequest, envelope{"status": "error", "message": "invalid JSON body"})
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeEnvelope(w, http.StatusBadRequest, envelope{"status": "error", "message": "text is required"})
		return
	}
	voice := req.Voice
	if voice == "" {
		voice = p.cfg.SpeakVoice
	}

	payload, err := json.Marshal(map[string]string{
		"model": p.cfg.SpeakModel,
		"input": req.Text,
		"voice": voice,
	})
	if err != nil {
		p.fail(w, err, "encode speak request")
		return
	}
	upstream, err := http.NewRequestWithContext(r.Context(), http.MethodPost, p.cfg.SpeakURL, bytes.NewReader(payload))
	if err != nil {
		p.fail(w, err, "build speak request")
		return
	}
	upstream.Header.Set("Content-Type", "application/json")
	upstream.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(upstream)
	if err != nil {
		p.fail(w, err, "speak upstream")
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		p.logger.Error().Int("status", resp.StatusCode).Str("body", string(body)).Msg("speech synthesis rejected")
		writeEnvelope(w, http.StatusInternalServerError, envelope{"status": "error", "message": "speech synthesis failed"})
		return
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "audio/mpeg"
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, resp.Body); err != nil {
		p.logger.Error().Err(err).Msg("stream audio to client")
	}
}

func (p *speechProxy) fail(w http.ResponseWriter, err error, op string) {
	p.logger.Error().Err(err).Msg(op)
	writeEnvelope(w, http.StatusInternalServerError, envelope{"status": "error", "message": fmt.Sprintf("%s failed", strings.ReplaceAll(op, " request", ""))})
}

func writeEnvelope(w http.ResponseWriter, code int, v envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
