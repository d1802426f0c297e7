// Package server is the HTTP gateway the browser extension talks to.
// Business logic lives below it; here it's routing, validation and the
// uniform {"status": ...} envelope.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/polzovatel/elder-web-guide/internal/config"
	"github.com/polzovatel/elder-web-guide/internal/page"
	"github.com/polzovatel/elder-web-guide/internal/selector"
	"github.com/polzovatel/elder-web-guide/internal/steps"
	"github.com/polzovatel/elder-web-guide/internal/store"
)

// InstructionGenerator produces and persists a numbered instruction set.
type InstructionGenerator interface {
	Generate(ctx context.Context, session, message string, elements []page.Element) (string, error)
}

// StepSelector drives per-step element selection.
type StepSelector interface {
	SelectStep(ctx context.Context, session string, elements []page.Element, index int) (selector.StepResult, error)
	SelectAll(ctx context.Context, session string, elements []page.Element) ([]selector.StepResult, error)
}

// SessionStore is the slice of the store the gateway needs directly.
type SessionStore interface {
	MintSession() string
	SelectedElements(session string) ([]store.SelectedElement, error)
}

type Server struct {
	cfg       config.Config
	store     SessionStore
	generator InstructionGenerator
	selector  StepSelector
	speech    *speechProxy
	logger    zerolog.Logger
}

func New(cfg config.Config, st SessionStore, gen InstructionGenerator, sel StepSelector, apiKey string, logger zerolog.Logger) *Server {
	return &Server{
		cfg:       cfg,
		store:     st,
		generator: gen,
		selector:  sel,
		speech:    newSpeechProxy(cfg.Speech, apiKey, logger.With().Str("comp", "speech").Logger()),
		logger:    logger,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(allowCORS)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		s.writeJSON(w, http.StatusOK, envelope{"status": "success"})
	})
	r.Post("/sessions", s.handleNewSession)
	r.Post("/instructions", s.handleInstructions)
	r.Post("/select-step", s.handleSelectStep)
	r.Post("/select-all", s.handleSelectAll)
	r.Get("/history", s.handleHistory)
	r.Post("/transcribe", s.speech.handleTranscribe)
	r.Post("/speak", s.speech.handleSpeak)
	return r
}

// Serve runs until the context is cancelled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.cfg.Server.Addr,
		Handler: s.Router(),
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	s.logger.Info().Str("addr", s.cfg.Server.Addr).Msg("gateway listening")

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

type envelope map[string]any

type instructionsRequest struct {
	Message          string         `json:"message"`
	Context          []page.Element `json:"context"`
	InstructionsFile string         `json:"instructions_file"`
}

type selectStepRequest struct {
	AnnotatedHTML    []page.Element `json:"annotated_html"`
	StepIndex        *int           `json:"step_index"`
	InstructionsFile string         `json:"instructions_file"`
}

type selectAllRequest struct {
	AnnotatedHTML    []page.Element `json:"annotated_html"`
	InstructionsFile string         `json:"instructions_file"`
}

func (s *Server) handleNewSession(w http.ResponseWriter, r *http.Request) {
	session := s.store.MintSession()
	s.logger.Info().Str("session", session).Msg("session minted")
	s.writeJSON(w, http.StatusOK, envelope{"status": "success", "session": session})
}

func (s *Server) handleInstructions(w http.ResponseWriter, r *http.Request) {
	var req instructionsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		s.writeError(w, http.StatusBadRequest, "message is required")
		return
	}
	session, ok := s.session(w, req.InstructionsFile)
	if !ok {
		return
	}

	text, err := s.generator.Generate(r.Context(), session, req.Message, req.Context)
	if err != nil {
		s.logger.Error().Err(err).Str("session", session).Msg("instruction generation failed")
		s.writeError(w, http.StatusInternalServerError, "failed to write instructions")
		return
	}
	s.writeJSON(w, http.StatusOK, envelope{
		"status":       "success",
		"result":       "successfully wrote instructions",
		"instructions": text,
	})
}

func (s *Server) handleSelectStep(w http.ResponseWriter, r *http.Request) {
	var req selectStepRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := page.ValidateSnapshot(req.AnnotatedHTML); err != nil {
		s.writeError(w, http.StatusBadRequest, "annotated_html: "+err.Error())
		return
	}
	index := 0
	if req.StepIndex != nil {
		index = *req.StepIndex
	}
	if index < 0 {
		s.writeError(w, http.StatusBadRequest, "step_index must not be negative")
		return
	}
	session, ok := s.session(w, req.InstructionsFile)
	if !ok {
		return
	}

	result, err := s.selector.SelectStep(r.Context(), session, req.AnnotatedHTML, index)
	if err != nil {
		s.writeSelectionError(w, session, err)
		return
	}
	s.writeJSON(w, http.StatusOK, envelope{"status": "success", "result": result})
}

func (s *Server) handleSelectAll(w http.ResponseWriter, r *http.Request) {
	var req selectAllRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := page.ValidateSnapshot(req.AnnotatedHTML); err != nil {
		s.writeError(w, http.StatusBadRequest, "annotated_html: "+err.Error())
		return
	}
	session, ok := s.session(w, req.InstructionsFile)
	if !ok {
		return
	}

	results, err := s.selector.SelectAll(r.Context(), session, req.AnnotatedHTML)
	if err != nil {
		s.writeSelectionError(w, session, err)
		return
	}
	s.writeJSON(w, http.StatusOK, envelope{"status": "success", "results": results})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	session, ok := s.session(w, r.URL.Query().Get("instructions_file"))
	if !ok {
		return
	}
	records, err := s.store.SelectedElements(session)
	if err != nil {
		// Empty result plus an error signal: "no data yet" and "store
		// unavailable" look the same except for the message.
		s.logger.Warn().Err(err).Str("session", session).Msg("history read failed")
		s.writeJSON(w, http.StatusOK, envelope{
			"status":            "error",
			"message":           "no session data",
			"selected_elements": []store.SelectedElement{},
		})
		return
	}
	s.writeJSON(w, http.StatusOK, envelope{"status": "success", "selected_elements": records})
}

// writeSelectionError maps selection failures onto the envelope contract:
// a document with nothing to select is a normal error result, not a 5xx.
func (s *Server) writeSelectionError(w http.ResponseWriter, session string, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound), errors.Is(err, store.ErrNoInstructions):
		s.logger.Warn().Err(err).Str("session", session).Msg("no instructions for selection")
		s.writeJSON(w, http.StatusOK, envelope{"status": "error", "message": "no instructions found"})
	case errors.Is(err, steps.ErrNoSteps):
		s.logger.Error().Err(err).Str("session", session).Msg("instructions held no numbered steps")
		s.writeJSON(w, http.StatusOK, envelope{"status": "error", "message": "no steps parsed from instructions"})
	default:
		s.logger.Error().Err(err).Str("session", session).Msg("selection failed")
		s.writeError(w, http.StatusInternalServerError, "element selection failed")
	}
}

// session validates a caller-supplied file key. Only bare file names are
// allowed; anything path-like is rejected before it reaches the disk.
func (s *Server) session(w http.ResponseWriter, name string) (string, bool) {
	if strings.TrimSpace(name) == "" {
		return s.cfg.Sessions.DefaultFile, true
	}
	if name != filepath.Base(name) || strings.Contains(name, "..") {
		s.writeError(w, http.StatusBadRequest, "invalid instructions_file")
		return "", false
	}
	return name, true
}

func (s *Server) writeError(w http.ResponseWriter, code int, message string) {
	s.writeJSON(w, code, envelope{"status": "error", "message": message})
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error().Err(err).Msg("write response")
	}
}

// allowCORS lets the extension's content scripts call the gateway from any
// page origin.
func allowCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
