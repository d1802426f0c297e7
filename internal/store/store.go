// Package store persists the per-session Instruction Document: the
// conversation so far, every generated instruction set, and the element
// selected for each step. One JSON file per session, rewritten whole on
// every mutation.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/polzovatel/elder-web-guide/internal/page"
)

var (
	// ErrNotFound signals a missing or unreadable session document. Write
	// paths heal this by starting from an empty document; read paths
	// surface it together with an empty result.
	ErrNotFound = errors.New("session document missing or unreadable")

	// ErrNoInstructions signals a document that has no generated
	// instructions yet.
	ErrNoInstructions = errors.New("no instructions in session document")
)

// SelectedElement records which page element (if any) a step resolved to.
// A nil SelectedElement means the step needs no interaction.
type SelectedElement struct {
	StepNumber      int           `json:"step_number"`
	StepText        string        `json:"step_text"`
	SelectedElement *page.Element `json:"selected_element"`
	Timestamp       time.Time     `json:"timestamp"`
}

// Document is the full JSON shape of one session file.
type Document struct {
	Convo            []json.RawMessage `json:"convo"`
	Instructions     []string          `json:"instructions"`
	SelectedElements []SelectedElement `json:"selected_elements"`
}

// Store reads and writes session documents under a single directory.
// Writes to the same session are serialized; two sessions never contend.
type Store struct {
	dir    string
	logger zerolog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func New(dir string, logger zerolog.Logger) *Store {
	return &Store{
		dir:    dir,
		logger: logger,
		locks:  make(map[string]*sync.Mutex),
	}
}

// MintSession returns a fresh session file key.
func (s *Store) MintSession() string {
	return uuid.NewString() + ".json"
}

// ReadConvo returns the conversation turns, oldest first.
func (s *Store) ReadConvo(session string) ([]json.RawMessage, error) {
	doc, err := s.load(session)
	if err != nil {
		return nil, err
	}
	return doc.Convo, nil
}

// AppendConvo records one conversation turn. A missing or corrupt document
// is replaced by an empty one first.
func (s *Store) AppendConvo(session string, turn any) error {
	raw, err := json.Marshal(turn)
	if err != nil {
		return fmt.Errorf("marshal convo turn: %w", err)
	}
	lock := s.lock(session)
	lock.Lock()
	defer lock.Unlock()

	doc := s.loadOrEmpty(session)
	doc.Convo = append(doc.Convo, raw)
	return s.save(session, doc)
}

// ReadInstructions returns the most recent instruction set.
func (s *Store) ReadInstructions(session string) (string, error) {
	doc, err := s.load(session)
	if err != nil {
		return "", err
	}
	if len(doc.Instructions) == 0 {
		return "", fmt.Errorf("%w: %s", ErrNoInstructions, session)
	}
	return doc.Instructions[len(doc.Instructions)-1], nil
}

// AppendInstructions adds a generated instruction set. The latest entry is
// the authoritative one.
func (s *Store) AppendInstructions(session, text string) error {
	lock := s.lock(session)
	lock.Lock()
	defer lock.Unlock()

	doc := s.loadOrEmpty(session)
	doc.Instructions = append(doc.Instructions, text)
	if err := s.save(session, doc); err != nil {
		return err
	}
	s.logger.Info().Str("session", session).Int("total", len(doc.Instructions)).Msg("instructions appended")
	return nil
}

// UpsertSelectedElement stores the selection for one step. A record with
// the same step number is replaced in place; otherwise a new record is
// appended with the current time.
func (s *Store) UpsertSelectedElement(session string, stepNumber int, stepText string, element *page.Element) error {
	lock := s.lock(session)
	lock.Lock()
	defer lock.Unlock()

	doc := s.loadOrEmpty(session)
	record := SelectedElement{
		StepNumber:      stepNumber,
		StepText:        stepText,
		SelectedElement: element,
		Timestamp:       time.Now(),
	}
	replaced := false
	for i := range doc.SelectedElements {
		if doc.SelectedElements[i].StepNumber == stepNumber {
			doc.SelectedElements[i] = record
			replaced = true
			break
		}
	}
	if !replaced {
		doc.SelectedElements = append(doc.SelectedElements, record)
	}
	if err := s.save(session, doc); err != nil {
		return err
	}
	s.logger.Info().
		Str("session", session).
		Int("step", stepNumber).
		Bool("replaced", replaced).
		Msg("selected element saved")
	return nil
}

// InstructionCount reports how many instruction sets the session holds.
// Missing or corrupt documents count as zero.
func (s *Store) InstructionCount(session string) int {
	doc, err := s.load(session)
	if err != nil {
		return 0
	}
	return len(doc.Instructions)
}

// SelectedElements returns the per-step selection records in stored order.
func (s *Store) SelectedElements(session string) ([]SelectedElement, error) {
	doc, err := s.load(session)
	if err != nil {
		return nil, err
	}
	return doc.SelectedElements, nil
}

func (s *Store) lock(session string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[session]
	if !ok {
		l = &sync.Mutex{}
		s.locks[session] = l
	}
	return l
}

func (s *Store) path(session string) string {
	return filepath.Join(s.dir, session)
}

func (s *Store) load(session string) (Document, error) {
	data, err := os.ReadFile(s.path(session))
	if err != nil {
		return Document{}, fmt.Errorf("%w: %s", ErrNotFound, session)
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return Document{}, fmt.Errorf("%w: %s: %v", ErrNotFound, session, err)
	}
	return doc, nil
}

// loadOrEmpty backs every write path: a document that cannot be read is
// treated as empty rather than as a fatal error.
func (s *Store) loadOrEmpty(session string) Document {
	doc, err := s.load(session)
	if err != nil {
		s.logger.Warn().Str("session", session).Err(err).Msg("starting from empty document")
		return Document{}
	}
	return doc
}

func (s *Store) save(session string, doc Document) error {
	if doc.Convo == nil {
		doc.Convo = []json.RawMessage{}
	}
	if doc.Instructions == nil {
		doc.Instructions = []string{}
	}
	if doc.SelectedElements == nil {
		doc.SelectedElements = []SelectedElement{}
	}
	data, err := json.MarshalIndent(doc, "", "    ")
	if err != nil {
		return fmt.Errorf("marshal document: %w", err)
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}
	if err := os.WriteFile(s.path(session), data, 0o644); err != nil {
		return fmt.Errorf("write document: %w", err)
	}
	return nil
}
