package page

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Element describes one interactive element the way the extension
// annotates it before sending a snapshot to the backend.
type Element struct {
	ID   string `json:"id"`
	Tag  string `json:"tag"`
	Text string `json:"text"`
	Type string `json:"type,omitempty"`
	Role string `json:"role,omitempty"`
}

// ErrEmptySnapshot is reported when a caller supplies no page elements.
var ErrEmptySnapshot = errors.New("page snapshot is empty")

// ValidateSnapshot checks that the caller supplied a usable element list.
// Entries without an id cannot be acted on by the extension and are rejected.
func ValidateSnapshot(elements []Element) error {
	if len(elements) == 0 {
		return ErrEmptySnapshot
	}
	for i, el := range elements {
		if strings.TrimSpace(el.ID) == "" {
			return fmt.Errorf("element %d has no id", i)
		}
	}
	return nil
}

// SnapshotJSON renders the element list the way it is embedded into
// reasoning prompts. Indented so the model sees one field per line.
func SnapshotJSON(elements []Element) (string, error) {
	data, err := json.MarshalIndent(elements, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal snapshot: %w", err)
	}
	return string(data), nil
}
