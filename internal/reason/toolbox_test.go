package reason

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polzovatel/elder-web-guide/internal/store"
)

func TestSessionToolboxReadConvo(t *testing.T) {
	st := store.New(t.TempDir(), zerolog.Nop())
	require.NoError(t, st.AppendConvo("s.json", "first message"))
	require.NoError(t, st.AppendConvo("s.json", "second message"))

	tb := SessionToolbox(st, "s.json")
	out, err := tb.Invoke(context.Background(), "read_convo", map[string]any{})
	require.NoError(t, err)
	assert.Contains(t, out, "first message")
	assert.Contains(t, out, "second message")
}

func TestSessionToolboxWriteInstructions(t *testing.T) {
	st := store.New(t.TempDir(), zerolog.Nop())
	tb := SessionToolbox(st, "s.json")

	out, err := tb.Invoke(context.Background(), "write_instructions", map[string]any{
		"instructions": "1. Click Search\n2. Press Enter",
	})
	require.NoError(t, err)
	assert.Equal(t, "instructions saved", out)

	got, err := st.ReadInstructions("s.json")
	require.NoError(t, err)
	assert.Equal(t, "1. Click Search\n2. Press Enter", got)
}

func TestSessionToolboxWriteInstructionsValidation(t *testing.T) {
	st := store.New(t.TempDir(), zerolog.Nop())
	tb := SessionToolbox(st, "s.json")

	_, err := tb.Invoke(context.Background(), "write_instructions", map[string]any{})
	assert.Error(t, err)

	_, err = tb.Invoke(context.Background(), "write_instructions", map[string]any{"instructions": "   "})
	assert.Error(t, err)
}

func TestToolboxUnknownTool(t *testing.T) {
	tb := NewToolbox()
	_, err := tb.Invoke(context.Background(), "missing", nil)
	assert.Error(t, err)

	_, ok := tb.Describe("missing")
	assert.False(t, ok)
}
