package reason

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polzovatel/elder-web-guide/internal/llm"
)

// scriptedClient replays canned replies in order.
type scriptedClient struct {
	name    string
	replies []string
	err     error
	calls   int
}

func (c *scriptedClient) Name() string { return c.name }

func (c *scriptedClient) Generate(_ context.Context, _ llm.Request) (llm.Response, error) {
	c.calls++
	if c.err != nil {
		return llm.Response{}, c.err
	}
	reply := c.replies[len(c.replies)-1]
	if c.calls-1 < len(c.replies) {
		reply = c.replies[c.calls-1]
	}
	return llm.Response{Text: reply}, nil
}

func registry(clients ...*scriptedClient) map[string]llm.Client {
	m := make(map[string]llm.Client)
	for _, c := range clients {
		m[c.name] = c
	}
	return m
}

func echoToolbox(t *testing.T, log *[]string) *Toolbox {
	t.Helper()
	tb := NewToolbox()
	tb.Register("echo", "echo back the value", schema{"value": str("value to echo")}, []string{"value"},
		func(_ context.Context, input map[string]any) (string, error) {
			v, err := requiredString(input, "value")
			if err != nil {
				return "", err
			}
			*log = append(*log, v)
			return "echoed " + v, nil
		})
	return tb
}

func TestRunSingleShot(t *testing.T) {
	c := &scriptedClient{name: "anthropic", replies: []string{"final answer"}}
	r := NewRunner(registry(c), zerolog.Nop())

	out, err := r.Run(context.Background(), Request{Input: "hello", Models: []string{"anthropic"}})
	require.NoError(t, err)
	assert.Equal(t, "final answer", out)
	assert.Equal(t, 1, c.calls)
}

func TestRunToolLoop(t *testing.T) {
	c := &scriptedClient{name: "anthropic", replies: []string{
		`{"action": "echo", "input": {"value": "ping"}}`,
		"1. All done",
	}}
	r := NewRunner(registry(c), zerolog.Nop())
	var invoked []string

	out, err := r.Run(context.Background(), Request{
		Input:    "do the thing",
		Models:   []string{"anthropic"},
		Tools:    []string{"echo"},
		MaxSteps: 5,
		Toolbox:  echoToolbox(t, &invoked),
	})
	require.NoError(t, err)
	assert.Equal(t, "1. All done", out)
	assert.Equal(t, []string{"ping"}, invoked)
	assert.Equal(t, 2, c.calls)
}

func TestRunBudgetExhausted(t *testing.T) {
	// The model never stops calling the tool; the loop must.
	c := &scriptedClient{name: "anthropic", replies: []string{`{"action": "echo", "input": {"value": "again"}}`}}
	r := NewRunner(registry(c), zerolog.Nop())
	var invoked []string

	out, err := r.Run(context.Background(), Request{
		Input:    "loop forever",
		Models:   []string{"anthropic"},
		Tools:    []string{"echo"},
		MaxSteps: 3,
		Toolbox:  echoToolbox(t, &invoked),
	})
	require.NoError(t, err)
	assert.NotEmpty(t, out)
	assert.Equal(t, 3, c.calls)
	assert.Len(t, invoked, 3)
}

func TestRunStreamRejected(t *testing.T) {
	r := NewRunner(registry(&scriptedClient{name: "anthropic", replies: []string{"x"}}), zerolog.Nop())
	_, err := r.Run(context.Background(), Request{Input: "hi", Stream: true})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "streaming")
}

func TestRunUnknownBackend(t *testing.T) {
	r := NewRunner(registry(&scriptedClient{name: "anthropic", replies: []string{"x"}}), zerolog.Nop())
	_, err := r.Run(context.Background(), Request{Input: "hi", Models: []string{"mystery"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mystery")
}

func TestRunUnknownTool(t *testing.T) {
	r := NewRunner(registry(&scriptedClient{name: "anthropic", replies: []string{"x"}}), zerolog.Nop())
	_, err := r.Run(context.Background(), Request{
		Input:   "hi",
		Models:  []string{"anthropic"},
		Tools:   []string{"nonexistent"},
		Toolbox: NewToolbox(),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nonexistent")
}

func TestRunBackendFallback(t *testing.T) {
	broken := &scriptedClient{name: "openai", err: errors.New("connection refused")}
	working := &scriptedClient{name: "anthropic", replies: []string{"rescued"}}
	r := NewRunner(registry(broken, working), zerolog.Nop())

	out, err := r.Run(context.Background(), Request{Input: "hi", Models: []string{"openai", "anthropic"}})
	require.NoError(t, err)
	assert.Equal(t, "rescued", out)
	assert.Equal(t, 1, broken.calls)
	assert.Equal(t, 1, working.calls)
}

func TestRunAllBackendsFail(t *testing.T) {
	broken := &scriptedClient{name: "openai", err: errors.New("connection refused")}
	r := NewRunner(registry(broken), zerolog.Nop())

	_, err := r.Run(context.Background(), Request{Input: "hi", Models: []string{"openai"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "all backends failed")
}

func TestExtractJSON(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{`{"a": 1}`, `{"a": 1}`},
		{`prefix {"a": {"b": 2}} suffix`, `{"a": {"b": 2}}`},
		{`{"text": "brace } in string"}`, `{"text": "brace } in string"}`},
		{`{"text": "escaped \" quote}"}`, `{"text": "escaped \" quote}"}`},
	}
	for _, tc := range cases {
		got, err := ExtractJSON(tc.in)
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got, tc.in)
	}

	_, err := ExtractJSON("no json here")
	assert.Error(t, err)
	_, err = ExtractJSON(`{"unclosed": true`)
	assert.Error(t, err)
}

func TestParseAction(t *testing.T) {
	action, input, ok := parseAction(`{"action": "echo", "input": {"value": "x"}}`)
	require.True(t, ok)
	assert.Equal(t, "echo", action)
	assert.Equal(t, "x", input["value"])

	_, _, ok = parseAction("plain text answer")
	assert.False(t, ok)

	_, _, ok = parseAction(`{"input": {"value": "x"}}`)
	assert.False(t, ok)

	// Missing input still parses with an empty object.
	action, input, ok = parseAction(`{"action": "echo"}`)
	require.True(t, ok)
	assert.Equal(t, "echo", action)
	assert.NotNil(t, input)
}
