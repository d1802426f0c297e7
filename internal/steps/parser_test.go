package steps

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseNumberedLines(t *testing.T) {
	got, err := Parse("1. Open the website\n2. Click the Sign in button\n3. Type your email")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"1. Open the website",
		"2. Click the Sign in button",
		"3. Type your email",
	}, got)
}

func TestParseAbsorbsContinuationLines(t *testing.T) {
	got, err := Parse("1. Click the blue button\nat the top of the page\n2. Wait for the page to load")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "1. Click the blue button at the top of the page", got[0])
}

func TestParseIgnoresPreamble(t *testing.T) {
	got, err := Parse("Here is what to do:\n\n1. Click Search\n2. Press Enter")
	require.NoError(t, err)
	assert.Equal(t, []string{"1. Click Search", "2. Press Enter"}, got)
}

func TestParseNoSteps(t *testing.T) {
	_, err := Parse("")
	assert.ErrorIs(t, err, ErrNoSteps)

	_, err = Parse("   \n\t\n")
	assert.ErrorIs(t, err, ErrNoSteps)

	_, err = Parse("no numbers here, just prose about clicking things")
	assert.ErrorIs(t, err, ErrNoSteps)
}

func TestParseDotMustBeNearStart(t *testing.T) {
	// A leading digit without an early dot is prose, not a step.
	_, err := Parse("2 out of 3 people click here. Trust me")
	assert.ErrorIs(t, err, ErrNoSteps)
}

func TestParseNonSequentialNumbering(t *testing.T) {
	// Numbering text is not validated; order comes from position.
	got, err := Parse("1. First\n5. Second\n2. Third")
	require.NoError(t, err)
	assert.Len(t, got, 3)
	assert.Equal(t, "5. Second", got[1])
}

func TestParseDoubleDigit(t *testing.T) {
	got, err := Parse("10. Scroll to the bottom")
	require.NoError(t, err)
	assert.Equal(t, []string{"10. Scroll to the bottom"}, got)
}
