package log

import (
	"bytes"
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLevels(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(os.Stderr)

	SetLevel(LevelInfo)
	Debug("hidden", "k", 1)
	Info("layout recomputed", "groups", 3, "dangling")
	Error("fetch failed", errors.New("boom"), "id", "rooms")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "layout recomputed")
	assert.Contains(t, out, "groups=3")
	assert.NotContains(t, out, "dangling")
	assert.Contains(t, out, "err=boom")
	assert.Contains(t, out, "id=rooms")

	buf.Reset()
	SetLevel(LevelDebug)
	Debug("visible")
	assert.Contains(t, buf.String(), "visible")
	SetLevel(LevelInfo)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LevelDebug, ParseLevel("debug"))
	assert.Equal(t, LevelError, ParseLevel(" Error "))
	assert.Equal(t, LevelInfo, ParseLevel("verbose"))
}
