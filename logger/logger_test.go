package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogger_JSONFieldMap(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")

	l := New(Options{Level: "debug"})
	buf := &bytes.Buffer{}
	l.SetOutput(buf)

	l.WithComponent("client").WithFields(Fields{"chain": 1}).Info("fetched")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "fetched", line["message"])
	assert.Equal(t, "info", line["level"])
	assert.Equal(t, "client", line["component"])
	assert.EqualValues(t, 1, line["chain"])
	assert.Contains(t, line, "timestamp")
}

func TestLogger_EnvOverridesLevel(t *testing.T) {
	t.Setenv("LOG_LEVEL", "error")

	l := New(Options{Level: "debug"})
	buf := &bytes.Buffer{}
	l.SetOutput(buf)

	l.WithComponent("x").Info("dropped")
	assert.Empty(t, buf.String())
}

func TestOrDiscard(t *testing.T) {
	e := OrDiscard(nil, "cache")
	require.NotNil(t, e)
	assert.Equal(t, "cache", e.Data["component"])

	own := Discard().WithComponent("mine")
	assert.Same(t, own, OrDiscard(own, "cache"))
}
