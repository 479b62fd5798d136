package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigureJSON(t *testing.T) {
	var buf bytes.Buffer
	Configure("debug", true, &buf)
	defer Configure("info", false, nil)

	For("store").WithField("wallet", "0x1").Debug("committed")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "store", line["component"])
	assert.Equal(t, "0x1", line["wallet"])
	assert.Equal(t, "committed", line["msg"])
}

func TestConfigureUnknownLevel(t *testing.T) {
	var buf bytes.Buffer
	Configure("chatty", false, &buf)
	defer Configure("info", false, nil)

	For("x").Debug("hidden")
	assert.Empty(t, buf.String())
	For("x").Info("shown")
	assert.Contains(t, buf.String(), "shown")
}
