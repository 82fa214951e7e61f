package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func capture(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	SetOutput(&buf)
	t.Cleanup(func() {
		SetOutput(os.Stderr)
		SetLevel(INFO)
		SetRedactPII(true)
	})
	return &buf
}

func TestRedactPhone(t *testing.T) {
	assert.Equal(t, "+55*******8888", RedactPhone("+5511999998888"))
	assert.Equal(t, "55*******8888", RedactPhone("5511999998888"))
	assert.Equal(t, "***", RedactPhone("12345"))
	assert.Equal(t, "***", RedactPhone(""))
}

func TestLog_RedactsPhoneFields(t *testing.T) {
	buf := capture(t)
	Info("target queued", "wa_user_id", "5511999998888", "run_id", "r-1")

	var entry map[string]string
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "INFO", entry["level"])
	assert.Equal(t, "target queued", entry["msg"])
	assert.Equal(t, "55*******8888", entry["wa_user_id"])
	assert.Equal(t, "r-1", entry["run_id"])
}

func TestLog_RedactsEmbeddedPhones(t *testing.T) {
	buf := capture(t)
	Warn("dispatch rejected", "error", "invalid number +5511999998888 for instance")

	var entry map[string]string
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "invalid number +55*******8888 for instance", entry["error"])
}

func TestLog_RedactionDisabled(t *testing.T) {
	buf := capture(t)
	SetRedactPII(false)
	Info("x", "phone", "+5511999998888")

	var entry map[string]string
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "+5511999998888", entry["phone"])
}

func TestLog_LevelFilter(t *testing.T) {
	buf := capture(t)
	SetLevel(WARN)
	Info("dropped")
	Debug("dropped")
	assert.Zero(t, buf.Len())

	Error("kept")
	assert.Contains(t, buf.String(), `"level":"ERROR"`)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, DEBUG, ParseLevel("debug"))
	assert.Equal(t, WARN, ParseLevel(" warning "))
	assert.Equal(t, ERROR, ParseLevel("ERROR"))
	assert.Equal(t, INFO, ParseLevel("verbose"))
}
