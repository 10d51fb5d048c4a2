package telemetry_test

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/dailydrop/rewards/internal/platform/telemetry"
)

func TestNewLogger_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := telemetry.NewLogger("info", "json", &buf)

	logger.Info("test message", "key", "value")

	var entry map[string]interface{}
	err := json.Unmarshal(buf.Bytes(), &entry)
	require.NoError(t, err)

	assert.Equal(t, "test message", entry["msg"])
	assert.Equal(t, "value", entry["key"])
	assert.Equal(t, "INFO", entry["level"])
}

func TestNewLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := telemetry.NewLogger("warn", "json", &buf)

	logger.Info("should not appear")

	assert.Empty(t, buf.String())
}

func TestNewLogger_RedactsSecrets(t *testing.T) {
	var buf bytes.Buffer
	logger := telemetry.NewLogger("debug", "json", &buf)

	logger.Debug("verifying", "bot_token", "123456:ABC", "init_data", "user=%7B%7D&hash=ff", "len", 17)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))

	assert.Equal(t, "[redacted]", entry["bot_token"])
	assert.Equal(t, "[redacted]", entry["init_data"])
	assert.Equal(t, float64(17), entry["len"])
	assert.NotContains(t, buf.String(), "123456:ABC")
}

func TestNewLogger_Text(t *testing.T) {
	var buf bytes.Buffer
	logger := telemetry.NewLogger("info", "text", &buf)

	logger.Info("hello", "token", "secret")

	assert.Contains(t, buf.String(), "msg=hello")
	assert.Contains(t, buf.String(), "token=[redacted]")
	assert.NotContains(t, buf.String(), "secret")
}
