package events

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readJSONLines(t *testing.T, path string) []map[string]interface{} {
	t.Helper()

	file, err := os.Open(path)
	require.NoError(t, err)
	defer file.Close()

	var lines []map[string]interface{}
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &entry))
		lines = append(lines, entry)
	}
	require.NoError(t, scanner.Err())
	return lines
}

func TestSinkEmit(t *testing.T) {
	tmpDir := t.TempDir()

	sink, err := NewSink(tmpDir)
	require.NoError(t, err)
	defer sink.Close()

	sink.Emit(Event{
		Type:     TypeLLMUsage,
		TaskID:   "task-1",
		Category: "task",
		Fields: map[string]interface{}{
			"model": "anthropic/claude-sonnet-4.6",
			"cost":  0.0123,
		},
	})
	sink.Emit(Event{Type: TypeToolTimeout, TaskID: "task-1"})

	lines := readJSONLines(t, filepath.Join(tmpDir, "events.jsonl"))
	require.Len(t, lines, 2)

	assert.Equal(t, "llm_usage", lines[0]["type"])
	assert.Equal(t, "task-1", lines[0]["task_id"])
	assert.Equal(t, "anthropic/claude-sonnet-4.6", lines[0]["model"])
	assert.NotEmpty(t, lines[0]["ts"])
	assert.Equal(t, "tool_timeout", lines[1]["type"])
}

func TestSinkAudit(t *testing.T) {
	tmpDir := t.TempDir()

	sink, err := NewSink(tmpDir)
	require.NoError(t, err)
	defer sink.Close()

	sink.Audit(AuditRecord{
		Tool:          "repo_read",
		TaskID:        "task-2",
		Args:          map[string]interface{}{"path": "README.md"},
		ResultPreview: "# Ouro",
	})

	lines := readJSONLines(t, filepath.Join(tmpDir, "tools.jsonl"))
	require.Len(t, lines, 1)
	assert.Equal(t, "repo_read", lines[0]["tool"])
	assert.Equal(t, "# Ouro", lines[0]["result_preview"])
	assert.NotEmpty(t, lines[0]["id"])
}

func TestSanitizeArgs(t *testing.T) {
	t.Run("redacts secret keys", func(t *testing.T) {
		sanitized := SanitizeArgs(map[string]interface{}{
			"path":    "notes.md",
			"api_key": "sk-live-abcdef",
			"Token":   "xyz",
		})

		assert.Equal(t, "notes.md", sanitized["path"])
		assert.Equal(t, "[redacted]", sanitized["api_key"])
		assert.Equal(t, "[redacted]", sanitized["Token"])
	})

	t.Run("truncates oversize values", func(t *testing.T) {
		sanitized := SanitizeArgs(map[string]interface{}{
			"content": strings.Repeat("a", 2000),
		})

		value := sanitized["content"].(string)
		assert.LessOrEqual(t, len(value), maxLoggedValueLen+3)
		assert.True(t, strings.HasSuffix(value, "..."))
	})

	t.Run("nil args", func(t *testing.T) {
		assert.NotNil(t, SanitizeArgs(nil))
	})
}

func TestTruncateForLog(t *testing.T) {
	assert.Equal(t, "short", TruncateForLog("short", 100))

	long := strings.Repeat("x", 300)
	truncated := TruncateForLog(long, 100)
	assert.Contains(t, truncated, "truncated from 300 chars")
	assert.True(t, strings.HasPrefix(truncated, long[:100]))
}
