package recorder

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONFileRecorder_Record(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit", "trail.jsonl")
	r := NewJSONFileRecorder(path)

	require.NoError(t, r.Record(map[string]any{"action": "TRIP", "account": "acc-1"}))
	require.NoError(t, r.Record(map[string]any{"action": "RESET", "account": "acc-1"}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], `"action":"TRIP"`)
	assert.Contains(t, lines[1], `"action":"RESET"`)
}
