package logger

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsolatedLoggerWritesJSONLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	l := NewIsolatedLogger(path)

	l.Info("Pipeline", "query executed", map[string]interface{}{"records": 3})
	l.Debug("Pipeline", "below file level", nil)
	l.Error("Retrieval", "query failed", map[string]interface{}{"error": "boom"})
	require.NoError(t, l.Sync())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var entries []map[string]interface{}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &entry))
		entries = append(entries, entry)
	}

	require.Len(t, entries, 2)
	assert.Equal(t, "INFO", entries[0]["level"])
	assert.Equal(t, "Pipeline", entries[0]["module"])
	assert.Equal(t, "query executed", entries[0]["message"])
	assert.Equal(t, "ERROR", entries[1]["level"])
	assert.Equal(t, "boom", entries[1]["error_ref"])
}

func TestNopLoggerAcceptsNilDetails(t *testing.T) {
	var l ILogger = NewNopLogger()
	assert.NotPanics(t, func() {
		l.Warn("Test", "nothing", nil)
		_ = l.Sync()
	})
}
