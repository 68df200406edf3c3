package plog

import (
	"bufio"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func readEntries(t *testing.T, path string) []map[string]interface{} {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	var entries []map[string]interface{}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		entry := map[string]interface{}{}
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &entry), scanner.Text())
		entries = append(entries, entry)
	}
	require.NoError(t, scanner.Err())
	return entries
}

func TestNewLevels(t *testing.T) {
	t.Parallel()
	tests := []struct {
		level    LogLevel
		messages []string
		levels   []string
	}{
		{LevelInfo, []string{"error", "info"}, []string{"error", "info"}},
		{"", []string{"error", "info"}, []string{"error", "info"}},
		{LevelDebug, []string{"error", "info", "debug"}, []string{"error", "info", "debug"}},
		{LevelTrace, []string{"error", "info", "debug", "trace"}, []string{"error", "info", "debug", "trace"}},
	}
	for _, test := range tests {
		test := test
		t.Run(string(test.level), func(t *testing.T) {
			t.Parallel()
			path := filepath.Join(t.TempDir(), "log.json")
			log, flush, err := New(Options{Level: test.level, OutputPaths: []string{path}})
			require.NoError(t, err)
			log.Error(errors.New("boom"), "error", "conn", "c1")
			log.Info("info")
			log.V(1).Info("debug")
			log.V(2).Info("trace")
			flush()
			entries := readEntries(t, path)
			require.Len(t, entries, len(test.messages))
			for i, entry := range entries {
				require.Equal(t, test.messages[i], entry["message"])
				require.Equal(t, test.levels[i], entry["level"])
				require.Contains(t, entry, "timestamp")
				require.Contains(t, entry, "caller")
			}
			require.Equal(t, "boom", entries[0]["error"])
			require.Equal(t, "c1", entries[0]["conn"])
		})
	}
}

func TestNewConsole(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "log.txt")
	log, flush, err := New(Options{Level: LevelInfo, Format: FormatConsole, OutputPaths: []string{path}})
	require.NoError(t, err)
	log.Info("listening", "addr", ":389")
	flush()
	buf, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(buf), "listening")
	require.Contains(t, string(buf), `"addr": ":389"`)
}

func TestNewInvalid(t *testing.T) {
	t.Parallel()
	_, _, err := New(Options{Level: "all"})
	require.ErrorIs(t, err, ErrInvalidLogLevel)
	_, _, err = New(Options{Format: "text"})
	require.ErrorIs(t, err, ErrInvalidLogFormat)
}

func TestNewWithCore(t *testing.T) {
	t.Parallel()
	core, logs := observer.New(zapcore.Level(-vDebug))
	log := NewWithCore(core)
	log.V(1).Info("connection opened", "conn", "c1")
	log.V(2).Info("request")
	require.Equal(t, 1, logs.Len())
	require.Equal(t, "connection opened", logs.All()[0].Message)
	require.Equal(t, "c1", logs.All()[0].ContextMap()["conn"])
}
