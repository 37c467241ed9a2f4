package logger

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readLines(t *testing.T, path string) []map[string]any {
	t.Helper()
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(string(b)), "\n") {
		var m map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &m), line)
		out = append(out, m)
	}
	return out
}

func TestCallerIsTheCallSite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.json")
	l := build(Config{Env: "prod", Output: []string{path}, ServiceName: "shardmeta"})

	l.Info("direct")
	ctx := ToContext(context.Background(), l.With(OpID("op-1")))
	From(ctx).Info("from context")
	SFrom(ctx).Infof("step %d", 1)
	require.NoError(t, l.Sync())

	lines := readLines(t, path)
	require.Len(t, lines, 3)
	for _, m := range lines {
		caller, _ := m["caller"].(string)
		assert.True(t, strings.HasPrefix(caller, "logger/logger_test.go:"), "%s: caller %q", m["msg"], caller)
		assert.Equal(t, "shardmeta", m["service"])
	}
	assert.Equal(t, "op-1", lines[1]["op_id"])
	assert.Equal(t, "op-1", lines[2]["op_id"])
	assert.Equal(t, "step 1", lines[2]["msg"])
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, "debug", parseLevel("DEBUG").String())
	assert.Equal(t, "warn", parseLevel("warning").String())
	assert.Equal(t, "info", parseLevel("nope").String())
}
