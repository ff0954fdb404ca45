package logging

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func observe(t *testing.T) *observer.ObservedLogs {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	UseCore(core)
	t.Cleanup(func() { UseCore(zapcore.NewNopCore()) })
	return logs
}

func TestCategoriesAreNamedLoggers(t *testing.T) {
	logs := observe(t)

	Registry("loaded %d entries", 3)
	Get(CategoryStore).Warn("slow scan: %s", "1s")
	UsageDebug("record voyage tokens=%d", 10)

	entries := logs.All()
	require.Len(t, entries, 3)
	assert.Equal(t, "registry", entries[0].LoggerName)
	assert.Equal(t, "loaded 3 entries", entries[0].Message)
	assert.Equal(t, "store", entries[1].LoggerName)
	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
	assert.Equal(t, zapcore.DebugLevel, entries[2].Level)
}

func TestDisabledCategoryIsSilent(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	install(zap.New(core), map[string]bool{"api": false})
	t.Cleanup(func() { UseCore(zapcore.NewNopCore()) })

	API("GET /health")
	Store("opened")

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "store", logs.All()[0].LoggerName)
}

func TestAuditCarriesFields(t *testing.T) {
	logs := observe(t)

	Audit(AuditEvent{
		Event:   AuditNameRegistered,
		Target:  "a1b2c3",
		Success: true,
		Fields:  map[string]interface{}{"name": "my-project"},
	})

	require.Equal(t, 1, logs.Len())
	ctx := logs.All()[0].ContextMap()
	assert.Equal(t, "name_registered", ctx["event"])
	assert.Equal(t, "a1b2c3", ctx["target"])
	assert.Equal(t, true, ctx["success"])
	assert.Equal(t, "my-project", ctx["name"])
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    zapcore.Level
		wantErr bool
	}{
		{"", zapcore.InfoLevel, false},
		{"debug", zapcore.DebugLevel, false},
		{"WARN", zapcore.WarnLevel, false},
		{"warning", zapcore.WarnLevel, false},
		{" error ", zapcore.ErrorLevel, false},
		{"verbose", zapcore.InfoLevel, true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestSetLevel(t *testing.T) {
	t.Cleanup(func() { _ = SetLevel("info") })

	require.NoError(t, SetLevel("debug"))
	assert.Equal(t, "debug", CurrentLevel())
	assert.Error(t, SetLevel("loud"))
	assert.Equal(t, "debug", CurrentLevel())
}

func TestInitializeRejectsUnknownFormat(t *testing.T) {
	err := Initialize(Config{Level: "info", Format: "xml"})
	assert.Error(t, err)
}

func TestConfigWatcherFiresOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "memoryd.yaml")
	require.NoError(t, os.WriteFile(path, []byte("logging:\n  level: info\n"), 0644))

	var calls atomic.Int32
	w, err := NewConfigWatcher(path, func() { calls.Add(1) })
	require.NoError(t, err)
	w.debounceDur = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	// Unrelated files in the same directory are ignored.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.txt"), []byte("x"), 0644))
	require.NoError(t, os.WriteFile(path, []byte("logging:\n  level: debug\n"), 0644))

	assert.Eventually(t, func() bool { return calls.Load() >= 1 }, 2*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}
