package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memoryd/internal/config"
	"memoryd/internal/store"
	"memoryd/internal/usage"
)

// testConfig writes a mock-provider config into a fresh data dir.
func testConfig(t *testing.T) (string, *config.Config) {
	t.Helper()
	for _, k := range []string{
		"MEMORYD_DATA_DIR", "MEMORYD_ADDR", "MEMORYD_DB", "MEMORYD_LOG_LEVEL",
		"MEMORYD_EMBEDDING_PROVIDER", "VOYAGE_API_KEY", "GEMINI_API_KEY", "OLLAMA_HOST",
	} {
		t.Setenv(k, "")
	}

	dir := t.TempDir()
	c := config.DefaultConfig()
	c.Data.Dir = filepath.Join(dir, "data")
	c.Server.Addr = "127.0.0.1:0"
	c.Embedding.Provider = "mock"
	c.Embedding.Dimensions = 8
	c.Logging.Level = "error"
	c.Costs.FlushInterval = "10ms"

	path := filepath.Join(dir, "memoryd.yaml")
	require.NoError(t, c.Save(path))
	return path, c
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	jsonOutput = false
	statsProjects = false

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestVersion(t *testing.T) {
	path, _ := testConfig(t)
	out, err := execute(t, "--config", path, "version")
	require.NoError(t, err)
	assert.Equal(t, "memoryd dev\n", out)
}

func TestNamesSetAndList(t *testing.T) {
	path, c := testConfig(t)

	_, err := execute(t, "--config", path, "names", "set", "proj_a", "Alpha")
	require.NoError(t, err)
	_, err = execute(t, "--config", path, "names", "set", "u_user_u", "Me")
	require.NoError(t, err)

	out, err := execute(t, "--config", path, "--json", "names", "list")
	require.NoError(t, err)
	var names map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &names))
	assert.Equal(t, map[string]string{"proj_a": "Alpha", "u_user_u": "Me"}, names)
	assert.FileExists(t, filepath.Join(c.Data.Dir, "names.json"))

	out, err = execute(t, "--config", path, "names", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "Alpha")

	_, err = execute(t, "--config", path, "names", "set", "only-one-arg")
	assert.Error(t, err)
}

func TestCostsShowAndReset(t *testing.T) {
	path, c := testConfig(t)

	ledger := openLedger(c)
	_, err := ledger.Record("voyage", 2_000_000)
	require.NoError(t, err)
	require.NoError(t, ledger.Close())

	out, err := execute(t, "--config", path, "--json", "costs", "show")
	require.NoError(t, err)
	var snap map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &snap))
	assert.InDelta(t, 0.12, snap["total_cost_usd"], 1e-9)
	assert.EqualValues(t, 2_000_000, snap["voyage"].(map[string]interface{})["tokens"])
	assert.Contains(t, snap, "xai")

	out, err = execute(t, "--config", path, "costs", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "voyage")
	assert.Contains(t, out, "$0.120000")

	_, err = execute(t, "--config", path, "costs", "reset")
	require.NoError(t, err)

	reopened := usage.NewLedger(pricesFrom(c), usage.WithStore(usage.NewLedgerStore(c.CostsPath()), time.Hour))
	defer reopened.Close()
	assert.Zero(t, reopened.Snapshot().TotalCostUSD)
}

func TestCostsShowDoesNotWrite(t *testing.T) {
	path, c := testConfig(t)

	_, err := execute(t, "--config", path, "costs", "show")
	require.NoError(t, err)
	assert.NoFileExists(t, c.CostsPath())

	ledger := openLedger(c)
	_, err = ledger.Record("voyage", 10)
	require.NoError(t, err)
	require.NoError(t, ledger.Close())
	before, err := os.Stat(c.CostsPath())
	require.NoError(t, err)

	_, err = execute(t, "--config", path, "--json", "costs", "show")
	require.NoError(t, err)
	after, err := os.Stat(c.CostsPath())
	require.NoError(t, err)
	assert.Equal(t, before.ModTime(), after.ModTime())
}

func TestCostsNotPersisted(t *testing.T) {
	path, c := testConfig(t)
	c.Costs.Persist = false
	require.NoError(t, c.Save(path))

	_, err := execute(t, "--config", path, "costs", "show")
	assert.ErrorContains(t, err, "not persisted")
}

func TestStats(t *testing.T) {
	path, c := testConfig(t)

	st, err := store.Open(context.Background(), c.DatabasePath())
	require.NoError(t, err)
	_, err = st.Add(context.Background(), "proj_a", "m1", `{"type":"decision"}`, []float32{1, 0})
	require.NoError(t, err)
	_, err = st.Add(context.Background(), "u_user_u", "m2", `{}`, []float32{0, 1})
	require.NoError(t, err)
	require.NoError(t, st.Close())

	_, err = execute(t, "--config", path, "names", "set", "proj_a", "Alpha")
	require.NoError(t, err)

	out, err := execute(t, "--config", path, "--json", "stats", "--projects")
	require.NoError(t, err)
	var report statsReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, 2, report.Global.Total)
	assert.Equal(t, 1, report.Global.Projects)
	assert.Equal(t, 1, report.Global.Users)
	require.Len(t, report.Projects, 2)

	out, err = execute(t, "--config", path, "stats", "--projects")
	require.NoError(t, err)
	assert.Contains(t, out, "Alpha")
	assert.True(t, strings.Contains(out, "memories"))
}

func TestServeRejectsInvalidConfig(t *testing.T) {
	path, c := testConfig(t)
	c.Embedding.Provider = "voyage"
	require.NoError(t, c.Save(path))

	_, err := execute(t, "--config", path, "serve")
	assert.ErrorContains(t, err, "voyage API key")
}

func TestAppRunPublishesStoreAndShutsDown(t *testing.T) {
	path, c := testConfig(t)

	a, err := newApp(c)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.run(ctx, path) }()

	require.Eventually(t, a.handle.Ready, 5*time.Second, 10*time.Millisecond)

	rec := httptest.NewRecorder()
	body := strings.NewReader(`{"user_id":"proj_a","memory":"hello world"}`)
	a.srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/memories", body))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, int64(2), a.ledger.Snapshot().Sources["mock"].Tokens)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("run did not return after cancel")
	}
	a.close()

	_, err = os.Stat(c.CostsPath())
	assert.NoError(t, err, "ledger saved on close")
}
