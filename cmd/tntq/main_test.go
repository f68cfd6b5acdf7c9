package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	query "github.com/ice-blockchain/go-tarantool-query"
	"github.com/ice-blockchain/go-tarantool-query/pool"
)

const testConfig = `
pool:
  masters:
    - address: 127.0.0.1:3301
  replicas:
    - address: 127.0.0.1:3302
  master_config:
    user: app
    connect_retries: 2
  enable_replicas: true
  dead_server_retry_interval: 5s
query:
  handle_transient_encoding_errors: true
  debug_string_max_field_length: 32
redis:
  addrs: [127.0.0.1:6379]
  prefix: "app:"
`

func TestParseConfig(t *testing.T) {
	cfg, err := parseConfig([]byte(testConfig))
	require.NoError(t, err)

	assert.Equal(t, []pool.Endpoint{{Address: "127.0.0.1:3301"}}, cfg.Pool.Masters)
	assert.Equal(t, "app", cfg.Pool.MasterConfig.User)
	assert.Equal(t, uint64(2), cfg.Pool.MasterConfig.ConnectRetries)
	assert.True(t, cfg.Pool.EnableReplicas)
	assert.Equal(t, 5*time.Second, cfg.Pool.DeadServerRetryInterval)
	assert.True(t, cfg.Query.HandleTransientEncodingErrors)
	assert.Equal(t, 32, cfg.Query.DebugStringMaxFieldLength)
	assert.Equal(t, []string{"127.0.0.1:6379"}, cfg.Redis.Addrs)
	assert.Equal(t, "app:", cfg.Redis.Prefix)
}

func TestParseConfigInvalid(t *testing.T) {
	_, err := parseConfig([]byte("pool: {}"))
	require.ErrorIs(t, err, pool.ErrNoMasters)

	_, err = parseConfig([]byte("pool: ["))
	require.Error(t, err)
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cluster.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testConfig), 0o600))

	cfg, err := loadConfig(path)
	require.NoError(t, err)
	assert.Len(t, cfg.Pool.Replicas, 1)

	_, err = loadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestParseArg(t *testing.T) {
	cases := []struct {
		arg      string
		expected interface{}
	}{
		{"42", 42},
		{"-7", -7},
		{"1.5", 1.5},
		{"true", true},
		{"alice", "alice"},
		{"'42'", "42"},
		{"null", "null"},
		{"[1, a]", []interface{}{1, "a"}},
		{"{id: 1}", map[string]interface{}{"id": 1}},
		{"[unclosed", "[unclosed"},
	}

	for _, tc := range cases {
		t.Run(tc.arg, func(t *testing.T) {
			assert.Equal(t, tc.expected, parseArg(tc.arg))
		})
	}
}

func TestBuildCondition(t *testing.T) {
	cond, err := buildCondition("=", "", nil)
	require.NoError(t, err)
	assert.True(t, cond.IsEmpty())

	cond, err = buildCondition(">=", "", []string{"18"})
	require.NoError(t, err)
	assert.Equal(t, query.Range(query.Ge, 18), cond)

	cond, err = buildCondition("=", "email", []string{"a@b"})
	require.NoError(t, err)
	assert.Equal(t, query.IndexedRange(query.Eq, query.IndexName("email"), "a@b"), cond)

	cond, err = buildCondition("<", "2", []string{"30", "bob"})
	require.NoError(t, err)
	assert.Equal(t, query.IndexedRange(query.Lt, query.IndexID(2), 30, "bob"), cond)

	_, err = buildCondition("~", "", nil)
	require.ErrorIs(t, err, query.ErrInvalidCondition)
}

func TestCallRequest(t *testing.T) {
	cmd := &callCommand{function: "users.find", args: []string{"1", "x"}}
	assert.Equal(t, &query.Call{Function: "users.find", Args: []interface{}{1, "x"}}, cmd.request())

	cmd = &callCommand{function: "return ...", args: []string{"1"}, eval: true, master: true}
	assert.Equal(t, &query.Eval{Expr: "return ...", Args: []interface{}{1}, RouteAs: query.RW}, cmd.request())
}

func TestPrintResult(t *testing.T) {
	var buf bytes.Buffer
	rows := []interface{}{
		[]interface{}{uint64(1), "alice"},
		map[interface{}]interface{}{"id": uint64(2)},
	}

	require.NoError(t, printResult(&buf, rows))
	assert.Equal(t, "- - 1\n  - alice\n- id: 2\n", buf.String())
}
