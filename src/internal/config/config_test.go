package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "svc", RunE: func(*cobra.Command, []string) error { return nil }}
	AddFileFlag(cmd)
	cmd.Flags().String("redis-addr", "", "")
	cmd.Flags().Int("port", 8080, "")
	cmd.Flags().Duration("request-timeout", 5*time.Second, "")
	return cmd
}

func parse(t *testing.T, args ...string) *cobra.Command {
	t.Helper()
	cmd := newCmd()
	require.NoError(t, cmd.ParseFlags(args))
	return cmd
}

func TestBind_defaults(t *testing.T) {
	v, err := Bind(parse(t))
	require.NoError(t, err)
	assert.Equal(t, 8080, v.GetInt("port"))
	assert.Equal(t, 5*time.Second, v.GetDuration("request-timeout"))
	assert.Empty(t, v.GetString("redis-addr"))
}

func TestBind_environment(t *testing.T) {
	t.Setenv("REDIS_ADDR", "redis-cart:6379")
	t.Setenv("REQUEST_TIMEOUT", "2s")

	v, err := Bind(parse(t))
	require.NoError(t, err)
	assert.Equal(t, "redis-cart:6379", v.GetString("redis-addr"))
	assert.Equal(t, 2*time.Second, v.GetDuration("request-timeout"))
}

func TestBind_flagBeatsEnvironment(t *testing.T) {
	t.Setenv("PORT", "9000")

	v, err := Bind(parse(t, "--port", "7000"))
	require.NoError(t, err)
	assert.Equal(t, 7000, v.GetInt("port"))
}

func TestBind_configFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cart.yaml")
	require.NoError(t, os.WriteFile(path, []byte("redis-addr: from-file:6379\nport: 6000\n"), 0o600))

	v, err := Bind(parse(t, "--config", path))
	require.NoError(t, err)
	assert.Equal(t, "from-file:6379", v.GetString("redis-addr"))
	assert.Equal(t, 6000, v.GetInt("port"))

	_, err = Bind(parse(t, "--config", filepath.Join(t.TempDir(), "missing.yaml")))
	require.Error(t, err)
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"a:9092", "b:9092"}, SplitList(" a:9092, ,b:9092 "))
	assert.Empty(t, SplitList(""))
}
