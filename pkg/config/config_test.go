package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testCfg struct {
	Name string `mapstructure:"name"`
	HTTP struct {
		Addr string `mapstructure:"addr"`
	} `mapstructure:"http"`
}

func TestLoad_EnvOverride(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "demo-svc.yaml"), []byte("name: demo\nhttp:\n  addr: \":8080\"\n"), 0o644))
	t.Setenv("CONFIG_DIR", dir)
	t.Setenv("DEMO_SVC_HTTP_ADDR", ":9090")

	var c testCfg
	require.NoError(t, Load("demo-svc", &c))
	assert.Equal(t, "demo", c.Name)
	assert.Equal(t, ":9090", c.HTTP.Addr)
}
