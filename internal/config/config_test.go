package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoadFileThenEnv(t *testing.T) {
	path := writeConfig(t, `
env: development
http:
  addr: ":9000"
store:
  driver: memory
auth:
  jwt_secret: from-file
  block_inactive: true
rate_limit:
  enabled: true
  burst: 5
  per_second: 2
`)
	t.Setenv("TASKTRACK_JWT_SECRET", "from-env")
	t.Setenv("TASKTRACK_RATE_LIMIT_BURST", "7")
	t.Setenv("TASKTRACK_TRUST_PROXY", "true")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.True(t, cfg.IsDevelopment())
	assert.Equal(t, ":9000", cfg.HTTP.Addr)
	assert.Equal(t, ":9090", cfg.GRPC.Addr, "defaults survive partial files")
	assert.Equal(t, "from-env", cfg.Auth.JWTSecret)
	assert.True(t, cfg.Auth.BlockInactive)
	assert.Equal(t, 7, cfg.RateLimit.Burst)
	assert.Equal(t, 2, cfg.RateLimit.PerSecond)
	assert.True(t, cfg.HTTP.TrustProxy)
}

func TestLoadRequiresSecret(t *testing.T) {
	t.Setenv("TASKTRACK_JWT_SECRET", "")
	t.Setenv("TASKTRACK_STORE_DRIVER", "memory")
	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "jwt_secret")
}

func TestLoadPostgresRequiresDSN(t *testing.T) {
	t.Setenv("TASKTRACK_JWT_SECRET", "s")
	t.Setenv("TASKTRACK_PG_DSN", "")
	t.Setenv("TASKTRACK_STORE_DRIVER", "")
	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.dsn")
}

func TestLoadRejectsBadEnvValues(t *testing.T) {
	t.Setenv("TASKTRACK_JWT_SECRET", "s")
	t.Setenv("TASKTRACK_STORE_DRIVER", "memory")
	t.Setenv("TASKTRACK_BLOCK_INACTIVE", "maybe")
	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TASKTRACK_BLOCK_INACTIVE")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	assert.Error(t, err)
}

func TestDefaults(t *testing.T) {
	cfg := Default()
	assert.Equal(t, EnvProduction, cfg.Env)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.False(t, cfg.IsDevelopment())
	assert.Equal(t, StorePostgres, cfg.Store.Driver)
	assert.False(t, cfg.HTTP.TrustProxy)
}
