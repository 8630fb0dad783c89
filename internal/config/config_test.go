package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Run("missing file falls back to defaults", func(t *testing.T) {
		cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
		require.NoError(t, err)

		assert.Equal(t, "8080", cfg.Server.Port)
		assert.Equal(t, "postgres", cfg.Database.Driver)
		assert.Equal(t, 30, cfg.ML.TimeoutSec)
		assert.Equal(t, time.Hour, cfg.Cache.HistoryTTL())
		assert.False(t, cfg.Kafka.Enabled())
	})

	t.Run("yaml overrides defaults and env overrides yaml", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: "9090"
database:
  driver: sqlite
  sqlite_path: /tmp/md.db
ml:
  timeout_sec: 10
`), 0o600))

		t.Setenv("ML_TIMEOUT_SEC", "45")
		t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")

		cfg, err := Load(path)
		require.NoError(t, err)

		assert.Equal(t, "9090", cfg.Server.Port)
		assert.Equal(t, "sqlite", cfg.Database.Driver)
		assert.Equal(t, "/tmp/md.db", cfg.Database.SQLitePath)
		assert.Equal(t, 45, cfg.ML.TimeoutSec)
		assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
		assert.True(t, cfg.Kafka.Enabled())
	})

	t.Run("invalid yaml is an error", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte("server: [unclosed"), 0o600))

		_, err := Load(path)
		assert.Error(t, err)
	})

	t.Run("unknown driver fails validation", func(t *testing.T) {
		t.Setenv("DB_DRIVER", "mysql")
		_, err := Load("")
		assert.Error(t, err)
	})
}

func TestConnectionString(t *testing.T) {
	d := DatabaseConfig{User: "u", Password: "p", Host: "db", Port: "5432", DBName: "nextworth", SSLMode: "disable"}
	assert.Equal(t, "postgres://u:p@db:5432/nextworth?sslmode=disable", d.ConnectionString())
}
