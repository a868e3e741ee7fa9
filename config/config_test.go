package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("SESSION_SECRET", "s3cret")
	t.Setenv("DATABASE_URL", "postgres://u:p@localhost:5432")
	t.Setenv("DATABASE_NAME", "spinearn")
	t.Setenv("ENVIRONMENT", "")
	t.Setenv("STORAGE_BACKEND", "")
	t.Setenv("HTTP_ADDR", "")
	t.Setenv("SESSION_TTL_HOURS", "")
	t.Setenv("ALLOWED_ORIGINS", "")

	cfg, err := load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, StorageBackendPostgres, cfg.StorageBackend)
	assert.Equal(t, 7*24, cfg.SessionTTLHours)
	assert.Equal(t, "development", cfg.Environment)
	assert.Empty(t, cfg.AllowedOrigins)
	assert.Equal(t, "postgres://u:p@localhost:5432/spinearn?sslmode=disable", cfg.GetDatabaseURL())
}

func TestLoad_ParsesLists(t *testing.T) {
	t.Setenv("SESSION_SECRET", "s3cret")
	t.Setenv("STORAGE_BACKEND", StorageBackendMemory)
	t.Setenv("ENVIRONMENT", "development")
	t.Setenv("SESSION_TTL_HOURS", "12")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, ,https://b.example")

	cfg, err := load()
	require.NoError(t, err)

	assert.Equal(t, 12, cfg.SessionTTLHours)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
}

func TestLoad_InvalidTTLKeepsDefault(t *testing.T) {
	t.Setenv("SESSION_SECRET", "s3cret")
	t.Setenv("STORAGE_BACKEND", StorageBackendMemory)
	t.Setenv("ENVIRONMENT", "development")
	t.Setenv("SESSION_TTL_HOURS", "-3")

	cfg, err := load()
	require.NoError(t, err)
	assert.Equal(t, 7*24, cfg.SessionTTLHours)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{
			name:    "unknown backend",
			cfg:     Config{StorageBackend: "mysql", Environment: "development"},
			wantErr: "unknown STORAGE_BACKEND",
		},
		{
			name:    "missing session secret",
			cfg:     Config{StorageBackend: StorageBackendMemory, Environment: "development"},
			wantErr: "SESSION_SECRET is required",
		},
		{
			name:    "postgres needs url",
			cfg:     Config{StorageBackend: StorageBackendPostgres, SessionSecret: "x", Environment: "development"},
			wantErr: "DATABASE_URL is required",
		},
		{
			name:    "production needs redis",
			cfg:     Config{StorageBackend: StorageBackendMemory, SessionSecret: "x", Environment: "production"},
			wantErr: "REDIS_ADDR is required",
		},
		{
			name: "production needs explicit origins",
			cfg: Config{
				StorageBackend: StorageBackendMemory,
				SessionSecret:  "x",
				RedisAddr:      "localhost:6379",
				Environment:    "production",
			},
			wantErr: "ALLOWED_ORIGINS must list explicit origins",
		},
		{
			name: "production rejects wildcard origin",
			cfg: Config{
				StorageBackend: StorageBackendMemory,
				SessionSecret:  "x",
				RedisAddr:      "localhost:6379",
				AllowedOrigins: []string{"https://app.example", "*"},
				Environment:    "production",
			},
			wantErr: "ALLOWED_ORIGINS must list explicit origins",
		},
		{
			name: "test environment is lenient",
			cfg:  Config{StorageBackend: StorageBackendMemory, Environment: "test"},
		},
		{
			name: "complete production config",
			cfg: Config{
				StorageBackend: StorageBackendPostgres,
				DatabaseURL:    "postgres://localhost:5432",
				SessionSecret:  "x",
				RedisAddr:      "localhost:6379",
				AllowedOrigins: []string{"https://app.example"},
				Environment:    "production",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestSetTestConfigAndReset(t *testing.T) {
	ResetConfig()
	defer ResetConfig()

	custom := NewTestConfig()
	custom.HTTPAddr = ":9999"
	SetTestConfig(custom)

	assert.Same(t, custom, Get())

	ResetConfig()
	t.Setenv("ENVIRONMENT", "test")
	t.Setenv("STORAGE_BACKEND", StorageBackendMemory)
	cfg := Get()
	require.NotNil(t, cfg)
	assert.Equal(t, "test", cfg.Environment)
}
