package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	stash "github.com/eugener/stash/internal"
)

func writeConfig(t *testing.T, data string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.yaml")
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	t.Parallel()

	yaml := `
server:
  addr: ":9090"
  read_timeout: 10s
cache:
  backend: sqlite
  ttl: 24h
  sqlite:
    dsn: ":memory:"
origins:
  - name: pages
    prefix: /pages
    upstream: http://localhost:3000
    response_type: html
    ttl: 500ms
  - name: api
    prefix: /api
    upstream: https://api.internal
    scope: header:X-Session
`
	cfg, err := Load(writeConfig(t, yaml))
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Server.Addr != ":9090" {
		t.Errorf("addr = %q, want %q", cfg.Server.Addr, ":9090")
	}
	if cfg.Cache.Backend != BackendSQLite {
		t.Errorf("backend = %q", cfg.Cache.Backend)
	}
	if cfg.Cache.SQLite.DSN != ":memory:" {
		t.Errorf("dsn = %q, want %q", cfg.Cache.SQLite.DSN, ":memory:")
	}
	if cfg.Cache.TTL != 24*time.Hour {
		t.Errorf("ttl = %v", cfg.Cache.TTL)
	}
	if len(cfg.Origins) != 2 {
		t.Fatalf("origins count = %d, want 2", len(cfg.Origins))
	}

	pages := cfg.Origins[0]
	if pages.ResolvedResponseType() != stash.ResponseHTML {
		t.Errorf("pages response type = %q", pages.ResolvedResponseType())
	}
	if pages.TTL != 500*time.Millisecond {
		t.Errorf("pages ttl = %v", pages.TTL)
	}

	api := cfg.Origins[1]
	if api.ResolvedResponseType() != stash.ResponseJSON {
		t.Errorf("api response type = %q, want json default", api.ResolvedResponseType())
	}
	if name, ok := api.ScopeHeader(); !ok || name != "X-Session" {
		t.Errorf("scope header = %q, %v", name, ok)
	}
}

func TestExpandEnv(t *testing.T) {
	// Cannot use t.Parallel() with t.Setenv
	t.Setenv("TEST_ADMIN_KEY", "admin-secret-123")

	cfg, err := Load(writeConfig(t, "admin:\n  key: ${TEST_ADMIN_KEY}\n"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Admin.Key != "admin-secret-123" {
		t.Errorf("admin key = %q", cfg.Admin.Key)
	}

	// Unset variables are left untouched.
	result := expandEnv([]byte("key: ${STASH_TEST_UNSET_VAR}"))
	if string(result) != "key: ${STASH_TEST_UNSET_VAR}" {
		t.Errorf("expandEnv = %q", string(result))
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load(writeConfig(t, `{}`))
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Server.Addr != ":8080" {
		t.Errorf("default addr = %q, want %q", cfg.Server.Addr, ":8080")
	}
	if cfg.Cache.Backend != BackendMemory {
		t.Errorf("default backend = %q, want memory", cfg.Cache.Backend)
	}
	if cfg.Cache.MaxEntries != 10_000 || cfg.Cache.TTL != 5*time.Minute {
		t.Errorf("default cache = %+v", cfg.Cache)
	}
	if cfg.Cache.SQLite.DSN != "stash.db" {
		t.Errorf("default dsn = %q", cfg.Cache.SQLite.DSN)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "unknown backend",
			yaml:    "cache:\n  backend: memcached\n",
			wantErr: "cache.backend",
		},
		{
			name: "missing name",
			yaml: `
origins:
  - prefix: /x
    upstream: http://localhost
`,
			wantErr: "name is required",
		},
		{
			name: "duplicate name",
			yaml: `
origins:
  - {name: a, prefix: /a, upstream: "http://localhost"}
  - {name: a, prefix: /b, upstream: "http://localhost"}
`,
			wantErr: "duplicate name",
		},
		{
			name:    "relative prefix",
			yaml:    "origins:\n  - {name: a, prefix: a, upstream: \"http://localhost\"}\n",
			wantErr: "must start with /",
		},
		{
			name:    "bad upstream",
			yaml:    "origins:\n  - {name: a, prefix: /a, upstream: localhost}\n",
			wantErr: "invalid upstream",
		},
		{
			name:    "bad response type",
			yaml:    "origins:\n  - {name: a, prefix: /a, upstream: \"http://h\", response_type: xml}\n",
			wantErr: "response_type",
		},
		{
			name:    "breaker threshold",
			yaml:    "circuit_breaker:\n  error_threshold: 2\n",
			wantErr: "error_threshold",
		},
		{
			name:    "name with separator",
			yaml:    "origins:\n  - {name: \"api:v2\", prefix: /a, upstream: \"http://h\"}\n",
			wantErr: "may only contain",
		},
		{
			name:    "name with glob",
			yaml:    "origins:\n  - {name: \"api*\", prefix: /a, upstream: \"http://h\"}\n",
			wantErr: "may only contain",
		},
		{
			name:    "zero sweep interval",
			yaml:    "cache:\n  sweep_interval: 0s\n",
			wantErr: "cache.sweep_interval",
		},
		{
			name:    "negative sample interval",
			yaml:    "cache:\n  sample_interval: -1s\n",
			wantErr: "cache.sample_interval",
		},
		{
			name:    "zero dns refresh",
			yaml:    "dns:\n  refresh_interval: 0s\n",
			wantErr: "dns.refresh_interval",
		},
		{
			name:    "bad scope",
			yaml:    "origins:\n  - {name: a, prefix: /a, upstream: \"http://h\", scope: cookie}\n",
			wantErr: "unknown scope",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := Load(writeConfig(t, tt.yaml))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("err = %v, want substring %q", err, tt.wantErr)
			}
		})
	}

	_, err := Load(writeConfig(t, "cache:\n  sweep_interval: 0s\n  sample_interval: 0s\ndns:\n  refresh_interval: 0s\n"))
	for _, field := range []string{"cache.sweep_interval", "cache.sample_interval", "dns.refresh_interval"} {
		if err == nil || !strings.Contains(err.Error(), field) {
			t.Errorf("err = %v, want entry for %s", err, field)
		}
	}

	_, err = Load(writeConfig(t, "cache:\n  backend: nope\n"))
	if !errors.Is(err, stash.ErrUnknownBackend) {
		t.Errorf("err = %v, want ErrUnknownBackend", err)
	}
}
