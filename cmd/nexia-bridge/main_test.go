package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

// TestRun_InvalidConfig verifies run fails with invalid config path.
func TestRun_InvalidConfig(t *testing.T) {
	originalEnv := os.Getenv("NEXIABRIDGE_CONFIG")
	defer os.Setenv("NEXIABRIDGE_CONFIG", originalEnv)

	os.Setenv("NEXIABRIDGE_CONFIG", "/nonexistent/path/config.yaml")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := run(ctx)
	if err == nil {
		t.Fatal("run() should fail with invalid config path")
	}
}

// TestRun_MissingDatabasePath verifies run fails when database path is empty.
func TestRun_MissingDatabasePath(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "test-config.yaml")

	configContent := `
nexia:
  username: "test@example.com"
  password: "test-password"
  poll_interval: 120

database:
  path: ""
  wal_mode: true
  busy_timeout: 5

mqtt:
  broker:
    host: "127.0.0.1"
    port: 1883
    client_id: "test-client"
  qos: 1

influxdb:
  enabled: false

api:
  enabled: false

logging:
  level: info
  format: text
  output: stdout
`
	if err := os.WriteFile(configPath, []byte(configContent), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	originalEnv := os.Getenv("NEXIABRIDGE_CONFIG")
	defer os.Setenv("NEXIABRIDGE_CONFIG", originalEnv)
	os.Setenv("NEXIABRIDGE_CONFIG", configPath)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := run(ctx)
	if err == nil {
		t.Fatal("run() should fail with empty database path")
	}
}

// TestRun_MissingCredentials verifies run fails when the account settings
// are absent.
func TestRun_MissingCredentials(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "test-config.yaml")
	dbPath := filepath.Join(tmpDir, "test.db")

	configContent := `
nexia:
  poll_interval: 120

database:
  path: "` + dbPath + `"
  wal_mode: true
  busy_timeout: 5

mqtt:
  broker:
    host: "127.0.0.1"
    port: 1883
    client_id: "test-client"
  qos: 1

influxdb:
  enabled: false

api:
  enabled: false

logging:
  level: info
  format: text
  output: stdout
`
	if err := os.WriteFile(configPath, []byte(configContent), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	originalEnv := os.Getenv("NEXIABRIDGE_CONFIG")
	defer os.Setenv("NEXIABRIDGE_CONFIG", originalEnv)
	os.Setenv("NEXIABRIDGE_CONFIG", configPath)

	// The username/password env overrides would mask the missing config
	// values; clear them for the duration of the test.
	for _, key := range []string{"NEXIABRIDGE_NEXIA_USERNAME", "NEXIABRIDGE_NEXIA_PASSWORD"} {
		original := os.Getenv(key)
		os.Unsetenv(key)
		defer os.Setenv(key, original)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := run(ctx)
	if err == nil {
		t.Fatal("run() should fail without account credentials")
	}
}

// TestGetConfigPath_Default verifies default config path.
func TestGetConfigPath_Default(t *testing.T) {
	originalEnv := os.Getenv("NEXIABRIDGE_CONFIG")
	defer os.Setenv("NEXIABRIDGE_CONFIG", originalEnv)

	os.Unsetenv("NEXIABRIDGE_CONFIG")

	path := getConfigPath()
	if path != defaultConfigPath {
		t.Errorf("getConfigPath() = %q, want %q", path, defaultConfigPath)
	}
}

// TestGetConfigPath_EnvOverride verifies environment variable override.
func TestGetConfigPath_EnvOverride(t *testing.T) {
	originalEnv := os.Getenv("NEXIABRIDGE_CONFIG")
	defer os.Setenv("NEXIABRIDGE_CONFIG", originalEnv)

	expected := "/custom/path/config.yaml"
	os.Setenv("NEXIABRIDGE_CONFIG", expected)

	path := getConfigPath()
	if path != expected {
		t.Errorf("getConfigPath() = %q, want %q", path, expected)
	}
}

// TestRun_CloudEndpointOverride verifies the configured base_url reaches
// the client: the login request lands on the local fake endpoint.
func TestRun_CloudEndpointOverride(t *testing.T) {
	var signIns atomic.Int64
	fake := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/accounts/sign_in" {
			signIns.Add(1)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"success": false, "error": "invalid login credentials"}`))
	}))
	defer fake.Close()

	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "test-config.yaml")
	dbPath := filepath.Join(tmpDir, "test.db")

	configContent := `
nexia:
  username: "test@example.com"
  password: "test-password"
  base_url: "` + fake.URL + `"
  poll_interval: 120

database:
  path: "` + dbPath + `"
  wal_mode: true
  busy_timeout: 5

mqtt:
  broker:
    host: "127.0.0.1"
    port: 1883
    client_id: "test-base-url"
  qos: 1

influxdb:
  enabled: false

api:
  enabled: false

logging:
  level: info
  format: text
  output: stdout
`
	if err := os.WriteFile(configPath, []byte(configContent), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	originalEnv := os.Getenv("NEXIABRIDGE_CONFIG")
	defer os.Setenv("NEXIABRIDGE_CONFIG", originalEnv)
	os.Setenv("NEXIABRIDGE_CONFIG", configPath)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := run(ctx); err == nil {
		t.Fatal("run() should fail when the cloud rejects the credentials")
	}
	if signIns.Load() == 0 {
		t.Error("login request never reached the configured endpoint")
	}
}

// TestRun_LoginFailure tests startup against an unreachable cloud account.
// The login happens before any broker connection, so this exercises the
// database open, migration, and client assembly paths.
func TestRun_LoginFailure(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "test-config.yaml")
	dbPath := filepath.Join(tmpDir, "test.db")

	configContent := `
nexia:
  username: "test@example.com"
  password: "not-a-real-password"
  poll_interval: 120

database:
  path: "` + dbPath + `"
  wal_mode: true
  busy_timeout: 5

mqtt:
  broker:
    host: "127.0.0.1"
    port: 1883
    client_id: "test-login-failure"
  qos: 1

influxdb:
  enabled: false

api:
  enabled: false

logging:
  level: info
  format: text
  output: stdout
`
	if err := os.WriteFile(configPath, []byte(configContent), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	originalEnv := os.Getenv("NEXIABRIDGE_CONFIG")
	defer os.Setenv("NEXIABRIDGE_CONFIG", originalEnv)
	os.Setenv("NEXIABRIDGE_CONFIG", configPath)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	err := run(ctx)
	if err == nil {
		t.Fatal("run() should fail without a reachable cloud account")
	}
	t.Logf("run() returned error (expected): %v", err)

	// The database is created and migrated before the login attempt.
	if _, statErr := os.Stat(dbPath); statErr != nil {
		t.Errorf("database file should exist after startup attempt: %v", statErr)
	}
}
