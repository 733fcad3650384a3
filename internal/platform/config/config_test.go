package config

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"
)

func TestLoadWithDefaults(t *testing.T) {
	env := map[string]string{
		"ARCADE_FIREBASE_PROJECT_ID": "arcade-dev",
		"ARCADE_CATALOG_BASE_URL":    "https://games.example.com/",
	}

	cfg, err := Load(WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "8080" {
		t.Errorf("expected default port 8080, got %s", cfg.Server.Port)
	}
	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("expected loopback host by default, got %s", cfg.Server.Host)
	}
	if cfg.Server.ReadTimeout != 15*time.Second {
		t.Errorf("unexpected read timeout: %s", cfg.Server.ReadTimeout)
	}
	if cfg.Firestore.ProjectID != "arcade-dev" {
		t.Errorf("expected firestore project to default to firebase project, got %s", cfg.Firestore.ProjectID)
	}
	if cfg.Catalog.BaseURL != "https://games.example.com" {
		t.Errorf("expected trailing slash trimmed, got %s", cfg.Catalog.BaseURL)
	}
	if cfg.Catalog.StaleAfter != 5*time.Minute {
		t.Errorf("unexpected stale window: %s", cfg.Catalog.StaleAfter)
	}
	if cfg.Search.Debounce != 300*time.Millisecond {
		t.Errorf("unexpected debounce: %s", cfg.Search.Debounce)
	}
	if cfg.Catalog.FeaturedCount != 7 {
		t.Errorf("expected featured count 7, got %d", cfg.Catalog.FeaturedCount)
	}
	if cfg.Search.MaxResults != 10 {
		t.Errorf("unexpected max results: %d", cfg.Search.MaxResults)
	}
	if cfg.LocalStore.Path != defaultLocalStorePath {
		t.Errorf("unexpected local store path: %s", cfg.LocalStore.Path)
	}
	if cfg.Connectivity.Interval != defaultConnectivityInterval {
		t.Errorf("unexpected connectivity interval: %s", cfg.Connectivity.Interval)
	}
	if !cfg.Features.RemoteFavorites {
		t.Error("expected remote favorites enabled by default")
	}
}

func TestLoadWithOverrides(t *testing.T) {
	env := map[string]string{
		"ARCADE_SERVER_HOST":               "0.0.0.0",
		"ARCADE_SERVER_PORT":               "9090",
		"ARCADE_SERVER_READ_TIMEOUT":       "20s",
		"ARCADE_SERVER_WRITE_TIMEOUT":      "25s",
		"ARCADE_SERVER_IDLE_TIMEOUT":       "2m",
		"ARCADE_CATALOG_BUCKET":            "arcade-static",
		"ARCADE_CATALOG_PREFIX":            "public",
		"ARCADE_CATALOG_STALE_AFTER":       "1m",
		"ARCADE_CATALOG_TIMEOUT":           "3s",
		"ARCADE_CATALOG_FEATURED_COUNT":    "0",
		"ARCADE_SEARCH_DEBOUNCE":           "150ms",
		"ARCADE_SEARCH_MAX_RESULTS":        "5",
		"ARCADE_FIREBASE_PROJECT_ID":       "arcade-prod",
		"ARCADE_FIREBASE_CREDENTIALS_FILE": "/secrets/sa.json",
		"ARCADE_FIRESTORE_PROJECT_ID":      "arcade-data",
		"ARCADE_FIRESTORE_EMULATOR_HOST":   "localhost:8081",
		"ARCADE_LOCAL_STORE_PATH":          "/var/lib/arcade/local.db",
		"ARCADE_CONNECTIVITY_CHECK_URL":    "https://firestore.googleapis.com",
		"ARCADE_CONNECTIVITY_INTERVAL":     "30s",
		"ARCADE_FEATURE_REMOTE_FAVORITES":  "yes",
	}

	cfg, err := Load(WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Host != "0.0.0.0" || cfg.Server.Port != "9090" || cfg.Server.IdleTimeout != 2*time.Minute {
		t.Errorf("unexpected server config: %+v", cfg.Server)
	}
	if cfg.Catalog.Bucket != "arcade-static" || cfg.Catalog.Prefix != "public" {
		t.Errorf("unexpected catalog config: %+v", cfg.Catalog)
	}
	if cfg.Catalog.FeaturedCount != 0 {
		t.Errorf("expected featured row disabled, got %d", cfg.Catalog.FeaturedCount)
	}
	if cfg.Catalog.StaleAfter != time.Minute || cfg.Catalog.Timeout != 3*time.Second {
		t.Errorf("unexpected catalog durations: %+v", cfg.Catalog)
	}
	if cfg.Search.Debounce != 150*time.Millisecond || cfg.Search.MaxResults != 5 {
		t.Errorf("unexpected search config: %+v", cfg.Search)
	}
	if cfg.Firestore.ProjectID != "arcade-data" || cfg.Firestore.EmulatorHost != "localhost:8081" {
		t.Errorf("unexpected firestore config: %+v", cfg.Firestore)
	}
	if cfg.Firebase.CredentialsFile != "/secrets/sa.json" {
		t.Errorf("unexpected credentials file: %s", cfg.Firebase.CredentialsFile)
	}
	if cfg.LocalStore.Path != "/var/lib/arcade/local.db" {
		t.Errorf("unexpected local store path: %s", cfg.LocalStore.Path)
	}
	if cfg.Connectivity.CheckURL != "https://firestore.googleapis.com" || cfg.Connectivity.Interval != 30*time.Second {
		t.Errorf("unexpected connectivity config: %+v", cfg.Connectivity)
	}
}

func TestLoadInvalidDurationFallsBackToDefault(t *testing.T) {
	env := map[string]string{
		"ARCADE_CATALOG_BASE_URL":         "https://games.example.com",
		"ARCADE_SEARCH_DEBOUNCE":          "soon",
		"ARCADE_FEATURE_REMOTE_FAVORITES": "false",
	}
	cfg, err := Load(WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Search.Debounce != defaultSearchDebounce {
		t.Fatalf("expected default debounce, got %s", cfg.Search.Debounce)
	}
	if cfg.Features.RemoteFavorites {
		t.Fatal("expected remote favorites disabled")
	}
}

func TestLoadDotEnvFallback(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env.test")
	content := "# local overrides\nexport ARCADE_SERVER_PORT=7070\nARCADE_FIREBASE_PROJECT_ID=\"arcade-dot\"\nARCADE_CATALOG_BASE_URL=http://localhost:5173\n"
	if err := os.WriteFile(envPath, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write dotenv file: %v", err)
	}

	cfg, err := Load(WithEnvFile(envPath), WithoutSystemEnv())
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "7070" {
		t.Errorf("expected port from dotenv 7070, got %s", cfg.Server.Port)
	}
	if cfg.Firebase.ProjectID != "arcade-dot" {
		t.Errorf("expected firebase project from dotenv, got %s", cfg.Firebase.ProjectID)
	}
}

func TestLoadMissingRequired(t *testing.T) {
	_, err := Load(WithEnvMap(map[string]string{}), WithoutSystemEnv(), WithEnvFile(""))
	if err == nil {
		t.Fatal("expected validation error, got nil")
	}
	var validationErr *ValidationError
	if !errors.As(err, &validationErr) {
		t.Fatalf("expected ValidationError, got %T", err)
	}
	fields := validationErr.Fields()
	for _, want := range []string{"Catalog.BaseURL", "Firebase.ProjectID", "Firestore.ProjectID"} {
		if !slices.Contains(fields, want) {
			t.Errorf("expected %s in %v", want, fields)
		}
	}
}

func TestLoadRejectsNonPositiveValues(t *testing.T) {
	env := map[string]string{
		"ARCADE_CATALOG_BASE_URL":         "https://games.example.com",
		"ARCADE_SEARCH_MAX_RESULTS":       "0",
		"ARCADE_CONNECTIVITY_INTERVAL":    "-1s",
		"ARCADE_FEATURE_REMOTE_FAVORITES": "off",
	}
	_, err := Load(WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	var validationErr *ValidationError
	if !errors.As(err, &validationErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	fields := validationErr.Fields()
	if !slices.Contains(fields, "Search.MaxResults") || !slices.Contains(fields, "Connectivity.Interval") {
		t.Fatalf("unexpected fields %v", fields)
	}
}

func TestEnvironmentValuesMergesSources(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env.test")
	content := "ARCADE_FIREBASE_PROJECT_ID=dot-project\nARCADE_LOCAL_STORE_PATH=.dot.db\n"
	if err := os.WriteFile(envPath, []byte(content), 0o600); err != nil {
		t.Fatalf("failed writing env file: %v", err)
	}

	t.Setenv("ARCADE_FIREBASE_PROJECT_ID", "os-project")
	t.Setenv("ARCADE_CATALOG_BUCKET", "os-bucket")

	overrides := map[string]string{
		"ARCADE_FIREBASE_PROJECT_ID": "override-project",
	}

	values, err := EnvironmentValues(WithEnvFile(envPath), WithEnvMap(overrides))
	if err != nil {
		t.Fatalf("EnvironmentValues returned error: %v", err)
	}

	if got := values["ARCADE_FIREBASE_PROJECT_ID"]; got != "override-project" {
		t.Fatalf("expected override project, got %s", got)
	}
	if got := values["ARCADE_LOCAL_STORE_PATH"]; got != ".dot.db" {
		t.Fatalf("expected dotenv value, got %s", got)
	}
	if got := values["ARCADE_CATALOG_BUCKET"]; got != "os-bucket" {
		t.Fatalf("expected system env value, got %s", got)
	}
}
