package config

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	defaultEnvFile              = ".env"
	defaultHost                 = "127.0.0.1"
	defaultPort                 = "8080"
	defaultReadTimeout          = 15 * time.Second
	defaultWriteTimeout         = 30 * time.Second
	defaultIdleTimeout          = 120 * time.Second
	defaultCatalogStaleAfter    = 5 * time.Minute
	defaultCatalogTimeout       = 10 * time.Second
	defaultSearchDebounce       = 300 * time.Millisecond
	defaultSearchMaxResults     = 10
	defaultCatalogFeatured      = 7
	defaultLocalStorePath       = "./data/arcade.db"
	defaultConnectivityInterval = 15 * time.Second
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Server       ServerConfig
	Catalog      CatalogConfig
	Search       SearchConfig
	Firebase     FirebaseConfig
	Firestore    FirestoreConfig
	LocalStore   LocalStoreConfig
	Connectivity ConnectivityConfig
	Features     FeatureFlags
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	// Host defaults to loopback. The session and favorites belong to the one
	// user of this process.
	Host         string
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// CatalogConfig locates the static game data. BaseURL takes precedence over Bucket.
type CatalogConfig struct {
	BaseURL string
	Bucket  string
	Prefix  string
	// FeaturedCount is the size of the home view's featured row; 0 hides it.
	FeaturedCount int
	StaleAfter    time.Duration
	Timeout       time.Duration
}

// SearchConfig tunes the live search session.
type SearchConfig struct {
	Debounce   time.Duration
	MaxResults int
}

// FirebaseConfig stores Firebase project settings.
type FirebaseConfig struct {
	ProjectID       string
	CredentialsFile string
}

// FirestoreConfig stores database parameters.
type FirestoreConfig struct {
	ProjectID    string
	EmulatorHost string
}

// LocalStoreConfig points at the SQLite file backing local slots.
type LocalStoreConfig struct {
	Path string
}

// ConnectivityConfig controls the reachability check.
type ConnectivityConfig struct {
	CheckURL string
	Interval time.Duration
}

// FeatureFlags toggle optional behaviour without redeploying.
type FeatureFlags struct {
	RemoteFavorites bool
}

// ValidationError is returned when required configuration fields are missing or invalid.
type ValidationError struct {
	fields []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: missing or invalid fields [%s]", strings.Join(e.fields, ", "))
}

// Fields returns a copy of the missing/invalid field list.
func (e *ValidationError) Fields() []string {
	out := make([]string, len(e.fields))
	copy(out, e.fields)
	return out
}

// Option customises Load behaviour.
type Option func(*loaderOptions)

type loaderOptions struct {
	envFile      string
	envMap       map[string]string
	useSystemEnv bool
}

// EnvironmentValues returns the effective key/value environment map after applying the same precedence
// rules as Load (dotenv < OS env < explicit env map).
func EnvironmentValues(opts ...Option) (map[string]string, error) {
	options := loaderOptions{
		envFile:      defaultEnvFile,
		useSystemEnv: true,
	}

	for _, opt := range opts {
		opt(&options)
	}

	dotEnvValues, err := loadDotEnv(options.envFile)
	if err != nil {
		return nil, err
	}

	values := make(map[string]string)
	merge := func(source map[string]string) {
		if source == nil {
			return
		}
		for key, value := range source {
			values[key] = value
		}
	}

	merge(dotEnvValues)

	if options.useSystemEnv {
		system := make(map[string]string)
		for _, entry := range os.Environ() {
			if entry == "" {
				continue
			}
			parts := strings.SplitN(entry, "=", 2)
			if len(parts) != 2 {
				continue
			}
			key := strings.TrimSpace(parts[0])
			if key == "" {
				continue
			}
			system[key] = parts[1]
		}
		merge(system)
	}

	merge(options.envMap)

	return values, nil
}

// WithEnvFile overrides the .env file path used for local overrides.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) {
		o.envFile = path
	}
}

// WithEnvMap injects an explicit key/value map for environment lookups. Values in the map
// take precedence over system environment variables.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) {
		o.envMap = values
	}
}

// WithoutSystemEnv disables reading from os.Getenv, relying only on provided maps and .env files.
func WithoutSystemEnv() Option {
	return func(o *loaderOptions) {
		o.useSystemEnv = false
	}
}

// Load assembles the application configuration by combining defaults, .env overrides
// and environment variables.
func Load(opts ...Option) (Config, error) {
	options := loaderOptions{
		envFile:      defaultEnvFile,
		useSystemEnv: true,
	}

	for _, opt := range opts {
		opt(&options)
	}

	dotEnvValues, err := loadDotEnv(options.envFile)
	if err != nil {
		return Config{}, err
	}

	lookup := func(key string) (string, bool) {
		if options.envMap != nil {
			if value, ok := options.envMap[key]; ok {
				return value, true
			}
		}
		if options.useSystemEnv {
			if value, ok := os.LookupEnv(key); ok {
				return value, true
			}
		}
		if dotEnvValues != nil {
			if value, ok := dotEnvValues[key]; ok {
				return value, true
			}
		}
		return "", false
	}

	cfg := Config{
		Server: ServerConfig{
			Host:         stringWithDefault(lookup, "ARCADE_SERVER_HOST", defaultHost),
			Port:         stringWithDefault(lookup, "ARCADE_SERVER_PORT", defaultPort),
			ReadTimeout:  durationWithDefault(lookup, "ARCADE_SERVER_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout: durationWithDefault(lookup, "ARCADE_SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:  durationWithDefault(lookup, "ARCADE_SERVER_IDLE_TIMEOUT", defaultIdleTimeout),
		},
		Catalog: CatalogConfig{
			BaseURL:       strings.TrimRight(stringWithDefault(lookup, "ARCADE_CATALOG_BASE_URL", ""), "/"),
			Bucket:        stringWithDefault(lookup, "ARCADE_CATALOG_BUCKET", ""),
			Prefix:        stringWithDefault(lookup, "ARCADE_CATALOG_PREFIX", ""),
			StaleAfter:    durationWithDefault(lookup, "ARCADE_CATALOG_STALE_AFTER", defaultCatalogStaleAfter),
			Timeout:       durationWithDefault(lookup, "ARCADE_CATALOG_TIMEOUT", defaultCatalogTimeout),
			FeaturedCount: intWithDefault(lookup, "ARCADE_CATALOG_FEATURED_COUNT", defaultCatalogFeatured),
		},
		Search: SearchConfig{
			Debounce:   durationWithDefault(lookup, "ARCADE_SEARCH_DEBOUNCE", defaultSearchDebounce),
			MaxResults: intWithDefault(lookup, "ARCADE_SEARCH_MAX_RESULTS", defaultSearchMaxResults),
		},
		Firebase: FirebaseConfig{
			ProjectID:       stringWithDefault(lookup, "ARCADE_FIREBASE_PROJECT_ID", ""),
			CredentialsFile: stringWithDefault(lookup, "ARCADE_FIREBASE_CREDENTIALS_FILE", ""),
		},
		Firestore: FirestoreConfig{
			ProjectID:    stringWithDefault(lookup, "ARCADE_FIRESTORE_PROJECT_ID", ""),
			EmulatorHost: stringWithDefault(lookup, "ARCADE_FIRESTORE_EMULATOR_HOST", ""),
		},
		LocalStore: LocalStoreConfig{
			Path: stringWithDefault(lookup, "ARCADE_LOCAL_STORE_PATH", defaultLocalStorePath),
		},
		Connectivity: ConnectivityConfig{
			CheckURL: stringWithDefault(lookup, "ARCADE_CONNECTIVITY_CHECK_URL", ""),
			Interval: durationWithDefault(lookup, "ARCADE_CONNECTIVITY_INTERVAL", defaultConnectivityInterval),
		},
		Features: FeatureFlags{
			RemoteFavorites: boolWithDefault(lookup, "ARCADE_FEATURE_REMOTE_FAVORITES", true),
		},
	}

	// Firestore project defaults to Firebase project when unspecified.
	if cfg.Firestore.ProjectID == "" {
		cfg.Firestore.ProjectID = cfg.Firebase.ProjectID
	}

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func validateConfig(cfg Config) error {
	var missing []string

	if cfg.Server.Port == "" {
		missing = append(missing, "Server.Port")
	}
	if cfg.Catalog.BaseURL == "" && cfg.Catalog.Bucket == "" {
		missing = append(missing, "Catalog.BaseURL")
	}
	if cfg.Catalog.StaleAfter <= 0 {
		missing = append(missing, "Catalog.StaleAfter")
	}
	if cfg.Catalog.Timeout <= 0 {
		missing = append(missing, "Catalog.Timeout")
	}
	if cfg.Catalog.FeaturedCount < 0 {
		missing = append(missing, "Catalog.FeaturedCount")
	}
	if cfg.Search.Debounce <= 0 {
		missing = append(missing, "Search.Debounce")
	}
	if cfg.Search.MaxResults <= 0 {
		missing = append(missing, "Search.MaxResults")
	}
	if strings.TrimSpace(cfg.LocalStore.Path) == "" {
		missing = append(missing, "LocalStore.Path")
	}
	if cfg.Connectivity.Interval <= 0 {
		missing = append(missing, "Connectivity.Interval")
	}
	if cfg.Features.RemoteFavorites {
		if cfg.Firebase.ProjectID == "" {
			missing = append(missing, "Firebase.ProjectID")
		}
		if cfg.Firestore.ProjectID == "" {
			missing = append(missing, "Firestore.ProjectID")
		}
	}

	if len(missing) > 0 {
		return &ValidationError{fields: missing}
	}
	return nil
}

func loadDotEnv(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		absPath = path
	}

	file, err := os.Open(absPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: unable to read %s: %w", absPath, err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	values := make(map[string]string)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.HasPrefix(line, "export ") {
			line = strings.TrimSpace(strings.TrimPrefix(line, "export "))
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])
		if key == "" {
			continue
		}
		value = strings.Trim(value, "\"'")
		values[key] = value
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("config: failed parsing %s: %w", absPath, err)
	}
	return values, nil
}

func stringWithDefault(lookup func(string) (string, bool), key, fallback string) string {
	if value, ok := lookup(key); ok && value != "" {
		return value
	}
	return fallback
}

func durationWithDefault(lookup func(string) (string, bool), key string, fallback time.Duration) time.Duration {
	if value, ok := lookup(key); ok && value != "" {
		d, err := time.ParseDuration(value)
		if err == nil {
			return d
		}
	}
	return fallback
}

func intWithDefault(lookup func(string) (string, bool), key string, fallback int) int {
	if value, ok := lookup(key); ok && value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func boolWithDefault(lookup func(string) (string, bool), key string, fallback bool) bool {
	if value, ok := lookup(key); ok && value != "" {
		switch strings.ToLower(value) {
		case "true", "1", "yes", "on":
			return true
		case "false", "0", "no", "off":
			return false
		}
	}
	return fallback
}
