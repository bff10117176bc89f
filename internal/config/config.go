package config

import (
	"errors"
	"fmt"
	"io/fs"
	"mime"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

const (
	DefaultAPIURL      = "http://127.0.0.1:7380"
	DefaultDBFileName  = ".mediasrv.db"
	DefaultBlobDirName = ".mediasrv-blobs"
	DefaultLogLevel    = "debug"

	DefaultStorageBackend = "local_cas"
	DefaultStorageRegion  = "us-east-1"

	DefaultMaxUploadBytes     int64 = 2 * 1024 * 1024 * 1024
	DefaultMultipartMaxMemory int64 = 8 * 1024 * 1024
	DefaultCacheMaxAge              = 31536000
	DefaultViewWorkers              = 8
	DefaultGCBatchSize              = 500

	configFileName           = ".mediasrv.toml"
	configDirEnvKey          = "MEDIASRV_CONFIG_DIR"
	trustProjectConfigEnvKey = "MEDIASRV_TRUST_PROJECT_CONFIG"

	apiURLEnvKey         = "MEDIASRV_API_URL"
	dbPathEnvKey         = "MEDIASRV_DB"
	storageBackendEnvKey = "MEDIASRV_STORAGE_BACKEND"
	s3AccessKeyEnvKey    = "MEDIASRV_S3_ACCESS_KEY"
	s3SecretKeyEnvKey    = "MEDIASRV_S3_SECRET_KEY"
)

// StorageConfig selects and configures the blob backend.
type StorageConfig struct {
	Backend   string `toml:"backend"`
	Root      string `toml:"root"`
	Endpoint  string `toml:"endpoint"`
	Region    string `toml:"region"`
	Bucket    string `toml:"bucket"`
	Prefix    string `toml:"prefix"`
	AccessKey string `toml:"access_key"`
	SecretKey string `toml:"secret_key"`
	UseSSL    bool   `toml:"use_ssl"`
}

// MediaConfig defines upload and serving behavior.
type MediaConfig struct {
	MaxUploadBytes     int64    `toml:"max_upload_bytes"`
	MultipartMaxMemory int64    `toml:"multipart_max_memory"`
	AllowedMediaTypes  []string `toml:"allowed_media_types"`
	CacheMaxAge        int      `toml:"cache_max_age"`
	StrictRanges       bool     `toml:"strict_ranges"`
	// StreamRateBytes caps bytes per second per response; 0 disables.
	StreamRateBytes int64 `toml:"stream_rate_bytes"`
	ViewWorkers     int   `toml:"view_workers"`
	GCBatchSize     int   `toml:"gc_batch_size"`
}

// Config defines runtime configuration for mediasrv.
type Config struct {
	APIURL                   string        `toml:"api_url"`
	DBPath                   string        `toml:"db_path"`
	LogLevel                 string        `toml:"log_level"`
	Storage                  StorageConfig `toml:"storage"`
	Media                    MediaConfig   `toml:"media"`
	TrustedProjectConfigPath string        `toml:"-"`
}

// Default returns default configuration values.
func Default() Config {
	return Config{
		APIURL:   DefaultAPIURL,
		DBPath:   "",
		LogLevel: DefaultLogLevel,
		Storage: StorageConfig{
			Backend: DefaultStorageBackend,
			Region:  DefaultStorageRegion,
		},
		Media: MediaConfig{
			MaxUploadBytes:     DefaultMaxUploadBytes,
			MultipartMaxMemory: DefaultMultipartMaxMemory,
			CacheMaxAge:        DefaultCacheMaxAge,
			ViewWorkers:        DefaultViewWorkers,
			GCBatchSize:        DefaultGCBatchSize,
		},
	}
}

// loadFile decodes path into cfg. A missing file or a directory is skipped.
func loadFile(path string, cfg *Config) error {
	info, err := os.Stat(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return nil
	case err != nil:
		return err
	case info.IsDir():
		return nil
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return nil
}

func overrideConfigPath() (string, bool) {
	dir := strings.TrimSpace(os.Getenv(configDirEnvKey))
	if dir == "" {
		return "", false
	}
	return filepath.Join(dir, configFileName), true
}

func trustProjectConfig() bool {
	trusted, err := strconv.ParseBool(strings.TrimSpace(os.Getenv(trustProjectConfigEnvKey)))
	return err == nil && trusted
}

// GlobalPath returns the path to the global config file.
func GlobalPath() (string, error) {
	return configPath(os.UserHomeDir)
}

// ProjectPath returns the path to the project config file.
func ProjectPath() (string, error) {
	return configPath(os.Getwd)
}

func configPath(dir func() (string, error)) (string, error) {
	if path, ok := overrideConfigPath(); ok {
		return path, nil
	}
	base, err := dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, configFileName), nil
}

// SetKey reads the TOML file at path, sets key=value, and writes it back.
// Files holding a secret are restricted to the owner.
func SetKey(path, key, value string) error {
	spec, ok := lookupKey(key)
	if !ok {
		return fmt.Errorf("unknown key: %s", key)
	}
	parsed, err := spec.parse(value)
	if err != nil {
		return err
	}

	data := map[string]any{}
	if _, err := toml.DecodeFile(path, &data); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	if err := setNestedKey(data, strings.Split(key, "."), parsed); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	mode := os.FileMode(0o644)
	if spec.secret {
		mode = 0o600
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, mode)
	if err != nil {
		return err
	}
	defer f.Close()
	if spec.secret {
		// OpenFile keeps the mode of an existing file.
		if err := f.Chmod(mode); err != nil {
			return err
		}
	}
	return toml.NewEncoder(f).Encode(data)
}

// envOverrides maps environment variables onto config fields. They win over
// every config file.
var envOverrides = []struct {
	key   string
	apply func(*Config, string)
}{
	{apiURLEnvKey, func(c *Config, v string) { c.APIURL = v }},
	{dbPathEnvKey, func(c *Config, v string) { c.DBPath = v }},
	{storageBackendEnvKey, func(c *Config, v string) { c.Storage.Backend = v }},
	{s3AccessKeyEnvKey, func(c *Config, v string) { c.Storage.AccessKey = v }},
	{s3SecretKeyEnvKey, func(c *Config, v string) { c.Storage.SecretKey = v }},
}

// Load layers defaults, the global (or MEDIASRV_CONFIG_DIR) file, a trusted
// project file, and env overrides, in that order.
func Load() (*Config, error) {
	cfg := Default()
	if err := cfg.loadFiles(); err != nil {
		return nil, err
	}
	if cfg.DBPath == "" {
		if cwd, err := os.Getwd(); err == nil {
			cfg.DBPath = filepath.Join(cwd, DefaultDBFileName)
		}
	}
	for _, o := range envOverrides {
		if v := strings.TrimSpace(os.Getenv(o.key)); v != "" {
			o.apply(&cfg, v)
		}
	}
	cfg.normalize()
	return &cfg, nil
}

func (c *Config) loadFiles() error {
	if path, ok := overrideConfigPath(); ok {
		return loadFile(path, c)
	}
	if home, err := os.UserHomeDir(); err == nil {
		if err := loadFile(filepath.Join(home, configFileName), c); err != nil {
			return err
		}
	}
	if !trustProjectConfig() {
		return nil
	}
	cwd, err := os.Getwd()
	if err != nil {
		return nil
	}
	projectPath := filepath.Join(cwd, configFileName)
	info, err := os.Stat(projectPath)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return nil
	case err != nil:
		return err
	case info.IsDir():
		return nil
	}
	if err := loadFile(projectPath, c); err != nil {
		return err
	}
	c.TrustedProjectConfigPath = projectPath
	return nil
}

// BlobRoot returns the local_cas root, defaulting next to the database.
func (c *Config) BlobRoot() string {
	if root := strings.TrimSpace(c.Storage.Root); root != "" {
		return root
	}
	return filepath.Join(filepath.Dir(c.DBPath), DefaultBlobDirName)
}

func setNestedKey(data map[string]any, parts []string, value any) error {
	if len(parts) == 0 {
		return fmt.Errorf("invalid config key")
	}
	if len(parts) == 1 {
		data[parts[0]] = value
		return nil
	}
	childRaw, ok := data[parts[0]]
	if !ok {
		child := map[string]any{}
		data[parts[0]] = child
		return setNestedKey(child, parts[1:], value)
	}
	child, ok := childRaw.(map[string]any)
	if !ok {
		return fmt.Errorf("cannot set nested key %q", strings.Join(parts, "."))
	}
	return setNestedKey(child, parts[1:], value)
}

func (c *Config) normalize() {
	if strings.TrimSpace(c.LogLevel) == "" {
		c.LogLevel = DefaultLogLevel
	}
	c.Storage.Backend = strings.ToLower(strings.TrimSpace(c.Storage.Backend))
	if c.Storage.Backend == "" {
		c.Storage.Backend = DefaultStorageBackend
	}
	if c.Media.MaxUploadBytes <= 0 {
		c.Media.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if c.Media.MultipartMaxMemory <= 0 {
		c.Media.MultipartMaxMemory = DefaultMultipartMaxMemory
	}
	if c.Media.CacheMaxAge < 0 {
		c.Media.CacheMaxAge = DefaultCacheMaxAge
	}
	if c.Media.StreamRateBytes < 0 {
		c.Media.StreamRateBytes = 0
	}
	if c.Media.ViewWorkers <= 0 {
		c.Media.ViewWorkers = DefaultViewWorkers
	}
	if c.Media.GCBatchSize <= 0 {
		c.Media.GCBatchSize = DefaultGCBatchSize
	}
	c.Media.AllowedMediaTypes = normalizeConfiguredMediaTypes(c.Media.AllowedMediaTypes)
}

// normalizeConfiguredMediaTypes lowercases entries and keeps wildcard
// families such as "video/*".
func normalizeConfiguredMediaTypes(rawValues []string) []string {
	if len(rawValues) == 0 {
		return nil
	}
	out := make([]string, 0, len(rawValues))
	seen := map[string]struct{}{}
	for _, raw := range rawValues {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		normalized := strings.ToLower(raw)
		if !strings.HasSuffix(normalized, "/*") {
			parsed, _, err := mime.ParseMediaType(raw)
			if err != nil {
				continue
			}
			normalized = strings.ToLower(strings.TrimSpace(parsed))
		}
		if normalized == "" {
			continue
		}
		if _, ok := seen[normalized]; ok {
			continue
		}
		seen[normalized] = struct{}{}
		out = append(out, normalized)
	}
	sort.Strings(out)
	if len(out) == 0 {
		return nil
	}
	return out
}
