package config

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// StorageBackends lists the accepted values of storage.backend.
var StorageBackends = []string{"local_cas", "minio", "s3", "memory"}

type valueKind int

const (
	kindString valueKind = iota
	kindBool
	kindPositive
	kindNonNegative
	kindList
	kindBackend
)

// keySpec describes one dotted config key. The dotted name mirrors the TOML
// table layout, so SetKey can write it without knowing the struct.
type keySpec struct {
	name   string
	kind   valueKind
	secret bool
	get    func(*Config) string
}

func itoa64(v int64) string { return strconv.FormatInt(v, 10) }

var keySpecs = []keySpec{
	{name: "api_url", get: func(c *Config) string { return c.APIURL }},
	{name: "db_path", get: func(c *Config) string { return c.DBPath }},
	{name: "log_level", get: func(c *Config) string { return c.LogLevel }},

	{name: "storage.backend", kind: kindBackend, get: func(c *Config) string { return c.Storage.Backend }},
	{name: "storage.root", get: func(c *Config) string { return c.Storage.Root }},
	{name: "storage.endpoint", get: func(c *Config) string { return c.Storage.Endpoint }},
	{name: "storage.region", get: func(c *Config) string { return c.Storage.Region }},
	{name: "storage.bucket", get: func(c *Config) string { return c.Storage.Bucket }},
	{name: "storage.prefix", get: func(c *Config) string { return c.Storage.Prefix }},
	{name: "storage.access_key", secret: true, get: func(c *Config) string { return c.Storage.AccessKey }},
	{name: "storage.secret_key", secret: true, get: func(c *Config) string { return c.Storage.SecretKey }},
	{name: "storage.use_ssl", kind: kindBool, get: func(c *Config) string { return strconv.FormatBool(c.Storage.UseSSL) }},

	{name: "media.max_upload_bytes", kind: kindPositive, get: func(c *Config) string { return itoa64(c.Media.MaxUploadBytes) }},
	{name: "media.multipart_max_memory", kind: kindPositive, get: func(c *Config) string { return itoa64(c.Media.MultipartMaxMemory) }},
	{name: "media.allowed_media_types", kind: kindList, get: func(c *Config) string { return strings.Join(c.Media.AllowedMediaTypes, ",") }},
	{name: "media.cache_max_age", kind: kindNonNegative, get: func(c *Config) string { return strconv.Itoa(c.Media.CacheMaxAge) }},
	{name: "media.strict_ranges", kind: kindBool, get: func(c *Config) string { return strconv.FormatBool(c.Media.StrictRanges) }},
	{name: "media.stream_rate_bytes", kind: kindNonNegative, get: func(c *Config) string { return itoa64(c.Media.StreamRateBytes) }},
	{name: "media.view_workers", kind: kindPositive, get: func(c *Config) string { return strconv.Itoa(c.Media.ViewWorkers) }},
	{name: "media.gc_batch_size", kind: kindPositive, get: func(c *Config) string { return strconv.Itoa(c.Media.GCBatchSize) }},
}

func lookupKey(key string) (keySpec, bool) {
	i := slices.IndexFunc(keySpecs, func(s keySpec) bool { return s.name == key })
	if i < 0 {
		return keySpec{}, false
	}
	return keySpecs[i], true
}

// AllowedKeys returns every settable key in display order.
func AllowedKeys() []string {
	names := make([]string, len(keySpecs))
	for i, s := range keySpecs {
		names[i] = s.name
	}
	return names
}

func IsAllowedKey(key string) bool {
	_, ok := lookupKey(key)
	return ok
}

// IsSecretKey reports whether key holds a credential that output should mask.
func IsSecretKey(key string) bool {
	spec, ok := lookupKey(key)
	return ok && spec.secret
}

// Get returns the effective value of key as a string.
func (c *Config) Get(key string) (string, error) {
	spec, ok := lookupKey(key)
	if !ok {
		return "", fmt.Errorf("unknown key: %s", key)
	}
	return spec.get(c), nil
}

// parse converts a command-line value into the TOML value stored for the key.
func (s keySpec) parse(raw string) (any, error) {
	raw = strings.TrimSpace(raw)
	switch s.kind {
	case kindBool:
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("%s must be true or false", s.name)
		}
		return v, nil
	case kindPositive, kindNonNegative:
		v, err := strconv.ParseInt(raw, 10, 64)
		floor := int64(1)
		if s.kind == kindNonNegative {
			floor = 0
		}
		if err != nil || v < floor {
			return nil, fmt.Errorf("%s must be an integer >= %d", s.name, floor)
		}
		return v, nil
	case kindList:
		return splitCSV(raw), nil
	case kindBackend:
		if !slices.Contains(StorageBackends, raw) {
			return nil, fmt.Errorf("storage.backend must be one of %s", strings.Join(StorageBackends, ", "))
		}
		return raw, nil
	default:
		return raw, nil
	}
}

func splitCSV(value string) []string {
	out := []string{}
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
