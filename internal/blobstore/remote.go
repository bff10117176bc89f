package blobstore

import (
	"fmt"
	"path"
	"strings"
)

// RemoteConfig configures an object-storage backend.
type RemoteConfig struct {
	Endpoint  string
	Region    string
	Bucket    string
	Prefix    string
	AccessKey string
	SecretKey string
	UseSSL    bool
	// SpoolDir holds temporary copies of uploads while they are hashed.
	// Empty means os.TempDir().
	SpoolDir string
}

func (c RemoteConfig) validate() error {
	if strings.TrimSpace(c.Bucket) == "" {
		return fmt.Errorf("storage bucket is required")
	}
	return nil
}

func objectKey(prefix, key string) (string, error) {
	clean, err := validateKey(key)
	if err != nil {
		return "", err
	}
	prefix = strings.Trim(strings.TrimSpace(prefix), "/")
	if prefix == "" {
		return clean, nil
	}
	return path.Join(prefix, clean), nil
}
