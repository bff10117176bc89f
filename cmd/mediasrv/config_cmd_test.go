package main

import (
	"testing"

	"mediasrv/internal/config"
)

func TestDisplayConfigValueMasksSecrets(t *testing.T) {
	if got := displayConfigValue("storage.secret_key", "hunter2", false); got != maskedSecret {
		t.Fatalf("secret = %q, want masked", got)
	}
	if got := displayConfigValue("storage.secret_key", "hunter2", true); got != "hunter2" {
		t.Fatalf("secret with --show-secret = %q", got)
	}
	if got := displayConfigValue("storage.secret_key", "", false); got != "" {
		t.Fatalf("empty secret = %q, want empty", got)
	}
	if got := displayConfigValue("storage.bucket", "media", false); got != "media" {
		t.Fatalf("non-secret = %q", got)
	}
}

func TestLookupConfigValueRejectsUnknownKeys(t *testing.T) {
	cfg := &config.Config{}
	if _, err := lookupConfigValue(cfg, "storage.nope", false); err == nil {
		t.Fatal("expected unknown key error")
	}
	cfg.Storage.SecretKey = "hunter2"
	got, err := lookupConfigValue(cfg, "storage.secret_key", false)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if got != maskedSecret {
		t.Fatalf("expected masked secret, got %q", got)
	}
}
