package redis

import (
	"testing"

	"github.com/tochukwuani/pharmalink-backend/pkg/config"
)

func TestOptionsFromConfig(t *testing.T) {
	t.Run("requires url or address", func(t *testing.T) {
		if _, err := optionsFromConfig(config.RedisConfig{}); err == nil {
			t.Fatal("expected error when neither url nor address set")
		}
	})

	t.Run("parses url", func(t *testing.T) {
		opts, err := optionsFromConfig(config.RedisConfig{URL: "redis://localhost:6379/2"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if opts.Addr != "localhost:6379" {
			t.Fatalf("unexpected addr %q", opts.Addr)
		}
		if opts.DB != 2 {
			t.Fatalf("expected db 2, got %d", opts.DB)
		}
	})

	t.Run("falls back to address", func(t *testing.T) {
		opts, err := optionsFromConfig(config.RedisConfig{Address: "10.0.0.5:6380", DB: 1, PoolSize: 4})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if opts.Addr != "10.0.0.5:6380" {
			t.Fatalf("unexpected addr %q", opts.Addr)
		}
		if opts.PoolSize != 4 {
			t.Fatalf("expected pool size 4, got %d", opts.PoolSize)
		}
	})
}

func TestKeyHelpers(t *testing.T) {
	if got := LockKey("enrichment"); got != "pl:lock:enrichment" {
		t.Fatalf("unexpected lock key %q", got)
	}
	if got := EmbeddingKey("abc123"); got != "pl:embedding:abc123" {
		t.Fatalf("unexpected embedding key %q", got)
	}
	if got := buildKey("lock", " "); got != "pl:lock" {
		t.Fatalf("blank parts should be dropped, got %q", got)
	}
}
