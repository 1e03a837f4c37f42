package config

import (
	"testing"
	"time"
)

func TestFromDefaults(t *testing.T) {
	cfg := FromDefaults()

	if cfg.Port != 8080 {
		t.Errorf("Port = %d, want 8080", cfg.Port)
	}
	if cfg.Addr() != "0.0.0.0:8080" {
		t.Errorf("Addr = %q, want 0.0.0.0:8080", cfg.Addr())
	}
	if cfg.WriteTimeout != 0 {
		t.Errorf("WriteTimeout = %v, want 0 (SSE)", cfg.WriteTimeout)
	}
	if cfg.FileMaxBytes != 5<<20 {
		t.Errorf("FileMaxBytes = %d, want %d", cfg.FileMaxBytes, 5<<20)
	}
	if cfg.HeartbeatInterval != 30*time.Second {
		t.Errorf("HeartbeatInterval = %v, want 30s", cfg.HeartbeatInterval)
	}
	if cfg.TypingTTL != 4*time.Second || cfg.TypingDedup != 2*time.Second {
		t.Errorf("typing = %v/%v, want 4s/2s", cfg.TypingTTL, cfg.TypingDedup)
	}
	if cfg.RateLimit.MessagesPerMinute != 60 {
		t.Errorf("MessagesPerMinute = %d, want 60", cfg.RateLimit.MessagesPerMinute)
	}
	if cfg.RateLimit.RoomsPerHour != 10 {
		t.Errorf("RoomsPerHour = %d, want 10", cfg.RateLimit.RoomsPerHour)
	}
	if cfg.RateLimit.UploadsPerMinute != 10 {
		t.Errorf("UploadsPerMinute = %d, want 10", cfg.RateLimit.UploadsPerMinute)
	}
	if cfg.RingCapacityPerRoom != 256 || cfg.SubscriberBuffer != 64 {
		t.Errorf("bus = %d/%d, want 256/64", cfg.RingCapacityPerRoom, cfg.SubscriberBuffer)
	}
	if cfg.Database.URL != "" {
		t.Errorf("Database.URL = %q, want empty (embedded)", cfg.Database.URL)
	}
	if cfg.DBMaxConnections() != 20 {
		t.Errorf("DBMaxConnections = %d, want 20", cfg.DBMaxConnections())
	}
}

func TestDBMaxConnectionsFallback(t *testing.T) {
	cfg := &Config{}
	if cfg.DBMaxConnections() != 20 {
		t.Errorf("DBMaxConnections on zero = %d, want 20", cfg.DBMaxConnections())
	}
	cfg.Database.MaxConnections = 5
	if cfg.DBMaxConnections() != 5 {
		t.Errorf("DBMaxConnections = %d, want 5", cfg.DBMaxConnections())
	}
}
