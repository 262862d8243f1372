package config

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"food-ordering-api/models"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("KAFKA_BROKERS", " broker-1:9092 , broker-2:9092 ")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.JWTExpire != 30*24*time.Hour {
		t.Errorf("JWTExpire = %v, want 30 days", cfg.JWTExpire)
	}
	if !cfg.RequireApproval {
		t.Error("approval gate should default to on")
	}
	if cfg.BlobBackend != "disk" || cfg.KafkaTopic != "order-events" {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	if len(cfg.KafkaBrokers) != 2 || cfg.KafkaBrokers[1] != "broker-2:9092" {
		t.Errorf("KafkaBrokers = %q", cfg.KafkaBrokers)
	}
}

func TestLoadRejectsBadInput(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"missing secret", map[string]string{"JWT_SECRET": ""}},
		{"bad expiry", map[string]string{"JWT_EXPIRE": "forever"}},
		{"bad approval flag", map[string]string{"LISTING_REQUIRE_APPROVAL": "maybe"}},
		{"gridfs without mongo", map[string]string{"BLOB_BACKEND": "gridfs", "MONGODB_URI": ""}},
		{"unknown backend", map[string]string{"BLOB_BACKEND": "s3"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("JWT_SECRET", "test-secret")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			if _, err := Load(); err == nil {
				t.Fatal("expected an error")
			}
		})
	}
}

func TestParseDuration(t *testing.T) {
	tests := map[string]time.Duration{
		"30d": 30 * 24 * time.Hour,
		"1d":  24 * time.Hour,
		"90m": 90 * time.Minute,
	}
	for in, want := range tests {
		got, err := parseDuration(in)
		if err != nil || got != want {
			t.Errorf("parseDuration(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
}

func TestOpenDBMigrates(t *testing.T) {
	db, err := OpenDB("file:" + uuid.NewString() + "?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("OpenDB: %v", err)
	}
	for _, m := range []any{&models.User{}, &models.Restaurant{}, &models.MenuItem{}, &models.Order{}, &models.OrderItem{}, &models.OrderStatusHistory{}} {
		if !db.Migrator().HasTable(m) {
			t.Errorf("table for %T not created", m)
		}
	}
}
