package config

import (
	"strings"
	"testing"
	"time"
)

func validLocal() Config {
	return Config{
		App:   AppConfig{Env: "local", Port: 8080},
		DB:    DBConfig{Host: "localhost", Port: 5432, User: "postgres", Password: "x", Name: "telehealth", SSLMode: ""},
		Redis: RedisConfig{Host: "localhost", Port: 6379},
		Auth:  AuthConfig{JWTSecret: "secret"},
	}
}

func TestLoad_ReportsMissingRequired(t *testing.T) {
	// Ensure a clean env by not setting anything and calling validation directly.
	c := Config{}
	if err := c.Validate(); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestValidate_ProductionRequiresSSLMode(t *testing.T) {
	c := validLocal()
	c.App.Env = "production"
	c.Auth.JWTIssuer = "telehealth"
	c.Auth.JWTAudience = "telehealth-api"
	if err := c.Validate(); err == nil || !strings.Contains(err.Error(), "DB_SSLMODE") {
		t.Fatalf("expected error for production without DB_SSLMODE, got %v", err)
	}
}

func TestValidate_LocalDefaultsSSLMode(t *testing.T) {
	c := validLocal()
	if err := c.Validate(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if c.DB.SSLMode != "disable" {
		t.Fatalf("expected sslmode disable default, got %q", c.DB.SSLMode)
	}
}

func TestValidate_CallDefaults(t *testing.T) {
	c := validLocal()
	if err := c.Validate(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	call := c.Call
	if len(call.ICEServers) != 2 || call.ICEServers[0] != "stun:stun.l.google.com:19302" {
		t.Fatalf("unexpected ice servers %v", call.ICEServers)
	}
	if call.RingTimeout != 45*time.Second || call.OfferTimeout != 15*time.Second || call.ConnectTimeout != 30*time.Second {
		t.Fatalf("unexpected timeouts %+v", call)
	}
	if call.OfferResendInterval != 3*time.Second || call.OfferResendLimit != 3 {
		t.Fatalf("unexpected resend settings %+v", call)
	}
	if call.MediaSource != "synthetic" || call.Relay != "redis" || call.RelayPrefix != "telehealth:call:" {
		t.Fatalf("unexpected call wiring %+v", call)
	}
	if call.PresenceTTL != 2*time.Hour {
		t.Fatalf("unexpected presence ttl %s", call.PresenceTTL)
	}
}

func TestValidate_CallRejectsBadValues(t *testing.T) {
	cases := map[string]func(*CallConfig){
		"CALL_MEDIA_SOURCE":          func(c *CallConfig) { c.MediaSource = "webcam" },
		"CALL_RELAY":                 func(c *CallConfig) { c.Relay = "kafka" },
		"CALL_ICE_SERVERS":           func(c *CallConfig) { c.ICEServers = []string{"http://stun.example"} },
		"CALL_OFFER_RESEND_LIMIT":    func(c *CallConfig) { c.OfferResendLimit = -1 },
		"CALL_OFFER_RESEND_INTERVAL": func(c *CallConfig) { c.OfferResendInterval = time.Minute },
	}
	for key, mutate := range cases {
		c := validLocal()
		mutate(&c.Call)
		err := c.Validate()
		if err == nil || !strings.Contains(err.Error(), key) {
			t.Fatalf("%s: expected error naming the key, got %v", key, err)
		}
	}
}

func TestLoad_ReadsCallEnv(t *testing.T) {
	t.Setenv("APP_ENV", "local")
	t.Setenv("APP_PORT", "8080")
	t.Setenv("DB_HOST", "localhost")
	t.Setenv("DB_PORT", "5432")
	t.Setenv("DB_USER", "postgres")
	t.Setenv("DB_NAME", "telehealth")
	t.Setenv("REDIS_HOST", "localhost")
	t.Setenv("REDIS_PORT", "6379")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("CALL_ICE_SERVERS", " stun:stun.example.org:3478 , turn:turn.example.org:3478 ")
	t.Setenv("CALL_RING_TIMEOUT", "30s")
	t.Setenv("CALL_OFFER_RESEND_LIMIT", "5")
	t.Setenv("CALL_RELAY", "memory")
	t.Setenv("CALL_MEDIA_SOURCE", "device")

	c, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(c.Call.ICEServers) != 2 || c.Call.ICEServers[1] != "turn:turn.example.org:3478" {
		t.Fatalf("unexpected ice servers %v", c.Call.ICEServers)
	}
	if c.Call.RingTimeout != 30*time.Second || c.Call.OfferResendLimit != 5 {
		t.Fatalf("unexpected call config %+v", c.Call)
	}
	if c.Call.Relay != "memory" || c.Call.MediaSource != "device" {
		t.Fatalf("unexpected call wiring %+v", c.Call)
	}
	if c.DB.SSLMode != "disable" {
		t.Fatalf("expected sslmode default to persist, got %q", c.DB.SSLMode)
	}
}

func TestLoad_RejectsNonIntegerResendLimit(t *testing.T) {
	t.Setenv("APP_ENV", "local")
	t.Setenv("APP_PORT", "8080")
	t.Setenv("DB_HOST", "localhost")
	t.Setenv("DB_PORT", "5432")
	t.Setenv("DB_USER", "postgres")
	t.Setenv("DB_NAME", "telehealth")
	t.Setenv("REDIS_HOST", "localhost")
	t.Setenv("REDIS_PORT", "6379")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("CALL_OFFER_RESEND_LIMIT", "three")

	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "CALL_OFFER_RESEND_LIMIT") {
		t.Fatalf("expected parse error, got %v", err)
	}
}

func TestValidate_LogLevel(t *testing.T) {
	c := validLocal()
	c.App.LogLevel = "warn"
	if err := c.Validate(); err != nil {
		t.Fatalf("expected warn accepted, got %v", err)
	}
	c.App.LogLevel = "verbose"
	if err := c.Validate(); err == nil || !strings.Contains(err.Error(), "LOG_LEVEL") {
		t.Fatalf("expected LOG_LEVEL error, got %v", err)
	}
}
