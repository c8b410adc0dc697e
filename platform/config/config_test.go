package config

import (
	"testing"
	"time"
)

const unexpectedErrMsg = "unexpected error: %v"

func TestLoadDefaults(t *testing.T) {
	t.Setenv("STORAGE_DRIVER", "memory")
	t.Setenv("CORS_ORIGINS", "http://localhost:4200")

	cfg, err := Load()
	if err != nil {
		t.Fatalf(unexpectedErrMsg, err)
	}
	if cfg.GetFollowUpSweepInterval() != 5*time.Minute {
		t.Fatalf("expected 5m sweep interval, got %s", cfg.GetFollowUpSweepInterval())
	}
	if cfg.GetFollowUpBatchSize() != 50 {
		t.Fatalf("expected batch size 50, got %d", cfg.GetFollowUpBatchSize())
	}
	if cfg.IsSchedulerEnabled() {
		t.Fatalf("scheduler must be disabled without REDIS_URL")
	}
	if cfg.IsEmailEnabled() {
		t.Fatalf("email must be disabled without SMTP_HOST")
	}
}

func TestLoadRequiresDatabaseForPostgres(t *testing.T) {
	t.Setenv("STORAGE_DRIVER", "postgres")
	t.Setenv("DATABASE_URL", "")

	if _, err := Load(); err == nil {
		t.Fatalf("expected error when DATABASE_URL is missing")
	}
}

func TestLoadRejectsMalformedCredentialsKey(t *testing.T) {
	t.Setenv("STORAGE_DRIVER", "memory")
	t.Setenv("CREDENTIALS_KEY", "not-hex")

	if _, err := Load(); err == nil {
		t.Fatalf("expected error for malformed CREDENTIALS_KEY")
	}
}

func TestLoadParsesCredentialsKey(t *testing.T) {
	t.Setenv("STORAGE_DRIVER", "memory")
	t.Setenv("CREDENTIALS_KEY", "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f")

	cfg, err := Load()
	if err != nil {
		t.Fatalf(unexpectedErrMsg, err)
	}
	if len(cfg.GetCredentialsKey()) != 32 {
		t.Fatalf("expected 32 byte key, got %d", len(cfg.GetCredentialsKey()))
	}
}

func TestValidateAPIRequiresJWTSecret(t *testing.T) {
	cfg := &Config{}
	if err := cfg.ValidateAPI(); err == nil {
		t.Fatalf("expected error without JWT secret")
	}
	cfg.JWTAccessSecret = "secret"
	if err := cfg.ValidateAPI(); err != nil {
		t.Fatalf(unexpectedErrMsg, err)
	}
}

func TestVoiceNotesNeedClassifier(t *testing.T) {
	t.Setenv("STORAGE_DRIVER", "memory")
	t.Setenv("VOICE_NOTES_ENABLED", "true")
	t.Setenv("GEMINI_API_KEY", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf(unexpectedErrMsg, err)
	}
	if cfg.IsVoiceNotesEnabled() {
		t.Fatalf("voice notes must stay off without GEMINI_API_KEY")
	}

	t.Setenv("GEMINI_API_KEY", "key")
	cfg, err = Load()
	if err != nil {
		t.Fatalf(unexpectedErrMsg, err)
	}
	if !cfg.IsVoiceNotesEnabled() || cfg.GetGeminiVoice() != "Kore" {
		t.Fatalf("expected voice notes with the default voice, got enabled=%v voice=%q", cfg.IsVoiceNotesEnabled(), cfg.GetGeminiVoice())
	}
}
