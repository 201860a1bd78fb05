package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_DefaultsAndEnv(t *testing.T) {
	t.Setenv("HTTP_ADDRESS", "")
	t.Setenv("CEREBRAS_MODEL_ID", "")
	t.Setenv("SESSION_TTL", "")
	t.Setenv("COUNSEL_POLICY_FILE", "")
	t.Setenv("GLOBAL_TURN_CAP", "")
	t.Setenv("DEEPGRAM_TTS_MODEL", "")
	t.Setenv("STORE_TIMEOUT", "")
	t.Setenv("ARCHIVE_TIMEOUT", "")
	cfg := Load()
	if cfg.HTTPAddress != ":8080" {
		t.Fatalf("expected default http address, got %q", cfg.HTTPAddress)
	}
	if cfg.CerebrasModelID == "" {
		t.Fatalf("expected default cerebras model id")
	}
	if cfg.SessionTTL != 30*time.Minute {
		t.Fatalf("expected default ttl, got %v", cfg.SessionTTL)
	}
	if cfg.Policy.GlobalTurnCap != 12 || cfg.Policy.EmergencyUrgency != 9 {
		t.Fatalf("unexpected default policy %+v", cfg.Policy)
	}
	if cfg.DeepgramTTSModel != "" {
		t.Fatalf("tts voice must be chosen explicitly, got %q", cfg.DeepgramTTSModel)
	}
	if cfg.StoreTimeout != 2*time.Second || cfg.ArchiveTimeout != 10*time.Second {
		t.Fatalf("unexpected timeouts store=%v archive=%v", cfg.StoreTimeout, cfg.ArchiveTimeout)
	}
}

func TestLoad_PolicyFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	yml := "llm_threshold: 0.7\nllm_timeout: 2s\nconsultation_turn_cap: 5\nglobal_turn_cap: 20\n"
	if err := os.WriteFile(path, []byte(yml), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("COUNSEL_POLICY_FILE", path)
	t.Setenv("GLOBAL_TURN_CAP", "10")
	t.Setenv("LLM_THRESHOLD", "")
	t.Setenv("LLM_TIMEOUT", "")
	t.Setenv("CONSULTATION_TURN_CAP", "")

	p := Load().Policy
	if p.LLMThreshold != 0.7 || p.LLMTimeout != 2*time.Second || p.ConsultationTurnCap != 5 {
		t.Fatalf("file values not applied: %+v", p)
	}
	if p.GlobalTurnCap != 10 {
		t.Fatalf("env should override file, got %d", p.GlobalTurnCap)
	}
	if p.AssessmentTurnCap != 15 {
		t.Fatalf("unset fields keep defaults, got %d", p.AssessmentTurnCap)
	}
}

func TestLoad_BadNumbersFallBack(t *testing.T) {
	t.Setenv("COUNSEL_POLICY_FILE", "")
	t.Setenv("REDIS_DB", "two")
	t.Setenv("LLM_TIMEOUT", "soon")
	t.Setenv("LLM_THRESHOLD", "high")
	cfg := Load()
	if cfg.RedisDB != 0 || cfg.Policy.LLMTimeout != 3500*time.Millisecond || cfg.Policy.LLMThreshold != 0.6 {
		t.Fatalf("bad values should fall back: db=%d policy=%+v", cfg.RedisDB, cfg.Policy)
	}
}

func TestLoadPolicyFile_Errors(t *testing.T) {
	if _, err := LoadPolicyFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
	path := filepath.Join(t.TempDir(), "bad.yaml")
	os.WriteFile(path, []byte("global_turn_cap: [1, 2"), 0o600)
	if _, err := LoadPolicyFile(path); err == nil {
		t.Fatalf("expected parse error")
	}
}
