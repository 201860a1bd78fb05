package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/Createyouracccount/last-mike/internal/agent"
)

// Config holds application configuration.
type Config struct {
	HTTPAddress   string
	AuthPassword  string
	PublicBaseURL string

	LLMProvider     string
	GeminiKey       string
	GeminiModel     string
	CerebrasKey     string
	CerebrasModelID string

	DeepgramKey      string
	DeepgramTTSModel string
	DeepgramSTTModel string
	STTLanguage      string

	TwilioAuthToken string
	TwilioLanguage  string
	TwilioVoice     string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	SessionTTL    time.Duration
	// StoreTimeout bounds each session store call; ArchiveTimeout bounds
	// one transcript upload.
	StoreTimeout   time.Duration
	ArchiveTimeout time.Duration

	SupabaseURL            string
	SupabaseServiceRoleKey string
	SupabaseBucket         string

	Policy agent.Policy
}

// Load reads environment variables and returns Config with sane defaults.
func Load() Config {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file loaded")
	}

	cfg := Config{
		HTTPAddress:   getEnv("HTTP_ADDRESS", ":8080"),
		AuthPassword:  os.Getenv("AUTH_PASSWORD"),
		PublicBaseURL: os.Getenv("PUBLIC_BASE_URL"),

		LLMProvider:     getEnv("LLM_PROVIDER", "gemini"),
		GeminiKey:       os.Getenv("GEMINI_API_KEY"),
		GeminiModel:     getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
		CerebrasKey:     os.Getenv("CEREBRAS_API_KEY"),
		CerebrasModelID: getEnv("CEREBRAS_MODEL_ID", "gpt-oss-120b"),

		DeepgramKey:      os.Getenv("DEEPGRAM_API_KEY"),
		DeepgramTTSModel: os.Getenv("DEEPGRAM_TTS_MODEL"),
		DeepgramSTTModel: getEnv("DEEPGRAM_STT_MODEL", "nova-2"),
		STTLanguage:      getEnv("STT_LANGUAGE", "ko"),

		TwilioAuthToken: os.Getenv("TWILIO_AUTH_TOKEN"),
		TwilioLanguage:  getEnv("TWILIO_LANGUAGE", "ko-KR"),
		TwilioVoice:     getEnv("TWILIO_VOICE", "Polly.Seoyeon"),

		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       getInt("REDIS_DB", 0),
		SessionTTL:    getDuration("SESSION_TTL", 30*time.Minute),

		StoreTimeout:   getDuration("STORE_TIMEOUT", 2*time.Second),
		ArchiveTimeout: getDuration("ARCHIVE_TIMEOUT", 10*time.Second),

		SupabaseURL:            os.Getenv("SUPABASE_URL"),
		SupabaseServiceRoleKey: os.Getenv("SUPABASE_SERVICE_ROLE_KEY"),
		SupabaseBucket:         getEnv("SUPABASE_BUCKET", "transcripts"),
	}

	policy := agent.DefaultPolicy()
	if path := os.Getenv("COUNSEL_POLICY_FILE"); path != "" {
		p, err := LoadPolicyFile(path)
		if err != nil {
			log.Printf("Warning: policy file ignored: %v", err)
		} else {
			policy = p
		}
	}
	cfg.Policy = policyFromEnv(policy)

	switch cfg.LLMProvider {
	case "gemini":
		if cfg.GeminiKey == "" {
			log.Println("Warning: GEMINI_API_KEY not set - consultation will use rule responses only")
		}
	case "cerebras":
		if cfg.CerebrasKey == "" {
			log.Println("Warning: CEREBRAS_API_KEY not set - consultation will use rule responses only")
		}
	case "none":
	default:
		log.Printf("Warning: unknown LLM_PROVIDER %q - consultation will use rule responses only", cfg.LLMProvider)
	}
	if cfg.DeepgramKey == "" {
		log.Println("Warning: DEEPGRAM_API_KEY not set - /stream voice channel is disabled")
	} else if cfg.DeepgramTTSModel == "" {
		log.Println("Warning: DEEPGRAM_TTS_MODEL not set - /stream voice channel is disabled")
	}
	if cfg.TwilioAuthToken == "" {
		log.Println("Warning: TWILIO_AUTH_TOKEN not set - Twilio webhooks will be rejected")
	}
	if cfg.RedisAddr == "" {
		log.Println("REDIS_ADDR not set - sessions are kept in memory")
	}
	if cfg.SupabaseURL == "" || cfg.SupabaseServiceRoleKey == "" {
		log.Println("Supabase not configured - transcripts are not archived")
	}

	log.Printf("config: HTTP_ADDRESS=%s LLM_PROVIDER=%s", cfg.HTTPAddress, cfg.LLMProvider)
	return cfg
}

// LoadPolicyFile reads a YAML policy. Missing fields keep their defaults.
func LoadPolicyFile(path string) (agent.Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return agent.Policy{}, err
	}
	p := agent.DefaultPolicy()
	if err := yaml.Unmarshal(data, &p); err != nil {
		return agent.Policy{}, fmt.Errorf("parse %s: %w", path, err)
	}
	return p.WithDefaults(), nil
}

func policyFromEnv(p agent.Policy) agent.Policy {
	p.LLMThreshold = getFloat("LLM_THRESHOLD", p.LLMThreshold)
	p.LLMTimeout = getDuration("LLM_TIMEOUT", p.LLMTimeout)
	p.MaxResponseRunes = getInt("MAX_RESPONSE_RUNES", p.MaxResponseRunes)
	p.GlobalTurnCap = getInt("GLOBAL_TURN_CAP", p.GlobalTurnCap)
	p.AssessmentTurnCap = getInt("ASSESSMENT_TURN_CAP", p.AssessmentTurnCap)
	p.ConsultationTurnCap = getInt("CONSULTATION_TURN_CAP", p.ConsultationTurnCap)
	p.EmergencyUrgency = getInt("EMERGENCY_URGENCY", p.EmergencyUrgency)
	p.AdvisoryUrgency = getInt("ADVISORY_URGENCY", p.AdvisoryUrgency)
	return p.WithDefaults()
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("Warning: %s=%q is not an integer, using %d", key, v, defaultValue)
		return defaultValue
	}
	return n
}

func getFloat(key string, defaultValue float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Printf("Warning: %s=%q is not a number, using %v", key, v, defaultValue)
		return defaultValue
	}
	return f
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Printf("Warning: %s=%q is not a duration, using %s", key, v, defaultValue)
		return defaultValue
	}
	return d
}
