package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port          string
	Env           string
	LogLevel      string
	DatabaseURL   string
	EvolutionBase string
	EvolutionKey  string
	EvolutionInst string

	// SelfNumber is the bot's own WhatsApp number. When set, inbound
	// messages from any other number are dropped.
	SelfNumber string
	// OwnerNumber receives handoff summaries. Falls back to SelfNumber.
	OwnerNumber string
	// SelfTest restricts processing to messages the account sent to itself.
	SelfTest bool

	LLMEnabled      bool
	LLMTemperature  float32
	LLMContextTurns int
	AWSRegion       string
	AWSAccessKeyID  string
	AWSSecretKey    string
	BedrockModelID  string
	GeminiAPIKey    string
	GeminiModelID   string

	EscalationKeywords      []string
	HandoffAuto             bool
	HandoffMinTurns         int
	HandoffCooldown         time.Duration
	HandoffCooldownSuppress bool

	RedisAddr     string
	RedisPassword string
	RedisTLS      bool
}

// Load reads configuration from environment variables
func Load() *Config {
	cfg := &Config{
		Port:          getEnv("PORT", "8000"),
		Env:           getEnv("ENV", "development"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		DatabaseURL:   getEnv("DATABASE_URL", ""),
		EvolutionBase: strings.TrimRight(getEnv("EV_BASE", ""), "/"),
		EvolutionKey:  getEnv("EV_KEY", ""),
		EvolutionInst: getEnv("EV_INST", ""),

		SelfNumber:  getEnv("MY_NUMBER", ""),
		OwnerNumber: getEnv("OWNER_NUMBER", ""),
		SelfTest:    getEnv("SELF_TEST", "0") == "1",

		LLMEnabled:      getEnvAsBool("LLM_ENABLED", true),
		LLMTemperature:  getEnvAsFloat32("LLM_TEMPERATURE", 0.3),
		LLMContextTurns: getEnvAsInt("LLM_CONTEXT_TURNS", 25),
		AWSRegion:       getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:  getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretKey:    getEnv("AWS_SECRET_ACCESS_KEY", ""),
		BedrockModelID:  getEnv("BEDROCK_MODEL_ID", ""),
		GeminiAPIKey:    getEnv("GEMINI_API_KEY", ""),
		GeminiModelID:   getEnv("GEMINI_MODEL_ID", "gemini-2.5-flash"),

		EscalationKeywords:      keywordList(getEnv("ESCALATION_KEYWORDS", "")),
		HandoffAuto:             getEnv("HANDOFF_AUTO", "0") == "1",
		HandoffMinTurns:         getEnvAsInt("HANDOFF_MIN_TURNS", 6),
		HandoffCooldown:         time.Duration(getEnvAsInt("HANDOFF_COOLDOWN_MIN", 20)) * time.Minute,
		HandoffCooldownSuppress: getEnvAsBool("HANDOFF_COOLDOWN_SUPPRESS", false),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),
	}
	if cfg.OwnerNumber == "" {
		cfg.OwnerNumber = cfg.SelfNumber
	}
	return cfg
}

// defaultEscalationKeywords trigger an immediate handoff when present in
// the user's text, regardless of the auto-handoff flag.
var defaultEscalationKeywords = []string{
	"humano", "atendente", "suporte", "falar com alguém",
	"transferir", "pessoa", "representante",
}

// keywordList merges pipe-separated extra keywords with the default set,
// lowercased, deduplicated, insertion order preserved.
func keywordList(extra string) []string {
	seen := make(map[string]struct{})
	out := make([]string, 0, len(defaultEscalationKeywords))
	add := func(kw string) {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw == "" {
			return
		}
		if _, ok := seen[kw]; ok {
			return
		}
		seen[kw] = struct{}{}
		out = append(out, kw)
	}
	for _, kw := range defaultEscalationKeywords {
		add(kw)
	}
	for _, kw := range strings.Split(extra, "|") {
		add(kw)
	}
	return out
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat32(key string, defaultValue float32) float32 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 32); err == nil {
		return float32(value)
	}
	return defaultValue
}
