package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration. The struct is built once at
// startup and passed into constructors; nothing reads it through a
// process-wide singleton.
type Config struct {
	Port            string
	CORSAllowOrigin []string
	DatabaseURL     string
	Env             string

	LLMProvider string
	LLMModel    string

	// ModelAllowlist is the set of model identifiers the guardrail layer
	// accepts. Empty means "use the compiled-in defaults".
	ModelAllowlist []string
	// AllowModelSubstitution enables the logged, one-time fallback to a
	// known-good model of the same family when the configured model is not
	// on the allowlist. Off by default: with it off, an unknown model
	// fails closed.
	AllowModelSubstitution bool

	// TaxonomyPath and GuardrailPatternsPath point at optional YAML files
	// overriding the compiled-in scoring taxonomy and redaction patterns.
	TaxonomyPath          string
	GuardrailPatternsPath string

	// AnalysisCooldown is the minimum interval between completed analyses
	// for the same (job, analysis type).
	AnalysisCooldown time.Duration
}

// Load reads configuration from environment variables with sensible defaults.
func Load() Config {
	// Best-effort load of local env files for dev convenience.
	loadEnvFiles(".env", "cmd/.env")

	env := normalizeEnv(getEnv("ENV", "dev"))
	dbURL := os.Getenv("DATABASE_URL")

	if env == "production" && dbURL == "" {
		log.Printf("DATABASE_URL is required in production")
	}

	return Config{
		Port:                   getEnv("PORT", "8080"),
		CORSAllowOrigin:        splitAndTrim(getEnv("CORS_ALLOW_ORIGINS", "http://localhost:5173")),
		DatabaseURL:            dbURL,
		Env:                    env,
		LLMProvider:            getEnv("LLM_PROVIDER", "openai"),
		LLMModel:               getEnv("LLM_MODEL", ""),
		ModelAllowlist:         splitAndTrim(os.Getenv("MODEL_ALLOWLIST")),
		AllowModelSubstitution: getEnvBool("ALLOW_MODEL_SUBSTITUTION", false),
		TaxonomyPath:           getEnv("SCORING_TAXONOMY_PATH", ""),
		GuardrailPatternsPath:  getEnv("GUARDRAIL_PATTERNS_PATH", ""),
		AnalysisCooldown:       getEnvDuration("ANALYSIS_COOLDOWN", 30*time.Second),
	}
}

func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	val, err := strconv.ParseBool(raw)
	if err != nil {
		log.Printf("config env %s invalid bool: %v", key, err)
		return def
	}
	return val
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	val, err := time.ParseDuration(raw)
	if err != nil {
		log.Printf("config env %s invalid duration: %v", key, err)
		return def
	}
	return val
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	var out []string
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func normalizeEnv(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "production", "prod":
		return "production"
	case "staging":
		return "staging"
	case "local":
		return "local"
	case "development", "dev":
		return "dev"
	default:
		return "dev"
	}
}
