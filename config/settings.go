// Package config provides application settings loaded from environment variables.
//
// Settings are created via New() which handles:
// - Environment variable parsing with validation
// - Default value application
// - Fail-fast errors for required credentials
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// MissingVarError indicates a required environment variable is absent.
// The turn never starts when this is returned; callers should treat it
// as fatal configuration failure.
type MissingVarError struct {
	Var string
}

func (e *MissingVarError) Error() string {
	return fmt.Sprintf("config: required environment variable %s is not set", e.Var)
}

// Settings holds all application configuration.
type Settings struct {
	Chat     ChatConfig
	Vision   VisionConfig
	Search   SearchConfig
	Limits   LimitConfig
	Prompt   PromptConfig
	Triggers TriggerConfig
}

// ChatConfig configures the upstream chat-completion endpoint.
type ChatConfig struct {
	BaseURL     string
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature float32
	Timeout     time.Duration
}

// VisionConfig configures the image description collaborator.
type VisionConfig struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// SearchConfig configures the web search and URL extraction collaborators.
type SearchConfig struct {
	APIURL         string
	APIKey         string
	Timeout        time.Duration
	ExtractTimeout time.Duration
	CacheTTL       time.Duration
}

// LimitConfig holds retry, cap, and pacing limits.
type LimitConfig struct {
	MaxRetries       int           // retry budget for HTTP 429
	BackoffBase      time.Duration // initial backoff interval
	MaxDocCharsFile  int           // per-document text cap
	MaxDocCharsTotal int           // aggregate document text cap
	MaxBlockChars    int           // cap for each vision/search/extraction context block
	MaxContextChars  int           // global budget for the augmented final message
	MaxImageDim      int           // longest image side after optimization, px
	MaxImageBytes    int           // encoded payload ceiling before re-optimization
	FlushInterval    time.Duration // minimum gap between delta republications
	MinTurnInterval  time.Duration // minimum gap between accepted turns
	DocumentTimeout  time.Duration // budget for document-heavy pipelines
}

// PromptConfig holds the persona and style directives for the system prompt.
type PromptConfig struct {
	AssistantName string
	Tone          string
	Detail        string
	Language      string
}

// TriggerConfig holds the locale-specific trigger vocabularies.
// These lists are configuration, not business logic: they are biased
// toward Spanish and English and are not assumed exhaustive.
type TriggerConfig struct {
	RealtimeKeywords []string
	URLHintPhrases   []string
}

// New loads settings from the environment.
// ORACULO_API_KEY is required; everything else has a default.
func New() (Settings, error) {
	apiKey := os.Getenv("ORACULO_API_KEY")
	if apiKey == "" {
		return Settings{}, &MissingVarError{Var: "ORACULO_API_KEY"}
	}

	maxTokens, err := getEnvInt("ORACULO_MAX_TOKENS", 2048)
	if err != nil {
		return Settings{}, err
	}
	temperature, err := getEnvFloat("ORACULO_TEMPERATURE", 0.7)
	if err != nil {
		return Settings{}, err
	}
	maxRetries, err := getEnvInt("ORACULO_MAX_RETRIES", 3)
	if err != nil {
		return Settings{}, err
	}
	chatTimeout, err := getEnvDuration("ORACULO_CHAT_TIMEOUT", 60*time.Second)
	if err != nil {
		return Settings{}, err
	}
	visionTimeout, err := getEnvDuration("ORACULO_VISION_TIMEOUT", 40*time.Second)
	if err != nil {
		return Settings{}, err
	}
	searchTimeout, err := getEnvDuration("ORACULO_SEARCH_TIMEOUT", 10*time.Second)
	if err != nil {
		return Settings{}, err
	}
	extractTimeout, err := getEnvDuration("ORACULO_EXTRACT_TIMEOUT", 12*time.Second)
	if err != nil {
		return Settings{}, err
	}
	documentTimeout, err := getEnvDuration("ORACULO_DOCUMENT_TIMEOUT", 120*time.Second)
	if err != nil {
		return Settings{}, err
	}
	minTurnInterval, err := getEnvDuration("ORACULO_MIN_TURN_INTERVAL", 2*time.Second)
	if err != nil {
		return Settings{}, err
	}
	cacheTTL, err := getEnvDuration("ORACULO_SEARCH_CACHE_TTL", 5*time.Minute)
	if err != nil {
		return Settings{}, err
	}

	return Settings{
		Chat: ChatConfig{
			BaseURL:     getEnv("ORACULO_BASE_URL", "https://api.openai.com/v1"),
			APIKey:      apiKey,
			Model:       getEnv("ORACULO_MODEL", "gpt-4o-mini"),
			MaxTokens:   maxTokens,
			Temperature: float32(temperature),
			Timeout:     chatTimeout,
		},
		Vision: VisionConfig{
			BaseURL: getEnv("ORACULO_VISION_BASE_URL", getEnv("ORACULO_BASE_URL", "https://api.openai.com/v1")),
			APIKey:  getEnv("ORACULO_VISION_API_KEY", apiKey),
			Model:   getEnv("ORACULO_VISION_MODEL", "gpt-4o-mini"),
			Timeout: visionTimeout,
		},
		Search: SearchConfig{
			APIURL:         getEnv("ORACULO_SEARCH_API_URL", ""),
			APIKey:         getEnv("ORACULO_SEARCH_API_KEY", ""),
			Timeout:        searchTimeout,
			ExtractTimeout: extractTimeout,
			CacheTTL:       cacheTTL,
		},
		Limits: LimitConfig{
			MaxRetries:       maxRetries,
			BackoffBase:      time.Second,
			MaxDocCharsFile:  40_000,
			MaxDocCharsTotal: 80_000,
			MaxBlockChars:    20_000,
			MaxContextChars:  120_000,
			MaxImageDim:      1280,
			MaxImageBytes:    1 << 20,
			FlushInterval:    66 * time.Millisecond,
			MinTurnInterval:  minTurnInterval,
			DocumentTimeout:  documentTimeout,
		},
		Prompt: PromptConfig{
			AssistantName: getEnv("ORACULO_ASSISTANT_NAME", "Oraculo"),
			Tone:          getEnv("ORACULO_TONE", "friendly"),
			Detail:        getEnv("ORACULO_DETAIL", "balanced"),
			Language:      getEnv("ORACULO_LANGUAGE", "match the user's language"),
		},
		Triggers: TriggerConfig{
			RealtimeKeywords: getEnvList("ORACULO_REALTIME_KEYWORDS", defaultRealtimeKeywords),
			URLHintPhrases:   getEnvList("ORACULO_URL_HINT_PHRASES", defaultURLHintPhrases),
		},
	}, nil
}

// MustNew loads settings and panics on failure.
// Use this only when configuration errors should be fatal.
func MustNew() Settings {
	settings, err := New()
	if err != nil {
		panic(fmt.Sprintf("config: %v", err))
	}
	return settings
}

// Default trigger vocabularies. Spanish-biased with English equivalents;
// override via environment when deploying for other locales.
var defaultRealtimeKeywords = []string{
	"hoy", "ahora", "tiempo", "clima", "noticias", "precio", "actualidad",
	"today", "now", "weather", "news", "latest", "current",
}

var defaultURLHintPhrases = []string{
	"analiza", "resume", "lee este enlace", "lee esta página", "revisa",
	"qué dice", "inspect", "analyze", "read this link", "summarize", "what does",
}

// Environment variable helpers with proper error handling

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	i, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %q: %w", key, val, err)
	}
	return i, nil
}

func getEnvFloat(key string, defaultVal float64) (float64, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %q: %w", key, val, err)
	}
	return f, nil
}

func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %q: %w", key, val, err)
	}
	return d, nil
}

func getEnvList(key string, defaultVal []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	parts := strings.Split(val, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
