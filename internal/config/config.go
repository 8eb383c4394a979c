package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/MimeLyc/clipwave/pkg/icron"
	"github.com/MimeLyc/clipwave/pkg/log"
	"golang.org/x/text/language"
)

// DefaultInstruction is used when a job is submitted without one.
const DefaultInstruction = "Find the most engaging and important moments in this video"

// Config holds all application configuration, read from environment variables
// with defaults.
//
// HTTP:
// - HTTP_ADDR (default :8000), UI_ENABLED (default true), UI_STATIC_DIR (default /app/web)
//
// System:
// - DATA_DIR (default /app/data), LOG_LEVEL (default info), LOG_FILE (optional, appended)
//
// Jobs:
// - JOB_WORKERS (4), JOB_MAX_JOBS (1000), JOB_RETENTION_DAYS (7)
// - CLEANUP_CRON (0 0 3 * * *, six fields with seconds), DEFAULT_INSTRUCTION
//
// Acquire:
// - YTDLP_BIN (yt-dlp), YOUTUBE_COOKIES_B64, YOUTUBE_COOKIES_FILE
// - ACQUIRE_USER_AGENTS, ACQUIRE_FORMATS, ACQUIRE_EXTRACTOR_HINTS (comma lists)
// - ACQUIRE_ATTEMPT_TIMEOUT seconds (600)
//
// Transcribe:
// - TRANSCRIBE_BACKEND (whispercpp|openai), WHISPER_BIN, WHISPER_MODEL
// - TRANSCRIBE_LANGUAGE (en), TRANSCRIBE_API_KEY, TRANSCRIBE_API_URL, TRANSCRIBE_MODEL
// - TRANSCRIBE_TIMEOUT seconds (3600), TRANSCRIBE_CONCURRENCY (1)
//
// LLM:
// - LLM_API_KEY (required), LLM_API_URL, LLM_MODEL, LLM_MAX_TOKENS, LLM_TEMPERATURE, LLM_TIMEOUT
// - LLM_SITE_URL, LLM_APP_NAME
//
// Render:
// - FFMPEG_BIN, FFPROBE_BIN, RENDER_STEP_TIMEOUT seconds (600), RENDER_STRICT (false)
type Config struct {
	HTTP       HTTPConfig       `json:"http"`
	System     SystemConfig     `json:"system"`
	Jobs       JobsConfig       `json:"jobs"`
	Acquire    AcquireConfig    `json:"acquire"`
	Transcribe TranscribeConfig `json:"transcribe"`
	LLM        LLMConfig        `json:"llm"`
	Render     RenderConfig     `json:"render"`
}

type HTTPConfig struct {
	Addr        string `json:"addr"`
	UIEnabled   bool   `json:"ui_enabled"`
	UIStaticDir string `json:"ui_static_dir"`
}

type SystemConfig struct {
	DataDir  string `json:"data_dir"`
	LogLevel string `json:"log_level"`
	LogFile  string `json:"log_file,omitempty"`
}

type JobsConfig struct {
	Workers            int    `json:"workers"`
	MaxJobs            int    `json:"max_jobs"`
	RetentionDays      int    `json:"retention_days"`
	CleanupCron        string `json:"cleanup_cron"`
	DefaultInstruction string `json:"default_instruction"`
}

func (c JobsConfig) Retention() time.Duration {
	return time.Duration(c.RetentionDays) * 24 * time.Hour
}

type AcquireConfig struct {
	YtDlpBin       string        `json:"ytdlp_bin"`
	CookiesB64     string        `json:"-"`
	CookiesFile    string        `json:"cookies_file"`
	UserAgents     []string      `json:"user_agents"`
	Formats        []string      `json:"formats"`
	ExtractorHints []string      `json:"extractor_hints"`
	AttemptTimeout time.Duration `json:"attempt_timeout"`
}

type TranscribeConfig struct {
	Backend      string        `json:"backend"`
	WhisperBin   string        `json:"whisper_bin"`
	WhisperModel string        `json:"whisper_model"`
	Language     language.Tag  `json:"language"`
	APIKey       string        `json:"-"`
	APIURL       string        `json:"api_url"`
	Model        string        `json:"model"`
	Timeout      time.Duration `json:"timeout"`
	Concurrency  int           `json:"concurrency"`
}

// LLMConfig holds the configuration for the chat-completions client used by
// the segment selector.
type LLMConfig struct {
	APIKey      string  `json:"-"`
	APIURL      string  `json:"api_url"`
	Model       string  `json:"model"`
	MaxTokens   int     `json:"max_tokens"`
	Temperature float64 `json:"temperature"`
	Timeout     int     `json:"timeout"`
	SiteURL     string  `json:"site_url"`
	AppName     string  `json:"app_name"`
}

type RenderConfig struct {
	FFmpegBin   string        `json:"ffmpeg_bin"`
	FFprobeBin  string        `json:"ffprobe_bin"`
	StepTimeout time.Duration `json:"step_timeout"`
	Strict      bool          `json:"strict"`
}

const (
	BackendWhisperCpp = "whispercpp"
	BackendOpenAI     = "openai"
)

// Option is a function type for configuring Config
type Option func(*Config)

// NewFromEnv creates a new Config instance with values from environment variables and options
func NewFromEnv(opts ...Option) (*Config, error) {
	config := &Config{
		HTTP: HTTPConfig{
			Addr:        getEnvString("HTTP_ADDR", ":8000"),
			UIEnabled:   getEnvBool("UI_ENABLED", true),
			UIStaticDir: getEnvString("UI_STATIC_DIR", "/app/web"),
		},
		System: SystemConfig{
			DataDir:  getEnvString("DATA_DIR", "/app/data"),
			LogLevel: getEnvString("LOG_LEVEL", "info"),
			LogFile:  getEnvString("LOG_FILE", ""),
		},
		Jobs: JobsConfig{
			Workers:            getEnvInt("JOB_WORKERS", 4),
			MaxJobs:            getEnvInt("JOB_MAX_JOBS", 1000),
			RetentionDays:      getEnvInt("JOB_RETENTION_DAYS", 7),
			CleanupCron:        getEnvString("CLEANUP_CRON", "0 0 3 * * *"),
			DefaultInstruction: getEnvString("DEFAULT_INSTRUCTION", DefaultInstruction),
		},
		Acquire: AcquireConfig{
			YtDlpBin:    getEnvString("YTDLP_BIN", "yt-dlp"),
			CookiesB64:  getEnvString("YOUTUBE_COOKIES_B64", ""),
			CookiesFile: getEnvString("YOUTUBE_COOKIES_FILE", ""),
			UserAgents: getEnvList("ACQUIRE_USER_AGENTS", []string{
				"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36",
				"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Safari/605.1.15",
			}),
			Formats: getEnvList("ACQUIRE_FORMATS", []string{
				"best[height<=720]",
				"best[height<=480]",
				"worst",
			}),
			ExtractorHints: getEnvList("ACQUIRE_EXTRACTOR_HINTS", []string{
				"youtube:player_client=android",
				"youtube:player_client=web_embedded",
			}),
			AttemptTimeout: getEnvSeconds("ACQUIRE_ATTEMPT_TIMEOUT", 600),
		},
		Transcribe: TranscribeConfig{
			Backend:      getEnvString("TRANSCRIBE_BACKEND", BackendWhisperCpp),
			WhisperBin:   getEnvString("WHISPER_BIN", "whisper-cli"),
			WhisperModel: getEnvString("WHISPER_MODEL", "/app/models/ggml-base.en.bin"),
			Language:     getEnvLanguage("TRANSCRIBE_LANGUAGE", language.English),
			APIKey:       getEnvString("TRANSCRIBE_API_KEY", ""),
			APIURL:       getEnvString("TRANSCRIBE_API_URL", "https://api.openai.com/v1"),
			Model:        getEnvString("TRANSCRIBE_MODEL", "whisper-1"),
			Timeout:      getEnvSeconds("TRANSCRIBE_TIMEOUT", 3600),
			Concurrency:  getEnvInt("TRANSCRIBE_CONCURRENCY", 1),
		},
		LLM: LLMConfig{
			APIKey:      getEnvString("LLM_API_KEY", ""),
			APIURL:      getEnvString("LLM_API_URL", "https://openrouter.ai/api/v1"),
			Model:       getEnvString("LLM_MODEL", "openai/gpt-4o-mini"),
			MaxTokens:   getEnvInt("LLM_MAX_TOKENS", 2000),
			Temperature: getEnvFloat("LLM_TEMPERATURE", 0.3),
			Timeout:     getEnvInt("LLM_TIMEOUT", 120),
			SiteURL:     getEnvString("LLM_SITE_URL", ""),
			AppName:     getEnvString("LLM_APP_NAME", ""),
		},
		Render: RenderConfig{
			FFmpegBin:   getEnvString("FFMPEG_BIN", "ffmpeg"),
			FFprobeBin:  getEnvString("FFPROBE_BIN", "ffprobe"),
			StepTimeout: getEnvSeconds("RENDER_STEP_TIMEOUT", 600),
			Strict:      getEnvBool("RENDER_STRICT", false),
		},
	}

	// Apply custom options
	for _, opt := range opts {
		opt(config)
	}

	if err := config.validate(); err != nil {
		return nil, err
	}

	log.Info("Config: http=%s data=%s workers=%d transcribe=%s llm=%s",
		config.HTTP.Addr, config.System.DataDir, config.Jobs.Workers,
		config.Transcribe.Backend, config.LLM.Model)

	return config, nil
}

func (c *Config) validate() error {
	if c.LLM.APIKey == "" {
		return fmt.Errorf("LLM_API_KEY is required")
	}
	if c.Jobs.Workers <= 0 {
		return fmt.Errorf("JOB_WORKERS must be positive, got %d", c.Jobs.Workers)
	}
	if c.Jobs.RetentionDays <= 0 {
		return fmt.Errorf("JOB_RETENTION_DAYS must be positive, got %d", c.Jobs.RetentionDays)
	}
	if err := icron.Validate(c.Jobs.CleanupCron); err != nil {
		return fmt.Errorf("CLEANUP_CRON: %w", err)
	}
	switch c.Transcribe.Backend {
	case BackendWhisperCpp:
	case BackendOpenAI:
		if c.Transcribe.APIKey == "" {
			return fmt.Errorf("TRANSCRIBE_API_KEY is required for the openai backend")
		}
	default:
		return fmt.Errorf("unknown TRANSCRIBE_BACKEND %q", c.Transcribe.Backend)
	}
	if c.Transcribe.Concurrency <= 0 {
		c.Transcribe.Concurrency = 1
	}
	if len(c.Acquire.Formats) == 0 {
		return fmt.Errorf("ACQUIRE_FORMATS must name at least one format")
	}
	return nil
}

// DBPath is the SQLite job registry location.
func (c *Config) DBPath() string {
	return filepath.Join(c.System.DataDir, "clipwave.db")
}

// VideosDir holds finished artifacts, one file per completed job.
func (c *Config) VideosDir() string {
	return filepath.Join(c.System.DataDir, "videos")
}

// WorkDir holds per-run temporary directories.
func (c *Config) WorkDir() string {
	return filepath.Join(c.System.DataDir, "work")
}

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvSeconds(key string, defaultSeconds int) time.Duration {
	return time.Duration(getEnvInt(key, defaultSeconds)) * time.Second
}

// getEnvList splits a comma separated value, dropping blanks.
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}

func getEnvLanguage(key string, defaultValue language.Tag) language.Tag {
	if value := os.Getenv(key); value != "" {
		if tag, err := language.Parse(value); err == nil {
			return tag
		}
		log.Warn("Ignoring invalid %s=%q", key, value)
	}
	return defaultValue
}
