package config

import (
	"bufio"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// HTTP Configuration
	HTTPAddr string

	// Ollama Configuration
	OllamaURL       string
	DefaultModel    string
	GenerateTimeout time.Duration
	StatusTimeout   time.Duration

	// Generation defaults
	DefaultMaxTokens int
	Temperature      float64
	TopP             float64
	NumGPU           int
	NumThread        int
	StopSequences    []string

	// Story output
	OutputDir string

	// Database Configuration
	DBPath string

	// NATS Configuration (empty NatsURL disables the queue transport)
	NatsURL           string
	Stream            string
	Subject           string
	Durable           string
	ResponsePrefix    string
	MaxMsgs           int
	MaxAge            time.Duration
	Concurrency       int
	HeartbeatInterval time.Duration

	// Monitoring
	MonitoringTopic       string
	BackpressureThreshold int

	// Speech synthesis (ElevenLabs protocol)
	SpeechAPIKey  string
	SpeechBaseURL string
	SpeechVoiceID string
	SpeechModelID string
	SpeechTimeout time.Duration
}

func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := loadDotEnv(envFile); err != nil {
			slog.Warn("Could not load env file", "file", envFile, "error", err)
		} else {
			slog.Info("Environment loaded", "file", envFile)
		}
	}

	return &Config{
		HTTPAddr:          getEnv("HTTP_ADDR", ":5000"),
		OllamaURL:         getEnv("OLLAMA_URL", "http://localhost:11434"),
		DefaultModel:      getEnv("DEFAULT_MODEL", "llama2"),
		GenerateTimeout:   getEnvDuration("GENERATE_TIMEOUT", "60s"),
		StatusTimeout:     getEnvDuration("STATUS_TIMEOUT", "5s"),
		DefaultMaxTokens:  getEnvInt("DEFAULT_MAX_TOKENS", 1000),
		Temperature:       getEnvFloat("TEMPERATURE", 0.8),
		TopP:              getEnvFloat("TOP_P", 0.9),
		NumGPU:            getEnvInt("NUM_GPU", 1),
		NumThread:         getEnvInt("NUM_THREAD", 8),
		StopSequences:     getEnvList("STOP_SEQUENCES", []string{"\n\n", "###", "END", "The End", "THE END"}),
		OutputDir:         getEnv("OUTPUT_DIR", "output"),
		DBPath:            getEnv("DB_PATH", "data/storybot.sqlite"),
		NatsURL:           getEnv("NATS_URL", ""),
		Stream:            getEnv("STREAM_NAME", "STORYGEN"),
		Subject:           getEnv("SUBJECT", "story.generate.request"),
		Durable:           getEnv("QUEUE_DURABLE", "storygen-wq"),
		ResponsePrefix:    getEnv("RESPONSE_PREFIX", "story.generate.reply"),
		MaxMsgs:           getEnvInt("QUEUE_MAX_MSGS", 2000),
		MaxAge:            getEnvDuration("QUEUE_MAX_AGE", "24h"),
		Concurrency:       getEnvInt("WORKER_CONCURRENCY", 2),
		HeartbeatInterval: getEnvDuration("HEARTBEAT_INTERVAL", "30s"),

		MonitoringTopic:       getEnv("MONITORING_TOPIC", "storybot.monitoring"),
		BackpressureThreshold: getEnvInt("BACKPRESSURE_THRESHOLD", 10),
		SpeechAPIKey:      getEnv("ELEVENLABS_API_KEY", ""),
		SpeechBaseURL:     getEnv("ELEVENLABS_URL", "https://api.elevenlabs.io"),
		SpeechVoiceID:     getEnv("ELEVENLABS_VOICE_ID", "21m00Tcm4TlvDq8ikWAM"),
		SpeechModelID:     getEnv("ELEVENLABS_MODEL_ID", "eleven_monolingual_v1"),
		SpeechTimeout:     getEnvDuration("SPEECH_TIMEOUT", "30s"),
	}, nil
}

func loadDotEnv(filename string) error {
	file, err := os.Open(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) == 2 {
			key := strings.TrimSpace(parts[0])
			value := strings.TrimSpace(parts[1])
			os.Setenv(key, value)
		}
	}
	return scanner.Err()
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvDuration(key, defaultVal string) time.Duration {
	val := getEnv(key, defaultVal)
	if d, err := time.ParseDuration(val); err == nil {
		return d
	}
	d, _ := time.ParseDuration(defaultVal)
	return d
}

func getEnvList(key string, defaultVal []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	parts := strings.Split(val, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return defaultVal
	}
	return out
}
