package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	// Server configuration
	Port        string
	Environment string

	// Redis configuration
	RedisURL          string
	RedisPassword     string
	RedisDB           int
	RedisPoolSize     int
	RedisMinIdleConns int

	// PubNub configuration
	PubNubPublishKey   string
	PubNubSubscribeKey string
	PubNubSecretKey    string

	// AI judge configuration
	AIProvider string
	AIAPIKey   string
	AIModel    string

	// Matchmaking configuration
	RatingWindow      int
	MatchPollInterval time.Duration
	ClaimWaitAttempts int
	ClaimWaitInterval time.Duration
	QueueStaleAfter   time.Duration

	// Debate configuration
	MaxRounds       int
	TimePerTurn     time.Duration
	TimeoutInterval time.Duration

	// Challenge configuration
	ChallengeTTL time.Duration

	// Cleanup configuration
	SweepInterval time.Duration

	// Monitoring
	EnableMetrics bool
	MetricsPort   string
}

func LoadConfig() *Config {
	return &Config{
		// Server
		Port:        getEnv("PORT", "8090"),
		Environment: getEnv("ENVIRONMENT", "development"),

		// Redis
		RedisURL:          getEnv("REDIS_URL", "localhost:6379"),
		RedisPassword:     getEnv("REDIS_PASSWORD", ""),
		RedisDB:           getEnvAsInt("REDIS_DB", 0),
		RedisPoolSize:     getEnvAsInt("REDIS_POOL_SIZE", 100),
		RedisMinIdleConns: getEnvAsInt("REDIS_MIN_IDLE_CONNS", 10),

		// PubNub
		PubNubPublishKey:   getEnv("PUBNUB_PUBLISH_KEY", ""),
		PubNubSubscribeKey: getEnv("PUBNUB_SUBSCRIBE_KEY", ""),
		PubNubSecretKey:    getEnv("PUBNUB_SECRET_KEY", ""),

		// AI judge
		AIProvider: getEnv("AI_PROVIDER", "gemini"),
		AIAPIKey:   getEnv("AI_API_KEY", ""),
		AIModel:    getEnv("AI_MODEL", "gemini-2.0-flash"),

		// Matchmaking
		RatingWindow:      getEnvAsInt("RATING_WINDOW", 100),
		MatchPollInterval: getEnvAsDuration("MATCH_POLL_INTERVAL", "2s"),
		ClaimWaitAttempts: getEnvAsInt("CLAIM_WAIT_ATTEMPTS", 15),
		ClaimWaitInterval: getEnvAsDuration("CLAIM_WAIT_INTERVAL", "1s"),
		QueueStaleAfter:   getEnvAsDuration("QUEUE_STALE_AFTER", "10m"),

		// Debates
		MaxRounds:       getEnvAsInt("MAX_ROUNDS", 5),
		TimePerTurn:     getEnvAsDuration("TIME_PER_TURN", "2m"),
		TimeoutInterval: getEnvAsDuration("TIMEOUT_INTERVAL", "1s"),

		// Challenges
		ChallengeTTL: getEnvAsDuration("CHALLENGE_TTL", "24h"),

		// Cleanup
		SweepInterval: getEnvAsDuration("SWEEP_INTERVAL", "5m"),

		// Monitoring
		EnableMetrics: getEnvAsBool("ENABLE_METRICS", true),
		MetricsPort:   getEnv("METRICS_PORT", "9090"),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := getEnv(key, defaultValue)
	if duration, err := time.ParseDuration(valueStr); err == nil {
		return duration
	}
	// If parsing fails, try to parse default value
	duration, _ := time.ParseDuration(defaultValue)
	return duration
}
