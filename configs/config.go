package configs

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	RedisAddr     string
	RedisPassword string

	ServerPort string
	JWTSecret  string

	NumberOfWorkers int

	// Sandbox settings
	ExecWorkDir       string
	MaxCodeLength     int
	MaxConcurrentRuns int

	// Duplicate exam-start lock TTL
	StartLockTTL time.Duration
}

func LoadConfig() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, reading from environment")
	}

	workDir := os.Getenv("EXEC_WORK_DIR")
	if workDir == "" {
		workDir = "/tmp/campusgrid-exec"
	}

	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = "localhost:6379"
	}

	return &Config{
		DBHost:     os.Getenv("DB_HOST"),
		DBPort:     os.Getenv("DB_PORT"),
		DBUser:     os.Getenv("DB_USER"),
		DBPassword: os.Getenv("DB_PASSWORD"),
		DBName:     os.Getenv("DB_NAME"),

		RedisAddr:     redisAddr,
		RedisPassword: os.Getenv("REDIS_PASSWORD"),

		ServerPort: os.Getenv("SERVER_PORT"),
		JWTSecret:  os.Getenv("JWT_SECRET"),

		NumberOfWorkers: getEnvInt("NUM_OF_WORKERS", 4),

		ExecWorkDir:       workDir,
		MaxCodeLength:     getEnvInt("MAX_CODE_LENGTH", 10000),
		MaxConcurrentRuns: getEnvInt("MAX_CONCURRENT_RUNS", 10),

		StartLockTTL: time.Duration(getEnvInt("START_LOCK_TTL_SECONDS", 10)) * time.Second,
	}
}

func getEnvInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return val
}
