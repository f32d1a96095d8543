package config

import (
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	Port        string
	LogLevel    slog.Level
	DataDir     string
	DownloadDir string
}

// LoadConfig reads the process configuration from the environment. A .env
// file in the working directory is loaded first when present; variables
// already set take precedence.
func LoadConfig() Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("Failed to load .env file", "error", err)
	}

	port := getEnv("PORT", "8080")
	logLevel := parseLogLevel(os.Getenv("LOG_LEVEL"))
	dataDir := getEnv("DATA_DIR", "./data")
	downloadDir := getEnv("DOWNLOAD_DIR", "./downloads")
	return Config{Port: port, LogLevel: logLevel, DataDir: dataDir, DownloadDir: downloadDir}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func parseLogLevel(value string) slog.Level {
	switch strings.ToUpper(value) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
