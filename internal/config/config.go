// Package config reads server configuration from the environment.
package config

import (
	"os"
	"strconv"
)

type Config struct {
	Port      int
	StaticDir string
	PhotosDir string
	LogLevel  string
	LogFormat string
}

// Load builds a Config from env vars. Defaults: port 3000, static files from
// the working directory, photos under Fotos/.
func Load() Config {
	return Config{
		Port:      getEnvInt("PORT", 3000),
		StaticDir: getEnv("STATIC_DIR", "."),
		PhotosDir: getEnv("PHOTOS_DIR", "Fotos"),
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "console"),
	}
}

func getEnv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getEnvInt(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if i, err := strconv.Atoi(v); err == nil && i > 0 {
			return i
		}
	}
	return def
}
