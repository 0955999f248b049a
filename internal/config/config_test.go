package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	for _, k := range []string{"PORT", "STATIC_DIR", "PHOTOS_DIR", "LOG_LEVEL", "LOG_FORMAT"} {
		t.Setenv(k, "")
	}
	cfg := Load()
	assert.Equal(t, 3000, cfg.Port)
	assert.Equal(t, ".", cfg.StaticDir)
	assert.Equal(t, "Fotos", cfg.PhotosDir)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "console", cfg.LogFormat)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "8080")
	t.Setenv("STATIC_DIR", "/srv/static")
	t.Setenv("PHOTOS_DIR", "/srv/static/Fotos")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "json")

	cfg := Load()
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "/srv/static", cfg.StaticDir)
	assert.Equal(t, "/srv/static/Fotos", cfg.PhotosDir)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
}

func TestLoadRejectsBadPort(t *testing.T) {
	t.Setenv("PORT", "not-a-number")
	assert.Equal(t, 3000, Load().Port)

	t.Setenv("PORT", "-80")
	assert.Equal(t, 3000, Load().Port)
}
