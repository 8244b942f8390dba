package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	conf, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, DefaultOpenAIModel, conf.Model)
	assert.Equal(t, StoreSQLite, conf.Store)
	assert.Equal(t, 500, conf.MaxTokens)
	assert.InDelta(t, 0.7, conf.Temperature, 1e-6)
	assert.Equal(t, "English", conf.Language)
	assert.Equal(t, conf.Model, conf.Vision())
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `{"api_key":"k","model":"m","vision_model":"v","max_tokens":800,"provider":"gemini","log_level":"debug"}`)
	conf, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "k", conf.APIKey)
	assert.Equal(t, "m", conf.Model)
	assert.Equal(t, "v", conf.Vision())
	assert.Equal(t, 800, conf.MaxTokens)
	assert.Equal(t, ProviderGemini, conf.Provider)
	assert.Equal(t, slog.LevelDebug, conf.SlogLevel())
	assert.Equal(t, ":8080", conf.Listen)
}

func TestLoadPicksModelForProvider(t *testing.T) {
	conf, err := Load(writeConfig(t, `{"provider":"gemini"}`))
	require.NoError(t, err)
	assert.Equal(t, DefaultGeminiModel, conf.Model)
	assert.Equal(t, DefaultGeminiModel, conf.Vision())

	conf, err = Load(writeConfig(t, `{"provider":"openai"}`))
	require.NoError(t, err)
	assert.Equal(t, DefaultOpenAIModel, conf.Model)

	t.Setenv("FORMCHAT_MODEL", "gemini-2.5-pro")
	conf, err = Load(writeConfig(t, `{"provider":"gemini"}`))
	require.NoError(t, err)
	assert.Equal(t, "gemini-2.5-pro", conf.Model)
}

func TestValidateRequiresModel(t *testing.T) {
	conf := Default()
	assert.Error(t, conf.Validate())
	conf.Model = "m"
	assert.NoError(t, conf.Validate())
}

func TestLoadMemoryStore(t *testing.T) {
	conf, err := Load(writeConfig(t, `{"store":"memory"}`))
	require.NoError(t, err)
	assert.Equal(t, StoreMemory, conf.Store)

	t.Setenv("FORMCHAT_STORE", "sqlite")
	conf, err = Load(writeConfig(t, `{"store":"memory"}`))
	require.NoError(t, err)
	assert.Equal(t, StoreSQLite, conf.Store)
}

func TestLoadEnvOverrides(t *testing.T) {
	path := writeConfig(t, `{"api_key":"file","model":"file-model"}`)
	t.Setenv("FORMCHAT_API_KEY", "env")
	t.Setenv("FORMCHAT_DATABASE", ":memory:")
	t.Setenv("FORMCHAT_LISTEN", ":9999")
	conf, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "env", conf.APIKey)
	assert.Equal(t, "file-model", conf.Model)
	assert.Equal(t, ":memory:", conf.Database)
	assert.Equal(t, ":9999", conf.Listen)
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"provider", `{"provider":"bard"}`},
		{"temperature", `{"temperature":1.5}`},
		{"max tokens", `{"max_tokens":-1}`},
		{"store", `{"store":"redis"}`},
		{"syntax", `{`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	assert.Error(t, err)
}
