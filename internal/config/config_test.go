package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func clearRalphEnv(t *testing.T) {
	t.Helper()
	vars := []string{"CODEX_COMMAND", "CODEX_PROVIDER", "CODEX_MODEL", "OPENAI_API_KEY", "LMSTUDIO_API_BASE", "OLLAMA_API_BASE"}
	for _, v := range vars {
		old, had := os.LookupEnv(v)
		os.Unsetenv(v)
		t.Cleanup(func() {
			if had {
				os.Setenv(v, old)
			}
		})
	}
}

func TestLoadDefaultsToOpenAI(t *testing.T) {
	clearRalphEnv(t)
	s := Load()
	assert.Equal(t, ProviderOpenAI, s.Provider)
	assert.Equal(t, "https://api.openai.com/v1", s.Endpoint())
}

func TestLoadUnrecognisedProviderFallsBackToOpenAI(t *testing.T) {
	clearRalphEnv(t)
	os.Setenv("CODEX_PROVIDER", "bogus")
	s := Load()
	assert.Equal(t, ProviderOpenAI, s.Provider)
}

func TestLoadLMStudioEndpoint(t *testing.T) {
	clearRalphEnv(t)
	os.Setenv("CODEX_PROVIDER", "lmstudio")
	os.Setenv("LMSTUDIO_API_BASE", "http://box:1234/v1")
	s := Load()
	assert.Equal(t, "http://box:1234/v1", s.Endpoint())
	assert.Equal(t, "local", s.APIKey())
}

func TestLoadOllamaDefaultEndpoint(t *testing.T) {
	clearRalphEnv(t)
	os.Setenv("CODEX_PROVIDER", "ollama")
	s := Load()
	assert.Equal(t, "http://localhost:11434/v1", s.Endpoint())
}

func TestAPIKeyUsesOpenAIKeyOnlyForOpenAIProvider(t *testing.T) {
	clearRalphEnv(t)
	os.Setenv("OPENAI_API_KEY", "sk-test")
	s := Load()
	assert.Equal(t, "sk-test", s.APIKey())
}
