// Package config takes a one-shot snapshot of the environment variables
// ralph recognises at process start, so the rest of the process reads one
// loaded Snapshot instead of scattering os.Getenv calls.
package config

import "os"

// Provider identifies which OpenAI-compatible backend the LLM Client talks
// to.
type Provider string

const (
	ProviderOpenAI   Provider = "openai"
	ProviderLMStudio Provider = "lmstudio"
	ProviderOllama   Provider = "ollama"
)

// Snapshot is the recognised environment variable set, read once at
// startup.
type Snapshot struct {
	CodexCommand string
	Provider     Provider
	Model        string
	OpenAIAPIKey string
	LMStudioBase string
	OllamaBase   string
}

// Load reads the recognised environment variables into a Snapshot,
// defaulting Provider to openai when CODEX_PROVIDER is unset or
// unrecognised.
func Load() Snapshot {
	s := Snapshot{
		CodexCommand: os.Getenv("CODEX_COMMAND"),
		Provider:     ProviderOpenAI,
		Model:        os.Getenv("CODEX_MODEL"),
		OpenAIAPIKey: os.Getenv("OPENAI_API_KEY"),
		LMStudioBase: os.Getenv("LMSTUDIO_API_BASE"),
		OllamaBase:   os.Getenv("OLLAMA_API_BASE"),
	}

	switch Provider(os.Getenv("CODEX_PROVIDER")) {
	case ProviderLMStudio:
		s.Provider = ProviderLMStudio
	case ProviderOllama:
		s.Provider = ProviderOllama
	case ProviderOpenAI:
		s.Provider = ProviderOpenAI
	}

	return s
}

// Endpoint returns the chat-completions base URL for the configured
// provider.
func (s Snapshot) Endpoint() string {
	switch s.Provider {
	case ProviderLMStudio:
		if s.LMStudioBase != "" {
			return s.LMStudioBase
		}
		return "http://localhost:1234/v1"
	case ProviderOllama:
		if s.OllamaBase != "" {
			return s.OllamaBase
		}
		return "http://localhost:11434/v1"
	default:
		return "https://api.openai.com/v1"
	}
}

// APIKey returns the bearer token to use for the configured provider.
// Local providers (lmstudio, ollama) typically need no real key.
func (s Snapshot) APIKey() string {
	if s.Provider == ProviderOpenAI {
		return s.OpenAIAPIKey
	}
	return "local"
}
