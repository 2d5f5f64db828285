package openai

// Config contains OpenAI provider configuration.
// All fields map to OpenAI SDK options:
//   - APIKey: Maps to option.WithAPIKey()
//   - BaseURL: Maps to option.WithBaseURL()
//   - Timeout: Maps to option.WithRequestTimeout() (in seconds)
//   - MaxRetries: Maps to option.WithMaxRetries()
//
// Model and SystemPrompt shape every chat-completions request.
type Config struct {
	APIKey       string `env:"OPENAI_API_KEY"`
	BaseURL      string `env:"OPENAI_BASE_URL"      envDefault:"https://api.openai.com/v1"`
	Model        string `env:"OPENAI_MODEL"         envDefault:"gpt-4o-mini"`
	SystemPrompt string `env:"OPENAI_SYSTEM_PROMPT"`
	Timeout      int    `env:"OPENAI_TIMEOUT"       envDefault:"60"`
	MaxRetries   int    `env:"OPENAI_MAX_RETRIES"   envDefault:"3"`
}
