package dify

// Config contains Dify provider configuration.
//   - Mode selects the request shape: "chat" posts to /chat-messages,
//     "workflow" posts to /workflows/run with the query folded into inputs.
//   - Timeout bounds blocking calls and the wait for response headers (in seconds).
//   - WorkflowInputs are static inputs sent with every workflow run.
type Config struct {
	APIKey         string            `env:"DIFY_API_KEY"`
	BaseURL        string            `env:"DIFY_BASE_URL"        envDefault:"http://localhost/v1"`
	Mode           string            `env:"DIFY_MODE"            envDefault:"chat"`
	Timeout        int               `env:"DIFY_TIMEOUT"         envDefault:"60"`
	WorkflowInputs map[string]string `env:"DIFY_WORKFLOW_INPUTS"`
}
