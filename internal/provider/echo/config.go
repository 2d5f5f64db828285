package echo

import "time"

// Config contains echo provider configuration.
type Config struct {
	Enabled    bool          `env:"ECHO_ENABLED"     envDefault:"true"`
	ChunkDelay time.Duration `env:"ECHO_CHUNK_DELAY" envDefault:"10ms"`
}
