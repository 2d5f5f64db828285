package redis

import "time"

// Config contains Redis connection and commit guard settings. An empty Addr
// disables the guard.
type Config struct {
	Addr      string        `env:"REDIS_ADDR"`
	Password  string        `env:"REDIS_PASSWORD"`
	DB        int           `env:"REDIS_DB"               envDefault:"0"`
	GuardTTL  time.Duration `env:"REDIS_COMMIT_GUARD_TTL" envDefault:"24h"`
	KeyPrefix string        `env:"REDIS_KEY_PREFIX"       envDefault:"hearth:commit:"`
}
