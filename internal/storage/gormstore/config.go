package gormstore

// Config contains persistence configuration.
//   - Driver: "postgres" in production, "sqlite" for development and tests.
//   - DSN: driver-specific data source name.
type Config struct {
	Driver       string `env:"DB_DRIVER"         envDefault:"sqlite"`
	DSN          string `env:"DB_DSN"            envDefault:"hearth.db"`
	MaxOpenConns int    `env:"DB_MAX_OPEN_CONNS" envDefault:"10"`
	AutoMigrate  bool   `env:"DB_AUTO_MIGRATE"   envDefault:"true"`
}
