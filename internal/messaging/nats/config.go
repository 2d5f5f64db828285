package nats

// Config contains NATS publisher settings. An empty URL disables publishing
// to NATS; events are then only logged.
type Config struct {
	URL           string `env:"NATS_URL"`
	ClientName    string `env:"NATS_CLIENT_NAME"    envDefault:"hearth"`
	SubjectPrefix string `env:"NATS_SUBJECT_PREFIX" envDefault:"hearth"`
}
