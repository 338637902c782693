package config

// Config is the on-disk configuration for the burstd daemon.
type Config struct {
	Gateway  GatewayConfig  `yaml:"gateway" json:"gateway"`
	Batching BatchingConfig `yaml:"batching" json:"batching"`
	Bridges  BridgesConfig  `yaml:"bridges" json:"bridges"`
}

type GatewayConfig struct {
	Port int        `yaml:"port" json:"port"`
	Auth AuthConfig `yaml:"auth" json:"auth"`
}

type AuthConfig struct {
	Token string `yaml:"token" json:"token"`
}

// BatchingConfig carries the debounce timing knobs in milliseconds. Zero
// values fall back to the engine defaults; the matching plain environment
// variables (TYPING_TIMEOUT, MAX_WAIT_TIME, MIN_WAIT_TIME, INITIAL_DELAY,
// TYPING_FALLBACK) override both.
type BatchingConfig struct {
	TypingTimeoutMS  int    `yaml:"typingTimeoutMs" json:"typingTimeoutMs"`
	MaxWaitTimeMS    int    `yaml:"maxWaitTimeMs" json:"maxWaitTimeMs"`
	MinWaitTimeMS    int    `yaml:"minWaitTimeMs" json:"minWaitTimeMs"`
	InitialDelayMS   int    `yaml:"initialDelayMs" json:"initialDelayMs"`
	TypingFallbackMS int    `yaml:"typingFallbackMs" json:"typingFallbackMs"`
	GroupSuffix      string `yaml:"groupSuffix" json:"groupSuffix"`
	DedupTTLMinutes  int    `yaml:"dedupTtlMinutes" json:"dedupTtlMinutes"`
}

type BridgesConfig struct {
	Instances []BridgeInstanceConfig `yaml:"instances" json:"instances"`
}

type BridgeInstanceConfig struct {
	ID      string            `yaml:"id" json:"id"`
	Path    string            `yaml:"path" json:"path"`
	Enabled bool              `yaml:"enabled" json:"enabled"`
	Env     map[string]string `yaml:"env" json:"env"`
}

func DefaultConfig() *Config {
	return &Config{
		Gateway: GatewayConfig{
			Port: 19870,
		},
		Batching: BatchingConfig{
			GroupSuffix:     "@g.us",
			DedupTTLMinutes: 10,
		},
		Bridges: BridgesConfig{
			Instances: []BridgeInstanceConfig{},
		},
	}
}
