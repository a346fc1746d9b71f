package config

// Config is the main configuration struct.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Logging   LoggingConfig   `yaml:"logging"`
	Provider  ProviderConfig  `yaml:"provider"`
	Hydration HydrationConfig `yaml:"hydration"`
	Tools     ToolsConfig     `yaml:"tools"`
	Sweep     SweepConfig     `yaml:"sweep"`
}

// ServerConfig holds the admin HTTP listener and storage settings.
type ServerConfig struct {
	Address string `yaml:"address"`
	Port    int    `yaml:"port"`
	DBPath  string `yaml:"db_path"`
}

// LoggingConfig holds log level settings.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// ProviderConfig holds provider defaults applied to new interactions.
type ProviderConfig struct {
	// Endpoint is the provider URL; the API key comes from
	// COLLOQUY_API_KEY, never from the config file.
	Endpoint       string  `yaml:"endpoint"`
	Model          string  `yaml:"model"`
	Temperature    float64 `yaml:"temperature"`
	MaxTokens      int     `yaml:"max_tokens"`
	ThinkingBudget int     `yaml:"thinking_budget"`
	CacheEnabled   bool    `yaml:"cache_enabled"`
	// SystemPrompt is prepended to every provider request.
	SystemPrompt string `yaml:"system_prompt"`
	// MaxRetries bounds provider retry attempts per statement.
	MaxRetries int `yaml:"max_retries"`
	// RequestsPerSecond throttles outgoing provider calls; 0 disables.
	RequestsPerSecond float64 `yaml:"requests_per_second"`
}

// HydrationConfig tunes the message-hydration pass.
type HydrationConfig struct {
	// WindowSize is the number of recent references per resource that
	// receive full-content injection; later ones degrade to a pointer.
	WindowSize int `yaml:"window_size"`
	// MaxResourceSize caps hydrated content; accepts humanized values
	// such as "512KB".
	MaxResourceSize string `yaml:"max_resource_size"`
}

// RemoteServerConfig identifies one remote tool-protocol server.
type RemoteServerConfig struct {
	ID       string `yaml:"id"`
	Endpoint string `yaml:"endpoint"`
}

// ToolsConfig holds tool discovery settings.
type ToolsConfig struct {
	UserDirs      []string             `yaml:"user_dirs"`
	RemoteServers []RemoteServerConfig `yaml:"remote_servers"`
	// Sets restricts registration to tools intersecting these sets;
	// empty means the default "core" set.
	Sets []string `yaml:"sets"`
}

// SweepConfig controls the scheduled migration sweep.
type SweepConfig struct {
	Enabled bool   `yaml:"enabled"`
	Cron    string `yaml:"cron"`
	DryRun  bool   `yaml:"dry_run"`
}
