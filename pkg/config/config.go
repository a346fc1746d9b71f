package config

import (
	"flag"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Addr returns the admin listen address, applying defaults.
func (c *Config) Addr() string {
	addr := c.Server.Address
	if addr == "" {
		addr = "0.0.0.0"
	}
	p := c.Server.Port
	if p == 0 {
		p = 8080
	}
	return fmt.Sprintf("%s:%d", addr, p)
}

// Load reads and parses the YAML config file at path.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ParseCommandFlags defines and parses command-line flags and returns
// their values along with a map indicating which were explicitly set.
func ParseCommandFlags() (addr string, dbPath string, cfgPath string, setFlags map[string]bool) {
	addrPtr := flag.String("addr", ":8080", "admin HTTP listen address")
	dbPtr := flag.String("db", "./.database", "Pebble DB path")
	cfgPtr := flag.String("config", "./config.yaml", "Path to config file")
	flag.Parse()
	setFlags = map[string]bool{}
	flag.Visit(func(f *flag.Flag) { setFlags[f.Name] = true })
	return *addrPtr, *dbPtr, *cfgPtr, setFlags
}

// LoadEnvOverrides applies environment overrides onto cfg and reports
// whether any env vars were used.
func LoadEnvOverrides(cfg *Config) bool {
	envUsed := false
	parseList := func(v string) []string {
		var parts []string
		for _, p := range strings.Split(v, ",") {
			if s := strings.TrimSpace(p); s != "" {
				parts = append(parts, s)
			}
		}
		return parts
	}

	if v := os.Getenv("COLLOQUY_ADDR"); v != "" {
		envUsed = true
		if h, p, err := net.SplitHostPort(v); err == nil {
			cfg.Server.Address = h
			if pi, err := strconv.Atoi(p); err == nil {
				cfg.Server.Port = pi
			}
		} else {
			cfg.Server.Address = v
		}
	}
	if v := os.Getenv("COLLOQUY_DB_PATH"); v != "" {
		envUsed = true
		cfg.Server.DBPath = v
	}
	if v := os.Getenv("COLLOQUY_MODEL"); v != "" {
		envUsed = true
		cfg.Provider.Model = v
	}
	if v := os.Getenv("COLLOQUY_PROVIDER_ENDPOINT"); v != "" {
		envUsed = true
		cfg.Provider.Endpoint = v
	}
	if v := os.Getenv("COLLOQUY_TOOL_DIRS"); v != "" {
		envUsed = true
		cfg.Tools.UserDirs = parseList(v)
	}
	if v := os.Getenv("COLLOQUY_TOOL_SETS"); v != "" {
		envUsed = true
		cfg.Tools.Sets = parseList(v)
	}
	if v := os.Getenv("COLLOQUY_HYDRATION_WINDOW"); v != "" {
		envUsed = true
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Hydration.WindowSize = n
		}
	}
	if v := os.Getenv("COLLOQUY_SWEEP_CRON"); v != "" {
		envUsed = true
		cfg.Sweep.Enabled = true
		cfg.Sweep.Cron = v
	}
	return envUsed
}

// LoadEffective loads the config file (if present), applies env
// overrides and fills defaults.
func LoadEffective(path string) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		if loaded, err := Load(path); err == nil {
			cfg = loaded
		} else if !strings.Contains(err.Error(), "not found") {
			return nil, err
		}
	}
	LoadEnvOverrides(cfg)
	applyDefaults(cfg)
	return cfg, nil
}

// ResolveConfigPath picks the config path: explicit flag wins, then env,
// then the flag default.
func ResolveConfigPath(flagPath string, flagSet bool) string {
	if flagSet {
		return flagPath
	}
	if p := os.Getenv("COLLOQUY_CONFIG"); p != "" {
		return p
	}
	return flagPath
}

func applyDefaults(cfg *Config) {
	if cfg.Hydration.WindowSize == 0 {
		cfg.Hydration.WindowSize = 2
	}
	if cfg.Hydration.MaxResourceSize == "" {
		cfg.Hydration.MaxResourceSize = "512KB"
	}
	if cfg.Provider.MaxRetries == 0 {
		cfg.Provider.MaxRetries = 3
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
}
