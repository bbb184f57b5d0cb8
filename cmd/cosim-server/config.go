package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type appConfig struct {
	listenAddr       string
	serverName       string
	stepSize         time.Duration
	isClientOptional bool
	logFormat        string
	logLevel         string
	metricsAddr      string
	portMapperAddr   string
	portMapperHost   string
	portMapperPort   int
	registerPM       bool
	local            bool
	localName        string
}

func parseFlags() (*appConfig, bool) {
	cfg := &appConfig{}
	listen := flag.String("listen", ":20000", "TCP listen address")
	serverName := flag.String("server-name", "cosim-server", "Name this server registers under")
	stepSize := flag.Duration("step-size", time.Millisecond, "Simulation step size")
	clientOptional := flag.Bool("client-optional", false, "Allow Start/Stop/Step without a connected client")
	logFormat := flag.String("log-format", "text", "Log format: text|json")
	logLevel := flag.String("log-level", "info", "Log level: debug|info|warn|error")
	metricsAddr := flag.String("metrics-addr", "", "Metrics HTTP listen address (e.g., :9100); empty disables")
	portMapperAddr := flag.String("portmapper-addr", "", "Port-mapper registry address (host:port); overrides portmapper-host/-port when set")
	portMapperHost := flag.String("portmapper-host", "localhost", "Port-mapper registry host")
	portMapperPort := flag.Int("portmapper-port", 0, "Port-mapper registry TCP port; 0 disables")
	registerPM := flag.Bool("register-portmapper", false, "Register this server's port with the port-mapper registry")
	local := flag.Bool("local", false, "Use shared-memory local transport instead of TCP")
	localName := flag.String("local-name", "", "Shared-memory/pipe naming root for local transport; defaults to server-name")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	// Track which flags were explicitly set to give them precedence over env.
	setFlags := map[string]struct{}{}
	flag.Visit(func(f *flag.Flag) { setFlags[f.Name] = struct{}{} })

	cfg.listenAddr = *listen
	cfg.serverName = *serverName
	cfg.stepSize = *stepSize
	cfg.isClientOptional = *clientOptional
	cfg.logFormat = *logFormat
	cfg.logLevel = *logLevel
	cfg.metricsAddr = *metricsAddr
	cfg.portMapperAddr = *portMapperAddr
	cfg.portMapperHost = *portMapperHost
	cfg.portMapperPort = *portMapperPort
	cfg.registerPM = *registerPM
	cfg.local = *local
	cfg.localName = *localName

	if err := applyEnvOverrides(cfg, setFlags); err != nil {
		fmt.Printf("environment override error: %v\n", err)
		return nil, *showVersion
	}
	if cfg.portMapperAddr == "" && cfg.portMapperPort != 0 {
		cfg.portMapperAddr = fmt.Sprintf("%s:%d", cfg.portMapperHost, cfg.portMapperPort)
	}
	if err := cfg.validate(); err != nil {
		fmt.Printf("configuration error: %v\n", err)
		return nil, *showVersion
	}
	return cfg, *showVersion
}

// validate performs basic semantic validation of the parsed configuration.
func (c *appConfig) validate() error {
	if c == nil {
		return errors.New("nil config")
	}
	switch c.logFormat {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log-format: %s", c.logFormat)
	}
	switch c.logLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log-level: %s", c.logLevel)
	}
	if c.stepSize <= 0 {
		return fmt.Errorf("step-size must be > 0 (got %s)", c.stepSize)
	}
	if c.registerPM && c.portMapperAddr == "" {
		return errors.New("register-portmapper requires portmapper-addr or portmapper-port")
	}
	return nil
}

// applyEnvOverrides maps COSIM_SERVER_* environment variables (plus the
// spec-mandated VEOS_COSIM_PORTMAPPER_PORT) onto config fields, unless the
// corresponding flag was explicitly set on the command line. Flag wins over
// env; env wins over the flag's default.
func applyEnvOverrides(c *appConfig, set map[string]struct{}) error {
	var firstErr error
	get := func(k string) (string, bool) { v, ok := os.LookupEnv(k); return strings.TrimSpace(v), ok }

	if _, ok := set["listen"]; !ok {
		if v, ok := get("COSIM_SERVER_LISTEN"); ok && v != "" {
			c.listenAddr = v
		}
	}
	if _, ok := set["server-name"]; !ok {
		if v, ok := get("COSIM_SERVER_NAME"); ok && v != "" {
			c.serverName = v
		}
	}
	if _, ok := set["step-size"]; !ok {
		if v, ok := get("COSIM_SERVER_STEP_SIZE"); ok && v != "" {
			if d, err := time.ParseDuration(v); err == nil && d > 0 {
				c.stepSize = d
			} else if err != nil && firstErr == nil {
				firstErr = fmt.Errorf("invalid COSIM_SERVER_STEP_SIZE: %w", err)
			}
		}
	}
	if _, ok := set["client-optional"]; !ok {
		if v, ok := get("COSIM_SERVER_CLIENT_OPTIONAL"); ok && v != "" {
			c.isClientOptional = isTruthy(v)
		}
	}
	if _, ok := set["log-format"]; !ok {
		if v, ok := get("COSIM_SERVER_LOG_FORMAT"); ok && v != "" {
			c.logFormat = v
		}
	}
	if _, ok := set["log-level"]; !ok {
		if v, ok := get("COSIM_SERVER_LOG_LEVEL"); ok && v != "" {
			c.logLevel = v
		}
	}
	if _, ok := set["metrics-addr"]; !ok {
		if v, ok := get("COSIM_SERVER_METRICS_ADDR"); ok {
			c.metricsAddr = v
		}
	}
	if _, ok := set["portmapper-addr"]; !ok {
		if v, ok := get("COSIM_SERVER_PORTMAPPER_ADDR"); ok && v != "" {
			c.portMapperAddr = v
		}
	}
	if _, ok := set["portmapper-host"]; !ok {
		if v, ok := get("COSIM_SERVER_PORTMAPPER_HOST"); ok && v != "" {
			c.portMapperHost = v
		}
	}
	// VEOS_COSIM_PORTMAPPER_PORT is the registry's TCP port, set by the
	// host environment before startup; it has no flag-specific namespace
	// because it names the external registry process, not this binary.
	if _, ok := set["portmapper-port"]; !ok {
		if v, ok := get("VEOS_COSIM_PORTMAPPER_PORT"); ok && v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				c.portMapperPort = n
			} else if err != nil && firstErr == nil {
				firstErr = fmt.Errorf("invalid VEOS_COSIM_PORTMAPPER_PORT: %w", err)
			}
		}
	}
	if _, ok := set["register-portmapper"]; !ok {
		if v, ok := get("COSIM_SERVER_REGISTER_PORTMAPPER"); ok && v != "" {
			c.registerPM = isTruthy(v)
		}
	}
	if _, ok := set["local"]; !ok {
		if v, ok := get("COSIM_SERVER_LOCAL"); ok && v != "" {
			c.local = isTruthy(v)
		}
	}
	if _, ok := set["local-name"]; !ok {
		if v, ok := get("COSIM_SERVER_LOCAL_NAME"); ok && v != "" {
			c.localName = v
		}
	}
	return firstErr
}

func isTruthy(v string) bool {
	switch strings.ToLower(v) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}
