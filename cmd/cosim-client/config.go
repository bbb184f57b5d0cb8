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
	serverName     string
	clientName     string
	remoteAddr     string
	portMapperAddr string
	portMapperHost string
	portMapperPort int
	dialTimeout    time.Duration
	logFormat      string
	logLevel       string
	local          bool
	localName      string
}

func parseFlags() (*appConfig, bool) {
	cfg := &appConfig{}
	serverName := flag.String("server-name", "cosim-server", "Name the server registered under")
	clientName := flag.String("client-name", "cosim-client", "Name this client identifies itself as")
	remoteAddr := flag.String("remote-addr", "", "Dial this address directly, bypassing port-mapper lookup")
	portMapperAddr := flag.String("portmapper-addr", "", "Port-mapper registry address (host:port); overrides portmapper-host/-port when set")
	portMapperHost := flag.String("portmapper-host", "localhost", "Port-mapper registry host")
	portMapperPort := flag.Int("portmapper-port", 0, "Port-mapper registry TCP port; 0 disables")
	dialTimeout := flag.Duration("dial-timeout", 5*time.Second, "Connection dial timeout")
	logFormat := flag.String("log-format", "text", "Log format: text|json")
	logLevel := flag.String("log-level", "info", "Log level: debug|info|warn|error")
	local := flag.Bool("local", false, "Use shared-memory local transport instead of TCP")
	localName := flag.String("local-name", "", "Shared-memory/pipe naming root for local transport; defaults to server-name")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	// Track which flags were explicitly set to give them precedence over env.
	setFlags := map[string]struct{}{}
	flag.Visit(func(f *flag.Flag) { setFlags[f.Name] = struct{}{} })

	cfg.serverName = *serverName
	cfg.clientName = *clientName
	cfg.remoteAddr = *remoteAddr
	cfg.portMapperAddr = *portMapperAddr
	cfg.portMapperHost = *portMapperHost
	cfg.portMapperPort = *portMapperPort
	cfg.dialTimeout = *dialTimeout
	cfg.logFormat = *logFormat
	cfg.logLevel = *logLevel
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
	if !c.local && c.remoteAddr == "" && c.portMapperAddr == "" {
		return errors.New("either remote-addr or portmapper-addr/-port must be set")
	}
	if c.dialTimeout <= 0 {
		return fmt.Errorf("dial-timeout must be > 0 (got %s)", c.dialTimeout)
	}
	return nil
}

// applyEnvOverrides maps COSIM_CLIENT_* environment variables (plus the
// spec-mandated VEOS_COSIM_PORTMAPPER_PORT) onto config fields, unless the
// corresponding flag was explicitly set on the command line. Flag wins over
// env; env wins over the flag's default.
func applyEnvOverrides(c *appConfig, set map[string]struct{}) error {
	var firstErr error
	get := func(k string) (string, bool) { v, ok := os.LookupEnv(k); return strings.TrimSpace(v), ok }

	if _, ok := set["server-name"]; !ok {
		if v, ok := get("COSIM_CLIENT_SERVER_NAME"); ok && v != "" {
			c.serverName = v
		}
	}
	if _, ok := set["client-name"]; !ok {
		if v, ok := get("COSIM_CLIENT_NAME"); ok && v != "" {
			c.clientName = v
		}
	}
	if _, ok := set["remote-addr"]; !ok {
		if v, ok := get("COSIM_CLIENT_REMOTE_ADDR"); ok && v != "" {
			c.remoteAddr = v
		}
	}
	if _, ok := set["portmapper-addr"]; !ok {
		if v, ok := get("COSIM_CLIENT_PORTMAPPER_ADDR"); ok && v != "" {
			c.portMapperAddr = v
		}
	}
	if _, ok := set["portmapper-host"]; !ok {
		if v, ok := get("COSIM_CLIENT_PORTMAPPER_HOST"); ok && v != "" {
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
	if _, ok := set["dial-timeout"]; !ok {
		if v, ok := get("COSIM_CLIENT_DIAL_TIMEOUT"); ok && v != "" {
			if d, err := time.ParseDuration(v); err == nil && d > 0 {
				c.dialTimeout = d
			} else if err != nil && firstErr == nil {
				firstErr = fmt.Errorf("invalid COSIM_CLIENT_DIAL_TIMEOUT: %w", err)
			}
		}
	}
	if _, ok := set["log-format"]; !ok {
		if v, ok := get("COSIM_CLIENT_LOG_FORMAT"); ok && v != "" {
			c.logFormat = v
		}
	}
	if _, ok := set["log-level"]; !ok {
		if v, ok := get("COSIM_CLIENT_LOG_LEVEL"); ok && v != "" {
			c.logLevel = v
		}
	}
	if _, ok := set["local"]; !ok {
		if v, ok := get("COSIM_CLIENT_LOCAL"); ok && v != "" {
			c.local = isTruthy(v)
		}
	}
	if _, ok := set["local-name"]; !ok {
		if v, ok := get("COSIM_CLIENT_LOCAL_NAME"); ok && v != "" {
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
