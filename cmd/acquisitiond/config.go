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
	serialDev    string
	baud         int
	serialReadTO time.Duration
	parserMode   string

	logFormat       string
	logLevel        string
	logMetricsEvery time.Duration

	metricsAddr string

	recordPath string

	remoteListen    string
	remoteBuffer    int
	remotePolicy    string
	remoteHandshake time.Duration
	mdnsEnable      bool
	mdnsName        string

	redisAddr     string
	redisPassword string
	redisDB       int
}

func parseFlags() (*appConfig, bool) {
	cfg := &appConfig{}
	serialDev := flag.String("serial", "/dev/ttyUSB0", "Serial device path")
	baud := flag.Int("baud", 921600, "Serial baud rate")
	serialReadTO := flag.Duration("serial-read-timeout", 50*time.Millisecond, "Serial read timeout")
	parserMode := flag.String("parser-mode", "auto", "Parser mode: auto|binary|text")

	logFormat := flag.String("log-format", "text", "Log format: text|json")
	logLevel := flag.String("log-level", "info", "Log level: debug|info|warn|error")
	logMetricsEvery := flag.Duration("log-metrics-interval", 0, "If >0, periodically log metrics counters (for non-Prometheus setups)")

	metricsAddr := flag.String("metrics-addr", "", "Metrics HTTP listen address (e.g., :9100); empty disables")

	recordPath := flag.String("record-path", "", "Start recording to this file immediately; empty disables")

	remoteListen := flag.String("remote-listen", "", "Remote telemetry TCP listen address (e.g., :20100); empty disables the mirror server")
	remoteBuffer := flag.Int("remote-buffer", 256, "Per-client remote telemetry buffer (frames)")
	remotePolicy := flag.String("remote-policy", "drop", "Remote telemetry backpressure policy: drop|kick")
	remoteHandshake := flag.Duration("remote-handshake-timeout", 3*time.Second, "Remote telemetry client handshake timeout")
	mdnsEnable := flag.Bool("mdns-enable", false, "Enable mDNS advertisement of the remote telemetry port")
	mdnsName := flag.String("mdns-name", "", "mDNS instance name (default acquisitiond-<hostname>)")

	redisAddr := flag.String("redis-addr", "", "Redis address for the telemetry mirror (e.g., localhost:6379); empty disables")
	redisPassword := flag.String("redis-password", "", "Redis password")
	redisDB := flag.Int("redis-db", 0, "Redis logical database index")

	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	setFlags := map[string]struct{}{}
	flag.Visit(func(f *flag.Flag) { setFlags[f.Name] = struct{}{} })

	cfg.serialDev = *serialDev
	cfg.baud = *baud
	cfg.serialReadTO = *serialReadTO
	cfg.parserMode = *parserMode
	cfg.logFormat = *logFormat
	cfg.logLevel = *logLevel
	cfg.logMetricsEvery = *logMetricsEvery
	cfg.metricsAddr = *metricsAddr
	cfg.recordPath = *recordPath
	cfg.remoteListen = *remoteListen
	cfg.remoteBuffer = *remoteBuffer
	cfg.remotePolicy = *remotePolicy
	cfg.remoteHandshake = *remoteHandshake
	cfg.mdnsEnable = *mdnsEnable
	cfg.mdnsName = *mdnsName
	cfg.redisAddr = *redisAddr
	cfg.redisPassword = *redisPassword
	cfg.redisDB = *redisDB

	if err := applyEnvOverrides(cfg, setFlags); err != nil {
		fmt.Printf("environment override error: %v\n", err)
		return nil, *showVersion
	}
	if err := cfg.validate(); err != nil {
		fmt.Printf("configuration error: %v\n", err)
		return nil, *showVersion
	}
	return cfg, *showVersion
}

// validate performs basic semantic validation of the parsed configuration.
// It does not attempt to open devices or listeners - only checks values/ranges.
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
	switch c.parserMode {
	case "auto", "binary", "text":
	default:
		return fmt.Errorf("invalid parser-mode: %s", c.parserMode)
	}
	switch c.remotePolicy {
	case "drop", "kick":
	default:
		return fmt.Errorf("invalid remote-policy: %s", c.remotePolicy)
	}
	if c.remoteBuffer <= 0 {
		return fmt.Errorf("remote-buffer must be > 0 (got %d)", c.remoteBuffer)
	}
	if c.baud <= 0 {
		return fmt.Errorf("baud must be > 0 (got %d)", c.baud)
	}
	if c.serialReadTO <= 0 {
		return fmt.Errorf("serial-read-timeout must be > 0")
	}
	if c.remoteHandshake <= 0 {
		return fmt.Errorf("remote-handshake-timeout must be > 0")
	}
	if c.redisDB < 0 {
		return fmt.Errorf("redis-db must be >= 0")
	}
	return nil
}

// applyEnvOverrides maps ACQUISITIOND_* environment variables to config
// fields unless a corresponding flag was explicitly set (flag wins),
// following the teacher's cmd/can-server/config.go precedence rule.
func applyEnvOverrides(c *appConfig, set map[string]struct{}) error {
	var firstErr error
	get := func(k string) (string, bool) { v, ok := os.LookupEnv(k); return strings.TrimSpace(v), ok }

	if _, ok := set["serial"]; !ok {
		if v, ok := get("ACQUISITIOND_SERIAL"); ok && v != "" {
			c.serialDev = v
		}
	}
	if _, ok := set["baud"]; !ok {
		if v, ok := get("ACQUISITIOND_BAUD"); ok && v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				c.baud = n
			} else if err != nil && firstErr == nil {
				firstErr = fmt.Errorf("invalid ACQUISITIOND_BAUD: %w", err)
			}
		}
	}
	if _, ok := set["serial-read-timeout"]; !ok {
		if v, ok := get("ACQUISITIOND_SERIAL_READ_TIMEOUT"); ok && v != "" {
			if d, err := time.ParseDuration(v); err == nil && d > 0 {
				c.serialReadTO = d
			} else if err != nil && firstErr == nil {
				firstErr = fmt.Errorf("invalid ACQUISITIOND_SERIAL_READ_TIMEOUT: %w", err)
			}
		}
	}
	if _, ok := set["parser-mode"]; !ok {
		if v, ok := get("ACQUISITIOND_PARSER_MODE"); ok && v != "" {
			c.parserMode = v
		}
	}
	if _, ok := set["log-format"]; !ok {
		if v, ok := get("ACQUISITIOND_LOG_FORMAT"); ok && v != "" {
			c.logFormat = v
		}
	}
	if _, ok := set["log-level"]; !ok {
		if v, ok := get("ACQUISITIOND_LOG_LEVEL"); ok && v != "" {
			c.logLevel = v
		}
	}
	if _, ok := set["log-metrics-interval"]; !ok {
		if v, ok := get("ACQUISITIOND_LOG_METRICS_INTERVAL"); ok && v != "" {
			if d, err := time.ParseDuration(v); err == nil && d >= 0 {
				c.logMetricsEvery = d
			} else if err != nil && firstErr == nil {
				firstErr = fmt.Errorf("invalid ACQUISITIOND_LOG_METRICS_INTERVAL: %w", err)
			}
		}
	}
	if _, ok := set["metrics-addr"]; !ok {
		if v, ok := get("ACQUISITIOND_METRICS"); ok {
			c.metricsAddr = v
		}
	}
	if _, ok := set["record-path"]; !ok {
		if v, ok := get("ACQUISITIOND_RECORD_PATH"); ok {
			c.recordPath = v
		}
	}
	if _, ok := set["remote-listen"]; !ok {
		if v, ok := get("ACQUISITIOND_REMOTE_LISTEN"); ok {
			c.remoteListen = v
		}
	}
	if _, ok := set["remote-buffer"]; !ok {
		if v, ok := get("ACQUISITIOND_REMOTE_BUFFER"); ok && v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				c.remoteBuffer = n
			} else if err != nil && firstErr == nil {
				firstErr = fmt.Errorf("invalid ACQUISITIOND_REMOTE_BUFFER: %w", err)
			}
		}
	}
	if _, ok := set["remote-policy"]; !ok {
		if v, ok := get("ACQUISITIOND_REMOTE_POLICY"); ok && v != "" {
			c.remotePolicy = v
		}
	}
	if _, ok := set["remote-handshake-timeout"]; !ok {
		if v, ok := get("ACQUISITIOND_REMOTE_HANDSHAKE_TIMEOUT"); ok && v != "" {
			if d, err := time.ParseDuration(v); err == nil && d > 0 {
				c.remoteHandshake = d
			} else if err != nil && firstErr == nil {
				firstErr = fmt.Errorf("invalid ACQUISITIOND_REMOTE_HANDSHAKE_TIMEOUT: %w", err)
			}
		}
	}
	if _, ok := set["mdns-enable"]; !ok {
		if v, ok := get("ACQUISITIOND_MDNS_ENABLE"); ok && v != "" {
			switch strings.ToLower(v) {
			case "1", "true", "yes", "on":
				c.mdnsEnable = true
			case "0", "false", "no", "off":
				c.mdnsEnable = false
			}
		}
	}
	if _, ok := set["mdns-name"]; !ok {
		if v, ok := get("ACQUISITIOND_MDNS_NAME"); ok && v != "" {
			c.mdnsName = v
		}
	}
	if _, ok := set["redis-addr"]; !ok {
		if v, ok := get("ACQUISITIOND_REDIS_ADDR"); ok {
			c.redisAddr = v
		}
	}
	if _, ok := set["redis-password"]; !ok {
		if v, ok := get("ACQUISITIOND_REDIS_PASSWORD"); ok {
			c.redisPassword = v
		}
	}
	if _, ok := set["redis-db"]; !ok {
		if v, ok := get("ACQUISITIOND_REDIS_DB"); ok && v != "" {
			if n, err := strconv.Atoi(v); err == nil && n >= 0 {
				c.redisDB = n
			} else if err != nil && firstErr == nil {
				firstErr = fmt.Errorf("invalid ACQUISITIOND_REDIS_DB: %w", err)
			}
		}
	}
	return firstErr
}
