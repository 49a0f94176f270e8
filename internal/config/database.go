package config

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
)

// DSN returns a MySQL data source name. An explicit dsn wins over the
// discrete fields; either way times are parsed into UTC.
func (d *DatabaseConfig) DSN() (string, error) {
	cfg, err := d.driverConfig()
	if err != nil {
		return "", err
	}
	return cfg.FormatDSN(), nil
}

// EffectiveDatabaseName returns the schema that introspection reads.
func (d *DatabaseConfig) EffectiveDatabaseName() (string, error) {
	cfg, err := d.driverConfig()
	if err != nil {
		return "", err
	}
	if cfg.DBName == "" {
		return "", fmt.Errorf("no database name configured: set database.database or include /<database> in database.dsn")
	}
	return cfg.DBName, nil
}

func (d *DatabaseConfig) driverConfig() (*mysql.Config, error) {
	var cfg *mysql.Config
	if dsn := strings.TrimSpace(d.ConnectionString); dsn != "" {
		parsed, err := mysql.ParseDSN(dsn)
		if err != nil {
			return nil, fmt.Errorf("invalid database.dsn: %w", err)
		}
		cfg = parsed
		if name := strings.TrimSpace(d.Database); name != "" {
			if cfg.DBName != "" && cfg.DBName != name {
				return nil, fmt.Errorf("database mismatch: database.database=%q but database.dsn targets %q", name, cfg.DBName)
			}
			cfg.DBName = name
		}
	} else {
		cfg = mysql.NewConfig()
		cfg.User = d.User
		cfg.Passwd = d.Password
		cfg.Net = "tcp"
		cfg.Addr = net.JoinHostPort(d.Host, strconv.Itoa(d.Port))
		cfg.DBName = strings.TrimSpace(d.Database)
	}

	cfg.ParseTime = true
	cfg.Loc = time.UTC
	if d.ConnectTimeout > 0 && cfg.Timeout == 0 {
		cfg.Timeout = d.ConnectTimeout
	}
	if mode := effectiveTLSParam(d.TLSMode); mode != "" && cfg.TLSConfig == "" {
		cfg.TLSConfig = mode
	}
	return cfg, nil
}

// effectiveTLSParam maps a configured TLS mode to the driver's tls parameter.
func effectiveTLSParam(mode string) string {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "", "false", "off":
		return ""
	case "true", "verify-full":
		return "true"
	case "skip-verify":
		return "skip-verify"
	case "preferred":
		return "preferred"
	default:
		return ""
	}
}

func validTLSMode(mode string) bool {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "", "false", "off", "true", "verify-full", "skip-verify", "preferred":
		return true
	}
	return false
}
