package servicenow

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/custodia-labs/fabric-cli/internal/core/domain"
)

// Option keys read from a fabric's source configuration.
const (
	OptionInstance = "instance"
	OptionUsername = "username"
	OptionPassword = "password"
	OptionTables   = "tables"
	OptionLimit    = "limit"
)

const (
	// DefaultLimit is the number of records fetched per table.
	DefaultLimit = 100

	// MaxLimit bounds sysparm_limit.
	MaxLimit = 10000

	hostSuffix = ".service-now.com"
)

// DefaultTables are read when no tables are configured.
var DefaultTables = []string{"incident", "kb_knowledge"}

// Config holds connection settings for a ServiceNow source.
type Config struct {
	// BaseURL is the normalised instance URL, e.g. https://dev1234.service-now.com.
	BaseURL  string
	Username string
	Password string
	Tables   []string
	Limit    int
}

// ParseConfig builds a Config from source options. Missing credentials or
// an unusable instance wrap domain.ErrConfiguration.
func ParseConfig(opts map[string]string) (Config, error) {
	cfg := Config{
		BaseURL:  NormalizeInstanceURL(opts[OptionInstance]),
		Username: strings.TrimSpace(opts[OptionUsername]),
		Password: opts[OptionPassword],
		Tables:   parseTables(opts[OptionTables]),
		Limit:    DefaultLimit,
	}

	if cfg.BaseURL == "" {
		return Config{}, fmt.Errorf("%w: servicenow: %s is required", domain.ErrConfiguration, OptionInstance)
	}
	if cfg.Username == "" || cfg.Password == "" {
		return Config{}, fmt.Errorf("%w: servicenow: %s and %s are required (set SERVICENOW_USERNAME and SERVICENOW_PASSWORD)",
			domain.ErrConfiguration, OptionUsername, OptionPassword)
	}

	if raw := strings.TrimSpace(opts[OptionLimit]); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > MaxLimit {
			return Config{}, fmt.Errorf("%w: servicenow: %s must be between 1 and %d, got %q",
				domain.ErrConfiguration, OptionLimit, MaxLimit, raw)
		}
		cfg.Limit = n
	}

	return cfg, nil
}

// NormalizeInstanceURL turns the accepted instance spellings into a base
// URL without a trailing slash:
//
//	dev1234                                   -> https://dev1234.service-now.com
//	dev1234.service-now.com                   -> https://dev1234.service-now.com
//	https://dev1234.service-now.com/login.do  -> https://dev1234.service-now.com
//	http://localhost:8080/                    -> http://localhost:8080
func NormalizeInstanceURL(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}

	scheme := "https"
	if i := strings.Index(s, "://"); i >= 0 {
		scheme = strings.ToLower(s[:i])
		s = s[i+3:]
	}

	host := s
	if i := strings.IndexAny(host, "/?#"); i >= 0 {
		host = host[:i]
	}
	if host == "" {
		return ""
	}
	if !strings.ContainsAny(host, ".:") {
		host += hostSuffix
	}

	return scheme + "://" + host
}

func parseTables(raw string) []string {
	var tables []string
	for _, t := range strings.Split(raw, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tables = append(tables, t)
		}
	}
	if len(tables) == 0 {
		return append([]string(nil), DefaultTables...)
	}
	return tables
}
