package sharepoint

import (
	"fmt"
	"strings"

	"github.com/custodia-labs/fabric-cli/internal/core/domain"
)

// Option keys read from a fabric's source configuration.
const (
	OptionTenantID     = "tenant_id"
	OptionClientID     = "client_id"
	OptionClientSecret = "client_secret"
	OptionSiteID       = "site_id"
	OptionLibrary      = "library"
)

const (
	// DefaultLibrary is the document library read when none is configured.
	DefaultLibrary = "Documents"

	// DefaultGraphURL is the Microsoft Graph v1.0 endpoint.
	DefaultGraphURL = "https://graph.microsoft.com/v1.0"

	// GraphScope requests the app's configured Graph permissions.
	GraphScope = "https://graph.microsoft.com/.default"
)

// Config holds the app registration and library for a SharePoint source.
type Config struct {
	TenantID     string
	ClientID     string
	ClientSecret string

	// SiteID is a Graph site id or "hostname:/sites/path" reference.
	SiteID  string
	Library string

	// GraphURL and TokenURL are overridable for testing.
	GraphURL string
	TokenURL string
}

// ParseConfig builds a Config from source options. Missing credentials or
// site wrap domain.ErrConfiguration.
func ParseConfig(opts map[string]string) (Config, error) {
	cfg := Config{
		TenantID:     strings.TrimSpace(opts[OptionTenantID]),
		ClientID:     strings.TrimSpace(opts[OptionClientID]),
		ClientSecret: opts[OptionClientSecret],
		SiteID:       strings.TrimSpace(opts[OptionSiteID]),
		Library:      strings.TrimSpace(opts[OptionLibrary]),
	}
	if cfg.Library == "" {
		cfg.Library = DefaultLibrary
	}

	var missing []string
	for _, f := range []struct{ key, val string }{
		{OptionTenantID, cfg.TenantID},
		{OptionClientID, cfg.ClientID},
		{OptionClientSecret, cfg.ClientSecret},
		{OptionSiteID, cfg.SiteID},
	} {
		if f.val == "" {
			missing = append(missing, f.key)
		}
	}
	if len(missing) > 0 {
		return Config{}, fmt.Errorf("%w: sharepoint: missing %s (set SHAREPOINT_* environment variables or source options)",
			domain.ErrConfiguration, strings.Join(missing, ", "))
	}

	return cfg, nil
}

func (c Config) graphURL() string {
	if c.GraphURL != "" {
		return strings.TrimRight(c.GraphURL, "/")
	}
	return DefaultGraphURL
}

func (c Config) tokenURL() string {
	if c.TokenURL != "" {
		return c.TokenURL
	}
	return "https://login.microsoftonline.com/" + c.TenantID + "/oauth2/v2.0/token"
}
