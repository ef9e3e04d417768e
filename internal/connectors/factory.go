package connectors

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/custodia-labs/fabric-cli/internal/connectors/demo"
	"github.com/custodia-labs/fabric-cli/internal/connectors/servicenow"
	"github.com/custodia-labs/fabric-cli/internal/connectors/sharepoint"
	"github.com/custodia-labs/fabric-cli/internal/connectors/upload"
	"github.com/custodia-labs/fabric-cli/internal/core/domain"
	"github.com/custodia-labs/fabric-cli/internal/core/ports/driven"
)

var _ driven.SourceFactory = (*Factory)(nil)

// OptionPath is the upload directory option.
const OptionPath = "path"

// Factory creates document sources from fabric source configuration.
// Settings-level defaults (credentials from config.toml or the
// environment) fill any option the fabric leaves empty.
type Factory struct {
	settings   domain.AppSettings
	registry   driven.NormaliserRegistry
	httpClient *http.Client
}

// NewFactory creates a source factory. A nil httpClient lets each source
// use its default client.
func NewFactory(settings domain.AppSettings, registry driven.NormaliserRegistry, httpClient *http.Client) *Factory {
	return &Factory{settings: settings, registry: registry, httpClient: httpClient}
}

// Create returns the source for cfg.
func (f *Factory) Create(cfg domain.SourceConfig) (driven.DocumentSource, error) {
	opts := f.Options(cfg)

	switch cfg.Kind {
	case domain.SourceKindUpload:
		path := opts[OptionPath]
		if path == "" {
			return nil, fmt.Errorf("%w: upload source requires the %q option", domain.ErrConfiguration, OptionPath)
		}
		return upload.New(path, f.registry), nil

	case domain.SourceKindServiceNow:
		snCfg, err := servicenow.ParseConfig(opts)
		if err != nil {
			return nil, err
		}
		return servicenow.New(snCfg, f.httpClient), nil

	case domain.SourceKindSharePoint:
		spCfg, err := sharepoint.ParseConfig(opts)
		if err != nil {
			return nil, err
		}
		return sharepoint.New(spCfg, f.registry, f.httpClient), nil

	case domain.SourceKindDemo:
		return demo.New(opts[demo.OptionContent]), nil

	default:
		return nil, fmt.Errorf("%w: unknown source kind %q", domain.ErrConfiguration, cfg.Kind)
	}
}

// Options returns the effective options for cfg: settings defaults
// overlaid with the fabric's non-empty options.
func (f *Factory) Options(cfg domain.SourceConfig) map[string]string {
	opts := make(map[string]string)
	for k, v := range f.settings.SourceDefaults(cfg.Kind) {
		if v != "" {
			opts[k] = v
		}
	}
	for k, v := range cfg.Options {
		if strings.TrimSpace(v) != "" {
			opts[k] = v
		}
	}
	return opts
}
