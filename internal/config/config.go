package config

import (
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
)

// GraphTemplate is a named-graph URI template containing a {{groupId}}
// placeholder. The template format is owned by deployment configuration;
// this type only performs the substitution.
type GraphTemplate string

// ForGroup returns the graph URI for a tenant's internal group id.
func (t GraphTemplate) ForGroup(groupID string) string {
	return strings.ReplaceAll(string(t), "{{groupId}}", groupID)
}

// Config holds all process configuration. It is parsed once at startup and
// passed by reference; nothing mutates it afterwards.
type Config struct {
	Port        string `env:"PORT" envDefault:"8080"`
	AppName     string `env:"APP_NAME" envDefault:"Graph Login Service"`
	Environment string `env:"ENV" envDefault:"DEV"`

	// Graph store
	SparqlEndpoint       string        `env:"MU_SPARQL_ENDPOINT" envDefault:"http://database:8890/sparql"`
	SparqlUpdateEndpoint string        `env:"MU_SPARQL_UPDATEPOINT"`
	SparqlRequestTimeout time.Duration `env:"SPARQL_REQUEST_TIMEOUT" envDefault:"30s"`
	OrganizationGraph    string        `env:"MU_APPLICATION_GRAPH" envDefault:"http://mu.semte.ch/graphs/application"`
	SessionGraph         string        `env:"SESSION_GRAPH" envDefault:"http://mu.semte.ch/graphs/sessions"`
	LogsGraph            string        `env:"LOGS_GRAPH" envDefault:"http://mu.semte.ch/graphs/public"`
	UserGraphTemplate    GraphTemplate `env:"USER_GRAPH_TEMPLATE" envDefault:"http://mu.semte.ch/graphs/organizations/{{groupId}}"`
	AccountGraphTemplate GraphTemplate `env:"ACCOUNT_GRAPH_TEMPLATE" envDefault:"http://mu.semte.ch/graphs/organizations/{{groupId}}"`
	OrganizationType     string        `env:"ORGANIZATION_TYPE" envDefault:"http://www.w3.org/ns/org#Organization"`
	ResourceBaseURI      string        `env:"RESOURCE_BASE_URI" envDefault:"http://data.example.com/"`

	// Claim keys the identity provider uses for the fields this service reads
	UserIDClaim          string `env:"USER_ID_CLAIM" envDefault:"sub"`
	AccountIDClaim       string `env:"ACCOUNT_ID_CLAIM" envDefault:"sub"`
	GroupIDClaim         string `env:"GROUP_ID_CLAIM" envDefault:"group_id"`
	ApplicationNameClaim string `env:"APPLICATION_NAME_CLAIM" envDefault:"azp"`

	// Identity provider
	AuthDiscoveryURL     string        `env:"AUTH_DISCOVERY_URL"`
	AuthClientID         string        `env:"AUTH_CLIENT_ID"`
	AuthClientSecret     string        `env:"AUTH_CLIENT_SECRET"`
	AuthRequestTimeout   time.Duration `env:"AUTH_REQUEST_TIMEOUT" envDefault:"5s"`
	AuthIntrospectionVia string        `env:"AUTH_INTROSPECTION_AUTH" envDefault:"client_secret_basic"`

	DebugLogClaims bool `env:"DEBUG_LOG_TOKENSETS" envDefault:"false"`
}

// Load reads a .env file if present, parses the environment and validates
// required settings.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, errors.Wrap(err, "[config.Load] parsing environment")
	}
	if cfg.SparqlUpdateEndpoint == "" {
		cfg.SparqlUpdateEndpoint = cfg.SparqlEndpoint
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the settings without which the service cannot run.
func (c *Config) Validate() error {
	if c.AuthDiscoveryURL == "" {
		return errors.New("[config.Validate] AUTH_DISCOVERY_URL must be configured")
	}
	if c.AuthClientID == "" {
		return errors.New("[config.Validate] AUTH_CLIENT_ID must be configured")
	}
	switch c.AuthIntrospectionVia {
	case "client_secret_basic", "client_credentials":
	default:
		return errors.Errorf("[config.Validate] unsupported AUTH_INTROSPECTION_AUTH %q", c.AuthIntrospectionVia)
	}
	return nil
}

// ListenAddr returns the address for the HTTP server.
func (c *Config) ListenAddr() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return ":" + c.Port
}
