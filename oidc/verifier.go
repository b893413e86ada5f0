// Package oidc exchanges an opaque authorization code for a verified claim
// set by introspecting it at the configured identity provider.
package oidc

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	gooidc "github.com/coreos/go-oidc/v3/oidc"
	"github.com/pkg/errors"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/bdevloed/graph-login-service/claims"
)

const discoveryPathSuffix = "/.well-known/openid-configuration"

// AuthMethod selects how the introspection call authenticates to the
// provider.
type AuthMethod string

const (
	// AuthClientSecretBasic sends client id and secret as HTTP basic auth.
	AuthClientSecretBasic AuthMethod = "client_secret_basic"
	// AuthClientCredentials first obtains a client-credentials access token
	// and presents it as a bearer token.
	AuthClientCredentials AuthMethod = "client_credentials"
)

// Settings configures the Verifier.
type Settings struct {
	DiscoveryURL string
	ClientID     string
	ClientSecret string
	AuthMethod   AuthMethod
	Timeout      time.Duration
}

// Verifier resolves the provider's introspection endpoint through OIDC
// discovery and exchanges authorization codes for claim sets.
type Verifier struct {
	settings  Settings
	extractor claims.Extractor

	httpClient *http.Client

	mu            sync.Mutex
	introspectURL string
	tokenURL      string
}

// New creates a Verifier. Discovery is deferred until the first exchange so
// the service can start while the provider is down.
func New(settings Settings, extractor claims.Extractor) (*Verifier, error) {
	if settings.DiscoveryURL == "" {
		return nil, errors.New("[oidc.New] discovery URL is required")
	}
	if settings.ClientID == "" {
		return nil, errors.New("[oidc.New] client id is required")
	}
	if settings.AuthMethod == "" {
		settings.AuthMethod = AuthClientSecretBasic
	}
	timeout := settings.Timeout
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	return &Verifier{
		settings:   settings,
		extractor:  extractor,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

// Introspect exchanges the authorization code for its claim set. Any
// provider failure is returned as an error; the caller decides how a failed
// exchange maps onto its own outcome taxonomy.
func (v *Verifier) Introspect(ctx context.Context, authorizationCode string) (claims.Set, error) {
	introspectURL, tokenURL, err := v.endpoints(ctx)
	if err != nil {
		return claims.Set{}, err
	}

	form := url.Values{
		"token":           {authorizationCode},
		"token_type_hint": {"access_token"},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, introspectURL, strings.NewReader(form.Encode()))
	if err != nil {
		return claims.Set{}, errors.Wrap(err, "[Verifier.Introspect] building request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	switch v.settings.AuthMethod {
	case AuthClientCredentials:
		cc := clientcredentials.Config{
			ClientID:     v.settings.ClientID,
			ClientSecret: v.settings.ClientSecret,
			TokenURL:     tokenURL,
		}
		token, err := cc.Token(context.WithValue(ctx, oauth2.HTTPClient, v.httpClient))
		if err != nil {
			return claims.Set{}, errors.Wrap(err, "[Verifier.Introspect] client credentials grant")
		}
		token.SetAuthHeader(req)
	default:
		req.SetBasicAuth(v.settings.ClientID, v.settings.ClientSecret)
	}

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return claims.Set{}, errors.Wrap(err, "[Verifier.Introspect] provider unreachable")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return claims.Set{}, errors.Wrap(err, "[Verifier.Introspect] reading response")
	}
	if resp.StatusCode != http.StatusOK {
		return claims.Set{}, errors.Errorf("[Verifier.Introspect] provider returned %d", resp.StatusCode)
	}

	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return claims.Set{}, errors.Wrap(err, "[Verifier.Introspect] decoding introspection response")
	}

	set, err := v.extractor.FromIntrospection(raw)
	if err != nil {
		return claims.Set{}, errors.Wrap(err, "[Verifier.Introspect] extracting claims")
	}
	if !set.Active {
		return claims.Set{}, errors.New("[Verifier.Introspect] token is not active")
	}
	return set, nil
}

// endpoints performs OIDC discovery once and caches the result.
func (v *Verifier) endpoints(ctx context.Context) (introspectURL, tokenURL string, err error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.introspectURL != "" {
		return v.introspectURL, v.tokenURL, nil
	}

	issuer := strings.TrimSuffix(v.settings.DiscoveryURL, discoveryPathSuffix)
	provider, err := gooidc.NewProvider(gooidc.ClientContext(ctx, v.httpClient), issuer)
	if err != nil {
		return "", "", errors.Wrap(err, "[Verifier.endpoints] provider discovery")
	}

	var meta struct {
		IntrospectionEndpoint string `json:"introspection_endpoint"`
	}
	if err := provider.Claims(&meta); err != nil {
		return "", "", errors.Wrap(err, "[Verifier.endpoints] decoding provider metadata")
	}
	if meta.IntrospectionEndpoint == "" {
		return "", "", errors.New("[Verifier.endpoints] provider advertises no introspection endpoint")
	}

	v.introspectURL = meta.IntrospectionEndpoint
	v.tokenURL = provider.Endpoint().TokenURL
	return v.introspectURL, v.tokenURL, nil
}
