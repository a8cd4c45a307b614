package domain

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// AuthHeader is the header carrying the Data Stores personal access token.
const AuthHeader = "PRIVATE-TOKEN"

// Credentials stores the Data Stores API key.
// When Host is set the key is only sent to that host.
type Credentials struct {
	Key  string
	Host string
}

// AuthenticationManager hands out HTTP clients that authenticate every
// request with the configured API key.
type AuthenticationManager struct {
	credentials *Credentials
	base        http.RoundTripper
	timeout     time.Duration
}

// NewAuthenticationManager creates a new authentication manager.
// A nil base uses http.DefaultTransport.
func NewAuthenticationManager(credentials *Credentials, base http.RoundTripper, timeout time.Duration) *AuthenticationManager {
	if base == nil {
		base = http.DefaultTransport
	}
	return &AuthenticationManager{
		credentials: credentials,
		base:        base,
		timeout:     timeout,
	}
}

// NewAuthenticationManagerFromConfig creates an authentication manager from a configuration.
func NewAuthenticationManagerFromConfig(config *Config, base http.RoundTripper) *AuthenticationManager {
	credentials := &Credentials{Key: config.Datapi.Key}
	if u, err := url.Parse(config.Datapi.URL); err == nil {
		credentials.Host = u.Host
	}
	return NewAuthenticationManager(credentials, base, config.Datapi.Timeout)
}

// GetAuthenticatedClient returns an HTTP client with authentication headers configured.
// Returns an error if no usable key is configured.
func (am *AuthenticationManager) GetAuthenticatedClient() (*http.Client, error) {
	if err := am.ValidateCredentials(); err != nil {
		return nil, err
	}

	transport := &authenticatedTransport{
		base:        am.base,
		credentials: am.credentials,
	}

	return &http.Client{
		Transport: transport,
		Timeout:   am.timeout,
	}, nil
}

// ValidateCredentials checks that an API key is configured.
func (am *AuthenticationManager) ValidateCredentials() error {
	if am.credentials == nil {
		return fmt.Errorf("credentials cannot be nil")
	}
	if am.credentials.Key == "" {
		return fmt.Errorf("API key is required for token authentication")
	}
	return nil
}

// authenticatedTransport is an http.RoundTripper that adds authentication headers.
type authenticatedTransport struct {
	base        http.RoundTripper
	credentials *Credentials
}

// RoundTrip implements http.RoundTripper by adding authentication headers to requests.
// Requests to other hosts, such as result assets on object storage, pass
// through without the key.
func (t *authenticatedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.credentials.Host != "" && !strings.EqualFold(req.URL.Host, t.credentials.Host) {
		return t.base.RoundTrip(req)
	}

	// Clone the request to avoid modifying the original
	clonedReq := req.Clone(req.Context())
	clonedReq.Header.Set(AuthHeader, t.credentials.Key)

	return t.base.RoundTrip(clonedReq)
}
