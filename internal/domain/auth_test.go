package domain

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

// TestNewAuthenticationManagerFromConfig tests creating an authentication manager from config.
func TestNewAuthenticationManagerFromConfig(t *testing.T) {
	config := &Config{
		Datapi: DatapiConfig{
			URL:     "https://cds.climate.copernicus.eu/api",
			Key:     "my-token",
			Timeout: 30 * time.Second,
		},
	}

	am := NewAuthenticationManagerFromConfig(config, nil)
	if am == nil {
		t.Fatal("expected non-nil authentication manager")
	}
	if am.credentials.Key != "my-token" {
		t.Errorf("expected key my-token, got %s", am.credentials.Key)
	}
	if am.credentials.Host != "cds.climate.copernicus.eu" {
		t.Errorf("expected key scoped to cds.climate.copernicus.eu, got %q", am.credentials.Host)
	}
	if am.base != http.DefaultTransport {
		t.Error("expected nil base transport to default to http.DefaultTransport")
	}

	client, err := am.GetAuthenticatedClient()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if client.Timeout != 30*time.Second {
		t.Errorf("expected timeout 30s, got %s", client.Timeout)
	}
}

// TestGetAuthenticatedClient_SetsPrivateToken tests that every request
// carries the PRIVATE-TOKEN header.
func TestGetAuthenticatedClient_SetsPrivateToken(t *testing.T) {
	var received []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received = append(received, r.Header.Get(AuthHeader))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	am := NewAuthenticationManager(&Credentials{Key: "abc-123"}, nil, 0)
	client, err := am.GetAuthenticatedClient()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for i := 0; i < 2; i++ {
		resp, err := client.Get(server.URL)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		resp.Body.Close()
	}

	if len(received) != 2 {
		t.Fatalf("expected 2 requests, got %d", len(received))
	}
	for i, token := range received {
		if token != "abc-123" {
			t.Errorf("request %d: expected PRIVATE-TOKEN abc-123, got %q", i, token)
		}
	}
}

// TestGetAuthenticatedClient_ScopesTokenToHost tests that the key is only
// sent to the configured API host.
func TestGetAuthenticatedClient_ScopesTokenToHost(t *testing.T) {
	tokens := make(map[string]string)
	handler := func(name string) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			tokens[name] = r.Header.Get(AuthHeader)
			w.WriteHeader(http.StatusOK)
		}
	}
	api := httptest.NewServer(handler("api"))
	defer api.Close()
	storage := httptest.NewServer(handler("storage"))
	defer storage.Close()

	config := &Config{Datapi: DatapiConfig{URL: api.URL + "/api", Key: "abc-123"}}
	client, err := NewAuthenticationManagerFromConfig(config, nil).GetAuthenticatedClient()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, target := range []string{api.URL + "/api/retrieve/v1/jobs", storage.URL + "/bucket/result.zip"} {
		resp, err := client.Get(target)
		if err != nil {
			t.Fatalf("request to %s failed: %v", target, err)
		}
		resp.Body.Close()
	}

	if tokens["api"] != "abc-123" {
		t.Errorf("expected API host to receive PRIVATE-TOKEN abc-123, got %q", tokens["api"])
	}
	if got, ok := tokens["storage"]; !ok || got != "" {
		t.Errorf("expected storage host to receive no PRIVATE-TOKEN, got %q (requested: %v)", got, ok)
	}
}

// TestAuthenticatedTransport_DoesNotMutateRequest tests that the caller's request is left untouched.
func TestAuthenticatedTransport_DoesNotMutateRequest(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	am := NewAuthenticationManager(&Credentials{Key: "abc-123"}, nil, 0)
	client, err := am.GetAuthenticatedClient()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	req, _ := http.NewRequest(http.MethodGet, server.URL, nil)
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()

	if req.Header.Get(AuthHeader) != "" {
		t.Error("expected original request to have no PRIVATE-TOKEN header")
	}
}

// TestValidateCredentials tests credential validation.
func TestValidateCredentials(t *testing.T) {
	tests := []struct {
		name        string
		credentials *Credentials
		wantErr     bool
	}{
		{"valid key", &Credentials{Key: "token"}, false},
		{"empty key", &Credentials{}, true},
		{"nil credentials", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			am := NewAuthenticationManager(tt.credentials, nil, 0)

			err := am.ValidateCredentials()
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateCredentials() error = %v, wantErr %v", err, tt.wantErr)
			}

			client, err := am.GetAuthenticatedClient()
			if tt.wantErr && (err == nil || client != nil) {
				t.Error("expected GetAuthenticatedClient to fail")
			}
		})
	}
}
