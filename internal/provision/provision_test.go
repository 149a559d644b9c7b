package provision

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"wsoak/internal/config"
)

func testConfig(url string) config.TestConfiguration {
	cfg := config.Default()
	cfg.ProvisioningURL = url
	cfg.DeviceID = "AA:BB:CC:DD:EE:FF"
	cfg.ClientID = "c1"
	return cfg
}

func TestResolve_Success(t *testing.T) {
	var gotHeaders http.Header
	var gotBody DeviceDescriptor
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		gotHeaders = r.Header.Clone()
		b, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(b, &gotBody); err != nil {
			t.Errorf("body is not a device descriptor: %v", err)
		}
		w.Write([]byte(`{"websocket":{"url":"ws://x/y"}}`))
	}))
	defer server.Close()

	url, err := NewClient(0).Resolve(context.Background(), testConfig(server.URL))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	want := "ws://x/y?device-id=AA%3ABB%3ACC%3ADD%3AEE%3AFF&client-id=c1"
	if url != want {
		t.Errorf("expected %s, got %s", want, url)
	}
	if gotHeaders.Get("Client-Id") != "c1" || gotHeaders.Get("Device-Id") != "AA:BB:CC:DD:EE:FF" {
		t.Errorf("identity headers missing: %v", gotHeaders)
	}
	if gotHeaders.Get("Content-Type") != "application/json" {
		t.Errorf("expected json content type, got %q", gotHeaders.Get("Content-Type"))
	}
	if gotBody.MACAddress != "AA:BB:CC:DD:EE:FF" || gotBody.Board.MAC != "AA:BB:CC:DD:EE:FF" {
		t.Errorf("descriptor not stamped with mac: %+v", gotBody)
	}
	if gotBody.Application.Name != fixtureName {
		t.Errorf("expected fixture application name, got %q", gotBody.Application.Name)
	}
}

func TestResolve_Failures(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantKind ErrorKind
	}{
		{"not found", http.StatusNotFound, `{}`, KindStatus},
		{"server error", http.StatusInternalServerError, `oops`, KindStatus},
		{"missing websocket", http.StatusOK, `{"mqtt":{}}`, KindMissingEndpoint},
		{"empty url", http.StatusOK, `{"websocket":{"url":""}}`, KindMissingEndpoint},
		{"not json", http.StatusOK, `<html>`, KindMalformed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			_, err := NewClient(0).Resolve(context.Background(), testConfig(server.URL))
			var perr *Error
			if !errors.As(err, &perr) {
				t.Fatalf("expected *Error, got %v", err)
			}
			if perr.Kind != tt.wantKind {
				t.Errorf("expected kind %v, got %v", tt.wantKind, perr.Kind)
			}
			if tt.wantKind == KindStatus && perr.StatusCode != tt.status {
				t.Errorf("expected status %d, got %d", tt.status, perr.StatusCode)
			}
			if tt.wantKind == KindMissingEndpoint && !errors.Is(err, ErrMissingEndpoint) {
				t.Errorf("expected errors.Is(err, ErrMissingEndpoint)")
			}
		})
	}
}

func TestResolve_TransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	_, err := NewClient(0).Resolve(context.Background(), testConfig(url))
	var perr *Error
	if !errors.As(err, &perr) || perr.Kind != KindTransport {
		t.Fatalf("expected transport error, got %v", err)
	}
}

func TestEndpoint_EncodesSpaces(t *testing.T) {
	got := Endpoint("ws://h/p", "a b", "c")
	if got != "ws://h/p?device-id=a%20b&client-id=c" {
		t.Errorf("unexpected endpoint %s", got)
	}
}

func TestEndpoint_QuotesDeviceID(t *testing.T) {
	tests := []struct {
		deviceID string
		want     string
	}{
		{"AA:BB:CC", "AA%3ABB%3ACC"},
		{"rack/7", "rack/7"},
		{"a+b", "a%2Bb"},
		{"dev~1_x.y-z", "dev~1_x.y-z"},
		{"a b/c", "a%20b/c"},
	}
	for _, tt := range tests {
		got := Endpoint("ws://h/p", tt.deviceID, "c")
		if want := "ws://h/p?device-id=" + tt.want + "&client-id=c"; got != want {
			t.Errorf("Endpoint(%q) = %s, want %s", tt.deviceID, got, want)
		}
	}
}
