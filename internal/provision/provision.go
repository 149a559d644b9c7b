// Package provision resolves the WebSocket endpoint a device should connect
// to by posting its descriptor to the provisioning (OTA) service.
package provision

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"wsoak/internal/config"
)

const DefaultTimeout = 10 * time.Second

// ErrMissingEndpoint means the service answered 200 without websocket.url.
var ErrMissingEndpoint = errors.New("provisioning response has no websocket url")

type ErrorKind int

const (
	KindTransport ErrorKind = iota
	KindStatus
	KindMalformed
	KindMissingEndpoint
)

func (k ErrorKind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindStatus:
		return "status"
	case KindMalformed:
		return "malformed"
	case KindMissingEndpoint:
		return "missing endpoint"
	default:
		return "unknown"
	}
}

// Error is returned for every failed resolution.
type Error struct {
	Kind       ErrorKind
	StatusCode int
	Message    string
	Err        error
}

func (e *Error) Error() string {
	switch {
	case e.Kind == KindStatus:
		return fmt.Sprintf("provisioning failed: status %d: %s", e.StatusCode, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("provisioning failed (%s): %s: %v", e.Kind, e.Message, e.Err)
	default:
		return fmt.Sprintf("provisioning failed (%s): %s", e.Kind, e.Message)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Client talks to the provisioning service. It never retries.
type Client struct {
	HTTP *http.Client
}

func NewClient(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{HTTP: &http.Client{Timeout: timeout}}
}

// Resolve posts the device descriptor for cfg and builds the endpoint URL the
// sessions dial.
func (c *Client) Resolve(ctx context.Context, cfg config.TestConfiguration) (string, error) {
	body, err := json.Marshal(NewDeviceDescriptor(cfg.DeviceID))
	if err != nil {
		return "", &Error{Kind: KindMalformed, Message: "encoding device descriptor", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.ProvisioningURL, bytes.NewReader(body))
	if err != nil {
		return "", &Error{Kind: KindTransport, Message: "building request", Err: err}
	}
	req.Header.Set("Client-Id", cfg.ClientID)
	req.Header.Set("Device-Id", cfg.DeviceID)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return "", &Error{Kind: KindTransport, Message: "posting to " + cfg.ProvisioningURL, Err: err}
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", &Error{Kind: KindTransport, Message: "reading response", Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		return "", &Error{Kind: KindStatus, StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
	}
	if !gjson.ValidBytes(payload) {
		return "", &Error{Kind: KindMalformed, StatusCode: resp.StatusCode, Message: "response is not json"}
	}

	base := gjson.GetBytes(payload, "websocket.url").String()
	if base == "" {
		return "", &Error{Kind: KindMissingEndpoint, StatusCode: resp.StatusCode, Message: "websocket.url is empty", Err: ErrMissingEndpoint}
	}

	return Endpoint(base, cfg.DeviceID, cfg.ClientID), nil
}

// Endpoint appends the device identity query to base.
func Endpoint(base, deviceID, clientID string) string {
	return base + "?device-id=" + escape(deviceID) + "&client-id=" + clientID
}

// quoteSafe turns query escaping into path-safe quoting: spaces become %20,
// not +, and slashes stay literal.
var quoteSafe = strings.NewReplacer("+", "%20", "%2F", "/")

func escape(s string) string {
	return quoteSafe.Replace(url.QueryEscape(s))
}
