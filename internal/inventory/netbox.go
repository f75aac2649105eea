package inventory

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Error classes for inventory calls. The resolver maps every one of
// these to "log and degrade"; they exist so the boundary is explicit
// about what went wrong, not to change the policy.
var (
	// ErrConnectivity: the inventory system is unreachable or returned
	// a server-side failure.
	ErrConnectivity = errors.New("inventory unreachable")

	// ErrDecode: the inventory system answered with a body we could not
	// decode.
	ErrDecode = errors.New("inventory response malformed")

	// ErrNotFound: the requested object does not exist.
	ErrNotFound = errors.New("inventory object not found")
)

const defaultTimeout = 30 * time.Second

// api is the low-level REST transport: token auth, pagination, JSON
// decoding. Higher-level fact resolution lives in Client.
type api struct {
	baseURL string
	token   string
	client  *http.Client
}

func newAPI(baseURL, token string, ignoreSSLErrors bool, timeout time.Duration) *api {
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	transport := http.DefaultTransport
	if ignoreSSLErrors {
		transport = &http.Transport{
			TLSClientConfig: &tls.Config{
				MinVersion:         tls.VersionTLS12,
				InsecureSkipVerify: true,
			},
		}
	}

	return &api{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  &http.Client{Timeout: timeout, Transport: transport},
	}
}

// listEnvelope is the inventory's paginated list response
type listEnvelope struct {
	Count    int             `json:"count"`
	Next     *string         `json:"next"`
	Previous *string         `json:"previous"`
	Results  json.RawMessage `json:"results"`
}

// getList fetches every page of a list endpoint and appends the decoded
// results into out, which must be a pointer to a slice.
func (a *api) getList(ctx context.Context, path string, params url.Values, out any) error {
	next := a.baseURL + path
	if len(params) > 0 {
		next += "?" + params.Encode()
	}

	// Results accumulate as raw pages, then decode in one pass so out
	// only needs a single append target.
	var pages []json.RawMessage

	for next != "" {
		env, err := a.getPage(ctx, next)
		if err != nil {
			return err
		}
		pages = append(pages, env.Results)
		if env.Next != nil {
			next = *env.Next
		} else {
			next = ""
		}
	}

	merged, err := mergePages(pages)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if err := json.Unmarshal(merged, out); err != nil {
		return fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return nil
}

func (a *api) getPage(ctx context.Context, rawURL string) (*listEnvelope, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if a.token != "" {
		req.Header.Set("Authorization", "Token "+a.token)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnectivity, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", ErrNotFound, rawURL)
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: %s returned %d: %s", ErrConnectivity, rawURL, resp.StatusCode, string(body))
	}

	var env listEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return &env, nil
}

// mergePages concatenates JSON arrays from successive pages into one
func mergePages(pages []json.RawMessage) (json.RawMessage, error) {
	if len(pages) == 1 {
		return pages[0], nil
	}

	var merged []json.RawMessage
	for _, page := range pages {
		var items []json.RawMessage
		if err := json.Unmarshal(page, &items); err != nil {
			return nil, err
		}
		merged = append(merged, items...)
	}
	return json.Marshal(merged)
}

func (a *api) listDevices(ctx context.Context, params url.Values) ([]Device, error) {
	var devices []Device
	if err := a.getList(ctx, "/api/dcim/devices/", params, &devices); err != nil {
		return nil, err
	}
	return devices, nil
}

func (a *api) listInterfaces(ctx context.Context, params url.Values) ([]Interface, error) {
	var interfaces []Interface
	if err := a.getList(ctx, "/api/dcim/interfaces/", params, &interfaces); err != nil {
		return nil, err
	}
	return interfaces, nil
}

func (a *api) listIPAddresses(ctx context.Context, params url.Values) ([]IPAddress, error) {
	var addresses []IPAddress
	if err := a.getList(ctx, "/api/ipam/ip-addresses/", params, &addresses); err != nil {
		return nil, err
	}
	return addresses, nil
}
