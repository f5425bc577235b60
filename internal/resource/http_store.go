package resource

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/nghyane/query-gateway/internal/json"
	log "github.com/nghyane/query-gateway/internal/logging"
	"github.com/nghyane/query-gateway/internal/resilience"
	"github.com/sony/gobreaker"
	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"
)

const (
	contentTypeJSON       = "application/json"
	contentTypeMergePatch = "application/merge-patch+json"
	maxErrorBody          = 4 << 10
)

// HTTPStoreConfig configures an HTTPStore.
type HTTPStoreConfig struct {
	BaseURL  string
	Group    string
	Version  string
	Token    string
	Timeout  time.Duration
	ProxyURL string
	// RateLimit is requests per second; 0 disables limiting.
	RateLimit float64
	Burst     int
}

// HTTPStore talks to a Kubernetes-style REST API:
// {base}/apis/{group}/{version}/namespaces/{ns}/{kind}[/{name}].
type HTTPStore struct {
	base    string
	token   string
	client  *http.Client
	breaker *resilience.CircuitBreaker
	limiter *rate.Limiter
}

func NewHTTPStore(cfg HTTPStoreConfig) (*HTTPStore, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("resource store: base url is required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("resource store: invalid base url: %w", err)
	}
	client, err := resilience.NewHTTPClient(cfg.ProxyURL, cfg.Timeout)
	if err != nil {
		return nil, fmt.Errorf("resource store: %w", err)
	}

	breakerCfg := resilience.DefaultBreakerConfig("resource-store")
	breakerCfg.IsSuccessful = func(err error) bool { return err == nil || IsCallerError(err) }
	breakerCfg.OnStateChange = func(name string, from, to gobreaker.State) {
		log.Warnf("%s: circuit breaker %s -> %s", name, from, to)
	}

	s := &HTTPStore{
		base:    fmt.Sprintf("%s/apis/%s/%s", strings.TrimRight(cfg.BaseURL, "/"), cfg.Group, cfg.Version),
		token:   cfg.Token,
		client:  client,
		breaker: resilience.NewCircuitBreaker(breakerCfg),
	}
	if cfg.RateLimit > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = int(cfg.RateLimit) + 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	return s, nil
}

func (s *HTTPStore) collectionURL(kind Kind, namespace string) string {
	return fmt.Sprintf("%s/namespaces/%s/%s", s.base, url.PathEscape(namespace), kind)
}

func (s *HTTPStore) objectURL(kind Kind, namespace, name string) string {
	return s.collectionURL(kind, namespace) + "/" + url.PathEscape(name)
}

func (s *HTTPStore) Get(ctx context.Context, kind Kind, namespace, name string) (*Object, error) {
	body, err := s.do(ctx, http.MethodGet, s.objectURL(kind, namespace, name), "", nil)
	if err != nil {
		return nil, err
	}
	return decodeObject(body)
}

func (s *HTTPStore) List(ctx context.Context, kind Kind, namespace string) ([]Object, error) {
	body, err := s.do(ctx, http.MethodGet, s.collectionURL(kind, namespace), "", nil)
	if err != nil {
		return nil, err
	}
	var list struct {
		Items []Object `json:"items"`
	}
	if err := json.Unmarshal(body, &list); err != nil {
		return nil, fmt.Errorf("decode %s list: %w", kind, err)
	}
	if list.Items == nil {
		list.Items = []Object{}
	}
	return list.Items, nil
}

func (s *HTTPStore) Create(ctx context.Context, kind Kind, namespace string, obj *Object) (*Object, error) {
	payload, err := json.Marshal(obj)
	if err != nil {
		return nil, err
	}
	body, err := s.do(ctx, http.MethodPost, s.collectionURL(kind, namespace), contentTypeJSON, payload)
	if err != nil {
		return nil, err
	}
	return decodeObject(body)
}

func (s *HTTPStore) Update(ctx context.Context, kind Kind, namespace string, obj *Object) (*Object, error) {
	payload, err := json.Marshal(obj)
	if err != nil {
		return nil, err
	}
	body, err := s.do(ctx, http.MethodPut, s.objectURL(kind, namespace, obj.Metadata.Name), contentTypeJSON, payload)
	if err != nil {
		return nil, err
	}
	return decodeObject(body)
}

func (s *HTTPStore) Patch(ctx context.Context, kind Kind, namespace, name string, patch []byte) (*Object, error) {
	body, err := s.do(ctx, http.MethodPatch, s.objectURL(kind, namespace, name), contentTypeMergePatch, patch)
	if err != nil {
		return nil, err
	}
	return decodeObject(body)
}

func (s *HTTPStore) Delete(ctx context.Context, kind Kind, namespace, name string) error {
	_, err := s.do(ctx, http.MethodDelete, s.objectURL(kind, namespace, name), "", nil)
	return err
}

func (s *HTTPStore) do(ctx context.Context, method, target, contentType string, payload []byte) ([]byte, error) {
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	return resilience.Execute(s.breaker, func() ([]byte, error) {
		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, target, reader)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", contentTypeJSON)
		req.Header.Set("Accept-Encoding", "gzip, br, zstd")
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}
		if s.token != "" {
			req.Header.Set("Authorization", "Bearer "+s.token)
		}

		resp, err := s.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("%s %s: %w", method, target, err)
		}
		defer resp.Body.Close()

		body, err := readBody(resp)
		if err != nil {
			return nil, fmt.Errorf("%s %s: read body: %w", method, target, err)
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, statusError(resp.StatusCode, body)
		}
		return body, nil
	})
}

// readBody decodes the response according to Content-Encoding.
func readBody(resp *http.Response) ([]byte, error) {
	var r io.Reader = resp.Body
	switch strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding"))) {
	case "", "identity":
	case "gzip":
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, err
		}
		defer gz.Close()
		r = gz
	case "br":
		r = brotli.NewReader(resp.Body)
	case "zstd":
		zr, err := zstd.NewReader(resp.Body)
		if err != nil {
			return nil, err
		}
		defer zr.Close()
		r = zr
	default:
		return nil, fmt.Errorf("unsupported content encoding %q", resp.Header.Get("Content-Encoding"))
	}
	return io.ReadAll(r)
}

// statusError extracts the message of a Kubernetes Status body when present.
func statusError(code int, body []byte) error {
	msg := gjson.GetBytes(body, "message").String()
	if msg == "" {
		msg = strings.TrimSpace(string(body))
		if len(msg) > maxErrorBody {
			msg = msg[:maxErrorBody]
		}
	}
	return &StatusError{Code: code, Message: msg}
}

func decodeObject(body []byte) (*Object, error) {
	var obj Object
	if err := json.Unmarshal(body, &obj); err != nil {
		return nil, fmt.Errorf("decode resource: %w", err)
	}
	return &obj, nil
}
