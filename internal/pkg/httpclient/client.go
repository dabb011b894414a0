// internal/pkg/httpclient/client.go
package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"bazaar/internal/pkg/nacos"
	"bazaar/internal/pkg/signature"
)

// Resolver maps a logical service name to a base URL.
type Resolver interface {
	Resolve(serviceName string) (string, error)
}

// NacosResolver discovers instances through Nacos. An environment variable
// like INVENTORY_SERVICE_URL overrides discovery for local runs.
type NacosResolver struct {
	Nacos *nacos.Client
}

func (r *NacosResolver) Resolve(serviceName string) (string, error) {
	envKey := strings.ToUpper(strings.ReplaceAll(serviceName, "-", "_")) + "_URL"
	if v := os.Getenv(envKey); v != "" {
		return strings.TrimSuffix(v, "/"), nil
	}
	ip, port, err := r.Nacos.DiscoverServiceInstance(serviceName)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("http://%s:%d", ip, port), nil
}

// StatusError is returned when a downstream service answers with a non-2xx
// status. Payload holds the raw error envelope so callers can surface it
// verbatim.
type StatusError struct {
	StatusCode int
	ErrorCode  string
	Payload    json.RawMessage
}

func (e *StatusError) Error() string {
	if e.ErrorCode != "" {
		return fmt.Sprintf("downstream returned %d (%s)", e.StatusCode, e.ErrorCode)
	}
	return fmt.Sprintf("downstream returned %d", e.StatusCode)
}

// Client is a traced, signing JSON client for internal service-to-service
// calls. Timeouts are driven entirely by the caller's context.
type Client struct {
	Tracer     trace.Tracer
	HTTPClient *http.Client

	resolver Resolver
	signer   *signature.Signer
}

// NewClient creates a client. signer may be nil for unsigned calls (e.g. the
// external payment provider, which authenticates with its own scheme).
func NewClient(tracer trace.Tracer, resolver Resolver, signer *signature.Signer) *Client {
	httpClient := &http.Client{
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 100,
		},
	}
	return &Client{
		Tracer:     tracer,
		HTTPClient: httpClient,
		resolver:   resolver,
		signer:     signer,
	}
}

// CallService POSTs a JSON body to path on the named service and decodes the
// 2xx response into out (when out is non-nil). Non-2xx responses become a
// *StatusError carrying the raw error envelope.
func (c *Client) CallService(ctx context.Context, serviceName, path string, body interface{}, out interface{}) error {
	base, err := c.resolver.Resolve(serviceName)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", serviceName, err)
	}

	ctx, span := c.Tracer.Start(ctx, "call-"+serviceName, trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	var payload []byte
	if body != nil {
		payload, err = json.Marshal(body)
		if err != nil {
			span.RecordError(err)
			return err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+path, bytes.NewReader(payload))
	if err != nil {
		span.RecordError(err)
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	span.SetAttributes(
		attribute.String("http.url", base+path),
		attribute.String("http.method", http.MethodPost),
		attribute.String("peer.service", serviceName),
	)
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))
	if c.signer != nil {
		c.signer.SignRequest(req, payload)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		span.RecordError(err)
		return err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		statusErr := &StatusError{StatusCode: resp.StatusCode, Payload: respBody}
		var envelope struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(respBody, &envelope) == nil {
			statusErr.ErrorCode = envelope.Error
		}
		span.RecordError(statusErr)
		span.SetStatus(codes.Error, statusErr.Error())
		return statusErr
	}

	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			span.RecordError(err)
			return fmt.Errorf("decode %s%s response: %w", serviceName, path, err)
		}
	}
	return nil
}
