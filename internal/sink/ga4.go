package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ajsharma/form_tail/internal/events"
)

// GA4 Measurement Protocol endpoints.
const (
	GA4Endpoint      = "https://www.google-analytics.com/mp/collect"
	GA4DebugEndpoint = "https://www.google-analytics.com/debug/mp/collect"
)

// GA4Config configures the Measurement Protocol sink.
type GA4Config struct {
	MeasurementID string
	APISecret     string
	// Debug sends to the validation endpoint and logs its findings.
	Debug bool
	// Endpoint overrides the collection URL.
	Endpoint string
	// ClientID identifies this browser instance. A random one is used when empty.
	ClientID string
	Client   *http.Client
}

// GA4 sends events to a GA4 property via the Measurement Protocol.
type GA4 struct {
	endpoint string
	clientID string
	debug    bool
	client   *http.Client
	logger   *zap.Logger
}

type ga4Event struct {
	Name   string                 `json:"name"`
	Params map[string]interface{} `json:"params,omitempty"`
}

type ga4Payload struct {
	ClientID        string     `json:"client_id"`
	TimestampMicros int64      `json:"timestamp_micros,omitempty"`
	Events          []ga4Event `json:"events"`
}

type ga4ValidationResponse struct {
	ValidationMessages []struct {
		FieldPath      string `json:"fieldPath"`
		Description    string `json:"description"`
		ValidationCode string `json:"validationCode"`
	} `json:"validationMessages"`
}

// NewGA4 builds a GA4 sink. MeasurementID and APISecret are required.
func NewGA4(cfg GA4Config, logger *zap.Logger) (*GA4, error) {
	if cfg.MeasurementID == "" || cfg.APISecret == "" {
		return nil, fmt.Errorf("ga4: measurement id and api secret are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = GA4Endpoint
		if cfg.Debug {
			endpoint = GA4DebugEndpoint
		}
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("ga4: invalid endpoint: %w", err)
	}
	q := u.Query()
	q.Set("measurement_id", cfg.MeasurementID)
	q.Set("api_secret", cfg.APISecret)
	u.RawQuery = q.Encode()

	clientID := cfg.ClientID
	if clientID == "" {
		clientID = uuid.New().String()
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}

	return &GA4{
		endpoint: u.String(),
		clientID: clientID,
		debug:    cfg.Debug,
		client:   client,
		logger:   logger.Named("ga4"),
	}, nil
}

// ClientID returns the client id sent with every event.
func (g *GA4) ClientID() string {
	return g.clientID
}

// Send posts one event.
func (g *GA4) Send(ctx context.Context, ev *events.Event) error {
	params := make(map[string]interface{}, len(ev.Params)+1)
	for k, v := range ev.Params {
		params[k] = v
	}
	if g.debug {
		params["debug_mode"] = true
	}

	payload := ga4Payload{
		ClientID: g.clientID,
		Events:   []ga4Event{{Name: ev.Name, Params: params}},
	}
	if !ev.Timestamp.IsZero() {
		payload.TimestampMicros = ev.Timestamp.UnixMicro()
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("ga4: encode %s: %w", ev.Name, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("ga4: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("ga4: send %s: %w", ev.Name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("ga4: send %s: unexpected status %d", ev.Name, resp.StatusCode)
	}

	if g.debug {
		g.logValidation(ev.Name, resp.Body)
	}
	return nil
}

func (g *GA4) logValidation(name string, body io.Reader) {
	var vr ga4ValidationResponse
	if err := json.NewDecoder(body).Decode(&vr); err != nil {
		g.logger.Debug("validation response unreadable", zap.String("event", name), zap.Error(err))
		return
	}
	for _, m := range vr.ValidationMessages {
		g.logger.Warn("validation message",
			zap.String("event", name),
			zap.String("field", m.FieldPath),
			zap.String("code", m.ValidationCode),
			zap.String("description", m.Description))
	}
}

// Close releases idle connections.
func (g *GA4) Close() error {
	g.client.CloseIdleConnections()
	return nil
}
