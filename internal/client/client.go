// Package client talks to a running flow scoring service over REST and websocket.
package client

import (
	"context"
	"fmt"
	"strings"
	"time"

	"flow-anomaly/internal/features"
	"flow-anomaly/internal/ml"

	"github.com/go-resty/resty/v2"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

type Client struct {
	base string
	rest *resty.Client
}

// APIError is a non-2xx reply from the service.
type APIError struct {
	Status    int
	Message   string
	Stage     string
	RequestID string
}

func (e *APIError) Error() string {
	if e.Stage != "" {
		return fmt.Sprintf("service: %d at %s: %s", e.Status, e.Stage, e.Message)
	}
	return fmt.Sprintf("service: %d %s", e.Status, e.Message)
}

func NewREST(base string, timeout time.Duration) *Client {
	r := resty.New()
	if timeout > 0 {
		r.SetTimeout(timeout)
	} else {
		r.SetTimeout(5 * time.Second)
	}
	r.SetHeader("Content-Type", "application/json")
	return &Client{base: strings.TrimRight(base, "/"), rest: r}
}

// Predict scores one flow.
func (c *Client) Predict(ctx context.Context, req ml.FlowRequest) (ml.PredictionResponse, error) {
	result := &ml.PredictionResponse{}
	apiErr := &ml.ErrorResponse{}
	resp, err := c.rest.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(result).
		SetError(apiErr).
		Post(c.base + "/predict")
	if err != nil {
		return ml.PredictionResponse{}, err
	}
	if resp.IsError() {
		requestID := apiErr.RequestID
		if requestID == "" {
			requestID = resp.Header().Get("X-Request-ID")
		}
		return ml.PredictionResponse{}, &APIError{
			Status:    resp.StatusCode(),
			Message:   apiErr.Error,
			Stage:     apiErr.Stage,
			RequestID: requestID,
		}
	}
	return *result, nil
}

// Health returns nil when the service reports itself healthy.
func (c *Client) Health(ctx context.Context) error {
	resp, err := c.rest.R().SetContext(ctx).Get(c.base + "/health")
	if err != nil {
		return err
	}
	if resp.IsError() {
		return &APIError{Status: resp.StatusCode(), Message: resp.String()}
	}
	return nil
}

// Stream sends every request over one websocket connection and returns the replies in order.
// A reply carrying an error does not stop the stream.
func (c *Client) Stream(ctx context.Context, reqs []ml.FlowRequest) ([]ml.StreamMessage, error) {
	url := "ws" + strings.TrimPrefix(c.base, "http") + "/stream"
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial failed: %w", err)
	}
	defer func() {
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		conn.Close()
		log.Debug().Msg("stream connection closed")
	}()

	conn.SetReadLimit(64 * 1024)
	out := make([]ml.StreamMessage, 0, len(reqs))
	for i, req := range reqs {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := conn.WriteJSON(req); err != nil {
			return out, fmt.Errorf("row %d: write failed: %w", i, err)
		}
		conn.SetReadDeadline(time.Now().Add(30 * time.Second))
		var msg ml.StreamMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return out, fmt.Errorf("row %d: read failed: %w", i, err)
		}
		out = append(out, msg)
	}
	return out, nil
}

// RequestFromRecord maps a serving-schema record onto a request. Column names are matched
// after canonicalization; every field must be a number.
func RequestFromRecord(rec features.Record) (ml.FlowRequest, error) {
	values := make(map[string]float64, len(rec))
	for _, f := range rec {
		if f.Value.Kind != features.Number {
			continue
		}
		values[features.CanonicalName(f.Name)] = f.Value.Num
	}

	num := func(name string) (float64, error) {
		v, ok := values[name]
		if !ok {
			return 0, fmt.Errorf("missing numeric column %q", name)
		}
		return v, nil
	}
	integer := func(name string) (*int64, error) {
		v, err := num(name)
		if err != nil {
			return nil, err
		}
		i := int64(v)
		if float64(i) != v {
			return nil, fmt.Errorf("column %q: %v is not an integer", name, v)
		}
		return &i, nil
	}

	var req ml.FlowRequest
	d, err := num("duration")
	if err != nil {
		return req, err
	}
	req.Duration = &d
	for _, field := range []struct {
		name string
		dst  **int64
	}{
		{"protocol", &req.Protocol},
		{"src_port", &req.SrcPort},
		{"dst_port", &req.DstPort},
		{"packet_count", &req.PacketCount},
		{"byte_count", &req.ByteCount},
	} {
		v, err := integer(field.name)
		if err != nil {
			return ml.FlowRequest{}, err
		}
		*field.dst = v
	}
	return req, nil
}
