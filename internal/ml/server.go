package ml

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"time"

	"flow-anomaly/internal/features"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// maxRequestBytes caps one /predict body or /stream message.
const maxRequestBytes = 64 << 10

// ServerMetrics counts HTTP error responses by status code.
type ServerMetrics interface {
	HTTPErrorInc(code int)
}

// ServerConfig configures the model server.
type ServerConfig struct {
	Port           int
	RequestTimeout time.Duration
	// MetricsHandler serves /metrics; nil disables the route.
	MetricsHandler http.Handler
	Metrics        ServerMetrics
}

// ModelServer provides HTTP API for model predictions
type ModelServer struct {
	predictor *Predictor
	cfg       ServerConfig
	upgrader  websocket.Upgrader
	server    *http.Server
	started   time.Time
}

// FlowRequest is one flow in the serving schema. Every field is required.
type FlowRequest struct {
	Duration    *float64 `json:"duration"`
	Protocol    *int64   `json:"protocol"`
	SrcPort     *int64   `json:"src_port"`
	DstPort     *int64   `json:"dst_port"`
	PacketCount *int64   `json:"packet_count"`
	ByteCount   *int64   `json:"byte_count"`
}

// PredictionResponse represents the prediction result
type PredictionResponse struct {
	Prediction   int     `json:"prediction"`
	AnomalyScore float64 `json:"anomaly_score"`
}

// ErrorResponse is returned with every non-2xx status.
type ErrorResponse struct {
	Error     string `json:"error"`
	Stage     string `json:"stage,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// StreamMessage is one reply on /stream. Exactly one of Result and Error is set.
type StreamMessage struct {
	RequestID string              `json:"request_id"`
	Result    *PredictionResponse `json:"result,omitempty"`
	Error     *ErrorResponse      `json:"error,omitempty"`
}

// Record converts the request into a raw record in serving-schema order.
func (r FlowRequest) Record() (features.Record, error) {
	ints := []struct {
		name string
		v    *int64
	}{
		{"protocol", r.Protocol},
		{"src_port", r.SrcPort},
		{"dst_port", r.DstPort},
		{"packet_count", r.PacketCount},
		{"byte_count", r.ByteCount},
	}
	if r.Duration == nil {
		return nil, errors.New("missing field: duration")
	}
	rec := features.Record{{Name: "duration", Value: features.Num(*r.Duration)}}
	for _, f := range ints {
		if f.v == nil {
			return nil, fmt.Errorf("missing field: %s", f.name)
		}
		rec = append(rec, features.Field{Name: f.name, Value: features.Num(float64(*f.v))})
	}
	return rec, nil
}

// NewModelServer creates a new HTTP server for model serving
func NewModelServer(predictor *Predictor, cfg ServerConfig) *ModelServer {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 5 * time.Second
	}
	ms := &ModelServer{
		predictor: predictor,
		cfg:       cfg,
		upgrader:  websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
		started:   time.Now(),
	}

	ms.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      ms.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return ms
}

// Handler returns the routed handler.
func (ms *ModelServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", ms.handleRoot)
	mux.HandleFunc("/predict", ms.handlePredict)
	mux.HandleFunc("/stream", ms.handleStream)
	mux.HandleFunc("/health", ms.handleHealth)
	mux.HandleFunc("/model/info", ms.handleModelInfo)
	if ms.cfg.MetricsHandler != nil {
		mux.Handle("/metrics", ms.cfg.MetricsHandler)
	}
	return mux
}

// Start begins serving HTTP requests
func (ms *ModelServer) Start() error {
	log.Info().Str("addr", ms.server.Addr).Str("bundle", ms.predictor.Model().Key).Msg("starting model server")
	return ms.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (ms *ModelServer) Shutdown(ctx context.Context) error {
	return ms.server.Shutdown(ctx)
}

func (ms *ModelServer) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		ms.writeError(w, http.StatusNotFound, ErrorResponse{Error: "not found"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Anomaly Detection API is running."})
}

func (ms *ModelServer) handlePredict(w http.ResponseWriter, r *http.Request) {
	requestID := requestID(r)
	w.Header().Set("X-Request-ID", requestID)

	if r.Method != http.MethodPost {
		ms.writeError(w, http.StatusMethodNotAllowed, ErrorResponse{Error: "method not allowed", RequestID: requestID})
		return
	}

	var req FlowRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	if err := dec.Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			ms.writeError(w, http.StatusRequestEntityTooLarge, ErrorResponse{Error: fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit), RequestID: requestID})
			return
		}
		ms.writeError(w, http.StatusBadRequest, ErrorResponse{Error: fmt.Sprintf("invalid request: %v", err), RequestID: requestID})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), ms.cfg.RequestTimeout)
	defer cancel()

	resp, status, errResp := ms.predict(ctx, req)
	if errResp != nil {
		errResp.RequestID = requestID
		ms.writeError(w, status, *errResp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// predict maps a request to a response or to an error with its HTTP status.
func (ms *ModelServer) predict(ctx context.Context, req FlowRequest) (PredictionResponse, int, *ErrorResponse) {
	rec, err := req.Record()
	if err != nil {
		return PredictionResponse{}, http.StatusBadRequest, &ErrorResponse{Error: err.Error()}
	}

	pred, err := ms.predictor.Predict(ctx, rec)
	if err != nil {
		var perr *PredictionError
		switch {
		case errors.As(err, &perr) && perr.Stage == StageClassify:
			return PredictionResponse{}, http.StatusInternalServerError, &ErrorResponse{Error: err.Error(), Stage: perr.Stage}
		case errors.As(err, &perr):
			return PredictionResponse{}, http.StatusUnprocessableEntity, &ErrorResponse{Error: err.Error(), Stage: perr.Stage}
		case errors.Is(err, context.DeadlineExceeded):
			return PredictionResponse{}, http.StatusGatewayTimeout, &ErrorResponse{Error: err.Error()}
		default:
			return PredictionResponse{}, http.StatusInternalServerError, &ErrorResponse{Error: err.Error()}
		}
	}
	return PredictionResponse{
		Prediction:   pred.Label,
		AnomalyScore: math.Round(pred.Score*1e4) / 1e4,
	}, http.StatusOK, nil
}

// handleStream scores one flow per websocket text message until the client disconnects.
func (ms *ModelServer) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := ms.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	conn.SetReadLimit(maxRequestBytes)
	log.Debug().Str("remote", r.RemoteAddr).Msg("stream client connected")

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warn().Err(err).Msg("stream closed unexpectedly")
			}
			return
		}

		reply := StreamMessage{RequestID: uuid.NewString()}
		var req FlowRequest
		if err := json.Unmarshal(msg, &req); err != nil {
			reply.Error = &ErrorResponse{Error: fmt.Sprintf("invalid request: %v", err), RequestID: reply.RequestID}
			ms.countError(http.StatusBadRequest)
		} else {
			ctx, cancel := context.WithTimeout(r.Context(), ms.cfg.RequestTimeout)
			resp, status, errResp := ms.predict(ctx, req)
			cancel()
			if errResp != nil {
				errResp.RequestID = reply.RequestID
				reply.Error = errResp
				ms.countError(status)
			} else {
				reply.Result = &resp
			}
		}

		conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := conn.WriteJSON(reply); err != nil {
			log.Warn().Err(err).Msg("stream write failed")
			return
		}
	}
}

func (ms *ModelServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	m := ms.predictor.Model()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"bundle":         m.Key,
		"uptime_seconds": time.Since(ms.started).Seconds(),
	})
}

func (ms *ModelServer) handleModelInfo(w http.ResponseWriter, r *http.Request) {
	m := ms.predictor.Model()
	info := map[string]any{
		"bundle":         m.Key,
		"created_at":     m.CreatedAt,
		"format_version": m.Artifact.Version(),
		"classifier":     m.Classifier.Kind(),
		"schema":         m.Artifact.Schema(),
		"drop_columns":   m.Artifact.DropColumns(),
		"metrics":        m.Metrics,
	}
	if d := ms.predictor.drift; d != nil {
		info["drift_scores"] = d.Scores()
	}
	writeJSON(w, http.StatusOK, info)
}

func (ms *ModelServer) writeError(w http.ResponseWriter, status int, resp ErrorResponse) {
	ms.countError(status)
	writeJSON(w, status, resp)
}

func (ms *ModelServer) countError(status int) {
	if ms.cfg.Metrics != nil {
		ms.cfg.Metrics.HTTPErrorInc(status)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("failed to write response")
	}
}

func requestID(r *http.Request) string {
	if id := r.Header.Get("X-Request-ID"); id != "" {
		return id
	}
	return uuid.NewString()
}
