package ml

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"flow-anomaly/internal/features"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validFlow = `{"duration":0.1,"protocol":6,"src_port":40100,"dst_port":443,"packet_count":420,"byte_count":85000}`

func newTestServer(t *testing.T, m *Model) (*httptest.Server, *MockMetrics) {
	t.Helper()
	metrics := NewMockMetrics()
	ms := NewModelServer(NewPredictor(m, metrics, nil), ServerConfig{
		Metrics: metrics,
		MetricsHandler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("flow_predictions_total 0\n"))
		}),
	})
	srv := httptest.NewServer(ms.Handler())
	t.Cleanup(srv.Close)
	return srv, metrics
}

func postFlow(t *testing.T, url, body string) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := http.Post(url+"/predict", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp, out
}

func TestServer_Root(t *testing.T) {
	srv, _ := newTestServer(t, testModel(t))

	resp, err := http.Get(srv.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var out map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, "Anomaly Detection API is running.", out["message"])

	missing, err := http.Get(srv.URL + "/nope")
	require.NoError(t, err)
	missing.Body.Close()
	assert.Equal(t, http.StatusNotFound, missing.StatusCode)
}

func TestServer_Predict(t *testing.T) {
	m := testModel(t)
	srv, metrics := newTestServer(t, m)

	resp, out := postFlow(t, srv.URL, validFlow)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
	assert.Equal(t, float64(1), out["prediction"])

	want, err := PredictOne(flow(0.1, 6, 40100, 443, 420, 85000), m.Artifact, m.Classifier)
	require.NoError(t, err)
	score := out["anomaly_score"].(float64)
	assert.InDelta(t, want.Score, score, 5e-5)
	assert.Equal(t, score, float64(int64(score*1e4+0.5))/1e4, "score is rounded to four decimals")
	assert.Equal(t, 1, metrics.predictions)
}

func TestServer_PredictEchoesRequestID(t *testing.T) {
	srv, _ := newTestServer(t, testModel(t))

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/predict", strings.NewReader(validFlow))
	require.NoError(t, err)
	req.Header.Set("X-Request-ID", "abc-123")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "abc-123", resp.Header.Get("X-Request-ID"))
}

func TestServer_PredictBadRequests(t *testing.T) {
	srv, metrics := newTestServer(t, testModel(t))

	cases := []struct {
		name string
		body string
		want string
	}{
		{"invalid json", `{"duration":`, "invalid request"},
		{"wrong type", `{"duration":"fast"}`, "invalid request"},
		{"missing field", `{"duration":0.1,"protocol":6,"src_port":1,"dst_port":2,"packet_count":3}`, "byte_count"},
		{"missing duration", `{}`, "duration"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp, out := postFlow(t, srv.URL, tc.body)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.Contains(t, out["error"], tc.want)
			assert.Equal(t, resp.Header.Get("X-Request-ID"), out["request_id"])
		})
	}
	assert.Equal(t, len(cases), metrics.httpErrors[http.StatusBadRequest])
	assert.Equal(t, 0, metrics.predictions)
}

func TestServer_PredictBodyTooLarge(t *testing.T) {
	srv, metrics := newTestServer(t, testModel(t))

	body := `{"duration":0.1,"pad":"` + strings.Repeat("x", maxRequestBytes) + `"}`
	resp, out := postFlow(t, srv.URL, body)
	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
	assert.Contains(t, out["error"], "exceeds")
	assert.Equal(t, 1, metrics.httpErrors[http.StatusRequestEntityTooLarge])
	assert.Equal(t, 0, metrics.predictions)
}

func TestServer_PredictMethodNotAllowed(t *testing.T) {
	srv, _ := newTestServer(t, testModel(t))

	resp, err := http.Get(srv.URL + "/predict")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestServer_PipelineFailureIs422(t *testing.T) {
	// a model trained with a column the serving request never carries
	records, labels := trainingFlows()
	for i := range records {
		records[i] = append(records[i], features.Field{Name: "flag_count", Value: features.Num(float64(i % 3))})
	}
	srv, metrics := newTestServer(t, fitModel(t, records, labels))

	resp, out := postFlow(t, srv.URL, validFlow)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, features.StageAssemble, out["stage"])
	assert.Contains(t, out["error"], "flag_count")
	assert.Equal(t, 1, metrics.failures[features.StageAssemble])
}

func TestServer_ClassifierFailureIs500(t *testing.T) {
	m := testModel(t)
	m.Classifier = stubClassifier{label: 3, score: 0.2}
	srv, _ := newTestServer(t, m)

	resp, out := postFlow(t, srv.URL, validFlow)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, StageClassify, out["stage"])
}

func TestServer_HealthAndInfo(t *testing.T) {
	m := testModel(t)
	srv, _ := newTestServer(t, m)

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	var health map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	resp.Body.Close()
	assert.Equal(t, "ok", health["status"])
	assert.Equal(t, m.Key, health["bundle"])

	resp, err = http.Get(srv.URL + "/model/info")
	require.NoError(t, err)
	var info map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&info))
	resp.Body.Close()
	assert.Equal(t, m.Key, info["bundle"])
	assert.Equal(t, KindLogistic, info["classifier"])
	assert.Equal(t, float64(features.FormatVersion), info["format_version"])
	assert.Contains(t, info, "schema")
	assert.Contains(t, info, "metrics")
}

func TestServer_Metrics(t *testing.T) {
	srv, _ := newTestServer(t, testModel(t))

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestServer_Stream(t *testing.T) {
	m := testModel(t)
	srv, _ := newTestServer(t, m)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/stream", nil)
	require.NoError(t, err)
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(validFlow)))
	var ok StreamMessage
	require.NoError(t, conn.ReadJSON(&ok))
	require.NotNil(t, ok.Result)
	assert.Nil(t, ok.Error)
	assert.NotEmpty(t, ok.RequestID)
	assert.Equal(t, 1, ok.Result.Prediction)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"duration":1}`)))
	var bad StreamMessage
	require.NoError(t, conn.ReadJSON(&bad))
	assert.Nil(t, bad.Result)
	require.NotNil(t, bad.Error)
	assert.Contains(t, bad.Error.Error, "protocol")

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`not json`)))
	var invalid StreamMessage
	require.NoError(t, conn.ReadJSON(&invalid))
	require.NotNil(t, invalid.Error)
	assert.NotEqual(t, bad.RequestID, invalid.RequestID)
}

func TestFlowRequest_Record(t *testing.T) {
	var req FlowRequest
	require.NoError(t, json.Unmarshal([]byte(validFlow), &req))

	rec, err := req.Record()
	require.NoError(t, err)
	assert.Equal(t, []string{"duration", "protocol", "src_port", "dst_port", "packet_count", "byte_count"}, rec.Names())

	v, ok := rec.Get("byte_count")
	require.True(t, ok)
	assert.Equal(t, features.Num(85000), v)
}
