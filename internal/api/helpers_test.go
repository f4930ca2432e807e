package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/stratforge/internal/strategy"
	"github.com/ajitpratap0/stratforge/internal/variables"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestServer(t *testing.T, config Config) *Server {
	t.Helper()
	s := NewServer(config)
	gin.SetMode(gin.TestMode)
	t.Cleanup(func() { _ = s.Stop(context.Background()) })
	return s
}

func doJSON(t *testing.T, h http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(context.Background(), method, path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

// decodeInto unmarshals one field of the response envelope
func decodeInto(t *testing.T, w *httptest.ResponseRecorder, field string, dst interface{}) {
	t.Helper()
	var envelope map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope), w.Body.String())
	raw, ok := envelope[field]
	require.True(t, ok, "response has no %q field: %s", field, w.Body.String())
	require.NoError(t, json.Unmarshal(raw, dst))
}

// sweepStrategy binds the entry RSI period to Period (10..20 step 5) and the
// stop loss to Stop (1..2 step 1)
func sweepStrategy(t *testing.T) *strategy.Strategy {
	t.Helper()

	s := strategy.NewDefaultStrategy("Sweep")
	period := variables.Variable{
		ID: "var_1", Name: "Period", CurrentValue: 14, Enabled: true,
		Range: &variables.Range{Min: 10, Max: 20, Step: 5},
	}
	stop := variables.Variable{
		ID: "var_2", Name: "Stop", CurrentValue: 2, Enabled: true,
		Range: &variables.Range{Min: 1, Max: 2, Step: 1},
	}
	s.Variables = []variables.Variable{period, stop}
	require.NoError(t, s.EntryRules.Conditions[0].Left.SetParameter("period", variables.RefTo(period), s.Lookup()))
	s.Risk.StopLoss.Value = variables.RefTo(stop)
	return s
}
