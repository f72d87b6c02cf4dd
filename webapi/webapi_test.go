package webapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/nguyennn/account-svc/webapi/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func do(t *testing.T, app *fiber.App, path string) (*http.Response, []byte) {
	t.Helper()
	resp, err := app.Test(httptest.NewRequest(http.MethodGet, path, nil), -1)
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	_ = resp.Body.Close()
	return resp, body
}

func TestHealthz(t *testing.T) {
	app := SetupApp(Deps{AccessLog: io.Discard})
	resp, body := do(t, app, "/healthz")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"ok"}`, string(body))
}

func TestReadyz(t *testing.T) {
	t.Run("ready", func(t *testing.T) {
		app := SetupApp(Deps{AccessLog: io.Discard, Ready: func(context.Context) error { return nil }})
		resp, _ := do(t, app, "/readyz")
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("not ready", func(t *testing.T) {
		app := SetupApp(Deps{AccessLog: io.Discard, Ready: func(context.Context) error {
			return errors.New("database ping failed")
		}})
		resp, body := do(t, app, "/readyz")
		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
		assert.Equal(t, "application/problem+json", resp.Header.Get(fiber.HeaderContentType))

		var pd common.ProblemDetails
		require.NoError(t, json.Unmarshal(body, &pd))
		assert.Equal(t, http.StatusServiceUnavailable, pd.Status)
		assert.Equal(t, "database ping failed", pd.Detail)
		assert.Equal(t, "/readyz", pd.Instance)
	})
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "webapi_test_total", Help: "test"})
	reg.MustRegister(counter)
	counter.Add(2)

	app := SetupApp(Deps{AccessLog: io.Discard, Gatherer: reg})
	resp, body := do(t, app, "/metrics")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "webapi_test_total 2")
}

func TestUnknownRouteIsProblemJSON(t *testing.T) {
	app := SetupApp(Deps{AccessLog: io.Discard})
	resp, body := do(t, app, "/nope")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	var pd common.ProblemDetails
	require.NoError(t, json.Unmarshal(body, &pd))
	assert.Equal(t, http.StatusNotFound, pd.Status)
}

func TestPanicIsRecovered(t *testing.T) {
	app := SetupApp(Deps{AccessLog: io.Discard})
	app.Get("/boom", func(*fiber.Ctx) error { panic("boom") })
	resp, body := do(t, app, "/boom")
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)

	var pd common.ProblemDetails
	require.NoError(t, json.Unmarshal(body, &pd))
	assert.Equal(t, "Internal Server Error", pd.Title)
	assert.Equal(t, "INTERNAL_ERROR", pd.Code)
}
