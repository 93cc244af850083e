package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPushSendsDeliveryCounters(t *testing.T) {
	var (
		method string
		path   string
		body   string
	)
	gw := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method = r.Method
		path = r.URL.Path
		b, _ := io.ReadAll(r.Body)
		body = string(b)
		w.WriteHeader(http.StatusOK)
	}))
	defer gw.Close()

	reg := prometheus.NewRegistry()
	set, err := New(reg)
	require.NoError(t, err)
	set.Delivery.Outcome("PING", "delivered")

	require.NoError(t, Push(context.Background(), gw.URL, "courier_send", reg))

	assert.Equal(t, http.MethodPut, method)
	assert.True(t, strings.HasPrefix(path, "/metrics/job/courier_send"), "path = %s", path)
	assert.NotEmpty(t, body)
}

func TestPushReportsGatewayError(t *testing.T) {
	gw := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer gw.Close()

	reg := prometheus.NewRegistry()
	_, err := New(reg)
	require.NoError(t, err)

	err = Push(context.Background(), gw.URL, "courier_send", reg)
	assert.ErrorContains(t, err, gw.URL)
}
