package gateway

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"tipbot/pkg/bus"
)

func doRequest(t *testing.T, h http.Handler, method string, target string, body string, token string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestStatusRoutes(t *testing.T) {
	t.Parallel()

	svc := newTestService(t, &stubExecutor{})
	h := svc.routes()

	rec := doRequest(t, h, http.MethodGet, "/healthz", "", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var status statusResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&status))
	require.Equal(t, "ok", status.Status)

	require.Equal(t, http.StatusOK, doRequest(t, h, http.MethodGet, "/_matrix/mau/live", "", "").Code)
	require.Equal(t, http.StatusServiceUnavailable, doRequest(t, h, http.MethodGet, "/_matrix/mau/ready", "", "").Code)

	svc.setChannelState("test", channelState{Running: true})
	svc.walletLastOKAt = time.Now()
	require.Equal(t, http.StatusOK, doRequest(t, h, http.MethodGet, "/readyz", "", "").Code)
}

func TestTransactionsRequireToken(t *testing.T) {
	t.Parallel()

	svc := newTestService(t, &stubExecutor{})
	h := svc.routes()
	const path = "/_matrix/app/v1/transactions/1"

	require.Equal(t, http.StatusNotFound, doRequest(t, h, http.MethodPut, path, `{"events":[]}`, "secret").Code)

	svc.cfg.Gateway.HSToken = "secret"
	require.Equal(t, http.StatusUnauthorized, doRequest(t, h, http.MethodPut, path, `{"events":[]}`, "").Code)
	require.Equal(t, http.StatusForbidden, doRequest(t, h, http.MethodPut, path, `{"events":[]}`, "wrong").Code)
	require.Equal(t, http.StatusOK, doRequest(t, h, http.MethodPut, path+"?access_token=secret", `{"events":[]}`, "").Code)
}

func TestTransactionsAreProcessedOnce(t *testing.T) {
	t.Parallel()

	svc := newTestService(t, &stubExecutor{})
	svc.cfg.Gateway.HSToken = "secret"
	h := svc.routes()

	events, unsubscribe := svc.deps.Bus.SubscribeEvents(t.Context(), 8)
	defer unsubscribe()

	body := `{"events":[{"type":"m.room.message"},{"type":"m.room.member"}]}`
	require.Equal(t, http.StatusOK, doRequest(t, h, http.MethodPut, "/_matrix/app/v1/transactions/abc", body, "secret").Code)
	require.Equal(t, http.StatusOK, doRequest(t, h, http.MethodPut, "/_matrix/app/v1/transactions/abc", body, "secret").Code)
	require.True(t, svc.deps.Transactions.IsProcessed("abc"))

	select {
	case event := <-events:
		require.Equal(t, bus.EventTransaction, event.Type)
		require.Equal(t, "2", event.Payload["events"])
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for transaction event")
	}

	select {
	case event := <-events:
		t.Fatalf("duplicate transaction published %v", event)
	case <-time.After(50 * time.Millisecond):
	}

	rec := doRequest(t, h, http.MethodPut, "/_matrix/app/v1/transactions/bad", "not json", "secret")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.False(t, svc.deps.Transactions.IsProcessed("bad"))
}

// slowBody holds each request at the decode step until release is closed.
type slowBody struct {
	release <-chan struct{}
	reader  *strings.Reader
}

func (b *slowBody) Read(p []byte) (int, error) {
	<-b.release
	return b.reader.Read(p)
}

func TestConcurrentRedeliveryIsProcessedOnce(t *testing.T) {
	t.Parallel()

	svc := newTestService(t, &stubExecutor{})
	svc.cfg.Gateway.HSToken = "secret"
	h := svc.routes()

	events, unsubscribe := svc.deps.Bus.SubscribeEvents(t.Context(), 16)
	defer unsubscribe()

	const deliveries = 8
	release := make(chan struct{})
	var wg sync.WaitGroup
	codes := make([]int, deliveries)
	for i := range deliveries {
		wg.Add(1)
		go func() {
			defer wg.Done()
			body := &slowBody{release: release, reader: strings.NewReader(`{"events":[{"type":"m.room.message"}]}`)}
			req := httptest.NewRequest(http.MethodPut, "/_matrix/app/v1/transactions/dup", body)
			req.Header.Set("Authorization", "Bearer secret")
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			codes[i] = rec.Code
		}()
	}
	close(release)
	wg.Wait()

	for _, code := range codes {
		require.Equal(t, http.StatusOK, code)
	}

	published := 0
	for done := false; !done; {
		select {
		case event := <-events:
			require.Equal(t, bus.EventTransaction, event.Type)
			published++
		case <-time.After(100 * time.Millisecond):
			done = true
		}
	}
	require.Equal(t, 1, published)
}
