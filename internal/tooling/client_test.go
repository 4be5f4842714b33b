package tooling

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/flowlens/pkg/schema"
)

const flowRecord = `{"Id":"3015e000000AbCdAAK","Metadata":{"label":"Router","startElementReference":"A"}}`

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := New(Config{Instance: srv.URL, SessionID: "00Dxx!session", Retry: &RetryPolicy{}})
	require.NoError(t, err)
	return c
}

func TestFetchFlow(t *testing.T) {
	var gotPath, gotAuth string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(flowRecord))
	})

	body, err := c.FetchFlow(context.Background(), "3015e000000AbCdAAK")
	require.NoError(t, err)
	assert.JSONEq(t, flowRecord, string(body))
	assert.Equal(t, "/services/data/v42.0/tooling/sobjects/Flow/3015e000000AbCdAAK", gotPath)
	assert.Equal(t, "Bearer 00Dxx!session", gotAuth)
}

func TestFetchFlow_Errors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		code    string
		message string
	}{
		{"not found", http.StatusNotFound, `[{"message":"The requested resource does not exist","errorCode":"NOT_FOUND"}]`, schema.ErrCodeNotFound, "NOT_FOUND: The requested resource does not exist"},
		{"expired session", http.StatusUnauthorized, `[{"message":"Session expired or invalid","errorCode":"INVALID_SESSION_ID"}]`, schema.ErrCodeFetch, "INVALID_SESSION_ID: Session expired or invalid"},
		{"plain failure", http.StatusBadGateway, `upstream down`, schema.ErrCodeFetch, "502 Bad Gateway"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			_, err := c.FetchFlow(context.Background(), "301000000000001")
			require.Error(t, err)
			assert.True(t, schema.IsCode(err, tt.code), err.Error())
			assert.Contains(t, err.Error(), tt.message)
		})
	}
}

func TestFetchFlow_RetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(flowRecord))
	}))
	defer srv.Close()

	c, err := New(Config{
		Instance:  srv.URL,
		SessionID: "s",
		Retry:     &RetryPolicy{Max: 2, Backoff: "constant", Delay: time.Millisecond},
	})
	require.NoError(t, err)

	body, err := c.FetchFlow(context.Background(), "301000000000001")
	require.NoError(t, err)
	assert.JSONEq(t, flowRecord, string(body))
	assert.Equal(t, int32(3), calls.Load())
}

func TestFetchFlow_RetryExhausted(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c, err := New(Config{
		Instance:  srv.URL,
		SessionID: "s",
		Retry:     &RetryPolicy{Max: 1, Delay: time.Millisecond},
	})
	require.NoError(t, err)

	_, err = c.FetchFlow(context.Background(), "301000000000001")
	require.Error(t, err)
	assert.True(t, schema.IsCode(err, schema.ErrCodeFetch))
	assert.Equal(t, int32(2), calls.Load())
}

func TestFetchFlow_NoRetryOnClientError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c, err := New(Config{Instance: srv.URL, SessionID: "s"})
	require.NoError(t, err)

	_, err = c.FetchFlow(context.Background(), "301000000000001")
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestRetryPolicy_Backoff(t *testing.T) {
	tests := []struct {
		policy  RetryPolicy
		attempt int
		want    time.Duration
	}{
		{RetryPolicy{}, 3, 0},
		{RetryPolicy{Backoff: "constant", Delay: time.Second}, 4, time.Second},
		{RetryPolicy{Backoff: "linear", Delay: time.Second}, 2, 3 * time.Second},
		{RetryPolicy{Backoff: "exponential", Delay: time.Second}, 3, 8 * time.Second},
		{RetryPolicy{Backoff: "exponential", Delay: time.Second, MaxDelay: 5 * time.Second}, 3, 5 * time.Second},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.policy.backoff(tt.attempt), "%+v attempt %d", tt.policy, tt.attempt)
	}
}

func TestFetchFlow_BodyTooLarge(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(flowRecord))
	}))
	defer srv.Close()

	limit := int64(len(flowRecord) - 1)
	c, err := New(Config{Instance: srv.URL, SessionID: "s", MaxResponseBody: limit})
	require.NoError(t, err)

	_, err = c.FetchFlow(context.Background(), "301000000000001")
	require.Error(t, err)
	assert.True(t, schema.IsCode(err, schema.ErrCodeFetch))
	assert.ErrorContains(t, err, "response larger than")

	c, err = New(Config{Instance: srv.URL, SessionID: "s", MaxResponseBody: int64(len(flowRecord))})
	require.NoError(t, err)
	body, err := c.FetchFlow(context.Background(), "301000000000001")
	require.NoError(t, err)
	assert.JSONEq(t, flowRecord, string(body))
}

func TestFetchFlow_ContextCanceled(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(50 * time.Millisecond)
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.FetchFlow(ctx, "301000000000001")
	require.Error(t, err)
	assert.True(t, schema.IsCode(err, schema.ErrCodeFetch))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFetchFlow_RequiresID(t *testing.T) {
	c, err := New(Config{Instance: "acme.my.salesforce.com", SessionID: "s"})
	require.NoError(t, err)

	_, err = c.FetchFlow(context.Background(), "")
	assert.True(t, schema.IsCode(err, schema.ErrCodeValidation))
}

func TestNew(t *testing.T) {
	c, err := New(Config{Instance: "acme.my.salesforce.com/", SessionID: "s", APIVersion: "58.0"})
	require.NoError(t, err)
	assert.Equal(t, "https://acme.my.salesforce.com/services/data/v58.0/tooling/sobjects/Flow/301x", c.Endpoint("301x"))

	_, err = New(Config{SessionID: "s"})
	assert.True(t, schema.IsCode(err, schema.ErrCodeValidation))
	_, err = New(Config{Instance: "acme.my.salesforce.com"})
	assert.True(t, schema.IsCode(err, schema.ErrCodeValidation))
}

func TestParseFlowID(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"https://acme.lightning.force.com/builder_platform_interaction/flowBuilder.app?flowId=3013m000000XIygAAG", "3013m000000XIygAAG"},
		{"https://acme.lightning.force.com/flowBuilder.app?flowId=3013m000000XIygAAG&retUrl=%2Fhome", "3013m000000XIygAAG"},
		{"?retUrl=x&flowId=301000000000001", "301000000000001"},
		{"3013m000000XIygAAG", "3013m000000XIygAAG"},
		{"  301000000000001  ", "301000000000001"},
	}
	for _, tt := range tests {
		got, err := ParseFlowID(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	for _, bad := range []string{"", "https://acme.lightning.force.com/home", "?flowId=&x=1"} {
		_, err := ParseFlowID(bad)
		require.Error(t, err, bad)
		assert.True(t, schema.IsCode(err, schema.ErrCodeValidation))
	}
}
