package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testCreds = Credentials{ShopID: "shop-1", SecretKey: "secret"}

func newTestClient(t *testing.T, handler http.Handler) *Client {
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	logger := zerolog.New(os.Stdout)
	retry := RetryPolicy{MaxRetries: 2, InitialDelay: 5 * time.Millisecond, BackoffFactor: 2}
	return NewClient(srv.URL, 2*time.Second, retry, &logger)
}

func respond(w http.ResponseWriter, status int, uid, txStatus, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	var tr transactionResponse
	tr.Transaction.UID = uid
	tr.Transaction.Status = txStatus
	tr.Transaction.Message = message
	_ = json.NewEncoder(w).Encode(tr)
}

func TestAuthorizeSuccess(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/transactions/authorizations", r.URL.Path)
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "shop-1", user)
		assert.Equal(t, "secret", pass)

		var req transactionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, int64(5000), req.Request.Amount)
		assert.Equal(t, "res-1", req.Request.TrackingID)

		respond(w, http.StatusOK, "uid-1", StatusSuccessful, "")
	}))

	result, err := client.Authorize(context.Background(), testCreds, 5000, "USD", "table reservation", "res-1")
	require.NoError(t, err)
	assert.Equal(t, "uid-1", result.UID)
	assert.Equal(t, StatusSuccessful, result.Status)
}

func TestCallRetriesOnServerError(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		respond(w, http.StatusOK, "uid-2", StatusSuccessful, "")
	}))

	result, err := client.Capture(context.Background(), testCreds, "uid-1", 5000)
	require.NoError(t, err)
	assert.Equal(t, "uid-2", result.UID)
	assert.Equal(t, int32(3), calls.Load())
}

func TestCallGivesUpAfterMaxRetries(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))

	_, err := client.Void(context.Background(), testCreds, "uid-1", 5000)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, int32(3), calls.Load()) // initial try + 2 retries
}

func TestDeclineIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		respond(w, http.StatusUnprocessableEntity, "uid-3", StatusFailed, "insufficient funds")
	}))

	_, err := client.Authorize(context.Background(), testCreds, 5000, "USD", "", "res-1")
	assert.ErrorIs(t, err, ErrDeclined)
	assert.Equal(t, int32(1), calls.Load())
}

func TestCallHonorsContextCancellation(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := client.Refund(ctx, testCreds, "uid-1", 5000, "reservation canceled")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNextDelayClamps(t *testing.T) {
	r := RetryPolicy{InitialDelay: time.Second, MaxDelay: 3 * time.Second, BackoffFactor: 2}
	assert.Equal(t, time.Second, r.NextDelay(1))
	assert.Equal(t, 2*time.Second, r.NextDelay(2))
	assert.Equal(t, 3*time.Second, r.NextDelay(3))
	assert.Equal(t, 3*time.Second, r.NextDelay(10))
	assert.Equal(t, time.Second, r.NextDelay(0))
}
