package enrichment

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testProvider(t *testing.T, handler http.Handler, attempts int) Provider {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewHTTPProvider(ProviderConfig{
		BaseURL:      server.URL,
		APIKey:       "test-token",
		PollAttempts: attempts,
		PollDelay:    time.Millisecond,
	})
}

func TestEnrichContactSubmitThenPoll(t *testing.T) {
	var polls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("POST /batch", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-token", r.Header.Get("X-Access-Token"))

		var body struct {
			Data []ContactRequest `json:"data"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Len(t, body.Data, 1)
		assert.Equal(t, "DUPONT", body.Data[0].LastName)

		json.NewEncoder(w).Encode(map[string]string{"request_id": "req-42"})
	})
	mux.HandleFunc("GET /batch/req-42", func(w http.ResponseWriter, r *http.Request) {
		if polls.Add(1) < 3 {
			// Still processing.
			json.NewEncoder(w).Encode(map[string]interface{}{"success": false})
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"success": true,
			"data": []map[string]interface{}{{
				"email":        []map[string]string{{"email": "jean.dupont@scidupont.fr", "qualification": "correct"}},
				"phone":        "+33142000000",
				"mobile_phone": "+33600000000",
				"job":          "Gérant",
				"confidence":   0.92,
			}},
		})
	})

	provider := testProvider(t, mux, 10)
	result, err := provider.EnrichContact(context.Background(), ContactRequest{
		LastName: "DUPONT", FirstName: "Jean", SIREN: "123456789",
	})
	require.NoError(t, err)

	assert.Equal(t, "jean.dupont@scidupont.fr", result.Email)
	assert.True(t, result.EmailVerified)
	assert.Equal(t, "+33142000000", result.Phone)
	assert.Equal(t, "+33600000000", result.MobilePhone)
	assert.Equal(t, "Gérant", result.JobTitle)
	assert.InDelta(t, 0.92, result.Confidence, 1e-9)
	assert.Equal(t, int32(3), polls.Load())
}

func TestEnrichContactNotFound(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /batch", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"request_id": "req-1"})
	})
	mux.HandleFunc("GET /batch/req-1", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"success": true, "data": []interface{}{}})
	})

	provider := testProvider(t, mux, 3)
	_, err := provider.EnrichContact(context.Background(), ContactRequest{LastName: "INTROUVABLE"})
	assert.ErrorIs(t, err, ErrContactNotFound)
}

func TestEnrichContactEmptyResultCountsAsNotFound(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /batch", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"request_id": "req-1"})
	})
	mux.HandleFunc("GET /batch/req-1", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"success": true,
			"data":    []map[string]interface{}{{"confidence": 0.1}},
		})
	})

	provider := testProvider(t, mux, 3)
	_, err := provider.EnrichContact(context.Background(), ContactRequest{LastName: "VIDE"})
	assert.ErrorIs(t, err, ErrContactNotFound)
}

func TestEnrichContactPollExhaustion(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /batch", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"request_id": "req-1"})
	})
	mux.HandleFunc("GET /batch/req-1", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"success": false})
	})

	provider := testProvider(t, mux, 2)
	_, err := provider.EnrichContact(context.Background(), ContactRequest{LastName: "LENT"})
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrContactNotFound))
}

func TestEnrichContactSubmitRejected(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /batch", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	})

	provider := testProvider(t, mux, 2)
	_, err := provider.EnrichContact(context.Background(), ContactRequest{LastName: "DUPONT"})
	assert.Error(t, err)
}

func TestRepeatedSubmitFailuresTripBreaker(t *testing.T) {
	var submits atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("POST /batch", func(w http.ResponseWriter, r *http.Request) {
		submits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	provider := testProvider(t, mux, 1)

	for i := 0; i < 5; i++ {
		_, err := provider.EnrichContact(context.Background(), ContactRequest{LastName: "DUPONT"})
		require.Error(t, err)
	}
	require.EqualValues(t, 5, submits.Load())

	_, err := provider.EnrichContact(context.Background(), ContactRequest{LastName: "DUPONT"})
	require.Error(t, err)
	assert.EqualValues(t, 5, submits.Load(), "open breaker must not reach the provider")
}
