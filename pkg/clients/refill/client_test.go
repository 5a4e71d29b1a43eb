package refill

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mamadbah2/refill/internal/domain/models"
)

func TestClientSendsIdentityHeader(t *testing.T) {
	var gotRep string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotRep = r.Header.Get("X-Rep-ID")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	client := NewClient(Config{BaseURL: srv.URL, RepID: "rep-42"})
	_, err := client.ListItems(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "rep-42", gotRep)
}

func TestHealth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/healthz" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := NewClient(Config{BaseURL: srv.URL})
	require.NoError(t, client.Health(context.Background()))

	srv.Close()
	require.Error(t, client.Health(context.Background()))
}

func TestSubmitVisitSurfacesMissingBoxes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{
			"error": "all boxes must be refilled before submitting a completed visit",
			"missingBoxes": [{"id": "b2", "label": "B"}]
		}`))
	}))
	defer srv.Close()

	client := NewClient(Config{BaseURL: srv.URL})
	_, err := client.SubmitVisit(context.Background(), "v1", models.OutcomeCompleted, nil)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	require.Len(t, apiErr.MissingBoxes, 1)
	assert.Equal(t, "B", apiErr.MissingBoxes[0].Label)
}

func TestDoReplaysMethodPathAndBody(t *testing.T) {
	type captured struct {
		method string
		path   string
		body   []byte
	}
	var got captured
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		got = captured{method: r.Method, path: r.URL.Path, body: body}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	client := NewClient(Config{BaseURL: srv.URL})
	body := json.RawMessage(`{"location":"l1","box":"b1","lines":[{"item":"i1","quantity":2}]}`)
	require.NoError(t, client.Do(context.Background(), http.MethodPost, "/api/deliveries", body))

	assert.Equal(t, http.MethodPost, got.method)
	assert.Equal(t, "/api/deliveries", got.path)
	assert.JSONEq(t, string(body), string(got.body))
}

func TestDoDistinguishesRejectionFromTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"error": "item not found"}`))
	}))

	client := NewClient(Config{BaseURL: srv.URL})

	err := client.Do(context.Background(), http.MethodPost, "/api/deliveries", nil)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnprocessableEntity, apiErr.StatusCode)
	assert.Equal(t, "item not found", apiErr.Message)

	// The server is gone: this is a transport error, never an APIError.
	srv.Close()
	err = client.Do(context.Background(), http.MethodPost, "/api/deliveries", nil)
	require.Error(t, err)
	assert.False(t, errors.As(err, &apiErr))
}

func TestListLocationsPassesSearchQuery(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("q")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"name": "North Clinic"}]`))
	}))
	defer srv.Close()

	client := NewClient(Config{BaseURL: srv.URL})
	locations, err := client.ListLocations(context.Background(), "north")
	require.NoError(t, err)
	assert.Equal(t, "north", gotQuery)
	require.Len(t, locations, 1)
	assert.Equal(t, "North Clinic", locations[0].Name)
}

func TestStartVisitDecodesVisit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/visits", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status": "open", "outcome": ""}`))
	}))
	defer srv.Close()

	client := NewClient(Config{BaseURL: srv.URL})
	visit, err := client.StartVisit(context.Background(), "loc1")
	require.NoError(t, err)
	assert.Equal(t, models.VisitOpen, visit.Status)
}
