package datastore

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3-muru/facial-rpi/internal/biometric"
)

func newStore(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(Config{
		FaceprintsURL:   srv.URL + "/faceprints",
		AddFaceprintURL: srv.URL + "/faceprint",
		PingURL:         srv.URL + "/ping",
		APIKey:          "secret",
	})
}

func TestFaceprints(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /faceprints", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-api-key") != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"faceprint_records":[
			{"employee_id":"E1","version":7,"features_type":1,"flags":2,"enroll_descriptor":[1,2,3]},
			{"employee_id":"E2","version":7,"enroll_descriptor":[4]}
		]}`))
	})
	c := newStore(t, mux)

	records, err := c.Faceprints(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "E1", records[0].EmployeeID)
	assert.Equal(t, 7, records[0].Version)
	assert.Equal(t, 2, records[0].Flags)
	assert.Equal(t, []int{1, 2, 3}, records[0].EnrollDescriptor)
	assert.Equal(t, "E2", records[1].EmployeeID)
}

func TestFaceprintsHTTPError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /faceprints", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})
	c := newStore(t, mux)

	_, err := c.Faceprints(context.Background())
	require.Error(t, err)
	var httpErr *HTTPError
	require.True(t, errors.As(err, &httpErr))
	assert.Equal(t, http.StatusInternalServerError, httpErr.StatusCode)
	assert.Equal(t, "boom", httpErr.Body)
}

func TestAddFaceprint(t *testing.T) {
	var mu sync.Mutex
	var got []map[string]any
	mux := http.NewServeMux()
	mux.HandleFunc("POST /faceprint", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret", r.Header.Get("x-api-key"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		mu.Lock()
		got = append(got, body)
		mu.Unlock()
		w.WriteHeader(http.StatusCreated)
	})
	c := newStore(t, mux)

	err := c.AddFaceprint(context.Background(), FaceprintRecord{
		EmployeeID: "E123",
		Faceprint: biometric.Faceprint{
			Version:                    7,
			AdaptiveDescriptorNoMask:   []int{9, 8},
			AdaptiveDescriptorWithMask: []int{0, 0},
			EnrollDescriptor:           []int{9, 8},
		},
	})
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 1)
	assert.Equal(t, "E123", got[0]["employee_id"])
	assert.Equal(t, float64(7), got[0]["version"])
	assert.Equal(t, []any{float64(9), float64(8)}, got[0]["enroll_descriptor"])
	assert.Contains(t, got[0], "adaptive_descriptor_withmask")
}

func TestPing(t *testing.T) {
	up := true
	var mu sync.Mutex
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ping", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		if !up {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("pong"))
	})
	c := newStore(t, mux)

	assert.NoError(t, c.Ping(context.Background()))

	mu.Lock()
	up = false
	mu.Unlock()
	var httpErr *HTTPError
	assert.ErrorAs(t, c.Ping(context.Background()), &httpErr)
}

func TestPingUnreachableHost(t *testing.T) {
	c := New(Config{PingURL: "http://127.0.0.1:1/ping", Timeout: 500 * time.Millisecond})
	assert.Error(t, c.Ping(context.Background()))
}

func TestReporter(t *testing.T) {
	var mu sync.Mutex
	bodies := map[string]map[string]any{}
	mux := http.NewServeMux()
	record := func(name string) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			var body map[string]any
			_ = json.NewDecoder(r.Body).Decode(&body)
			mu.Lock()
			bodies[name] = body
			mu.Unlock()
		}
	}
	mux.HandleFunc("POST /status", record("status"))
	mux.HandleFunc("POST /etcmon/update", record("update"))
	mux.HandleFunc("POST /etcmon/event", record("event"))
	srv := httptest.NewServer(mux)
	defer srv.Close()

	r := NewReporter(ReporterConfig{
		AppStatusURL: srv.URL + "/status",
		ETCMonURL:    srv.URL + "/etcmon/",
		StationID:    "lobby_01",
	})
	r.now = func() time.Time { return time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC) }

	ctx := context.Background()
	require.NoError(t, r.SendAppStatus(ctx))
	require.NoError(t, r.SendHeartbeat(ctx))
	require.NoError(t, r.ReportAuthEvent(ctx, "E1", "success"))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "alive", bodies["status"]["status"])
	assert.Equal(t, "lobby_01", bodies["status"]["station_id"])
	assert.Equal(t, "2026-03-01 09:30:00", bodies["status"]["last_ping"])
	assert.Equal(t, "online", bodies["update"]["status"])
	assert.Equal(t, "etc_face_recognition", bodies["update"]["service_type"])
	assert.Equal(t, "E1", bodies["event"]["employee_id"])
	assert.Equal(t, "authentication", bodies["event"]["event_type"])
}

func TestReporterDisabledPartsAreSkipped(t *testing.T) {
	r := NewReporter(ReporterConfig{})
	ctx := context.Background()
	assert.NoError(t, r.SendAppStatus(ctx))
	assert.NoError(t, r.SendHeartbeat(ctx))
	assert.NoError(t, r.ReportAuthEvent(ctx, "E1", "success"))

	// Run returns immediately when nothing is configured
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return for an empty config")
	}
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(FaceprintRecord{EmployeeID: "E1"})
	require.NoError(t, store.Ping(ctx))
	require.NoError(t, store.AddFaceprint(ctx, FaceprintRecord{EmployeeID: "E2"}))

	records, err := store.Faceprints(ctx)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "E1", records[0].EmployeeID)
	assert.Equal(t, "E2", records[1].EmployeeID)

	records[0].EmployeeID = "changed"
	assert.Equal(t, 2, store.Len())
	again, err := store.Faceprints(ctx)
	require.NoError(t, err)
	assert.Equal(t, "E1", again[0].EmployeeID, "callers get a copy")

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	assert.Error(t, store.AddFaceprint(cancelled, FaceprintRecord{EmployeeID: "E3"}))
}
