package webmonitor

import (
	"bufio"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/m3-muru/facial-rpi/internal/faceproc"
	"github.com/m3-muru/facial-rpi/internal/mailbox"
	"github.com/m3-muru/facial-rpi/pkg/types"
)

type fakeCommander struct {
	mu   sync.Mutex
	cmds []types.Command
	err  error
}

func (c *fakeCommander) Submit(cmd types.Command) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.cmds = append(c.cmds, cmd)
	return nil
}

func newTestServer(t *testing.T, opts Options) *Server {
	t.Helper()
	s, err := NewServer(Config{ActivityLogSize: 3, KeepaliveInterval: time.Hour, MJPEGIdle: 50 * time.Millisecond}, opts)
	require.NoError(t, err)
	return s
}

func request(s *Server, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func TestStatusIncludesActivity(t *testing.T) {
	s := newTestServer(t, Options{Status: func() Status {
		return Status{
			Face:   faceproc.Status{Mode: "auth", Ready: true, Employees: 2},
			Camera: CameraStatus{Connected: true, FramesReceived: 10},
		}
	}})
	for i := range 5 {
		s.Feedback().Send(types.FeedbackMessage{Text: fmt.Sprintf("msg %d", i)})
	}

	rec := request(s, http.MethodGet, "/api/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var got struct {
		Face struct {
			Mode      string `json:"mode"`
			Ready     bool   `json:"ready"`
			Employees int    `json:"employees"`
		} `json:"face"`
		Camera   CameraStatus `json:"camera"`
		Activity []struct {
			Msg string `json:"msg"`
		} `json:"activity"`
		Timestamp float64 `json:"timestamp"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "auth", got.Face.Mode)
	assert.True(t, got.Face.Ready)
	assert.Equal(t, 2, got.Face.Employees)
	assert.EqualValues(t, 10, got.Camera.FramesReceived)
	require.Len(t, got.Activity, 3, "activity log keeps the newest entries")
	assert.Equal(t, "msg 2", got.Activity[0].Msg)
	assert.Equal(t, "msg 4", got.Activity[2].Msg)
	assert.Positive(t, got.Timestamp)
}

func TestCommandEndpoint(t *testing.T) {
	cmds := &fakeCommander{}
	s := newTestServer(t, Options{Commands: cmds})

	rec := request(s, http.MethodPost, "/api/commands", `{"command":"enrol","employee_id":" E123 "}`)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Contains(t, rec.Body.String(), `"command":"enroll"`)
	require.Len(t, cmds.cmds, 1)
	assert.Equal(t, types.CommandEnroll, cmds.cmds[0].Name)
	assert.Equal(t, "E123", cmds.cmds[0].EmployeeID)

	rec = request(s, http.MethodPost, "/api/commands", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = request(s, http.MethodPost, "/api/commands", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Unknown names are still queued; the face processor reports them
	rec = request(s, http.MethodPost, "/api/commands", `{"command":"dance"}`)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "dance", cmds.cmds[1].Raw)

	cmds.err = faceproc.ErrQueueFull
	rec = request(s, http.MethodPost, "/api/commands", `{"command":"auth"}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = request(s, http.MethodGet, "/api/commands", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestCommandEndpointDisabled(t *testing.T) {
	s := newTestServer(t, Options{})
	rec := request(s, http.MethodPost, "/api/commands", `{"command":"auth"}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHealthAndReadiness(t *testing.T) {
	var ready bool
	s := newTestServer(t, Options{
		Ready:   func() bool { return ready },
		Metrics: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte("kiosk_up 1\n")) }),
	})

	assert.Equal(t, http.StatusOK, request(s, http.MethodGet, "/health", "").Code)
	assert.Equal(t, http.StatusServiceUnavailable, request(s, http.MethodGet, "/readiness", "").Code)
	ready = true
	assert.Equal(t, http.StatusOK, request(s, http.MethodGet, "/readiness", "").Code)

	rec := request(s, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "kiosk_up")

	rec = request(s, http.MethodGet, "/", "")
	assert.Contains(t, rec.Body.String(), "/api/feedback/stream")
}

func readEvent(t *testing.T, r *bufio.Reader) string {
	t.Helper()
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		if strings.HasPrefix(line, "data: ") {
			return strings.TrimSpace(strings.TrimPrefix(line, "data: "))
		}
	}
}

func TestFeedbackStreamJSON(t *testing.T) {
	s := newTestServer(t, Options{})
	ts := httptest.NewServer(s.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/feedback/stream")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	assert.Equal(t, "application/json", resp.Header.Get("X-Content-Format"))

	s.Feedback().Send(types.FeedbackMessage{Text: "E7", Status: types.StatusAccepted, Time: time.Now()})
	s.Feedback().Send(types.FeedbackMessage{Text: "Ready", Time: time.Now()})

	reader := bufio.NewReader(resp.Body)
	assert.JSONEq(t, `{"msg":"E7","status":"accepted"}`, readEvent(t, reader))
	assert.JSONEq(t, `{"msg":"Ready","status":null}`, readEvent(t, reader))
}

func TestFeedbackStreamProtobuf(t *testing.T) {
	s := newTestServer(t, Options{})
	ts := httptest.NewServer(s.Router())
	defer ts.Close()

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/api/feedback/stream", nil)
	require.NoError(t, err)
	req.Header.Set("Accept", "application/x-protobuf")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "application/protobuf", resp.Header.Get("X-Content-Format"))

	s.Feedback().Send(types.FeedbackMessage{Text: "#8: Forbidden: No matching user found", Status: types.StatusRejected, Time: time.Unix(1700000000, 0)})

	raw, err := base64.StdEncoding.DecodeString(readEvent(t, bufio.NewReader(resp.Body)))
	require.NoError(t, err)
	var event structpb.Struct
	require.NoError(t, proto.Unmarshal(raw, &event))
	fields := event.AsMap()
	assert.Equal(t, "#8: Forbidden: No matching user found", fields["msg"])
	assert.Equal(t, "rejected", fields["status"])
	assert.InDelta(t, 1700000000, fields["timestamp"], 0.001)
}

func TestMJPEGStream(t *testing.T) {
	display := mailbox.New[types.DisplayFrame]()
	s := newTestServer(t, Options{Display: display, DisplayWidth: 30, DisplayHeight: 45})
	ts := httptest.NewServer(s.Router())
	defer ts.Close()
	defer s.Frames().Stop()

	resp, err := http.Get(ts.URL + "/stream")
	require.NoError(t, err)
	assert.Equal(t, "multipart/x-mixed-replace; boundary=frame", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "--frame\r\n", line)
	line, err = reader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "Content-Type: image/jpeg\r\n", line)

	require.Eventually(t, func() bool { return s.Frames().ClientCount() == 1 }, time.Second, 10*time.Millisecond)
	display.Publish(types.DisplayFrame{Image: image.NewRGBA(image.Rect(0, 0, 30, 45)), Number: 1})
	require.Eventually(t, func() bool {
		s.Frames().mu.Lock()
		defer s.Frames().mu.Unlock()
		return s.Frames().last != nil
	}, time.Second, 10*time.Millisecond)

	resp.Body.Close()
	assert.Eventually(t, func() bool { return s.Frames().ClientCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestFrameBroadcasterSkipsStaleReplay(t *testing.T) {
	fb := NewFrameBroadcaster(mailbox.New[types.DisplayFrame](), 80)
	clock := time.Unix(1700000000, 0)
	fb.now = func() time.Time { return clock }

	fb.broadcast([]byte("jpeg-1"))

	clock = clock.Add(maxReplayAge)
	id, ch := fb.Subscribe()
	require.Len(t, ch, 1, "recent frame is replayed")
	assert.Equal(t, []byte("jpeg-1"), <-ch)
	fb.Unsubscribe(id)

	clock = clock.Add(time.Second)
	id, ch = fb.Subscribe()
	assert.Empty(t, ch, "stale frame is not replayed")
	fb.Unsubscribe(id)
}

func TestStreamWithoutDisplay(t *testing.T) {
	s := newTestServer(t, Options{})
	assert.Equal(t, http.StatusServiceUnavailable, request(s, http.MethodGet, "/stream", "").Code)
}

func TestFeedbackBroadcasterDropsForSlowClient(t *testing.T) {
	b := NewFeedbackBroadcaster(100)
	id, ch := b.Subscribe()
	for i := range 20 {
		b.Send(types.FeedbackMessage{Text: fmt.Sprintf("m%d", i)})
	}
	assert.Len(t, ch, 16)
	assert.EqualValues(t, 4, b.Dropped())
	assert.Len(t, b.Activity(), 20)

	b.Unsubscribe(id)
	_, open := <-ch
	for open {
		_, open = <-ch
	}
}

func TestFrameBroadcasterStopWithoutStart(t *testing.T) {
	fb := NewFrameBroadcaster(mailbox.New[types.DisplayFrame](), 80)
	done := make(chan struct{})
	go func() {
		fb.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop blocked on an unstarted broadcaster")
	}
}
