package webmonitor

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"image/jpeg"
	"sync"
	"time"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/m3-muru/facial-rpi/internal/logger"
	"github.com/m3-muru/facial-rpi/internal/mailbox"
	"github.com/m3-muru/facial-rpi/pkg/types"
)

// maxReplayAge bounds how old the last frame may be when replayed to a new client
const maxReplayAge = 3 * time.Second

// FrameBroadcaster is the single consumer of the display slot. Each frame is
// JPEG encoded once and fanned out to every MJPEG client.
type FrameBroadcaster struct {
	mu        sync.Mutex
	clients   map[int]chan []byte
	nextID    int
	display   *mailbox.Slot[types.DisplayFrame]
	quality   int
	last      []byte
	lastAt    time.Time
	now       func() time.Time
	stop      chan struct{}
	stopped   bool
	started   bool
	done      chan struct{}
	skipCount int // Frames taken while no client was connected
}

// NewFrameBroadcaster creates a broadcaster reading from display.
func NewFrameBroadcaster(display *mailbox.Slot[types.DisplayFrame], quality int) *FrameBroadcaster {
	return &FrameBroadcaster{
		clients: make(map[int]chan []byte),
		display: display,
		quality: quality,
		now:     time.Now,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Subscribe adds a new client and returns a channel for receiving frames.
// The most recent frame is delivered immediately unless it is older than
// maxReplayAge; frames are not encoded while nobody watches.
func (fb *FrameBroadcaster) Subscribe() (int, <-chan []byte) {
	fb.mu.Lock()
	defer fb.mu.Unlock()

	id := fb.nextID
	fb.nextID++
	ch := make(chan []byte, 2) // Buffer 2 frames to avoid blocking
	if fb.last != nil && fb.now().Sub(fb.lastAt) <= maxReplayAge {
		ch <- fb.last
	}
	fb.clients[id] = ch

	logger.Debug("FrameBroadcaster", "Client #%d subscribed (total clients: %d)", id, len(fb.clients))
	return id, ch
}

// Unsubscribe removes a client.
func (fb *FrameBroadcaster) Unsubscribe(id int) {
	fb.mu.Lock()
	defer fb.mu.Unlock()

	if ch, ok := fb.clients[id]; ok {
		close(ch)
		delete(fb.clients, id)
		logger.Debug("FrameBroadcaster", "Client #%d unsubscribed (remaining clients: %d)", id, len(fb.clients))
	}
}

// ClientCount returns the number of MJPEG clients.
func (fb *FrameBroadcaster) ClientCount() int {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return len(fb.clients)
}

// Start begins the encode and broadcast loop.
func (fb *FrameBroadcaster) Start() {
	fb.mu.Lock()
	fb.started = true
	fb.mu.Unlock()
	go fb.run()
}

// Stop halts the broadcaster and waits for the loop to exit.
func (fb *FrameBroadcaster) Stop() {
	fb.mu.Lock()
	if !fb.stopped {
		close(fb.stop)
		fb.stopped = true
	}
	started := fb.started
	fb.mu.Unlock()
	if started {
		<-fb.done
	}
}

func (fb *FrameBroadcaster) run() {
	defer close(fb.done)
	for {
		select {
		case <-fb.stop:
			return
		case frame := <-fb.display.C():
			if fb.ClientCount() == 0 && !frame.Synthetic {
				fb.skipCount++
				if fb.skipCount%100 == 0 {
					logger.Debug("FrameBroadcaster", "No clients connected, skipped %d frames", fb.skipCount)
				}
				continue
			}
			fb.skipCount = 0

			data, err := encodeJPEG(frame, fb.quality)
			if err != nil {
				logger.Warn("FrameBroadcaster", "JPEG encode failed for frame %d: %v", frame.Number, err)
				continue
			}
			fb.broadcast(data)
		}
	}
}

func encodeJPEG(frame types.DisplayFrame, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, frame.Image, &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (fb *FrameBroadcaster) broadcast(data []byte) {
	fb.mu.Lock()
	defer fb.mu.Unlock()

	fb.last = data
	fb.lastAt = fb.now()
	for _, ch := range fb.clients {
		select {
		case ch <- data:
		default:
			// Client too slow, skip this frame for this client
		}
	}
}

// SerializedEvent holds pre-serialized data in both formats.
// This avoids redundant serialization when broadcasting to multiple clients.
type SerializedEvent struct {
	JSONData     []byte // Pre-serialized JSON
	ProtobufData []byte // Pre-serialized Protobuf (base64 encoded for SSE)
}

// FeedbackBroadcaster fans feedback messages out to SSE clients and keeps the
// most recent ones as the activity log.
type FeedbackBroadcaster struct {
	mu       sync.Mutex
	clients  map[int]chan *SerializedEvent
	nextID   int
	activity []types.FeedbackMessage
	size     int
	dropped  uint64
}

// NewFeedbackBroadcaster keeps the last size messages.
func NewFeedbackBroadcaster(size int) *FeedbackBroadcaster {
	return &FeedbackBroadcaster{
		clients: make(map[int]chan *SerializedEvent),
		size:    size,
	}
}

// Subscribe adds a new client and returns a channel for receiving events.
func (b *FeedbackBroadcaster) Subscribe() (int, <-chan *SerializedEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	ch := make(chan *SerializedEvent, 16)
	b.clients[id] = ch

	logger.Debug("FeedbackBroadcaster", "Client #%d subscribed (total clients: %d)", id, len(b.clients))
	return id, ch
}

// Unsubscribe removes a client.
func (b *FeedbackBroadcaster) Unsubscribe(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if ch, ok := b.clients[id]; ok {
		close(ch)
		delete(b.clients, id)
		logger.Debug("FeedbackBroadcaster", "Client #%d unsubscribed (remaining clients: %d)", id, len(b.clients))
	}
}

// Send records msg and broadcasts it. It never blocks.
func (b *FeedbackBroadcaster) Send(msg types.FeedbackMessage) {
	logger.Info("Feedback", "%s", msg.Text)

	event, err := serializeFeedback(msg)
	if err != nil {
		logger.Error("FeedbackBroadcaster", "Serialize feedback: %v", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.activity = append(b.activity, msg)
	if over := len(b.activity) - b.size; over > 0 {
		b.activity = append([]types.FeedbackMessage(nil), b.activity[over:]...)
	}
	if event == nil {
		return
	}
	for _, ch := range b.clients {
		select {
		case ch <- event:
		default:
			b.dropped++
		}
	}
}

// Dropped returns events not delivered to slow clients.
func (b *FeedbackBroadcaster) Dropped() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}

// Activity returns the recorded messages, oldest first.
func (b *FeedbackBroadcaster) Activity() []types.FeedbackMessage {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]types.FeedbackMessage(nil), b.activity...)
}

// serializeFeedback encodes msg as {"msg","status"} in JSON and as a
// protobuf Struct with the same fields.
func serializeFeedback(msg types.FeedbackMessage) (*SerializedEvent, error) {
	jsonData, err := json.Marshal(map[string]any{
		"msg":    msg.Text,
		"status": msg.Status,
	})
	if err != nil {
		return nil, err
	}

	var status any
	if msg.Status != types.StatusNone {
		status = msg.Status.String()
	}
	pbEvent, err := structpb.NewStruct(map[string]any{
		"msg":       msg.Text,
		"status":    status,
		"timestamp": float64(msg.Time.UnixMilli()) / 1000,
	})
	if err != nil {
		return nil, err
	}
	pbData, err := proto.Marshal(pbEvent)
	if err != nil {
		return nil, err
	}

	// Base64 encode for SSE transport
	pbBase64 := []byte(base64.StdEncoding.EncodeToString(pbData))

	return &SerializedEvent{
		JSONData:     jsonData,
		ProtobufData: pbBase64,
	}, nil
}
