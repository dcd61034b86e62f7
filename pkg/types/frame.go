package types

import (
	"image"
	"time"
)

// Frame is a raw camera frame as delivered by the preview stream
type Frame struct {
	Data      []byte    // Packed RGB24, row-major, Width*Height*3 bytes
	Width     int       // Frame width in pixels
	Height    int       // Frame height in pixels
	Number    uint64    // Sequential frame number
	Timestamp time.Time // Capture timestamp
}

// Valid reports whether the buffer size matches the declared dimensions
func (f Frame) Valid() bool {
	return f.Width > 0 && f.Height > 0 && len(f.Data) == f.Width*f.Height*3
}

// DisplayFrame is a processed frame ready for the UI
type DisplayFrame struct {
	Image     *image.RGBA
	Number    uint64 // Source frame number, 0 for synthetic frames
	Synthetic bool   // True for generated error frames
	Reason    string // Why a synthetic frame was produced
	CreatedAt time.Time
}
