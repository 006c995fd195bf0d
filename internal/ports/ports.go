package ports

import (
	"context"
	"errors"
	"image"

	"github.com/forPelevin/textwipe/internal/types"
)

// ErrSourceExhausted is returned by FrameSource.Read at the end of the stream.
var ErrSourceExhausted = errors.New("frame source exhausted")

type FrameSource interface {
	// Read decodes the next frame. The caller owns the returned frame.
	Read(ctx context.Context) (types.Frame, error)
	// FrameCount is the container's frame count estimate, <= 0 when unknown.
	FrameCount() int
	FPS() float64
	Size() image.Point
	// Codec is the FourCC of the source stream, "" when unknown.
	Codec() string
	Close() error
}

type FrameSink interface {
	// Write persists the frame. It does not take ownership of frame.Mat.
	Write(frame types.Frame) error
	Close() error
}

type Remuxer interface {
	// Remux combines the video stream of video with the audio of audioFrom into out.
	Remux(ctx context.Context, video, audioFrom, out string) error
}

type Prober interface {
	HasAudio(ctx context.Context, path string) (bool, error)
}

// Preview receives sampled frames and progress for live display.
type Preview interface {
	PublishFrame(kind string, index int, jpeg []byte)
	PublishProgress(percent float64)
	PublishAnnotation(region, frame int, text string)
}
