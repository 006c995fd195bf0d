// Package gocvio reads and writes video frames through OpenCV.
package gocvio

import (
	"context"
	"fmt"
	"image"
	"strings"

	"gocv.io/x/gocv"

	"github.com/forPelevin/textwipe/internal/ports"
	"github.com/forPelevin/textwipe/internal/types"
)

const fallbackCodec = "mp4v"

type Source struct {
	vc    *gocv.VideoCapture
	next  int
	count int
	fps   float64
	size  image.Point
	codec string
}

func OpenSource(path string) (*Source, error) {
	vc, err := gocv.VideoCaptureFile(path)
	if err != nil {
		return nil, fmt.Errorf("open video %s: %w", path, err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, fmt.Errorf("open video %s: not readable", path)
	}
	s := &Source{
		vc:    vc,
		count: int(vc.Get(gocv.VideoCaptureFrameCount)),
		fps:   vc.Get(gocv.VideoCaptureFPS),
		size:  image.Pt(int(vc.Get(gocv.VideoCaptureFrameWidth)), int(vc.Get(gocv.VideoCaptureFrameHeight))),
		codec: strings.TrimRight(vc.CodecString(), "\x00 "),
	}
	if s.size.X <= 0 || s.size.Y <= 0 {
		vc.Close()
		return nil, fmt.Errorf("open video %s: unknown frame size", path)
	}
	return s, nil
}

func (s *Source) Read(ctx context.Context) (types.Frame, error) {
	if err := ctx.Err(); err != nil {
		return types.Frame{}, err
	}
	m := gocv.NewMat()
	if ok := s.vc.Read(&m); !ok || m.Empty() {
		m.Close()
		return types.Frame{}, ports.ErrSourceExhausted
	}
	f := types.Frame{Index: s.next, Mat: m}
	s.next++
	return f, nil
}

func (s *Source) FrameCount() int  { return s.count }
func (s *Source) FPS() float64      { return s.fps }
func (s *Source) Size() image.Point { return s.size }
func (s *Source) Codec() string     { return s.codec }
func (s *Source) Close() error      { return s.vc.Close() }

type Sink struct {
	vw   *gocv.VideoWriter
	size image.Point
}

// CreateSink opens a writer using codec, falling back to mp4v when the
// source codec has no encoder in this OpenCV build.
func CreateSink(path, codec string, fps float64, size image.Point) (*Sink, error) {
	if fps <= 0 {
		fps = 30
	}
	codecs := []string{fallbackCodec}
	if len(codec) == 4 && codec != fallbackCodec {
		codecs = []string{codec, fallbackCodec}
	}
	var lastErr error
	for _, c := range codecs {
		vw, err := gocv.VideoWriterFile(path, c, fps, size.X, size.Y, true)
		if err != nil {
			lastErr = err
			continue
		}
		if !vw.IsOpened() {
			vw.Close()
			lastErr = fmt.Errorf("codec %s not available", c)
			continue
		}
		return &Sink{vw: vw, size: size}, nil
	}
	return nil, fmt.Errorf("create video %s: %w", path, lastErr)
}

func (s *Sink) Write(f types.Frame) error {
	if f.Mat.Cols() != s.size.X || f.Mat.Rows() != s.size.Y {
		return fmt.Errorf("write frame %d: size %dx%d, want %dx%d", f.Index, f.Mat.Cols(), f.Mat.Rows(), s.size.X, s.size.Y)
	}
	if err := s.vw.Write(f.Mat); err != nil {
		return fmt.Errorf("write frame %d: %w", f.Index, err)
	}
	return nil
}

func (s *Sink) Close() error { return s.vw.Close() }

// Discard is a sink that only counts frames, used when a run produces
// timing data rather than video.
type Discard struct{ Frames int }

func (d *Discard) Write(types.Frame) error { d.Frames++; return nil }
func (d *Discard) Close() error            { return nil }

// EncodeJPEG returns a JPEG copy of m.
func EncodeJPEG(m gocv.Mat) ([]byte, error) {
	buf, err := gocv.IMEncode(gocv.JPEGFileExt, m)
	if err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	defer buf.Close()
	return append([]byte(nil), buf.GetBytes()...), nil
}

var (
	_ ports.FrameSource = (*Source)(nil)
	_ ports.FrameSink   = (*Sink)(nil)
	_ ports.FrameSink   = (*Discard)(nil)
)
