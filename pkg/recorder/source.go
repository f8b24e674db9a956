package recorder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"os"
	"path/filepath"
	"sync"

	"github.com/harunnryd/voxrelay/pkg/audio"
)

const defaultFragmentSize = 4096

// Source opens a capture. It stands in for the microphone permission request.
type Source interface {
	Name() string
	Open(ctx context.Context) (Capture, error)
}

// Capture is a running capture. Fragments is closed once the capture has
// delivered its final data, after Stop or at end of input.
type Capture interface {
	Fragments() <-chan []byte
	MIMEType() string
	Stop() error
	// Err reports a terminal capture failure once Fragments is closed.
	Err() error
}

// streamCapture turns a byte stream into fragments. It keeps reading until
// EOF so data flushed after Stop is still delivered.
type streamCapture struct {
	r        io.Reader
	mimeType string
	size     int
	prefix   [][]byte
	out      chan []byte

	stopFn   func() error
	finishFn func(stopping bool) error

	stopOnce sync.Once
	stopErr  error
	mu       sync.Mutex
	stopping bool
	err      error
}

func newStreamCapture(r io.Reader, mimeType string, size int) *streamCapture {
	if size <= 0 {
		size = defaultFragmentSize
	}
	if mimeType == "" {
		mimeType = audio.MIMEWebM
	}
	return &streamCapture{
		r:        r,
		mimeType: mimeType,
		size:     size,
		out:      make(chan []byte, 16),
	}
}

func (c *streamCapture) start() *streamCapture {
	go c.run()
	return c
}

func (c *streamCapture) run() {
	defer close(c.out)
	for _, p := range c.prefix {
		c.out <- p
	}
	var readErr error
	for {
		buf := make([]byte, c.size)
		n, err := c.r.Read(buf)
		if n > 0 {
			c.out <- buf[:n]
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				readErr = err
			}
			break
		}
	}
	c.mu.Lock()
	stopping := c.stopping
	c.mu.Unlock()
	if c.finishFn != nil {
		if err := c.finishFn(stopping); err != nil {
			readErr = errors.Join(readErr, err)
		}
	}
	// Read errors after a requested stop come from closing the stream.
	if stopping {
		readErr = nil
	}
	c.mu.Lock()
	c.err = readErr
	c.mu.Unlock()
}

func (c *streamCapture) Fragments() <-chan []byte { return c.out }

func (c *streamCapture) MIMEType() string { return c.mimeType }

func (c *streamCapture) Stop() error {
	c.stopOnce.Do(func() {
		c.mu.Lock()
		c.stopping = true
		c.mu.Unlock()
		if c.stopFn != nil {
			c.stopErr = c.stopFn()
		}
	})
	return c.stopErr
}

func (c *streamCapture) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// ReaderSource captures from an arbitrary reader, e.g. piped stdin.
type ReaderSource struct {
	Reader       io.Reader
	MIME         string
	FragmentSize int
}

func (s *ReaderSource) Name() string { return "reader" }

func (s *ReaderSource) Open(ctx context.Context) (Capture, error) {
	if s.Reader == nil {
		return nil, fmt.Errorf("%w: no input stream", ErrDeviceUnavailable)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c := newStreamCapture(s.Reader, s.MIME, s.FragmentSize)
	if closer, ok := s.Reader.(io.Closer); ok {
		c.stopFn = closer.Close
	}
	return c.start(), nil
}

// FileSource replays a recorded file as if it were captured live.
type FileSource struct {
	Path         string
	MIME         string
	FragmentSize int
}

func (s *FileSource) Name() string { return "file" }

func (s *FileSource) Open(ctx context.Context) (Capture, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(s.Path)
	if err != nil {
		switch {
		case errors.Is(err, fs.ErrPermission):
			return nil, fmt.Errorf("%w: %v", ErrPermissionDenied, err)
		default:
			return nil, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
		}
	}
	mimeType := s.MIME
	if mimeType == "" {
		mimeType = MIMEFromPath(s.Path)
	}
	c := newStreamCapture(f, mimeType, s.FragmentSize)
	var closeOnce sync.Once
	closeFile := func() error {
		var err error
		closeOnce.Do(func() { err = f.Close() })
		return err
	}
	c.stopFn = closeFile
	c.finishFn = func(bool) error { return closeFile() }
	return c.start(), nil
}

// MIMEFromPath guesses an audio MIME type from a file extension.
func MIMEFromPath(path string) string {
	ext := filepath.Ext(path)
	switch ext {
	case ".webm":
		return audio.MIMEWebM
	case ".wav":
		return audio.MIMEWAV
	case "":
		return audio.MIMEWebM
	}
	if t := mime.TypeByExtension(ext); t != "" {
		return t
	}
	return audio.MIMEWebM
}
