// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package device

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/ManuGH/capsync/internal/domain/session/model"
	"github.com/ManuGH/capsync/internal/domain/session/ports"
	xglog "github.com/ManuGH/capsync/internal/log"
	"github.com/ManuGH/capsync/internal/procgroup"
)

const (
	DefaultFFmpegBin   = "ffmpeg"
	DefaultReadTimeout = 5 * time.Second
	DefaultStopGrace   = 2 * time.Second

	maxFrameBytes = 8 << 20
)

var (
	ErrDeviceUnavailable = errors.New("device unavailable")
	ErrCaptureClosed     = errors.New("capture closed")
	ErrReadTimeout       = errors.New("frame read timed out")
)

var (
	jpegSOI = []byte{0xff, 0xd8}
	jpegEOI = []byte{0xff, 0xd9}
)

// CaptureSettings describes the stream requested from ffmpeg.
type CaptureSettings struct {
	Width  int
	Height int
	FPS    int
}

// FFmpegAcquirer opens a device by starting a long-running ffmpeg process that
// streams MJPEG frames on stdout. Each Read returns the next complete frame.
type FFmpegAcquirer struct {
	Bin         string
	Settings    CaptureSettings
	ReadTimeout time.Duration
	StopGrace   time.Duration
	Logger      zerolog.Logger

	// command builds the process; tests replace it.
	command func(ctx context.Context, entry model.Entry) *exec.Cmd
}

// Acquire implements ports.Acquirer.
func (a *FFmpegAcquirer) Acquire(ctx context.Context, entry model.Entry) (ports.Capture, error) {
	build := a.command
	if build == nil {
		if err := checkDevice(entry.Path); err != nil {
			return nil, err
		}
		build = a.ffmpegCommand
	}

	// The process outlives the acquiring tick, so it is not bound to ctx.
	cmd := build(context.WithoutCancel(ctx), entry)
	procgroup.Set(cmd)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr := &tailBuffer{limit: 4096}
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start capture for %s: %w", entry.Path, err)
	}

	c := &FFmpegCapture{
		cmd:     cmd,
		key:     entry.Key,
		stderr:  stderr,
		frames:  make(chan []byte, 1),
		done:    make(chan struct{}),
		waitCh:  make(chan error, 1),
		timeout: durationOr(a.ReadTimeout, DefaultReadTimeout),
		grace:   durationOr(a.StopGrace, DefaultStopGrace),
		logger: a.Logger.With().
			Str(xglog.FieldKey, entry.Key).
			Str(xglog.FieldDevice, entry.Path).
			Int("pid", cmd.Process.Pid).
			Logger(),
	}
	go c.pump(stdout)
	c.logger.Debug().Str(xglog.FieldEvent, "capture.started").Msg("capture process started")
	return c, nil
}

func (a *FFmpegAcquirer) ffmpegCommand(ctx context.Context, entry model.Entry) *exec.Cmd {
	bin := a.Bin
	if bin == "" {
		bin = DefaultFFmpegBin
	}
	args := []string{"-hide_banner", "-loglevel", "error", "-f", "v4l2"}
	if a.Settings.FPS > 0 {
		args = append(args, "-framerate", strconv.Itoa(a.Settings.FPS))
	}
	if a.Settings.Width > 0 && a.Settings.Height > 0 {
		args = append(args, "-video_size", fmt.Sprintf("%dx%d", a.Settings.Width, a.Settings.Height))
	}
	args = append(args, "-i", entry.Path, "-f", "mjpeg", "-q:v", "5", "-")
	return exec.CommandContext(ctx, bin, args...)
}

// checkDevice verifies the node exists and is readable.
func checkDevice(path string) error {
	f, err := os.OpenFile(path, os.O_RDONLY, 0)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrDeviceUnavailable, path, err)
	}
	return f.Close()
}

// FFmpegCapture is a running capture process.
type FFmpegCapture struct {
	cmd     *exec.Cmd
	key     string
	stderr  *tailBuffer
	frames  chan []byte
	done    chan struct{}
	waitCh  chan error
	timeout time.Duration
	grace   time.Duration
	logger  zerolog.Logger

	mu      sync.Mutex
	readErr error

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

// pump splits stdout into JPEG frames and keeps only the newest undelivered one.
func (c *FFmpegCapture) pump(stdout io.Reader) {
	sc := bufio.NewScanner(stdout)
	sc.Buffer(make([]byte, 0, 64<<10), maxFrameBytes)
	sc.Split(SplitJPEG)
	for sc.Scan() {
		frame := append([]byte(nil), sc.Bytes()...)
		select {
		case <-c.frames:
		default:
		}
		c.frames <- frame
	}

	err := sc.Err()
	if err == nil {
		err = io.EOF
	}
	c.mu.Lock()
	c.readErr = err
	c.mu.Unlock()
	close(c.done)
	c.waitCh <- c.cmd.Wait()
}

// Read returns the next frame. It fails when the process ended, the timeout
// elapsed or ctx was canceled.
func (c *FFmpegCapture) Read(ctx context.Context) (model.Frame, error) {
	if c.closed.Load() {
		return model.Frame{}, ErrCaptureClosed
	}
	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	select {
	case data := <-c.frames:
		return c.frame(data), nil
	default:
	}
	select {
	case data := <-c.frames:
		return c.frame(data), nil
	case <-c.done:
		select {
		case data := <-c.frames:
			return c.frame(data), nil
		default:
		}
		c.mu.Lock()
		err := c.readErr
		c.mu.Unlock()
		if msg := c.stderr.String(); msg != "" {
			return model.Frame{}, fmt.Errorf("capture ended: %w (stderr: %s)", err, msg)
		}
		return model.Frame{}, fmt.Errorf("capture ended: %w", err)
	case <-timer.C:
		return model.Frame{}, ErrReadTimeout
	case <-ctx.Done():
		return model.Frame{}, ctx.Err()
	}
}

func (c *FFmpegCapture) frame(data []byte) model.Frame {
	return model.Frame{
		Key:         c.key,
		Data:        data,
		ContentType: "image/jpeg",
		CapturedAt:  time.Now(),
	}
}

// Close terminates the process group. It is safe to call more than once.
func (c *FFmpegCapture) Close() error {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		err := procgroup.Terminate(c.cmd, c.waitCh, c.grace)
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			// Exiting on our signal is the expected outcome.
			err = nil
		}
		c.closeErr = err
		c.logger.Debug().Str(xglog.FieldEvent, "capture.stopped").Msg("capture process stopped")
	})
	return c.closeErr
}

// SplitJPEG is a bufio.SplitFunc yielding complete JPEG images (SOI..EOI).
// Bytes before the first SOI are discarded.
func SplitJPEG(data []byte, atEOF bool) (advance int, token []byte, err error) {
	start := bytes.Index(data, jpegSOI)
	if start < 0 {
		if atEOF {
			return len(data), nil, nil
		}
		// Keep a trailing 0xff that may begin an SOI.
		if n := len(data); n > 0 && data[n-1] == 0xff {
			return n - 1, nil, nil
		}
		return len(data), nil, nil
	}
	end := bytes.Index(data[start+2:], jpegEOI)
	if end < 0 {
		if atEOF {
			return len(data), nil, nil
		}
		return start, nil, nil
	}
	stop := start + 2 + end + 2
	return stop, data[start:stop], nil
}

func durationOr(d, def time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return def
}

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	mu    sync.Mutex
	limit int
	buf   []byte
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.limit; over > 0 {
		t.buf = t.buf[over:]
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return string(bytes.TrimSpace(t.buf))
}

var _ ports.Acquirer = (*FFmpegAcquirer)(nil)
