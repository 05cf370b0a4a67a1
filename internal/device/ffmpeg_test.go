// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package device

import (
	"bufio"
	"bytes"
	"context"
	"os/exec"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/capsync/internal/domain/session/model"
)

func splitAll(t *testing.T, stream []byte, bufSize int) [][]byte {
	t.Helper()
	sc := bufio.NewScanner(bytes.NewReader(stream))
	sc.Buffer(make([]byte, bufSize), 1<<20)
	sc.Split(SplitJPEG)
	var out [][]byte
	for sc.Scan() {
		out = append(out, append([]byte(nil), sc.Bytes()...))
	}
	require.NoError(t, sc.Err())
	return out
}

func TestSplitJPEG(t *testing.T) {
	a := []byte{0xff, 0xd8, 0x01, 0x02, 0xff, 0xd9}
	b := []byte{0xff, 0xd8, 0xff, 0x00, 0x03, 0xff, 0xd9}
	var stream []byte
	stream = append(stream, 0x00, 0x11) // junk before the first SOI
	stream = append(stream, a...)
	stream = append(stream, b...)
	stream = append(stream, 0xff, 0xd8, 0x04) // truncated trailing frame

	for _, size := range []int{3, 4, 16, 4096} {
		got := splitAll(t, stream, size)
		require.Len(t, got, 2, "buffer %d", size)
		assert.Equal(t, a, got[0])
		assert.Equal(t, b, got[1])
	}
}

func fakeAcquirer(script string) *FFmpegAcquirer {
	return &FFmpegAcquirer{
		ReadTimeout: 2 * time.Second,
		StopGrace:   500 * time.Millisecond,
		Logger:      zerolog.Nop(),
		command: func(ctx context.Context, _ model.Entry) *exec.Cmd {
			return exec.CommandContext(ctx, "sh", "-c", script)
		},
	}
}

func requireUnix(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}
}

func TestFFmpegCapture_ReadsFramesUntilClose(t *testing.T) {
	requireUnix(t)
	a := fakeAcquirer(`printf '\377\330one\377\331'; sleep 0.2; printf '\377\330two\377\331'; sleep 10`)

	c, err := a.Acquire(context.Background(), model.Entry{Key: "usb-1", Path: "/dev/video0"})
	require.NoError(t, err)

	f, err := c.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "usb-1", f.Key)
	assert.Equal(t, "image/jpeg", f.ContentType)
	assert.Equal(t, []byte("\xff\xd8one\xff\xd9"), f.Data)

	f, err = c.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []byte("\xff\xd8two\xff\xd9"), f.Data)

	done := make(chan error, 1)
	go func() { done <- c.Close() }()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Close did not return")
	}
	assert.NoError(t, c.Close())
}

func TestFFmpegCapture_ProcessExitFailsRead(t *testing.T) {
	requireUnix(t)
	a := fakeAcquirer(`echo "Cannot open video device" >&2; exit 1`)

	c, err := a.Acquire(context.Background(), model.Entry{Key: "usb-1", Path: "/dev/video0"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	_, err = c.Read(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "capture ended")
}

func TestFFmpegCapture_ReadTimeoutAndContext(t *testing.T) {
	requireUnix(t)
	a := fakeAcquirer(`sleep 10`)
	a.ReadTimeout = 50 * time.Millisecond

	c, err := a.Acquire(context.Background(), model.Entry{Key: "usb-1"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	_, err = c.Read(context.Background())
	assert.ErrorIs(t, err, ErrReadTimeout)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = c.Read(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFFmpegAcquirer_MissingDevice(t *testing.T) {
	a := &FFmpegAcquirer{}
	_, err := a.Acquire(context.Background(), model.Entry{Key: "k", Path: filepath.Join(t.TempDir(), "video9")})
	assert.ErrorIs(t, err, ErrDeviceUnavailable)
}

func TestFFmpegCommandArgs(t *testing.T) {
	a := &FFmpegAcquirer{Bin: "/usr/bin/ffmpeg", Settings: CaptureSettings{Width: 640, Height: 480, FPS: 15}}
	cmd := a.ffmpegCommand(context.Background(), model.Entry{Path: "/dev/video0"})
	assert.Equal(t, "/usr/bin/ffmpeg", cmd.Path)
	assert.Equal(t, []string{
		"/usr/bin/ffmpeg", "-hide_banner", "-loglevel", "error", "-f", "v4l2",
		"-framerate", "15", "-video_size", "640x480",
		"-i", "/dev/video0", "-f", "mjpeg", "-q:v", "5", "-",
	}, cmd.Args)
}

func TestTailBuffer(t *testing.T) {
	tb := &tailBuffer{limit: 4}
	_, _ = tb.Write([]byte("abcdef"))
	assert.Equal(t, "cdef", tb.String())
}

func TestFFmpegCapture_ReadAfterClose(t *testing.T) {
	requireUnix(t)
	c, err := fakeAcquirer(`sleep 10`).Acquire(context.Background(), model.Entry{Key: "usb-1"})
	require.NoError(t, err)
	require.NoError(t, c.Close())

	_, err = c.Read(context.Background())
	assert.ErrorIs(t, err, ErrCaptureClosed)
}
