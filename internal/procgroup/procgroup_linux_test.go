// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

//go:build linux

package procgroup

import (
	"errors"
	"os/exec"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startGroup(t *testing.T, script string) (*exec.Cmd, <-chan error) {
	t.Helper()
	cmd := exec.Command("sh", "-c", script)
	Set(cmd)
	require.NoError(t, cmd.Start())

	waitCh := make(chan error, 1)
	go func() { waitCh <- cmd.Wait() }()
	return cmd, waitCh
}

func TestProcessGroupKill(t *testing.T) {
	cmd, waitCh := startGroup(t, "sleep 10 & sleep 10")
	pid := cmd.Process.Pid

	// Wait a moment for the shell to spawn children
	time.Sleep(100 * time.Millisecond)

	pgid, err := syscall.Getpgid(pid)
	require.NoError(t, err)
	assert.Equal(t, pid, pgid, "Process should be group leader")

	require.NoError(t, Kill(cmd, syscall.SIGKILL))

	err = <-waitCh
	var exitErr *exec.ExitError
	require.True(t, errors.As(err, &exitErr))
	status, ok := exitErr.Sys().(syscall.WaitStatus)
	require.True(t, ok)
	assert.Equal(t, syscall.SIGKILL, status.Signal())

	time.Sleep(50 * time.Millisecond)
	err = syscall.Kill(-pgid, syscall.Signal(0))
	if err == nil {
		_ = syscall.Kill(-pgid, syscall.SIGKILL)
	}
	assert.ErrorIs(t, err, syscall.ESRCH, "Process group should not exist")
}

func TestTerminate_GracefulExit(t *testing.T) {
	cmd, waitCh := startGroup(t, "trap 'exit 0' TERM; while :; do sleep 0.05; done")
	time.Sleep(100 * time.Millisecond)

	err := Terminate(cmd, waitCh, 2*time.Second)
	assert.NoError(t, err)
}

func TestTerminate_EscalatesToKill(t *testing.T) {
	cmd, waitCh := startGroup(t, "trap '' TERM; sleep 10")
	time.Sleep(100 * time.Millisecond)

	start := time.Now()
	err := Terminate(cmd, waitCh, 100*time.Millisecond)
	require.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestTerminate_NilCommand(t *testing.T) {
	assert.NoError(t, Terminate(nil, nil, time.Millisecond))
	assert.NoError(t, Kill(nil, syscall.SIGTERM))
}
