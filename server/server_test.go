package server

import (
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/getnao/nao-cli/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func listenOnFreePort(t *testing.T) (net.Listener, int) {
	t.Helper()
	ln, err := net.Listen("tcp", "localhost:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })
	_, portStr, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	return ln, port
}

func closedPort(t *testing.T) int {
	t.Helper()
	ln, port := listenOnFreePort(t)
	ln.Close()
	return port
}

// sleeperCommand stands in for a server artifact that starts but never
// binds its port.
func sleeperCommand() (string, []string, string, error) {
	return "sleep", []string{"30"}, "", nil
}

func testManager(t *testing.T) *Manager {
	t.Helper()
	m := NewManager(&config.NaoConfig{ProjectName: "p"}, t.TempDir())
	m.startupWait = 300 * time.Millisecond
	return m
}

func TestIsPortOpen(t *testing.T) {
	t.Run("Open port", func(t *testing.T) {
		_, port := listenOnFreePort(t)
		assert.True(t, IsPortOpen(port))
	})

	t.Run("Closed port", func(t *testing.T) {
		ln, port := listenOnFreePort(t)
		ln.Close()
		assert.False(t, IsPortOpen(port))
	})
}

func TestWaitForPort(t *testing.T) {
	t.Run("Already listening", func(t *testing.T) {
		_, port := listenOnFreePort(t)
		assert.True(t, waitForPort(port, time.Second))
	})

	t.Run("Becomes available during wait", func(t *testing.T) {
		ln, port := listenOnFreePort(t)
		ln.Close()

		go func() {
			time.Sleep(300 * time.Millisecond)
			reopened, err := net.Listen("tcp", "localhost:"+strconv.Itoa(port))
			if err != nil {
				return
			}
			time.Sleep(2 * time.Second)
			reopened.Close()
		}()

		assert.True(t, waitForPort(port, 3*time.Second))
	})

	t.Run("Times out when nothing listens", func(t *testing.T) {
		ln, port := listenOnFreePort(t)
		ln.Close()
		assert.False(t, waitForPort(port, 300*time.Millisecond))
	})
}

func TestManagerStart(t *testing.T) {
	t.Run("Skips externally owned servers", func(t *testing.T) {
		m := testManager(t)
		_, m.execPort = listenOnFreePort(t)
		_, m.chatPort = listenOnFreePort(t)
		m.locateExec = func() (string, []string, string, error) {
			t.Fatal("execution server locator called while the port was in use")
			return "", nil, "", nil
		}
		m.locateChat = func() (string, []string, string, error) {
			t.Fatal("chat server locator called while the port was in use")
			return "", nil, "", nil
		}

		require.NoError(t, m.Start())
		assert.True(t, m.execWasRunning)
		assert.True(t, m.chatWasRunning)
		assert.Empty(t, m.procs)
		m.Stop()
	})

	t.Run("Execution server startup timeout tears down", func(t *testing.T) {
		m := testManager(t)
		m.execPort = closedPort(t)
		m.chatPort = closedPort(t)
		m.locateExec = sleeperCommand

		err := m.Start()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "execution server did not open port")
		assert.Nil(t, m.procs)
	})

	t.Run("Chat server startup timeout tears down", func(t *testing.T) {
		t.Setenv("BETTER_AUTH_SECRET", "test-secret")
		m := testManager(t)
		_, m.execPort = listenOnFreePort(t)
		m.chatPort = closedPort(t)
		m.locateChat = sleeperCommand

		err := m.Start()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "chat server did not open port")
		assert.Nil(t, m.procs)
	})

	t.Run("Locator failure aborts the start", func(t *testing.T) {
		m := testManager(t)
		m.execPort = closedPort(t)
		m.locateExec = func() (string, []string, string, error) {
			return "", nil, "", os.ErrNotExist
		}

		err := m.Start()
		require.Error(t, err)
		assert.Nil(t, m.procs)
	})
}

func TestManagerStop(t *testing.T) {
	m := testManager(t)
	require.NoError(t, m.spawn("sleeper", "sleep", []string{"30"}, "", os.Environ()))
	require.Len(t, m.procs, 1)
	pid := m.procs[0].cmd.Process.Pid

	m.Stop()

	assert.Nil(t, m.procs)
	// The process is reaped by Stop, so signalling it must fail.
	assert.Error(t, syscall.Kill(pid, syscall.Signal(0)))
}

func TestEnsureAuthSecret(t *testing.T) {
	t.Setenv("BETTER_AUTH_SECRET", "")

	t.Run("Generates and persists a secret", func(t *testing.T) {
		dir := t.TempDir()
		secret, err := ensureAuthSecret(dir)
		require.NoError(t, err)
		assert.NotEmpty(t, secret)
		assert.NotContains(t, secret, "=")

		info, err := os.Stat(filepath.Join(dir, SecretFileName))
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
	})

	t.Run("Reuses the persisted secret", func(t *testing.T) {
		dir := t.TempDir()
		first, err := ensureAuthSecret(dir)
		require.NoError(t, err)
		second, err := ensureAuthSecret(dir)
		require.NoError(t, err)
		assert.Equal(t, first, second)
	})

	t.Run("Ignores an empty secret file", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, SecretFileName), []byte("  \n"), 0600))
		secret, err := ensureAuthSecret(dir)
		require.NoError(t, err)
		assert.NotEmpty(t, strings.TrimSpace(secret))
	})

	t.Run("Environment override skips generation", func(t *testing.T) {
		t.Setenv("BETTER_AUTH_SECRET", "from-env")
		dir := t.TempDir()
		secret, err := ensureAuthSecret(dir)
		require.NoError(t, err)
		assert.Empty(t, secret)
		_, statErr := os.Stat(filepath.Join(dir, SecretFileName))
		assert.True(t, os.IsNotExist(statErr))
	})
}
