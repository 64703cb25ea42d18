// Package server manages the lifecycle of the two backing servers the test
// harness depends on (the SQL execution server and the chat/agent server)
// and provides the HTTP client for SQL execution.
package server

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/getnao/nao-cli/config"
	"github.com/getnao/nao-cli/logger"
)

const (
	// Ports are a fixed contract shared with the chat server build.
	ChatServerPort = 5005
	ExecServerPort = 8005

	SecretFileName   = ".nao-secret"
	ChatServerBinary = "nao-chat-server"

	startupTimeout = 30 * time.Second
	pollInterval   = 100 * time.Millisecond
	dialTimeout    = 100 * time.Millisecond
	stopTimeout    = 5 * time.Second
)

// ============================================================================
// PORT UTILITIES
// ============================================================================

// IsPortOpen reports whether something is listening on localhost:port.
func IsPortOpen(port int) bool {
	conn, err := net.DialTimeout("tcp", net.JoinHostPort("localhost", strconv.Itoa(port)), dialTimeout)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

// waitForPort polls until the port answers or the timeout elapses.
// Readiness is a bounded busy-wait, not an event; the servers expose no
// health endpoint before they bind.
func waitForPort(port int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if IsPortOpen(port) {
			return true
		}
		time.Sleep(pollInterval)
	}
	return false
}

// ============================================================================
// ARTIFACT DISCOVERY
// ============================================================================

// executableDir resolves the directory holding the nao binary; bundled
// server artifacts live under its bin/ subdirectory.
func executableDir() string {
	exe, err := os.Executable()
	if err != nil {
		return "."
	}
	return filepath.Dir(exe)
}

// chatServerCommand locates the chat server launch artifact. A prebuilt
// binary takes precedence; a development checkout falls back to running
// the backend sources with bun.
func chatServerCommand() (name string, args []string, dir string, err error) {
	binDir := filepath.Join(executableDir(), "bin")
	binary := filepath.Join(binDir, ChatServerBinary)
	if _, statErr := os.Stat(binary); statErr == nil {
		return binary, nil, binDir, nil
	}

	backendDir := filepath.Join("apps", "backend")
	if _, statErr := os.Stat(filepath.Join(backendDir, "src", "index.ts")); statErr == nil {
		logger.Logger.Debug("Chat server binary not found, using development mode", "dir", backendDir)
		return "bun", []string{"run", "src/index.ts"}, backendDir, nil
	}

	return "", nil, "", fmt.Errorf(
		"chat server binary not found at %s: build the server or start the backend manually", binary)
}

// execServerCommand locates the execution server entrypoint, preferring the
// bundled copy over a development checkout.
func execServerCommand() (name string, args []string, dir string, err error) {
	bundled := filepath.Join(executableDir(), "bin", "fastapi", "main.py")
	if _, statErr := os.Stat(bundled); statErr == nil {
		return "python3", []string{bundled}, filepath.Dir(bundled), nil
	}

	dev := filepath.Join("apps", "backend", "fastapi", "main.py")
	if _, statErr := os.Stat(dev); statErr == nil {
		return "python3", []string{dev}, "", nil
	}

	return "", nil, "", fmt.Errorf("execution server entrypoint not found (looked at %s)", bundled)
}

// ensureAuthSecret returns the shared secret used for inter-process auth.
// It returns "" when BETTER_AUTH_SECRET is already exported. A persisted
// secret is reused; otherwise a fresh one is generated and written with
// owner-only permissions. Persistence failure is not fatal.
func ensureAuthSecret(dir string) (string, error) {
	if os.Getenv("BETTER_AUTH_SECRET") != "" {
		return "", nil
	}

	secretPath := filepath.Join(dir, SecretFileName)
	if data, err := os.ReadFile(secretPath); err == nil {
		if secret := strings.TrimSpace(string(data)); secret != "" {
			return secret, nil
		}
	}

	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate auth secret: %w", err)
	}
	secret := base64.RawURLEncoding.EncodeToString(buf)

	if err := os.WriteFile(secretPath, []byte(secret), 0600); err != nil {
		logger.Logger.Debug("Could not persist auth secret", "path", secretPath, "error", err)
	}
	return secret, nil
}

// ============================================================================
// SERVER MANAGER
// ============================================================================

type managedProcess struct {
	name   string
	cmd    *exec.Cmd
	waitCh chan error
}

// Manager starts and stops the backing servers for a test run. Servers
// found already listening are treated as externally owned and are never
// touched on Stop.
type Manager struct {
	cfg           *config.NaoConfig
	projectFolder string

	// Ports, the startup wait and the artifact locators default to the
	// package constants; tests override them.
	execPort    int
	chatPort    int
	startupWait time.Duration
	locateExec  func() (name string, args []string, dir string, err error)
	locateChat  func() (name string, args []string, dir string, err error)

	procs          []*managedProcess
	chatWasRunning bool
	execWasRunning bool
}

func NewManager(cfg *config.NaoConfig, projectFolder string) *Manager {
	return &Manager{
		cfg:           cfg,
		projectFolder: projectFolder,
		execPort:      ExecServerPort,
		chatPort:      ChatServerPort,
		startupWait:   startupTimeout,
		locateExec:    execServerCommand,
		locateChat:    chatServerCommand,
	}
}

// Start brings up the execution server and then the chat server, skipping
// any that already answer on their port. Either server failing to bind
// within the startup timeout aborts the run: anything already spawned is
// torn down and the error is returned.
func (m *Manager) Start() error {
	env := os.Environ()
	env = append(env, "NAO_TEST_MODE=true")
	if m.cfg.LLM != nil {
		env = append(env, m.cfg.LLM.APIKeyEnvVar()+"="+m.cfg.LLM.APIKey)
	}
	env = append(env, "NAO_DEFAULT_PROJECT_PATH="+m.projectFolder)
	env = append(env, fmt.Sprintf("FASTAPI_URL=http://localhost:%d", m.execPort))

	if IsPortOpen(m.execPort) {
		logger.Logger.Info("Execution server already running", "port", m.execPort)
		m.execWasRunning = true
	} else {
		name, args, dir, err := m.locateExec()
		if err != nil {
			return err
		}
		logger.Logger.Info("Starting execution server", "port", m.execPort)
		if err := m.spawn("execution server", name, args, dir, env); err != nil {
			m.Stop()
			return err
		}
		if !waitForPort(m.execPort, m.startupWait) {
			m.Stop()
			return fmt.Errorf("execution server did not open port %d within %s", m.execPort, m.startupWait)
		}
		logger.Logger.Info("Execution server ready", "port", m.execPort)
	}

	if IsPortOpen(m.chatPort) {
		logger.Logger.Info("Chat server already running", "port", m.chatPort)
		m.chatWasRunning = true
	} else {
		name, args, dir, err := m.locateChat()
		if err != nil {
			m.Stop()
			return err
		}

		secret, err := ensureAuthSecret(dir)
		if err != nil {
			m.Stop()
			return err
		}
		if secret != "" {
			env = append(env, "BETTER_AUTH_SECRET="+secret)
		}

		logger.Logger.Info("Starting chat server", "port", m.chatPort)
		if err := m.spawn("chat server", name, args, dir, env); err != nil {
			m.Stop()
			return err
		}
		if !waitForPort(m.chatPort, m.startupWait) {
			m.Stop()
			return fmt.Errorf("chat server did not open port %d within %s", m.chatPort, m.startupWait)
		}
		logger.Logger.Info("Chat server ready", "port", m.chatPort)
	}

	return nil
}

func (m *Manager) spawn(name, path string, args []string, dir string, env []string) error {
	cmd := exec.Command(path, args...)
	cmd.Dir = dir
	cmd.Env = env

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start %s: %w", name, err)
	}

	p := &managedProcess{name: name, cmd: cmd, waitCh: make(chan error, 1)}
	go func() {
		p.waitCh <- cmd.Wait()
	}()

	m.procs = append(m.procs, p)
	logger.Logger.Debug("Process started", "name", name, "pid", cmd.Process.Pid)
	return nil
}

// Stop terminates every process this manager spawned. Servers that were
// already running when Start ran are left untouched. Termination is
// graceful first, with a force-kill fallback; errors never propagate.
func (m *Manager) Stop() {
	for _, p := range m.procs {
		if p.cmd.Process == nil {
			continue
		}

		if err := p.cmd.Process.Signal(syscall.SIGTERM); err != nil {
			logger.Logger.Debug("Terminate signal failed", "name", p.name, "error", err)
		}

		select {
		case <-p.waitCh:
			logger.Logger.Debug("Process exited", "name", p.name)
		case <-time.After(stopTimeout):
			logger.Logger.Warn("Process did not exit in time, killing", "name", p.name)
			if err := p.cmd.Process.Kill(); err != nil {
				logger.Logger.Debug("Kill failed", "name", p.name, "error", err)
			}
			<-p.waitCh
		}
	}

	m.procs = nil
	logger.Logger.Info("Servers stopped")
}
