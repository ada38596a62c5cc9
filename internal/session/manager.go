// Package session runs the shell processes behind terminal panes. Each
// session owns one pty; output is fanned out to a listener so the UI layer
// can feed its terminal renderer and mark the pane dirty.
package session

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"github.com/creack/pty"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const defaultShell = "/bin/sh"

// OutputListener receives raw pty output for a session. It is called from
// the session's reader goroutine.
type OutputListener func(sessionID string, data []byte)

// ExitListener is called once when a session's process ends, with the
// process error if it exited abnormally.
type ExitListener func(sessionID string, err error)

type session struct {
	id   string
	cmd  *exec.Cmd
	ptmx *os.File

	mu     sync.Mutex
	closed bool
}

// Manager tracks live terminal sessions by id.
type Manager struct {
	log   zerolog.Logger
	shell string

	mu       sync.Mutex
	sessions map[string]*session
	onOutput OutputListener
	onExit   ExitListener
}

// NewManager creates a session manager. shell overrides the user's $SHELL;
// pass "" to inherit, falling back to /bin/sh when neither is set.
func NewManager(shell string, logger zerolog.Logger) *Manager {
	return &Manager{
		log:      logger.With().Str("component", "session").Logger(),
		shell:    shell,
		sessions: make(map[string]*session),
	}
}

// OnOutput sets the output listener. Must be called before Create.
func (m *Manager) OnOutput(fn OutputListener) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.onOutput = fn
}

// OnExit sets the exit listener. Must be called before Create.
func (m *Manager) OnExit(fn ExitListener) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.onExit = fn
}

// Create starts a new shell session sized to cols x rows in the given
// working directory and returns its id. cwd goes through ResolveCwd; an
// unresolvable directory falls back to inheriting the process cwd.
func (m *Manager) Create(cols, rows uint16, cwd string) (string, error) {
	shell := m.resolveShell()
	if cols == 0 {
		cols = 80
	}
	if rows == 0 {
		rows = 24
	}

	cmd := exec.Command(shell)
	cmd.Env = append(os.Environ(), "TERM=xterm-256color")
	if dir, err := ResolveCwd(cwd); err == nil {
		cmd.Dir = dir
	} else {
		m.log.Warn().Err(err).Str("cwd", cwd).Msg("working directory unresolved, inheriting")
	}

	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{Rows: rows, Cols: cols})
	if err != nil {
		return "", fmt.Errorf("start shell %s: %w", shell, err)
	}

	s := &session{
		id:   uuid.NewString(),
		cmd:  cmd,
		ptmx: ptmx,
	}

	m.mu.Lock()
	m.sessions[s.id] = s
	output := m.onOutput
	m.mu.Unlock()

	m.log.Debug().Str("session_id", s.id).Str("shell", shell).Msg("session created")
	go m.readLoop(s, output)
	return s.id, nil
}

func (m *Manager) resolveShell() string {
	if m.shell != "" {
		return m.shell
	}
	if shell := os.Getenv("SHELL"); shell != "" {
		return shell
	}
	return defaultShell
}

// ResolveCwd expands a session's requested working directory: empty falls
// back to the user's home, a leading ~ is expanded against it. Anything
// else passes through untouched.
func ResolveCwd(cwd string) (string, error) {
	if cwd == "" {
		return os.UserHomeDir()
	}
	if cwd == "~" || strings.HasPrefix(cwd, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, strings.TrimPrefix(cwd, "~")), nil
	}
	return cwd, nil
}

// readLoop pumps pty output to the listener until the process ends, then
// reaps it and notifies the exit listener.
func (m *Manager) readLoop(s *session, output OutputListener) {
	buf := make([]byte, 4096)
	for {
		n, err := s.ptmx.Read(buf)
		if n > 0 && output != nil {
			data := make([]byte, n)
			copy(data, buf[:n])
			output(s.id, data)
		}
		if err != nil {
			break
		}
	}

	waitErr := s.cmd.Wait()

	m.mu.Lock()
	_, alive := m.sessions[s.id]
	delete(m.sessions, s.id)
	onExit := m.onExit
	m.mu.Unlock()

	s.close()

	if !alive {
		// Kill already reported this session as gone.
		return
	}
	m.log.Debug().Str("session_id", s.id).Err(waitErr).Msg("session exited")
	if onExit != nil {
		onExit(s.id, waitErr)
	}
}

func (s *session) close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	_ = s.ptmx.Close()
}

// Write sends input bytes to a session's pty.
func (m *Manager) Write(id string, data []byte) error {
	s, err := m.get(id)
	if err != nil {
		return err
	}
	if _, err := s.ptmx.Write(data); err != nil {
		return fmt.Errorf("write to session %s: %w", id, err)
	}
	return nil
}

// Resize updates a session's pty window size.
func (m *Manager) Resize(id string, cols, rows uint16) error {
	if cols == 0 || rows == 0 {
		return fmt.Errorf("resize session %s: invalid size %dx%d", id, cols, rows)
	}
	s, err := m.get(id)
	if err != nil {
		return err
	}
	if err := pty.Setsize(s.ptmx, &pty.Winsize{Rows: rows, Cols: cols}); err != nil {
		return fmt.Errorf("resize session %s: %w", id, err)
	}
	return nil
}

// Kill terminates a session's process and removes it. The exit listener is
// not called for killed sessions; the caller initiated the teardown.
func (m *Manager) Kill(id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if !ok {
		return fmt.Errorf("session %s: %w", id, errNotFound)
	}

	s.close()
	if s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
	}
	m.log.Debug().Str("session_id", id).Msg("session killed")
	return nil
}

// KillAll terminates every live session. Used on shutdown.
func (m *Manager) KillAll() {
	m.mu.Lock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	for _, id := range ids {
		_ = m.Kill(id)
	}
}

// Has reports whether a session id is live.
func (m *Manager) Has(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, ok := m.sessions[id]
	return ok
}

// List returns the ids of all live sessions.
func (m *Manager) List() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	return ids
}

var errNotFound = errors.New("not found")

// ErrNotFound reports whether err means the session id is unknown.
func ErrNotFound(err error) bool {
	return errors.Is(err, errNotFound)
}

func (m *Manager) get(id string) (*session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("session %s: %w", id, errNotFound)
	}
	return s, nil
}
