// Package staging hands out private scratch directories for derivation runs.
package staging

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/google/uuid"

	"thirdcoast.systems/sonicstream/internal/faults"
)

var runIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// Manager creates run directories under Root.
type Manager struct {
	Root   string
	Logger *slog.Logger
}

// NewManager ensures root exists and returns a Manager for it.
func NewManager(root string, logger *slog.Logger) (*Manager, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, errors.New("staging: root directory is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("staging: create root: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{Root: root, Logger: logger}, nil
}

// Handle is one run's scratch space. Dir contains InputDir and OutputDir.
type Handle struct {
	RunID     string
	Dir       string
	InputDir  string
	OutputDir string

	logger  *slog.Logger
	once    sync.Once
	release error
}

// Acquire creates <root>/<runID>-<uuid> with input/ and output/ inside.
// Two runs never share a directory, even with the same runID.
func (m *Manager) Acquire(runID string) (*Handle, error) {
	if !runIDPattern.MatchString(runID) {
		return nil, faults.BadRequest("staging", fmt.Sprintf("invalid run id %q", runID))
	}

	dir := filepath.Join(m.Root, runID+"-"+uuid.NewString())
	h := &Handle{
		RunID:     runID,
		Dir:       dir,
		InputDir:  filepath.Join(dir, "input"),
		OutputDir: filepath.Join(dir, "output"),
		logger:    m.Logger,
	}

	// Mkdir (not MkdirAll) on the run directory so an existing path is an
	// error instead of silently shared.
	if err := os.Mkdir(dir, 0o700); err != nil {
		return nil, fmt.Errorf("staging: create run dir: %w", err)
	}
	for _, sub := range []string{h.InputDir, h.OutputDir} {
		if err := os.Mkdir(sub, 0o700); err != nil {
			_ = os.RemoveAll(dir)
			return nil, fmt.Errorf("staging: create %s: %w", filepath.Base(sub), err)
		}
	}

	m.logger().Debug("staging: acquired", "run_id", runID, "dir", dir)
	return h, nil
}

func (m *Manager) logger() *slog.Logger {
	if m.Logger != nil {
		return m.Logger
	}
	return slog.Default()
}

// Input returns a path inside the input directory.
func (h *Handle) Input(name string) string { return filepath.Join(h.InputDir, name) }

// Output returns a path inside the output directory.
func (h *Handle) Output(name string) string { return filepath.Join(h.OutputDir, name) }

// Release removes the run directory. Only the first call does any work;
// later calls return the first call's result. A directory that is already
// gone is not an error. Callers log the error, they do not propagate it.
func (h *Handle) Release() error {
	h.once.Do(func() {
		err := os.RemoveAll(h.Dir)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			h.release = fmt.Errorf("staging: release %s: %w", h.Dir, err)
			return
		}
		if h.logger != nil {
			h.logger.Debug("staging: released", "run_id", h.RunID, "dir", h.Dir)
		}
	})
	return h.release
}
