package derive

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"thirdcoast.systems/sonicstream/internal/faults"
	"thirdcoast.systems/sonicstream/internal/staging"
)

// State is a step of a derivation run.
type State int

const (
	StateStaging State = iota
	StateInvoking
	StateValidating
	StatePublishing
	StateRecordingMetadata
	StateCleaningUp
	StateDone
	StateAborted
)

var stateNames = [...]string{
	StateStaging:           "staging",
	StateInvoking:          "invoking",
	StateValidating:        "validating",
	StatePublishing:        "publishing",
	StateRecordingMetadata: "recording_metadata",
	StateCleaningUp:        "cleaning_up",
	StateDone:              "done",
	StateAborted:           "aborted",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// Terminal reports whether no further transition can follow s.
func (s State) Terminal() bool { return s == StateDone || s == StateAborted }

// Run tracks one derivation from its first state to Done or Aborted.
type Run struct {
	ID         string
	Derivation string

	mu       sync.Mutex
	asset    string
	state    State
	history  []State
	err      error
	started  time.Time
	logger   *slog.Logger
	handle   *staging.Handle
	releases []func()
}

func newRun(derivation, assetName string, logger *slog.Logger) *Run {
	r := &Run{
		ID:         uuid.NewString(),
		Derivation: derivation,
		asset:      assetName,
		state:      StateStaging,
		history:    []State{StateStaging},
		started:    time.Now(),
	}
	r.logger = logger.With("run_id", r.ID, "derivation", derivation)
	if assetName != "" {
		r.logger = r.logger.With("asset", assetName)
	}
	r.logger.Debug("derive: run started", "state", StateStaging.String())
	return r
}

// State returns the current state.
func (r *Run) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// History returns every state the run has entered, in order.
func (r *Run) History() []State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.history)
}

// Asset returns the asset name the run works on, once known.
func (r *Run) Asset() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.asset
}

// Err is the error that aborted the run.
func (r *Run) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

func (r *Run) log() *slog.Logger {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.logger
}

func (r *Run) setAsset(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.asset = name
	r.logger = r.logger.With("asset", name)
}

func (r *Run) transition(to State) {
	r.mu.Lock()
	from := r.state
	if from.Terminal() || from == to {
		r.mu.Unlock()
		return
	}
	r.state = to
	r.history = append(r.history, to)
	logger := r.logger
	r.mu.Unlock()

	logger.Info("derive: state transition", "from", from.String(), "to", to.String())
}

// hold registers a release func that runs during cleanup, in reverse order.
func (r *Run) hold(release func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.releases = append(r.releases, release)
}

func (r *Run) stage(m *staging.Manager) (*staging.Handle, error) {
	h, err := m.Acquire(r.ID)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	r.handle = h
	r.mu.Unlock()
	r.log().Debug("derive: staging acquired", "dir", h.Dir)
	return h, nil
}

// finish runs cleanup unconditionally and settles the run. Cleanup failures
// are logged and never replace the run's outcome.
func (r *Run) finish(errp *error) {
	r.transition(StateCleaningUp)

	r.mu.Lock()
	handle := r.handle
	releases := r.releases
	r.releases = nil
	logger := r.logger
	r.mu.Unlock()

	if handle != nil {
		if err := handle.Release(); err != nil {
			logger.Warn("derive: staging release failed", "dir", handle.Dir, "error", err)
		}
	}
	for i := len(releases) - 1; i >= 0; i-- {
		releases[i]()
	}

	var err error
	if errp != nil {
		err = *errp
	}
	if err == nil {
		r.transition(StateDone)
		logger.Info("derive: run complete", "duration", time.Since(r.started))
		return
	}

	r.mu.Lock()
	r.err = err
	r.mu.Unlock()
	r.transition(StateAborted)

	level := slog.LevelError
	if k := faults.KindOf(err); k == "BadRequest" || k == "AssetNotFound" || errorsIsCanceled(err) {
		level = slog.LevelWarn
	}
	logger.Log(context.Background(), level, "derive: run aborted",
		"kind", faults.KindOf(err),
		"duration", time.Since(r.started),
		"error", err)
}
