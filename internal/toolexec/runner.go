package toolexec

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"thirdcoast.systems/sonicstream/internal/faults"
)

const (
	// DefaultTimeout bounds a run when neither the Command nor the Runner
	// sets one.
	DefaultTimeout = 30 * time.Minute
	// DefaultMaxOutput is the per-stream capture ceiling.
	DefaultMaxOutput int64 = 10 * 1024 * 1024
	// DefaultSearchPath is handed to tools when no override is configured.
	DefaultSearchPath = "/usr/local/sbin:/usr/local/bin:/usr/sbin:/usr/bin:/sbin:/bin"
)

// Contract declares what a successful run must leave behind.
type Contract struct {
	// Paths are files or directories that must exist after a zero exit.
	// Relative paths are resolved against Command.Dir.
	Paths []string
	// Structured requires stdout to be a single JSON document.
	Structured bool
}

// Command describes one tool invocation.
type Command struct {
	// Name is the executable, either a bare name resolved against the
	// runner's search path or an explicit path.
	Name string
	Args []string
	// Env holds KEY=VALUE pairs the tool needs beyond the runner's base
	// environment. Later entries win.
	Env      []string
	Dir      string
	Timeout  time.Duration
	Contract Contract
	// OnLine, when set, receives each non-empty output line as it arrives.
	OnLine func(stream string, line string)
}

// Result is the outcome of a run. It is returned alongside a ToolError so
// callers can log diagnostics for failed runs too.
type Result struct {
	Tool     string
	ExitCode int
	Stdout   []byte
	Stderr   []byte
	// OutputTruncated is set when either captured stream hit the ceiling.
	OutputTruncated bool
	// Document is stdout parsed as JSON when the contract is Structured.
	Document json.RawMessage
	Duration time.Duration
}

// Process is the fully resolved child process handed to an ExecFunc.
type Process struct {
	Path   string
	Args   []string
	Env    []string
	Dir    string
	Stdout io.Writer
	Stderr io.Writer
}

// ExecFunc starts a process and waits for it. It returns the exit code of a
// process that ran (which may be non-zero) and an error only when the process
// could not be run or waited on.
type ExecFunc func(ctx context.Context, p Process) (int, error)

// Runner executes Commands.
type Runner struct {
	// SearchPath is the PATH given to every tool and used to resolve bare
	// executable names.
	SearchPath string
	// BaseEnv is prepended to every Command's Env.
	BaseEnv        []string
	DefaultTimeout time.Duration
	MaxOutput      int64
	Logger         *slog.Logger

	// Exec runs the process. Nil uses os/exec; tests substitute it.
	Exec ExecFunc
}

// NewRunner returns a Runner with default limits.
func NewRunner(searchPath string) *Runner {
	return &Runner{
		SearchPath:     searchPath,
		DefaultTimeout: DefaultTimeout,
		MaxOutput:      DefaultMaxOutput,
	}
}

func (r *Runner) logger() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return slog.Default()
}

func (r *Runner) searchPath() string {
	if strings.TrimSpace(r.SearchPath) == "" {
		return DefaultSearchPath
	}
	return r.SearchPath
}

// Environ returns the exact environment a Command would receive.
func (r *Runner) Environ(c Command) []string {
	env := make([]string, 0, len(r.BaseEnv)+len(c.Env)+1)
	env = append(env, "PATH="+r.searchPath())
	env = append(env, r.BaseEnv...)
	env = append(env, c.Env...)
	return env
}

// Run executes c and validates its Contract.
func (r *Runner) Run(ctx context.Context, c Command) (*Result, error) {
	name := strings.TrimSpace(c.Name)
	if name == "" {
		return nil, faults.BadRequest("toolexec", "command name is required")
	}

	res := &Result{Tool: name, ExitCode: -1}

	path, err := LookPath(name, r.searchPath())
	if err != nil {
		return res, &ToolError{Kind: faults.ErrToolFailed, Tool: name, Args: c.Args, Cause: err}
	}

	timeout := c.Timeout
	if timeout <= 0 {
		timeout = r.DefaultTimeout
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	limit := r.MaxOutput
	if limit <= 0 {
		limit = DefaultMaxOutput
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	stdout := &cappedBuffer{limit: limit}
	stderr := &cappedBuffer{limit: limit}
	outW := &lineWriter{stream: "stdout", callback: c.OnLine, buffer: stdout}
	errW := &lineWriter{stream: "stderr", callback: c.OnLine, buffer: stderr}

	execFn := r.Exec
	if execFn == nil {
		execFn = execProcess
	}

	r.logger().Info("toolexec: executing command", "tool", name, "path", path, "args", c.Args, "timeout", timeout)

	start := time.Now()
	exitCode, execErr := execFn(runCtx, Process{
		Path:   path,
		Args:   c.Args,
		Env:    r.Environ(c),
		Dir:    c.Dir,
		Stdout: outW,
		Stderr: errW,
	})
	outW.Flush()
	errW.Flush()

	res.Duration = time.Since(start)
	res.ExitCode = exitCode
	res.Stdout = stdout.Bytes()
	res.Stderr = stderr.Bytes()
	res.OutputTruncated = stdout.truncated || stderr.truncated

	r.logger().Debug("toolexec: command finished",
		"tool", name,
		"exit_code", exitCode,
		"duration", res.Duration,
		"stdout", humanize.IBytes(uint64(len(res.Stdout))),
		"stderr", humanize.IBytes(uint64(len(res.Stderr))),
		"truncated", res.OutputTruncated)

	if res.OutputTruncated {
		r.logger().Warn("toolexec: captured output truncated", "tool", name, "limit", humanize.IBytes(uint64(limit)))
	}

	toolErr := func(kind error, cause error) *ToolError {
		return &ToolError{
			Kind:     kind,
			Tool:     name,
			Args:     c.Args,
			ExitCode: exitCode,
			Stderr:   stderrTail(res.Stderr),
			Cause:    cause,
		}
	}

	// Context state decides timeouts and cancellation; the exit status of a
	// killed process carries no useful information.
	if ctx.Err() != nil {
		return res, toolErr(faults.ErrToolFailed, fmt.Errorf("canceled: %w", ctx.Err()))
	}
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return res, toolErr(faults.ErrToolTimedOut, fmt.Errorf("exceeded %s", timeout))
	}
	if execErr != nil {
		return res, toolErr(faults.ErrToolFailed, execErr)
	}
	if exitCode != 0 {
		return res, toolErr(faults.ErrToolFailed, nil)
	}

	if missing := missingPaths(c.Dir, c.Contract.Paths); len(missing) > 0 {
		te := toolErr(faults.ErrOutputMissing, nil)
		te.Missing = missing
		return res, te
	}

	if c.Contract.Structured {
		if stdout.truncated {
			return res, toolErr(faults.ErrOutputMalformed, errors.New("structured output exceeded capture limit"))
		}
		doc := bytes.TrimSpace(res.Stdout)
		if len(doc) == 0 || !json.Valid(doc) {
			return res, toolErr(faults.ErrOutputMalformed, errors.New("stdout is not a JSON document"))
		}
		res.Document = append(json.RawMessage(nil), doc...)
	}

	return res, nil
}

func missingPaths(dir string, paths []string) []string {
	var missing []string
	for _, p := range paths {
		if !filepath.IsAbs(p) && dir != "" {
			p = filepath.Join(dir, p)
		}
		if _, err := os.Stat(p); err != nil {
			missing = append(missing, p)
		}
	}
	return missing
}

// LookPath resolves name against searchPath instead of the parent process's
// PATH. Names containing a separator are used as given.
func LookPath(name, searchPath string) (string, error) {
	if strings.ContainsRune(name, filepath.Separator) {
		if err := checkExecutable(name); err != nil {
			return "", fmt.Errorf("resolve %s: %w", name, err)
		}
		return name, nil
	}
	for _, dir := range filepath.SplitList(searchPath) {
		if dir == "" {
			continue
		}
		candidate := filepath.Join(dir, name)
		if checkExecutable(candidate) == nil {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("resolve %s: %w", name, exec.ErrNotFound)
}

func checkExecutable(path string) error {
	fi, err := os.Stat(path)
	if err != nil {
		return err
	}
	if fi.IsDir() {
		return fmt.Errorf("%s is a directory", path)
	}
	if fi.Mode()&0o111 == 0 {
		return fmt.Errorf("%s is not executable", path)
	}
	return nil
}

func execProcess(ctx context.Context, p Process) (int, error) {
	cmd := exec.CommandContext(ctx, p.Path, p.Args...)
	// A non-nil, explicit slice so nothing leaks in from the parent.
	cmd.Env = append([]string{}, p.Env...)
	cmd.Dir = p.Dir
	cmd.Stdout = p.Stdout
	cmd.Stderr = p.Stderr
	cmd.WaitDelay = 5 * time.Second
	isolateProcessGroup(cmd)

	if err := cmd.Start(); err != nil {
		return -1, err
	}
	err := cmd.Wait()
	if err == nil {
		return 0, nil
	}
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		return ee.ExitCode(), nil
	}
	return -1, err
}
