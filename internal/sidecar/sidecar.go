// Package sidecar runs an external worker process and turns URLs found in
// its output into detections.
package sidecar

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"runtime"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/starford/shortwatch/internal/extract"
)

// State is the supervisor's lifecycle state.
type State int

const (
	NotStarted State = iota
	Running
	Terminated
	Crashed
)

func (s State) String() string {
	switch s {
	case NotStarted:
		return "not_started"
	case Running:
		return "running"
	case Terminated:
		return "terminated"
	case Crashed:
		return "crashed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// ExitStatus describes how the last child process ended.
type ExitStatus struct {
	Code     int    `json:"code"`
	Signaled bool   `json:"signaled"`
	Err      string `json:"error,omitempty"`
}

// Handler receives every URL the classifier finds.
type Handler func(ctx context.Context, url string)

// Options configures a Supervisor.
type Options struct {
	Command string
	Args    []string
	Dir     string
	Env     []string
	// Stdin feeds the child's standard input; nil means /dev/null.
	Stdin io.Reader

	// Classifier picks URLs out of output lines; defaults to the
	// absolute-URL marker classifier.
	Classifier extract.Classifier

	// MaxRestarts bounds how often a dead child is respawned by Run.
	// 0 never restarts; negative restarts forever.
	MaxRestarts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration

	// OnExit, when set, is called after each child exits and its status
	// has been recorded.
	OnExit func(state State, status ExitStatus)

	Logger *slog.Logger
}

const maxLineSize = 1 << 20

// Supervisor owns one child process at a time.
type Supervisor struct {
	opts   Options
	handle Handler

	mu       sync.Mutex
	state    State
	status   ExitStatus
	restarts int
	done     chan struct{}
}

// New creates a supervisor. Nothing is spawned until Start or Run.
func New(opts Options, handle Handler) *Supervisor {
	if opts.Classifier == nil {
		opts.Classifier = extract.MarkerClassifier{}
	}
	if opts.InitialBackoff <= 0 {
		opts.InitialBackoff = time.Second
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = 30 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	done := make(chan struct{})
	close(done)
	return &Supervisor{opts: opts, handle: handle, done: done}
}

// State returns the current lifecycle state.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// ExitStatus returns how the most recent child ended.
func (s *Supervisor) ExitStatus() ExitStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Restarts returns how many times Run respawned the child.
func (s *Supervisor) Restarts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.restarts
}

// Done is closed when the current child has exited and its output has been
// fully read.
func (s *Supervisor) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

// Start spawns the child and returns once it is running. Cancelling ctx
// kills the child. A spawn failure is returned as is.
func (s *Supervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.state == Running {
		s.mu.Unlock()
		return errors.New("sidecar: already running")
	}
	s.mu.Unlock()

	cmd := exec.CommandContext(ctx, s.opts.Command, s.opts.Args...)
	cmd.Dir = s.opts.Dir
	cmd.Stdin = s.opts.Stdin
	if len(s.opts.Env) > 0 {
		cmd.Env = s.opts.Env
	}
	cmd.WaitDelay = 2 * time.Second

	// One pipe for both streams: their relative order is not meaningful and
	// either may carry URLs.
	pr, pw := io.Pipe()
	cmd.Stdout = pw
	cmd.Stderr = pw

	if err := cmd.Start(); err != nil {
		_ = pw.Close()
		_ = pr.Close()
		return fmt.Errorf("sidecar: spawn %s: %w", s.opts.Command, err)
	}

	done := make(chan struct{})
	s.mu.Lock()
	s.state = Running
	s.status = ExitStatus{}
	s.done = done
	s.mu.Unlock()

	s.opts.Logger.Info("sidecar: started",
		slog.String("command", s.opts.Command),
		slog.Int("pid", cmd.Process.Pid))

	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		s.readLines(ctx, pr)
	}()

	go func() {
		waitErr := cmd.Wait()
		_ = pw.Close()
		<-readDone
		s.exited(cmd, waitErr)
		close(done)
	}()
	return nil
}

// readLines hands each complete line to the classifier. Lines longer than
// maxLineSize are dropped and reading continues with the next line.
func (s *Supervisor) readLines(ctx context.Context, r io.ReadCloser) {
	defer r.Close()
	br := bufio.NewReaderSize(r, 64*1024)

	var line []byte
	oversized := false
	for {
		chunk, isPrefix, err := br.ReadLine()
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrClosedPipe) {
				s.opts.Logger.Warn("sidecar: read failed", slog.String("error", err.Error()))
			}
			return
		}
		if !oversized {
			if len(line)+len(chunk) > maxLineSize {
				oversized = true
				line = line[:0]
			} else {
				line = append(line, chunk...)
			}
		}
		if isPrefix {
			continue
		}
		if oversized {
			s.opts.Logger.Warn("sidecar: dropped oversized line", slog.Int("limit", maxLineSize))
			oversized = false
			continue
		}
		s.classify(ctx, string(line))
		line = line[:0]
	}
}

func (s *Supervisor) classify(ctx context.Context, line string) {
	url, ok := s.opts.Classifier.Classify(line)
	if !ok {
		s.opts.Logger.Debug("sidecar: output", slog.String("line", line))
		return
	}
	s.opts.Logger.Debug("sidecar: url", slog.String("url", url))
	if s.handle != nil {
		s.handle(ctx, url)
	}
}

func (s *Supervisor) exited(cmd *exec.Cmd, waitErr error) {
	st := ExitStatus{}
	state := Terminated
	if ps := cmd.ProcessState; ps != nil {
		st.Code = ps.ExitCode()
		st.Signaled = st.Code == -1
	}
	if waitErr != nil {
		st.Err = waitErr.Error()
		state = Crashed
	}

	s.mu.Lock()
	s.state = state
	s.status = st
	s.mu.Unlock()

	s.opts.Logger.Info("sidecar: exited",
		slog.String("command", s.opts.Command),
		slog.String("state", state.String()),
		slog.Int("code", st.Code),
		slog.Bool("signaled", st.Signaled))

	if s.opts.OnExit != nil {
		s.opts.OnExit(state, st)
	}
}

// Run starts the child and keeps it alive under the restart policy until
// ctx is cancelled or restarts are exhausted. Only the first spawn failure
// is returned; later ones are logged and count against MaxRestarts.
func (s *Supervisor) Run(ctx context.Context) error {
	if err := s.Start(ctx); err != nil {
		return err
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = s.opts.InitialBackoff
	bo.MaxInterval = s.opts.MaxBackoff

	for {
		select {
		case <-ctx.Done():
			<-s.Done()
			return nil
		case <-s.Done():
		}

		if ctx.Err() != nil {
			return nil
		}
		if s.opts.MaxRestarts >= 0 && s.Restarts() >= s.opts.MaxRestarts {
			return nil
		}

		for {
			wait := bo.NextBackOff()
			s.opts.Logger.Info("sidecar: restarting", slog.Duration("in", wait))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(wait):
			}

			s.mu.Lock()
			s.restarts++
			n := s.restarts
			s.mu.Unlock()

			err := s.Start(ctx)
			if err == nil {
				break
			}
			s.opts.Logger.Error("sidecar: restart failed", slog.String("error", err.Error()))
			if s.opts.MaxRestarts >= 0 && n >= s.opts.MaxRestarts {
				return nil
			}
		}
	}
}

// ResolveCommand returns name, or with platformSuffix the conventional
// per-platform build name: name-GOOS-GOARCH, plus .exe on windows.
func ResolveCommand(name string, platformSuffix bool) string {
	return resolveCommand(name, platformSuffix, runtime.GOOS, runtime.GOARCH)
}

func resolveCommand(name string, platformSuffix bool, goos, goarch string) string {
	if !platformSuffix {
		return name
	}
	out := name + "-" + goos + "-" + goarch
	if goos == "windows" {
		out += ".exe"
	}
	return out
}
