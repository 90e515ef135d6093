// Package supervisor owns every OS process devlane spawns. It is the only
// writer of lifecycle state: dev and preview servers, one-shot builds,
// readiness detection and termination all flow through here.
package supervisor

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/devlane/devlane/internal/logger"
	"github.com/devlane/devlane/internal/metrics"
	"github.com/devlane/devlane/internal/readiness"
	"github.com/devlane/devlane/internal/state"
	"github.com/devlane/devlane/internal/telemetry"
)

// Workload actions. Each (project, action) pair runs at most one process.
const (
	ActionDev     = "dev"
	ActionBuild   = "build"
	ActionPreview = "preview"
)

const (
	devReadyDeadline     = 15 * time.Second
	previewReadyDeadline = 10 * time.Second
	readyPollInterval    = 500 * time.Millisecond
	stopGrace            = 3 * time.Second
	stopWait             = 8 * time.Second
)

// Key identifies one workload slot.
type Key struct {
	ProjectID string
	Action    string
}

func (k Key) String() string {
	if k.Action == "" {
		return k.ProjectID
	}
	return k.ProjectID + "/" + k.Action
}

// ErrAlreadyRunning is returned when a slot is occupied. The caller must
// stop the existing workload first.
type ErrAlreadyRunning struct {
	Key Key
}

func (e *ErrAlreadyRunning) Error() string {
	return fmt.Sprintf("workload %s is already running", e.Key)
}

// ErrNotRunning is returned by stop and restart when no process occupies
// the slot.
type ErrNotRunning struct {
	Key Key
}

func (e *ErrNotRunning) Error() string {
	return fmt.Sprintf("workload %s is not running", e.Key)
}

// SpawnError wraps a failure to start the OS process. The slot is freed
// before this is returned, so the caller may retry immediately.
type SpawnError struct {
	Key Key
	Err error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("spawn %s: %v", e.Key, e.Err)
}

func (e *SpawnError) Unwrap() error { return e.Err }

// Spec describes one workload to run. Command is a full shell invocation
// with placeholders already expanded.
type Spec struct {
	ProjectID string
	Action    string
	Dir       string
	Command   string
	Host      string
	Port      int
}

// Running describes one live workload for listings.
type Running struct {
	ProjectID string    `json:"project_id"`
	Action    string    `json:"action"`
	PID       int       `json:"pid"`
	Port      int       `json:"port,omitempty"`
	StartedAt time.Time `json:"started_at"`
}

type record struct {
	spec      Spec
	gen       uint64
	pid       int
	startedAt time.Time

	stopRequested atomic.Bool
	ready         atomic.Bool
	readyCh       chan struct{}
	doneCh        chan struct{}
	readyOnce     sync.Once

	// exitErr is set by reap before doneCh closes.
	exitErr error
}

// Supervisor tracks workloads by (project, action) and reflects their
// lifecycle into the state store and the telemetry hub.
type Supervisor struct {
	mu    sync.Mutex
	procs map[Key]*record

	store   *state.Store
	hub     *telemetry.Hub
	capture logger.CaptureConfig
	banner  *readiness.BannerMatcher
	probe   readiness.HTTPProbe
	log     *slog.Logger

	genSeq atomic.Uint64
	wg     sync.WaitGroup
}

// New builds a supervisor. store and hub are required; capture may be the
// zero value to disable per-project log files.
func New(store *state.Store, hub *telemetry.Hub, capture logger.CaptureConfig, log *slog.Logger) *Supervisor {
	if log == nil {
		log = slog.Default()
	}
	return &Supervisor{
		procs:   make(map[Key]*record),
		store:   store,
		hub:     hub,
		capture: capture,
		banner:  readiness.NewBannerMatcher(),
		probe:   readiness.HTTPProbe{},
		log:     log,
	}
}

// Start launches a dev or preview server. The call returns once the
// process is spawned; readiness is detected asynchronously from output
// banners with an HTTP probe as fallback.
func (s *Supervisor) Start(spec Spec) error {
	if spec.Action != ActionDev && spec.Action != ActionPreview {
		return fmt.Errorf("start: unsupported action %q", spec.Action)
	}
	rec, err := s.spawn(spec)
	if err != nil {
		return err
	}

	s.store.SetStarting(spec.ProjectID, spec.Port, rec.pid)
	s.publishProject(spec.ProjectID)

	deadline := devReadyDeadline
	if spec.Action == ActionPreview {
		deadline = previewReadyDeadline
	}
	s.wg.Add(1)
	go s.awaitReady(rec, deadline)
	return nil
}

// Build runs a one-shot production build. It blocks until the build
// process exits and returns its terminal error, if any.
func (s *Supervisor) Build(spec Spec) error {
	spec.Action = ActionBuild
	// The start phase goes out before spawn so it always precedes any
	// marker synthesized from process output.
	s.hub.PushBuildProgress(telemetry.BuildProgress{
		ProjectID: spec.ProjectID,
		Phase:     telemetry.PhaseStart,
		Progress:  0,
	})
	rec, err := s.spawn(spec)
	if err != nil {
		s.hub.PushBuildProgress(telemetry.BuildProgress{
			ProjectID: spec.ProjectID,
			Phase:     telemetry.PhaseError,
			Progress:  100,
			Message:   err.Error(),
		})
		return err
	}

	s.store.SetBuilding(spec.ProjectID)
	s.publishProject(spec.ProjectID)

	<-rec.doneCh
	if rec.exitErr != nil && !rec.stopRequested.Load() {
		return fmt.Errorf("build %s: %w", spec.ProjectID, rec.exitErr)
	}
	return nil
}

// Stop terminates the workload in (projectID, action). It escalates from
// a polite group terminate to a hard kill and waits for the exit to be
// reaped before returning.
func (s *Supervisor) Stop(projectID, action string) error {
	key := Key{ProjectID: projectID, Action: action}
	s.mu.Lock()
	rec, ok := s.procs[key]
	pid := 0
	if ok {
		pid = rec.pid
	}
	s.mu.Unlock()
	// pid 0 means the spawn has not finished yet; signalling process
	// group 0 would hit the plane's own group.
	if !ok || pid <= 0 {
		return &ErrNotRunning{Key: key}
	}

	rec.stopRequested.Store(true)
	if err := terminate(pid); err != nil {
		s.log.Debug("terminate failed, escalating", "key", key.String(), "err", err)
		_ = kill(pid)
	}

	select {
	case <-rec.doneCh:
		return nil
	case <-time.After(stopGrace):
	}
	_ = kill(pid)
	select {
	case <-rec.doneCh:
		return nil
	case <-time.After(stopWait):
		return fmt.Errorf("stop %s: process %d did not exit", key, pid)
	}
}

// StopProject stops every workload belonging to a project. When no lane
// is live it returns ErrNotRunning without mutating anything.
func (s *Supervisor) StopProject(projectID string) error {
	var firstErr error
	stopped := 0
	for _, action := range []string{ActionDev, ActionPreview, ActionBuild} {
		err := s.Stop(projectID, action)
		if err == nil {
			stopped++
			continue
		}
		var nr *ErrNotRunning
		if errors.As(err, &nr) {
			continue
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	if firstErr == nil && stopped == 0 {
		return &ErrNotRunning{Key: Key{ProjectID: projectID}}
	}
	return firstErr
}

// Restart stops the workload in (projectID, action) and starts it again
// with the spec it was originally launched with.
func (s *Supervisor) Restart(projectID, action string) error {
	key := Key{ProjectID: projectID, Action: action}
	s.mu.Lock()
	rec, ok := s.procs[key]
	s.mu.Unlock()
	if !ok {
		return &ErrNotRunning{Key: key}
	}
	spec := rec.spec
	if err := s.Stop(projectID, action); err != nil {
		return err
	}
	return s.Start(spec)
}

// StopAll terminates every tracked workload and waits for the lifecycle
// goroutines to drain. Workloads that exit on their own while the sweep
// runs are tolerated; the first real stop failure is returned.
func (s *Supervisor) StopAll() error {
	s.mu.Lock()
	keys := make([]Key, 0, len(s.procs))
	for k := range s.procs {
		keys = append(keys, k)
	}
	s.mu.Unlock()
	var firstErr error
	for _, k := range keys {
		err := s.Stop(k.ProjectID, k.Action)
		if err == nil {
			continue
		}
		var nr *ErrNotRunning
		if errors.As(err, &nr) {
			continue
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	s.wg.Wait()
	return firstErr
}

// List returns the live workloads sorted by project then action.
func (s *Supervisor) List() []Running {
	s.mu.Lock()
	out := make([]Running, 0, len(s.procs))
	for k, rec := range s.procs {
		out = append(out, Running{
			ProjectID: k.ProjectID,
			Action:    k.Action,
			PID:       rec.pid,
			Port:      rec.spec.Port,
			StartedAt: rec.startedAt,
		})
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].ProjectID != out[j].ProjectID {
			return out[i].ProjectID < out[j].ProjectID
		}
		return out[i].Action < out[j].Action
	})
	return out
}

// IsRunning reports whether a workload occupies the slot.
func (s *Supervisor) IsRunning(projectID, action string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.procs[Key{ProjectID: projectID, Action: action}]
	return ok
}

// spawn reserves the slot, starts the process and wires output scanning
// and exit reaping. On spawn failure the slot is released before return.
func (s *Supervisor) spawn(spec Spec) (*record, error) {
	key := Key{ProjectID: spec.ProjectID, Action: spec.Action}
	rec := &record{
		spec:    spec,
		gen:     s.genSeq.Add(1),
		readyCh: make(chan struct{}),
		doneCh:  make(chan struct{}),
	}

	s.mu.Lock()
	if _, ok := s.procs[key]; ok {
		s.mu.Unlock()
		return nil, &ErrAlreadyRunning{Key: key}
	}
	s.procs[key] = rec
	s.mu.Unlock()

	cmd := startCommand(spec.Command, spec.Dir)
	stdout, err := cmd.StdoutPipe()
	if err == nil {
		var stderr io.ReadCloser
		stderr, err = cmd.StderrPipe()
		if err == nil {
			err = cmd.Start()
			if err == nil {
				// The slot is already visible to List/Stop/Restart, so the
				// pid must be published under the lock.
				s.mu.Lock()
				rec.pid = cmd.Process.Pid
				rec.startedAt = time.Now()
				s.mu.Unlock()

				capture := s.capture.Writer(spec.ProjectID, spec.Action)
				s.wg.Add(3)
				go s.scanOutput(rec, stdout, capture)
				go s.scanOutput(rec, stderr, capture)
				go s.reap(rec, cmd, capture)

				metrics.IncStart(spec.ProjectID, spec.Action)
				s.trackGauge()
				s.log.Info("workload started",
					"project", spec.ProjectID, "action", spec.Action, "pid", rec.pid, "port", spec.Port)
				return rec, nil
			}
		}
	}

	s.mu.Lock()
	delete(s.procs, key)
	s.mu.Unlock()
	close(rec.doneCh)
	return nil, &SpawnError{Key: key, Err: err}
}

// scanOutput forwards process output line by line to the telemetry hub,
// the capture file, readiness banner matching and build phase detection.
// The capture writer is closed by reap once the process has exited.
func (s *Supervisor) scanOutput(rec *record, r io.Reader, capture io.Writer) {
	defer s.wg.Done()
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		raw := sc.Text()
		if capture != nil {
			_, _ = capture.Write(append([]byte(raw), '\n'))
		}
		line := stripANSI(raw)
		if line == "" {
			continue
		}
		s.hub.PushLog(classifyLine(line), line, rec.spec.ProjectID)

		switch rec.spec.Action {
		case ActionBuild:
			if phase, pct, ok := buildPhaseFor(line); ok {
				s.hub.PushBuildProgress(telemetry.BuildProgress{
					ProjectID: rec.spec.ProjectID,
					Phase:     phase,
					Progress:  pct,
					Message:   line,
				})
			}
		default:
			if port, ok := s.banner.Match(line); ok {
				s.markReady(rec, port)
			}
		}
	}
}

// awaitReady watches for the readiness signal with a probe fallback. When
// the deadline passes without a signal the workload stays in starting and
// observers are told it is still coming up.
func (s *Supervisor) awaitReady(rec *record, deadline time.Duration) {
	defer s.wg.Done()
	tick := time.NewTicker(readyPollInterval)
	defer tick.Stop()
	expire := time.NewTimer(deadline)
	defer expire.Stop()

	for {
		select {
		case <-rec.readyCh:
			return
		case <-rec.doneCh:
			return
		case <-expire.C:
			s.hub.PushLog(telemetry.LevelWarn,
				fmt.Sprintf("%s %s is starting (no ready signal after %s)", rec.spec.ProjectID, rec.spec.Action, deadline),
				rec.spec.ProjectID)
			return
		case <-tick.C:
			if ok, _ := s.probe.Reachable(rec.spec.Host, rec.spec.Port); ok {
				s.markReady(rec, 0)
				return
			}
		}
	}
}

// markReady flips starting -> running exactly once. bannerPort, when
// nonzero, wins over the declared port: engines may fall back to another
// port and announce it in the banner.
func (s *Supervisor) markReady(rec *record, bannerPort int) {
	key := Key{ProjectID: rec.spec.ProjectID, Action: rec.spec.Action}
	s.mu.Lock()
	cur, ok := s.procs[key]
	if !ok || cur.gen != rec.gen {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	rec.readyOnce.Do(func() {
		rec.ready.Store(true)
		close(rec.readyCh)
		port := rec.spec.Port
		if bannerPort > 0 {
			port = bannerPort
		}
		s.store.SetRunning(rec.spec.ProjectID, port)
		metrics.RecordStateTransition(rec.spec.ProjectID, string(state.StatusStarting), string(state.StatusRunning))
		s.publishProject(rec.spec.ProjectID)
		s.hub.PushPerformance(telemetry.Performance{
			ProjectID: rec.spec.ProjectID,
			Action:    rec.spec.Action,
			StartupMS: time.Since(rec.startedAt).Milliseconds(),
			Port:      port,
		})
		s.hub.PushLog(telemetry.LevelInfo,
			fmt.Sprintf("%s %s ready on http://%s:%d", rec.spec.ProjectID, rec.spec.Action, hostOrDefault(rec.spec.Host), port),
			rec.spec.ProjectID)
		s.log.Info("workload ready", "project", rec.spec.ProjectID, "action", rec.spec.Action, "port", port)

		go func() {
			if ok, err := s.probe.Reachable(rec.spec.Host, port); !ok {
				s.hub.PushLog(telemetry.LevelWarn,
					fmt.Sprintf("%s announced ready but port %d is not reachable yet: %v", rec.spec.ProjectID, port, err),
					rec.spec.ProjectID)
			}
		}()
	})
}

// reap waits for process exit, frees the slot and settles the final
// project status. A non-zero exit without a stop request is an error
// state; everything else lands in stopped.
func (s *Supervisor) reap(rec *record, cmd *exec.Cmd, capture io.Closer) {
	defer s.wg.Done()
	waitErr := cmd.Wait()
	if capture != nil {
		_ = capture.Close()
	}

	key := Key{ProjectID: rec.spec.ProjectID, Action: rec.spec.Action}
	s.mu.Lock()
	if cur, ok := s.procs[key]; ok && cur.gen == rec.gen {
		delete(s.procs, key)
	}
	s.mu.Unlock()
	rec.exitErr = waitErr
	close(rec.doneCh)

	failed := waitErr != nil && !rec.stopRequested.Load()
	switch rec.spec.Action {
	case ActionBuild:
		s.settleBuild(rec, failed, waitErr)
	default:
		if failed {
			s.store.SetError(rec.spec.ProjectID)
			s.hub.PushLog(telemetry.LevelError,
				fmt.Sprintf("%s %s exited unexpectedly: %v", rec.spec.ProjectID, rec.spec.Action, waitErr),
				rec.spec.ProjectID)
		} else if !s.projectStillActive(rec.spec.ProjectID) {
			s.store.SetStopped(rec.spec.ProjectID)
		}
	}

	s.publishProject(rec.spec.ProjectID)
	metrics.IncStop(rec.spec.ProjectID, rec.spec.Action)
	s.trackGauge()
	s.log.Info("workload exited",
		"project", rec.spec.ProjectID, "action", rec.spec.Action, "pid", rec.pid,
		"err", waitErr, "stop_requested", rec.stopRequested.Load())
}

// settleBuild emits the terminal build phase and restores the project to
// whatever the serve lanes imply: running when a dev or preview process is
// still alive, stopped otherwise.
func (s *Supervisor) settleBuild(rec *record, failed bool, waitErr error) {
	id := rec.spec.ProjectID
	metrics.ObserveBuildDuration(id, time.Since(rec.startedAt).Seconds())
	if failed {
		s.hub.PushBuildProgress(telemetry.BuildProgress{
			ProjectID: id,
			Phase:     telemetry.PhaseError,
			Progress:  100,
			Message:   fmt.Sprintf("build failed: %v", waitErr),
		})
		s.store.SetError(id)
		return
	}
	s.hub.PushBuildProgress(telemetry.BuildProgress{
		ProjectID: id,
		Phase:     telemetry.PhaseDone,
		Progress:  100,
	})
	if s.serveLaneReady(id) {
		s.store.SetRunning(id, 0)
	} else if !s.projectStillActive(id) {
		s.store.SetStopped(id)
	}
}

// serveLaneReady reports whether a dev or preview workload for the project
// has already passed readiness.
func (s *Supervisor) serveLaneReady(projectID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, action := range []string{ActionDev, ActionPreview} {
		if rec, ok := s.procs[Key{ProjectID: projectID, Action: action}]; ok && rec.ready.Load() {
			return true
		}
	}
	return false
}

// projectStillActive reports whether any workload for the project remains
// in the table. A live dev lane must not be demoted to stopped because a
// sibling lane exited.
func (s *Supervisor) projectStillActive(projectID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, action := range []string{ActionDev, ActionPreview, ActionBuild} {
		if _, ok := s.procs[Key{ProjectID: projectID, Action: action}]; ok {
			return true
		}
	}
	return false
}

func (s *Supervisor) publishProject(id string) {
	if p, ok := s.store.Get(id); ok {
		s.hub.PushProject(p)
	}
}

func (s *Supervisor) trackGauge() {
	s.mu.Lock()
	n := len(s.procs)
	s.mu.Unlock()
	metrics.SetTrackedProcesses(n)
}

func hostOrDefault(host string) string {
	if host == "" {
		return "127.0.0.1"
	}
	return host
}
