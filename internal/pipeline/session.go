// File: internal/pipeline/session.go
// Brief: DeploymentSession: the mutable record of one orchestration run.

package pipeline

import (
	"sync"
	"time"

	"github.com/example/gantry/internal/plugin"
)

// Status is the session state. The five in-progress states advance in fixed
// order; everything else is terminal and never re-entered.
type Status string

const (
	StatusStarting     Status = "starting"
	StatusDetecting    Status = "detecting"
	StatusBuilding     Status = "building"
	StatusProvisioning Status = "provisioning"
	StatusDeploying    Status = "deploying"

	StatusCompleted       Status = "completed"
	StatusBuildFailed     Status = "build_failed"
	StatusProvisionFailed Status = "provision_failed"
	StatusDeployFailed    Status = "deploy_failed"
	StatusFailed          Status = "failed"
)

// Terminal reports whether the session can no longer change state.
func (s Status) Terminal() bool {
	switch s {
	case StatusStarting, StatusDetecting, StatusBuilding, StatusProvisioning, StatusDeploying:
		return false
	}
	return true
}

// Failure reports whether the status is one of the failure terminals.
func (s Status) Failure() bool {
	return s.Terminal() && s != StatusCompleted
}

// LogEntry is one append-only session log line.
type LogEntry struct {
	Time    time.Time `json:"time"`
	Level   string    `json:"level"`
	Message string    `json:"message"`
}

// Snapshot is the serializable state of a session at one point in time.
type Snapshot struct {
	ID             string                  `json:"id"`
	RepoPath       string                  `json:"repo_path"`
	StackKey       string                  `json:"stack_key,omitempty"`
	Status         Status                  `json:"status"`
	Error          string                  `json:"error,omitempty"`
	ElapsedSeconds float64                 `json:"elapsed_seconds"`
	CreatedAt      time.Time               `json:"created_at"`
	UpdatedAt      time.Time               `json:"updated_at"`
	Plan           *plugin.StackPlan       `json:"plan,omitempty"`
	Build          *plugin.BuildResult     `json:"build,omitempty"`
	Provision      *plugin.ProvisionResult `json:"provision,omitempty"`
	Deploy         *plugin.DeployResult    `json:"deploy,omitempty"`
	Logs           []LogEntry              `json:"logs,omitempty"`
}

// Session is owned and mutated by the orchestrator for the lifetime of one
// run; other goroutines may poll it through Snapshot. A session is never
// reused across runs.
type Session struct {
	mu   sync.Mutex
	snap Snapshot
}

// newSessionID is timestamp-shaped so lexicographic order matches creation
// order in listings.
func newSessionID() string {
	return time.Now().UTC().Format("2006-01-02T15-04-05.000000000Z")
}

func newSession(repoPath string) *Session {
	now := time.Now().UTC()
	return &Session{snap: Snapshot{
		ID:        newSessionID(),
		RepoPath:  repoPath,
		Status:    StatusStarting,
		CreatedAt: now,
		UpdatedAt: now,
	}}
}

// ID returns the immutable session id.
func (s *Session) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap.ID
}

// Status returns the current status.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap.Status
}

// Snapshot returns a copy of the session state safe to read while the run
// is still mutating the original.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := s.snap
	snap.Logs = append([]LogEntry(nil), s.snap.Logs...)
	return snap
}

func (s *Session) setStatus(status Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.snap.Status.Terminal() {
		return
	}
	s.snap.Status = status
	s.snap.UpdatedAt = time.Now().UTC()
}

func (s *Session) setPlan(plan *plugin.StackPlan) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.Plan = plan
	s.snap.StackKey = plan.StackKey
	s.snap.UpdatedAt = time.Now().UTC()
}

func (s *Session) setBuild(res *plugin.BuildResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.Build = res
	s.snap.UpdatedAt = time.Now().UTC()
}

func (s *Session) setProvision(res *plugin.ProvisionResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.Provision = res
	s.snap.UpdatedAt = time.Now().UTC()
}

func (s *Session) setDeploy(res *plugin.DeployResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.Deploy = res
	s.snap.UpdatedAt = time.Now().UTC()
}

// finish moves the session to a terminal state exactly once.
func (s *Session) finish(status Status, errMessage string, elapsed float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.snap.Status.Terminal() {
		return
	}
	s.snap.Status = status
	s.snap.Error = errMessage
	s.snap.ElapsedSeconds = elapsed
	s.snap.UpdatedAt = time.Now().UTC()
}

func (s *Session) appendLog(level, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.Logs = append(s.snap.Logs, LogEntry{
		Time:    time.Now().UTC(),
		Level:   level,
		Message: message,
	})
}
