package state

import (
	"sort"
	"sync"
	"time"
)

// Status is the lifecycle state of a managed project.
type Status string

const (
	StatusStopped  Status = "stopped"
	StatusStarting Status = "starting"
	StatusRunning  Status = "running"
	StatusBuilding Status = "building"
	StatusError    Status = "error"
)

// Project is the externally visible state of one managed project.
// Port and PID are set while the project is starting or running. A build
// that overlaps a live serve lane flips Status to building but keeps the
// lane's Port/PID, since they describe the still-running server.
type Project struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Path      string    `json:"path"`
	Framework string    `json:"framework"`
	Status    Status    `json:"status"`
	Port      int       `json:"port,omitempty"`
	PID       int       `json:"pid,omitempty"`
	StartTime time.Time `json:"start_time,omitempty"`
}

// Store is the in-memory project table. The supervisor is the sole writer
// of Status/Port/PID; everything else reads snapshots. Entries are created
// on discovery and never deleted while referenced: stopped is a resumable
// state, not removal.
type Store struct {
	mu       sync.RWMutex
	projects map[string]*Project
}

func NewStore() *Store {
	return &Store{projects: make(map[string]*Project)}
}

// Upsert registers a project, preserving the lifecycle fields of an
// existing entry and refreshing the descriptive ones.
func (s *Store) Upsert(p Project) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.projects[p.ID]; ok {
		cur.Name = p.Name
		cur.Path = p.Path
		cur.Framework = p.Framework
		return
	}
	if p.Status == "" {
		p.Status = StatusStopped
	}
	cp := p
	s.projects[p.ID] = &cp
}

// Get returns a copy of the project and whether it exists.
func (s *Store) Get(id string) (Project, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.projects[id]
	if !ok {
		return Project{}, false
	}
	return *p, true
}

// Snapshot returns copies of all projects ordered by ID.
func (s *Store) Snapshot() []Project {
	s.mu.RLock()
	out := make([]Project, 0, len(s.projects))
	for _, p := range s.projects {
		out = append(out, *p)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// SetStarting transitions a project into starting with the declared port
// and the spawned PID.
func (s *Store) SetStarting(id string, port, pid int) {
	s.mutate(id, func(p *Project) {
		p.Status = StatusStarting
		p.Port = port
		p.PID = pid
		p.StartTime = time.Now()
	})
}

// SetRunning transitions starting -> running, keeping port/pid. The port
// argument wins when the readiness banner declared a different one.
func (s *Store) SetRunning(id string, port int) {
	s.mutate(id, func(p *Project) {
		p.Status = StatusRunning
		if port > 0 {
			p.Port = port
		}
	})
}

// SetBuilding marks the build lane active. Port/PID belong to the dev or
// preview lane only, so they are untouched unless the project was idle.
func (s *Store) SetBuilding(id string) {
	s.mutate(id, func(p *Project) {
		p.Status = StatusBuilding
	})
}

// SetStopped clears the lifecycle fields.
func (s *Store) SetStopped(id string) {
	s.mutate(id, func(p *Project) {
		p.Status = StatusStopped
		p.Port = 0
		p.PID = 0
		p.StartTime = time.Time{}
	})
}

// SetError records a failed run. Port/PID are cleared: the process is gone.
func (s *Store) SetError(id string) {
	s.mutate(id, func(p *Project) {
		p.Status = StatusError
		p.Port = 0
		p.PID = 0
		p.StartTime = time.Time{}
	})
}

func (s *Store) mutate(id string, fn func(*Project)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.projects[id]
	if !ok {
		p = &Project{ID: id, Name: id, Status: StatusStopped}
		s.projects[id] = p
	}
	fn(p)
}
