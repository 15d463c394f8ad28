package collab

import (
	"sync"

	"github.com/oakline/atrium/internal/domain"
)

// Directory holds per-connection presence state. Updates for unregistered
// connections are silently ignored so a message arriving after disconnect can
// never resurrect state.
type Directory struct {
	mu           sync.RWMutex
	participants map[string]*domain.Participant
}

func NewDirectory() *Directory {
	return &Directory{participants: make(map[string]*domain.Participant)}
}

func (d *Directory) Register(p *domain.Participant) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.participants[p.ConnectionID] = p
}

func (d *Directory) Get(connID string) (domain.Participant, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	p, ok := d.participants[connID]
	if !ok {
		return domain.Participant{}, false
	}
	return *p, true
}

// UpdatePosition applies a position update from the participant's own
// connection. It returns the updated state, or ok=false if the connection is
// not registered.
func (d *Directory) UpdatePosition(connID string, pos domain.Vec3) (domain.Participant, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.participants[connID]
	if !ok {
		return domain.Participant{}, false
	}
	p.Position = pos
	return *p, true
}

func (d *Directory) SetVoiceActive(connID string, active bool) (domain.Participant, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.participants[connID]
	if !ok {
		return domain.Participant{}, false
	}
	p.VoiceActive = active
	return *p, true
}

// Snapshot returns the workspace's participants keyed by connection id,
// excluding exceptID. It is the payload a newly joined connection renders
// existing peers from.
func (d *Directory) Snapshot(workspaceID, exceptID string) map[string]domain.Participant {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make(map[string]domain.Participant)
	for id, p := range d.participants {
		if p.WorkspaceID != workspaceID || id == exceptID {
			continue
		}
		out[id] = *p
	}
	return out
}

// All lists the workspace's participants for snapshot persistence.
func (d *Directory) All(workspaceID string) []domain.Participant {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var out []domain.Participant
	for _, p := range d.participants {
		if p.WorkspaceID == workspaceID {
			out = append(out, *p)
		}
	}
	return out
}

func (d *Directory) Count() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.participants)
}

func (d *Directory) Remove(connID string) (domain.Participant, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.participants[connID]
	if !ok {
		return domain.Participant{}, false
	}
	delete(d.participants, connID)
	return *p, true
}
