package collab

import (
	"sync"
	"time"

	"github.com/oakline/atrium/internal/domain"
)

// Store is the in-memory authoritative state for a workspace's shared
// objects. Mutations within one workspace are linearized under that
// workspace's lock so version increments and lock checks are race-free, while
// independent workspaces proceed in parallel. Conflict policy for unlocked
// objects is last write observed by the store wins; no field-level merge.
type Store struct {
	mu         sync.RWMutex
	workspaces map[string]*workspaceState
}

type workspaceState struct {
	mu      sync.Mutex
	objects map[string]*domain.SharedObject
	pending map[string]*domain.SharedObject // connection id -> in-flight stroke
}

func NewStore() *Store {
	return &Store{workspaces: make(map[string]*workspaceState)}
}

func (s *Store) workspace(workspaceID string) *workspaceState {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.workspaces[workspaceID]
	if !ok {
		w = &workspaceState{
			objects: make(map[string]*domain.SharedObject),
			pending: make(map[string]*domain.SharedObject),
		}
		s.workspaces[workspaceID] = w
	}
	return w
}

func (s *Store) lookup(workspaceID string) (*workspaceState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.workspaces[workspaceID]
	return w, ok
}

// CreateNote stores a new note at version 1 and returns the committed state.
func (s *Store) CreateNote(workspaceID, id, userID string, note domain.Note) (*domain.SharedObject, error) {
	if note.Text == "" || len(note.Text) > domain.MaxNoteTextLength {
		return nil, domain.ErrValidation
	}
	return s.insert(workspaceID, domain.NewNoteObject(workspaceID, id, userID, note))
}

func (s *Store) CreateModel(workspaceID, id, userID string, model domain.ModelTransform) (*domain.SharedObject, error) {
	if model.Name == "" {
		return nil, domain.ErrValidation
	}
	return s.insert(workspaceID, domain.NewModelObject(workspaceID, id, userID, model))
}

func (s *Store) insert(workspaceID string, obj *domain.SharedObject) (*domain.SharedObject, error) {
	w := s.workspace(workspaceID)
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, exists := w.objects[obj.ID]; exists {
		return nil, domain.ErrValidation
	}
	w.objects[obj.ID] = obj
	return obj.Clone(), nil
}

// Update applies the patch fields present in the request and bumps the
// version. A note locked by another connection rejects the mutation with
// ErrLockConflict and no state change. Strokes are immutable once committed.
func (s *Store) Update(workspaceID, objectID string, patch ObjectPatch, connID, userID string) (*domain.SharedObject, error) {
	w, ok := s.lookup(workspaceID)
	if !ok {
		return nil, domain.ErrNotFound
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	obj, ok := w.objects[objectID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if patch.Empty() {
		return nil, domain.ErrValidation
	}

	switch obj.Kind {
	case domain.KindStroke:
		return nil, domain.ErrImmutableObject
	case domain.KindNote:
		if !patch.AppliesToNote() {
			return nil, domain.ErrValidation
		}
		if obj.Note.HeldByOther(connID) {
			return nil, domain.ErrLockConflict
		}
		if patch.Text != nil && (len(*patch.Text) == 0 || len(*patch.Text) > domain.MaxNoteTextLength) {
			return nil, domain.ErrValidation
		}
		applyNotePatch(obj.Note, patch)
	case domain.KindModel:
		// A patch carrying only fields of the other kind changes nothing
		// and must not bump the version.
		if !patch.AppliesToModel() {
			return nil, domain.ErrValidation
		}
		applyModelPatch(obj.Model, patch)
	}

	obj.Touch(userID)
	return obj.Clone(), nil
}

// Move is the transform-only specialization of Update, covering model drags
// and note position drags. Same lock check as Update.
func (s *Store) Move(workspaceID, objectID string, patch ObjectPatch, connID, userID string) (*domain.SharedObject, error) {
	return s.Update(workspaceID, objectID, patch.TransformOnly(), connID, userID)
}

func applyNotePatch(note *domain.Note, patch ObjectPatch) {
	if patch.Text != nil {
		note.Text = *patch.Text
	}
	if patch.Position != nil {
		note.Position = *patch.Position
	}
	if patch.Color != nil {
		note.Color = *patch.Color
	}
	if patch.Size != nil {
		note.Size = *patch.Size
	}
}

func applyModelPatch(model *domain.ModelTransform, patch ObjectPatch) {
	if patch.Name != nil {
		model.Name = *patch.Name
	}
	if patch.Position != nil {
		model.Position = *patch.Position
	}
	if patch.Rotation != nil {
		model.Rotation = *patch.Rotation
	}
	if patch.Scale != nil {
		model.Scale = *patch.Scale
	}
}

// Delete removes the object and invalidates any lock on it. Permission is the
// caller's concern; the store only checks existence.
func (s *Store) Delete(workspaceID, objectID string) (*domain.SharedObject, error) {
	w, ok := s.lookup(workspaceID)
	if !ok {
		return nil, domain.ErrNotFound
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	obj, ok := w.objects[objectID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	delete(w.objects, objectID)
	return obj, nil
}

// Get returns a copy of one object.
func (s *Store) Get(workspaceID, objectID string) (*domain.SharedObject, error) {
	w, ok := s.lookup(workspaceID)
	if !ok {
		return nil, domain.ErrNotFound
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	obj, ok := w.objects[objectID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return obj.Clone(), nil
}

// Lock acquires the advisory lock on a note. It succeeds when the note is
// unlocked or already held by the same connection; it never waits.
func (s *Store) Lock(workspaceID, objectID, connID string) (*domain.SharedObject, error) {
	return s.setLock(workspaceID, objectID, connID, true)
}

// Unlock releases the lock; only the current holder may release it.
func (s *Store) Unlock(workspaceID, objectID, connID string) (*domain.SharedObject, error) {
	return s.setLock(workspaceID, objectID, connID, false)
}

func (s *Store) setLock(workspaceID, objectID, connID string, acquire bool) (*domain.SharedObject, error) {
	w, ok := s.lookup(workspaceID)
	if !ok {
		return nil, domain.ErrNotFound
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	obj, ok := w.objects[objectID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if obj.Kind != domain.KindNote {
		return nil, domain.ErrValidation
	}
	if obj.Note.HeldByOther(connID) {
		return nil, domain.ErrLockConflict
	}

	if acquire {
		obj.Note.LockedBy = connID
		obj.Note.LockedAt = time.Now().UTC()
	} else {
		if !obj.Note.Locked() {
			return nil, domain.ErrValidation
		}
		obj.Note.LockedBy = ""
		obj.Note.LockedAt = time.Time{}
	}
	return obj.Clone(), nil
}

// ReleaseLocks clears every lock held by the connection and returns the
// affected objects. Called exactly once during leave, before session
// accounting, so no lock outlives its owner.
func (s *Store) ReleaseLocks(workspaceID, connID string) []*domain.SharedObject {
	w, ok := s.lookup(workspaceID)
	if !ok {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	var released []*domain.SharedObject
	for _, obj := range w.objects {
		if obj.Kind == domain.KindNote && obj.Note.LockedBy == connID {
			obj.Note.LockedBy = ""
			obj.Note.LockedAt = time.Time{}
			released = append(released, obj.Clone())
		}
	}
	return released
}

// StartStroke opens the connection's pending stroke. A connection draws at
// most one stroke at a time; starting a new one discards the previous
// in-flight stroke. The stroke opens with no points: the start point is
// progress information for peers, and only AppendStrokePoint stores points,
// so a committed stroke holds exactly one point per append.
func (s *Store) StartStroke(workspaceID, connID, userID string, p StartStrokePayload) *domain.SharedObject {
	w := s.workspace(workspaceID)
	w.mu.Lock()
	defer w.mu.Unlock()

	stroke := domain.NewStrokeObject(workspaceID, p.ID, userID, domain.Stroke{
		Color: p.Color,
		Width: p.Width,
		Tool:  p.Tool,
	})
	w.pending[connID] = stroke
	return stroke.Clone()
}

// AppendStrokePoint extends the connection's pending stroke. No conflict
// policy applies: no concurrent writer owns a stroke.
func (s *Store) AppendStrokePoint(workspaceID, connID string, point domain.Vec3) (*domain.SharedObject, error) {
	w, ok := s.lookup(workspaceID)
	if !ok {
		return nil, domain.ErrNoPendingStroke
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	stroke, ok := w.pending[connID]
	if !ok {
		return nil, domain.ErrNoPendingStroke
	}
	stroke.Stroke.Points = append(stroke.Stroke.Points, point)
	return stroke.Clone(), nil
}

// CommitStroke freezes the pending stroke into the store as a single
// immutable object.
func (s *Store) CommitStroke(workspaceID, connID string) (*domain.SharedObject, error) {
	w, ok := s.lookup(workspaceID)
	if !ok {
		return nil, domain.ErrNoPendingStroke
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	stroke, ok := w.pending[connID]
	if !ok {
		return nil, domain.ErrNoPendingStroke
	}
	delete(w.pending, connID)

	if _, exists := w.objects[stroke.ID]; exists {
		return nil, domain.ErrValidation
	}
	w.objects[stroke.ID] = stroke
	return stroke.Clone(), nil
}

// DiscardPendingStroke drops the connection's in-flight stroke, if any.
func (s *Store) DiscardPendingStroke(workspaceID, connID string) {
	w, ok := s.lookup(workspaceID)
	if !ok {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.pending, connID)
}

// Objects returns copies of every committed object in the workspace.
func (s *Store) Objects(workspaceID string) []domain.SharedObject {
	w, ok := s.lookup(workspaceID)
	if !ok {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	out := make([]domain.SharedObject, 0, len(w.objects))
	for _, obj := range w.objects {
		out = append(out, *obj.Clone())
	}
	return out
}

// DropWorkspace discards all state owned by a reclaimed workspace.
func (s *Store) DropWorkspace(workspaceID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.workspaces, workspaceID)
}
