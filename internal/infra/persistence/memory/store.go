// Package memory provides the authoritative in-memory entity store. Every
// other storage tier is seeded from, or written from, this store.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"worksite/pkg/domain"
)

// Compile-time contract assertion ensuring memory.Store adheres to the domain persistence interface.
var _ domain.PersistentStore = (*Store)(nil)

type (
	// Project aliases domain.Project.
	Project = domain.Project
	// User aliases domain.User.
	User = domain.User
	// AuditLogEntry aliases domain.AuditLogEntry.
	AuditLogEntry = domain.AuditLogEntry
	// Change aliases domain.Change captured in transactions.
	Change = domain.Change
	// Event aliases domain.Event delivered to subscribers.
	Event = domain.Event
	// Transaction aliases domain.Transaction representing a mutable unit of work.
	Transaction = domain.Transaction
	// TransactionView aliases domain.TransactionView providing read-only state.
	TransactionView = domain.TransactionView
)

type memoryState struct {
	projects map[string]Project
	users    map[string]User
	// audit is kept newest first.
	audit []AuditLogEntry
}

// Snapshot captures a point-in-time clone of the store state.
type Snapshot struct {
	Projects  map[string]Project `json:"projects"`
	Users     map[string]User    `json:"users"`
	AuditLogs []AuditLogEntry    `json:"auditLogs"`
}

func newMemoryState() memoryState {
	return memoryState{
		projects: make(map[string]Project),
		users:    make(map[string]User),
	}
}

func snapshotFromMemoryState(state memoryState) Snapshot {
	s := Snapshot{
		Projects:  make(map[string]Project, len(state.projects)),
		Users:     make(map[string]User, len(state.users)),
		AuditLogs: append([]AuditLogEntry(nil), state.audit...),
	}
	for k, v := range state.projects {
		s.Projects[k] = domain.CloneProject(v)
	}
	for k, v := range state.users {
		s.Users[k] = v
	}
	return s
}

func memoryStateFromSnapshot(s Snapshot) memoryState {
	state := newMemoryState()
	for k, v := range s.Projects {
		if k == "" {
			continue
		}
		v.ID = k
		state.projects[k] = domain.CloneProject(v)
	}
	for k, v := range s.Users {
		if k == "" {
			continue
		}
		v.ID = k
		state.users[k] = v
	}
	seen := make(map[string]struct{}, len(s.AuditLogs))
	for _, e := range s.AuditLogs {
		if e.ID == "" {
			continue
		}
		if _, dup := seen[e.ID]; dup {
			continue
		}
		seen[e.ID] = struct{}{}
		state.audit = append(state.audit, e)
	}
	sortAudit(state.audit)
	return state
}

func (s memoryState) clone() memoryState {
	return memoryStateFromSnapshot(snapshotFromMemoryState(s))
}

func sortAudit(entries []AuditLogEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Timestamp > entries[j].Timestamp
	})
}

// SnapshotFromLists builds a Snapshot from the list shapes used by documents
// and caches.
func SnapshotFromLists(projects []Project, users []User, audit []AuditLogEntry) Snapshot {
	s := Snapshot{
		Projects:  make(map[string]Project, len(projects)),
		Users:     make(map[string]User, len(users)),
		AuditLogs: append([]AuditLogEntry(nil), audit...),
	}
	for _, p := range projects {
		s.Projects[p.ID] = p
	}
	for _, u := range users {
		s.Users[u.ID] = u
	}
	return s
}

// ProjectList returns the snapshot projects in canonical order.
func (s Snapshot) ProjectList() []Project {
	out := make([]Project, 0, len(s.Projects))
	for _, p := range s.Projects {
		out = append(out, domain.CloneProject(p))
	}
	domain.SortProjects(out)
	return out
}

// UserList returns the snapshot users ordered by id.
func (s Snapshot) UserList() []User {
	out := make([]User, 0, len(s.Users))
	for _, u := range s.Users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

type subscriber struct {
	id int
	fn func(Event)
}

// Store provides an in-memory transactional store for the worksite domain.
type Store struct {
	mu    sync.RWMutex
	state memoryState
	nowFn func() time.Time

	subMu  sync.Mutex
	subs   []subscriber
	nextID int
}

// NewStore constructs an empty in-memory store.
func NewStore() *Store {
	return &Store{
		state: newMemoryState(),
		nowFn: func() time.Time { return time.Now().UTC() },
	}
}

// ExportState clones the current store state for external persistence.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snapshotFromMemoryState(s.state)
}

// ImportState replaces the store state with the provided snapshot without
// notifying subscribers. It is used to seed the store at start-up.
func (s *Store) ImportState(snapshot Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = memoryStateFromSnapshot(snapshot)
}

// ReplaceState swaps in snapshot wholesale and notifies subscribers with one
// event tagged with the origin carried by ctx.
func (s *Store) ReplaceState(ctx context.Context, snapshot Snapshot) {
	s.mu.Lock()
	prev := s.state
	s.state = memoryStateFromSnapshot(snapshot)
	changes := diffState(prev, s.state)
	s.mu.Unlock()
	s.publish(Event{Origin: domain.OriginFromContext(ctx), Changes: changes})
}

// NowFunc returns the time provider used by the in-memory store.
func (s *Store) NowFunc() func() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nowFn
}

// SetNowFunc overrides the clock, primarily for tests.
func (s *Store) SetNowFunc(fn func() time.Time) {
	if fn == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nowFn = fn
}

// Subscribe registers fn to receive one Event per committed mutation. Events
// are delivered synchronously, in subscription order, after the store lock is
// released.
func (s *Store) Subscribe(fn func(Event)) func() {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	s.nextID++
	id := s.nextID
	s.subs = append(s.subs, subscriber{id: id, fn: fn})
	return func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		for i, sub := range s.subs {
			if sub.id == id {
				s.subs = append(s.subs[:i], s.subs[i+1:]...)
				return
			}
		}
	}
}

func (s *Store) publish(evt Event) {
	if len(evt.Changes) == 0 {
		return
	}
	s.subMu.Lock()
	subs := append([]subscriber(nil), s.subs...)
	s.subMu.Unlock()
	for _, sub := range subs {
		sub.fn(evt)
	}
}

// Transaction represents a mutation set applied to the store state.
type transaction struct {
	state   memoryState
	changes []Change
	now     time.Time
}

// TransactionView exposes a read-only snapshot of the transactional state.
type transactionView struct {
	state *memoryState
}

func newTransactionView(state *memoryState) TransactionView {
	return transactionView{state: state}
}

// RunInTransaction applies fn to a private copy of the state and commits it
// only when fn succeeds. Subscribers see exactly one event per commit.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx Transaction) error) error {
	s.mu.Lock()
	tx := &transaction{
		state: s.state.clone(),
		now:   s.nowFn(),
	}
	if err := fn(tx); err != nil {
		s.mu.Unlock()
		return err
	}
	s.state = tx.state
	changes := tx.changes
	s.mu.Unlock()

	s.publish(Event{Origin: domain.OriginFromContext(ctx), Changes: changes})
	return nil
}

// View executes fn against a read-only snapshot of the store state.
func (s *Store) View(_ context.Context, fn func(TransactionView) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot := s.state.clone()
	return fn(newTransactionView(&snapshot))
}

func (tx *transaction) recordChange(change Change) {
	tx.changes = append(tx.changes, change)
}

// Snapshot returns a read-only view over the transactional state.
func (tx *transaction) Snapshot() TransactionView {
	return newTransactionView(&tx.state)
}

// UpsertProject replaces a project with the same id or appends a new one.
func (tx *transaction) UpsertProject(p Project) (Project, error) {
	if err := domain.Validate(p); err != nil {
		return Project{}, err
	}
	action := domain.ActionCreate
	if _, ok := tx.state.projects[p.ID]; ok {
		action = domain.ActionUpdate
	}
	stored := domain.CloneProject(p)
	tx.state.projects[p.ID] = stored
	tx.recordChange(Change{Entity: domain.EntityProject, Action: action, ID: p.ID})
	return domain.CloneProject(stored), nil
}

// DeleteProject removes the project permanently.
func (tx *transaction) DeleteProject(id string) error {
	if _, ok := tx.state.projects[id]; !ok {
		return domain.ErrNotFound
	}
	delete(tx.state.projects, id)
	tx.recordChange(Change{Entity: domain.EntityProject, Action: domain.ActionDelete, ID: id})
	return nil
}

// UpsertUser replaces or adds a user account.
func (tx *transaction) UpsertUser(u User) (User, error) {
	if err := domain.ValidateUser(u); err != nil {
		return User{}, err
	}
	action := domain.ActionCreate
	if _, ok := tx.state.users[u.ID]; ok {
		action = domain.ActionUpdate
	}
	tx.state.users[u.ID] = u
	tx.recordChange(Change{Entity: domain.EntityUser, Action: action, ID: u.ID})
	return u, nil
}

// DeleteUser removes a user account.
func (tx *transaction) DeleteUser(id string) error {
	if _, ok := tx.state.users[id]; !ok {
		return domain.ErrNotFound
	}
	delete(tx.state.users, id)
	tx.recordChange(Change{Entity: domain.EntityUser, Action: domain.ActionDelete, ID: id})
	return nil
}

// AppendAudit prepends an immutable audit entry. Entries whose id is already
// known are ignored.
func (tx *transaction) AppendAudit(entry AuditLogEntry) error {
	if entry.ID == "" {
		return &domain.ValidationError{Entity: domain.EntityAuditLog, Field: "id", Message: "id is required"}
	}
	for _, existing := range tx.state.audit {
		if existing.ID == entry.ID {
			return nil
		}
	}
	if entry.Timestamp == 0 {
		entry.Timestamp = tx.now.UnixMilli()
	}
	tx.state.audit = append([]AuditLogEntry{entry}, tx.state.audit...)
	sortAudit(tx.state.audit)
	tx.recordChange(Change{Entity: domain.EntityAuditLog, Action: domain.ActionCreate, ID: entry.ID})
	return nil
}

// ListProjects returns every project in canonical order.
func (v transactionView) ListProjects() []Project {
	out := make([]Project, 0, len(v.state.projects))
	for _, p := range v.state.projects {
		out = append(out, domain.CloneProject(p))
	}
	domain.SortProjects(out)
	return out
}

// FindProject retrieves a project by id.
func (v transactionView) FindProject(id string) (Project, bool) {
	p, ok := v.state.projects[id]
	if !ok {
		return Project{}, false
	}
	return domain.CloneProject(p), true
}

// FindProjectByNaturalKey returns the project whose name and address both
// match exactly. When several match, the first in canonical order wins.
func (v transactionView) FindProjectByNaturalKey(name, address string) (Project, bool) {
	for _, p := range v.ListProjects() {
		if p.Name == name && p.Address == address {
			return p, true
		}
	}
	return Project{}, false
}

// FindProjectsByName returns every project with the given name in canonical order.
func (v transactionView) FindProjectsByName(name string) []Project {
	var out []Project
	for _, p := range v.ListProjects() {
		if p.Name == name {
			out = append(out, p)
		}
	}
	return out
}

// ListUsers returns users ordered by id.
func (v transactionView) ListUsers() []User {
	out := make([]User, 0, len(v.state.users))
	for _, u := range v.state.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// FindUser retrieves a user by id.
func (v transactionView) FindUser(id string) (User, bool) {
	u, ok := v.state.users[id]
	return u, ok
}

// FindUserByEmail locates a user by exact email.
func (v transactionView) FindUserByEmail(email string) (User, bool) {
	for _, u := range v.ListUsers() {
		if u.Email == email {
			return u, true
		}
	}
	return User{}, false
}

// ListAuditLogs returns audit entries newest first.
func (v transactionView) ListAuditLogs() []AuditLogEntry {
	return append([]AuditLogEntry(nil), v.state.audit...)
}

func diffState(prev, next memoryState) []Change {
	var changes []Change
	for id := range next.projects {
		action := domain.ActionCreate
		if _, ok := prev.projects[id]; ok {
			action = domain.ActionUpdate
		}
		changes = append(changes, Change{Entity: domain.EntityProject, Action: action, ID: id})
	}
	for id := range prev.projects {
		if _, ok := next.projects[id]; !ok {
			changes = append(changes, Change{Entity: domain.EntityProject, Action: domain.ActionDelete, ID: id})
		}
	}
	for id := range next.users {
		action := domain.ActionCreate
		if _, ok := prev.users[id]; ok {
			action = domain.ActionUpdate
		}
		changes = append(changes, Change{Entity: domain.EntityUser, Action: action, ID: id})
	}
	for id := range prev.users {
		if _, ok := next.users[id]; !ok {
			changes = append(changes, Change{Entity: domain.EntityUser, Action: domain.ActionDelete, ID: id})
		}
	}
	if len(next.audit) != len(prev.audit) || len(changes) == 0 {
		changes = append(changes, Change{Entity: domain.EntityAuditLog, Action: domain.ActionUpdate})
	}
	sort.Slice(changes, func(i, j int) bool {
		if changes[i].Entity != changes[j].Entity {
			return changes[i].Entity < changes[j].Entity
		}
		return changes[i].ID < changes[j].ID
	})
	return changes
}
