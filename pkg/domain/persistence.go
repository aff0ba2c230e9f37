package domain

import "context"

// Origin tags a mutation with the tier that caused it so the write path can
// avoid echoing directory results back to the directory.
type Origin string

// Mutation origins.
const (
	OriginLocal   Origin = "local"
	OriginImport  Origin = "import"
	OriginSync    Origin = "sync"
	OriginRestore Origin = "restore"
)

type originKey struct{}

// WithOrigin returns a context whose mutations are tagged with origin.
func WithOrigin(ctx context.Context, origin Origin) context.Context {
	return context.WithValue(ctx, originKey{}, origin)
}

// OriginFromContext returns the mutation origin carried by ctx, defaulting to
// OriginLocal.
func OriginFromContext(ctx context.Context) Origin {
	if ctx != nil {
		if o, ok := ctx.Value(originKey{}).(Origin); ok && o != "" {
			return o
		}
	}
	return OriginLocal
}

// Event is emitted once per committed mutation, after the store lock is
// released.
type Event struct {
	Origin  Origin
	Changes []Change
}

// Touches reports whether the event changed any record of the given type.
func (e Event) Touches(entity EntityType) bool {
	for _, c := range e.Changes {
		if c.Entity == entity {
			return true
		}
	}
	return false
}

// Transaction exposes the mutations a store applies atomically.
type Transaction interface {
	Snapshot() TransactionView
	UpsertProject(Project) (Project, error)
	DeleteProject(id string) error
	UpsertUser(User) (User, error)
	DeleteUser(id string) error
	AppendAudit(AuditLogEntry) error
}

// TransactionView provides read-only access to the state inside a transaction.
type TransactionView interface {
	ListProjects() []Project
	FindProject(id string) (Project, bool)
	FindProjectByNaturalKey(name, address string) (Project, bool)
	FindProjectsByName(name string) []Project
	ListUsers() []User
	FindUser(id string) (User, bool)
	FindUserByEmail(email string) (User, bool)
	ListAuditLogs() []AuditLogEntry
}

// PersistentStore is the authoritative entity store consumed by the service,
// the reconciler and the importer.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) error
	View(ctx context.Context, fn func(TransactionView) error) error
	Upsert(ctx context.Context, p Project) error
	UpsertAll(ctx context.Context, projects []Project) error
	Remove(ctx context.Context, id string) (bool, error)
	Get(id string) (Project, bool)
	List() []Project
	ListByType(Classification) []Project
	FindByNaturalKey(name, address string) (Project, bool)
	FindByName(name string) []Project
	UpsertUser(ctx context.Context, u User) error
	RemoveUser(ctx context.Context, id string) (bool, error)
	ListUsers() []User
	FindUserByEmail(email string) (User, bool)
	AppendAudit(ctx context.Context, entry AuditLogEntry) error
	ListAudit() []AuditLogEntry
	Subscribe(fn func(Event)) (unsubscribe func())
}
