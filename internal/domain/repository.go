package domain

import (
	"context"
	"encoding/json"
	"time"

	"github.com/eliteGoblin/focusd/access_mon/internal/timing"
)

// Table names one keyed collection of the store.
type Table string

const (
	TableUsers     Table = "users"
	TablePolicies  Table = "policies"
	TableRules     Table = "rules"
	TableEnforcers Table = "enforcers"
)

// Tables lists every aggregate table in load order.
var Tables = []Table{TableUsers, TablePolicies, TableRules, TableEnforcers}

// Fields maps column names to JSON-encodable values.
type Fields map[string]any

// Record is one stored row as read back from the store.
type Record struct {
	ID     string
	Fields map[string]json.RawMessage
}

// ChangeOp is the kind of a persisted change.
type ChangeOp string

const (
	ChangeAdd    ChangeOp = "add"
	ChangeUpdate ChangeOp = "update"
	ChangeDelete ChangeOp = "delete"
)

// Change is one row mutation produced by an operation. Update changes carry
// only the fields that changed.
type Change struct {
	Op     ChangeOp
	Table  Table
	ID     string
	Fields Fields
}

func AddRow(t Table, id string, f Fields) Change {
	return Change{Op: ChangeAdd, Table: t, ID: id, Fields: f}
}

func UpdateRow(t Table, id string, f Fields) Change {
	return Change{Op: ChangeUpdate, Table: t, ID: id, Fields: f}
}

func DeleteRow(t Table, id string) Change {
	return Change{Op: ChangeDelete, Table: t, ID: id}
}

// CommonInfo is the singleton row describing the store itself.
type CommonInfo struct {
	SchemaVersion int       `json:"schema_version"`
	CreatedAt     time.Time `json:"created_at"`
	LastStartedAt time.Time `json:"last_started_at"`
	StartCount    int       `json:"start_count"`
}

// Store persists the aggregates. Every write is durable when it returns.
// Implementation: SQLCipher encrypted SQLite.
type Store interface {
	// FindAll returns every row of t.
	FindAll(t Table) ([]Record, error)

	// Add inserts a new row.
	Add(t Table, id string, f Fields) error

	// Update merges the changed fields into an existing row.
	Update(t Table, id string, f Fields) error

	// Delete removes a row. Deleting a missing row is not an error.
	Delete(t Table, id string) error

	// Commit applies all changes atomically.
	Commit(changes []Change) error

	// CommonInfo returns the singleton info row, reinitializing it with
	// defaults if it is absent.
	CommonInfo() (CommonInfo, error)

	// RecordStart stamps the info row with a daemon start at t.
	RecordStart(t time.Time) (CommonInfo, error)

	// Close releases the database connection.
	Close() error
}

// Actuator applies access decisions to the operating system. Every call is
// idempotent.
type Actuator interface {
	// BlockTraffic drops all traffic of the OS user uid.
	BlockTraffic(ctx context.Context, uid uint32) error

	// AllowTraffic removes the drop rules for uid.
	AllowTraffic(ctx context.Context, uid uint32) error

	// ChangePassword sets the password of an OS account.
	ChangePassword(ctx context.Context, username, password string) error

	// TerminateSessions ends every login session of an OS account.
	TerminateSessions(ctx context.Context, username string) error
}

// Clock provides the current wall-clock time.
type Clock interface {
	Now() timing.DateTime
}

// PasswordGenerator creates the random passwords used to lock accounts.
type PasswordGenerator interface {
	Generate() (string, error)
}

// ProcessManager finds and kills the processes of an OS account.
type ProcessManager interface {
	// FindByUser returns PIDs owned by username, excluding the caller.
	FindByUser(ctx context.Context, username string) ([]int, error)

	// Kill sends SIGKILL to pid.
	Kill(ctx context.Context, pid int) error

	// Exists reports whether pid is still alive.
	Exists(ctx context.Context, pid int) bool
}

// KeyProvider supplies the store encryption key, creating it on first use.
type KeyProvider interface {
	Key() ([]byte, error)
}

// ServiceManager installs the daemon as an init-system service.
// Implementation: systemd unit files.
type ServiceManager interface {
	// Install writes the service definition and starts it.
	Install(execPath string) error

	// Uninstall stops the service and removes its definition.
	Uninstall() error

	// IsInstalled checks if the service definition exists.
	IsInstalled() bool

	// NeedsUpdate reports whether the installed definition differs from
	// the one execPath would produce.
	NeedsUpdate(execPath string) bool

	// Update rewrites the service definition.
	Update(execPath string) error
}

// FirewallBackend manages per-uid drop rules in one packet filter
// (iptables, ip6tables).
type FirewallBackend interface {
	// Name returns the backend name (e.g., "iptables").
	Name() string

	// IsAvailable returns true if the backend binary exists on this system.
	IsAvailable() bool

	// HasDropRule checks whether the drop rule for uid is installed.
	HasDropRule(ctx context.Context, uid uint32) (bool, error)

	// InsertDropRule installs the drop rule for uid.
	InsertDropRule(ctx context.Context, uid uint32) error

	// DeleteDropRule removes the drop rule for uid.
	DeleteDropRule(ctx context.Context, uid uint32) error
}
