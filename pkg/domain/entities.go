// Package domain defines the persistent entities, value types and store
// contracts shared by every storage tier of worksite.
package domain

// EntityType identifies the type of record stored in the core domain.
type EntityType string

// Supported entity type identifiers used in Change records and cache buckets.
const (
	// EntityProject identifies a project record.
	EntityProject EntityType = "project"
	// EntityUser identifies a user account.
	EntityUser EntityType = "user"
	// EntityAuditLog identifies an immutable audit entry.
	EntityAuditLog EntityType = "audit_log"
)

// Classification is one of the three mutually exclusive project categories.
type Classification string

// Project classifications. Construction is the default for unknown input.
const (
	ClassConstruction Classification = "construction"
	ClassMaintenance  Classification = "maintenance"
	ClassModularHouse Classification = "modular_house"
)

// Valid reports whether c is one of the known classifications.
func (c Classification) Valid() bool {
	switch c {
	case ClassConstruction, ClassMaintenance, ClassModularHouse:
		return true
	}
	return false
}

// ProjectStatus enumerates project workflow states. Values are the labels the
// field crews use, so persisted documents stay readable by the old tooling.
type ProjectStatus string

// Canonical project statuses in cycle order.
const (
	StatusPlanning   ProjectStatus = "規劃中"
	StatusInProgress ProjectStatus = "進行中"
	StatusCompleted  ProjectStatus = "已完工"
	StatusOnHold     ProjectStatus = "暫停"
)

// StatusCycle is the order in which NextStatus advances a project.
var StatusCycle = []ProjectStatus{StatusPlanning, StatusInProgress, StatusCompleted, StatusOnHold}

// MaterialStatus enumerates purchasing states of a material line.
type MaterialStatus string

// Canonical material statuses.
const (
	MaterialPending   MaterialStatus = "待採購"
	MaterialOrdered   MaterialStatus = "已訂購"
	MaterialDelivered MaterialStatus = "已進場"
)

// UserRole gates which collaborators may mutate the store.
type UserRole string

// Supported roles.
const (
	RoleAdmin   UserRole = "admin"
	RoleManager UserRole = "manager"
	RoleWorker  UserRole = "worker"
)

// User is an account known to the installation.
type User struct {
	ID     string   `json:"id"`
	Name   string   `json:"name"`
	Email  string   `json:"email"`
	Role   UserRole `json:"role"`
	Avatar string   `json:"avatar,omitempty"`
}

// Milestone is a dated checkpoint owned by a project.
type Milestone struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Date      string `json:"date"`
	Completed bool   `json:"completed"`
	Notes     string `json:"notes,omitempty"`
}

// SitePhoto is an image taken on site, stored inline as a data URI.
type SitePhoto struct {
	ID          string `json:"id"`
	URL         string `json:"url"`
	Timestamp   int64  `json:"timestamp"`
	Description string `json:"description"`
	AIAnalysis  string `json:"aiAnalysis,omitempty"`
}

// Material is a requisition line.
type Material struct {
	ID       string         `json:"id"`
	Name     string         `json:"name"`
	Quantity float64        `json:"quantity"`
	Unit     string         `json:"unit"`
	Status   MaterialStatus `json:"status"`
	Notes    string         `json:"notes,omitempty"`
}

// Attachment is a file owned by a project. Within a project the pair
// (Name, Size) is unique.
type Attachment struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Size int64  `json:"size"`
	Type string `json:"type"`
	URL  string `json:"url"`
}

// DailyReport is a dated work log entry.
type DailyReport struct {
	ID        string   `json:"id"`
	Date      string   `json:"date"`
	Weather   string   `json:"weather"`
	Content   string   `json:"content"`
	Reporter  string   `json:"reporter"`
	Timestamp int64    `json:"timestamp"`
	Photos    []string `json:"photos,omitempty"`
	Worker    string   `json:"worker,omitempty"`
	Assistant string   `json:"assistant,omitempty"`
}

// ConstructionItem is a type-specific work-log line.
type ConstructionItem struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Quantity  string `json:"quantity"`
	Unit      string `json:"unit"`
	Location  string `json:"location"`
	Worker    string `json:"worker"`
	Assistant string `json:"assistant"`
	Date      string `json:"date"`
}

// ConstructionSignature is a captured sign-off image for a work day.
type ConstructionSignature struct {
	ID        string `json:"id"`
	Date      string `json:"date"`
	URL       string `json:"url"`
	Timestamp int64  `json:"timestamp"`
}

// CompletionItem is one line of a completion report.
type CompletionItem struct {
	Name     string `json:"name"`
	Action   string `json:"action"`
	Quantity string `json:"quantity"`
	Unit     string `json:"unit"`
	Category string `json:"category"`
}

// CompletionReport closes out installation or dismantling work.
type CompletionReport struct {
	ID        string           `json:"id"`
	Date      string           `json:"date"`
	Worker    string           `json:"worker"`
	Items     []CompletionItem `json:"items"`
	Notes     string           `json:"notes"`
	Signature string           `json:"signature"`
	Timestamp int64            `json:"timestamp"`
}

// Project is the central record. It exclusively owns every entry of its
// sub-collections.
type Project struct {
	ID              string         `json:"id"`
	Name            string         `json:"name"`
	Type            Classification `json:"type"`
	ClientName      string         `json:"clientName"`
	ClientContact   string         `json:"clientContact"`
	ClientPhone     string         `json:"clientPhone"`
	Address         string         `json:"address"`
	Status          ProjectStatus  `json:"status"`
	Progress        int            `json:"progress"`
	AppointmentDate string         `json:"appointmentDate"`
	ReportDate      string         `json:"reportDate"`
	Description     string         `json:"description"`
	Remarks         string         `json:"remarks"`

	MaterialFillingDate      string `json:"materialFillingDate,omitempty"`
	MaterialRequisitioner    string `json:"materialRequisitioner,omitempty"`
	MaterialDeliveryDate     string `json:"materialDeliveryDate,omitempty"`
	MaterialDeliveryLocation string `json:"materialDeliveryLocation,omitempty"`
	MaterialReceiver         string `json:"materialReceiver,omitempty"`

	Milestones             []Milestone             `json:"milestones"`
	Photos                 []SitePhoto             `json:"photos"`
	Materials              []Material              `json:"materials"`
	Reports                []DailyReport           `json:"reports"`
	Attachments            []Attachment            `json:"attachments"`
	ConstructionItems      []ConstructionItem      `json:"constructionItems"`
	ConstructionSignatures []ConstructionSignature `json:"constructionSignatures"`
	CompletionReports      []CompletionReport      `json:"completionReports"`
}

// AuditLogEntry is immutable once created.
type AuditLogEntry struct {
	ID        string `json:"id"`
	ActorID   string `json:"userId"`
	ActorName string `json:"userName"`
	Action    string `json:"action"`
	Details   string `json:"details"`
	Timestamp int64  `json:"timestamp"`
}

// Change describes one record touched by a store mutation.
type Change struct {
	Entity EntityType
	Action Action
	ID     string
}

// Action indicates the type of modification performed.
type Action string

// Change actions enumerate supported mutations.
const (
	// ActionCreate indicates an entity was created.
	ActionCreate Action = "create"
	// ActionUpdate indicates an entity was updated.
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)
