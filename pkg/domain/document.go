package domain

import "time"

// DocumentName is the file name of the persisted document inside a linked
// directory.
const DocumentName = "db.json"

// Document is the full data set written to a linked directory.
type Document struct {
	Projects  []Project       `json:"projects"`
	Users     []User          `json:"users"`
	AuditLogs []AuditLogEntry `json:"auditLogs"`
	LastSaved time.Time       `json:"lastSaved"`
}

// Permission is the directory permission state.
type Permission string

// Permission states of a directory channel.
const (
	PermissionUnlinked  Permission = "unlinked"
	PermissionPrompting Permission = "prompting"
	PermissionGranted   Permission = "granted"
	PermissionDenied    Permission = "denied"
)

// SyncState reports the directory link as seen by callers.
type SyncState struct {
	Connected  bool       `json:"connected"`
	Permission Permission `json:"permission"`
	HasHandle  bool       `json:"hasHandle"`
	LastSaved  time.Time  `json:"lastSaved"`
}

// Audit actions recorded by the service.
const (
	AuditCreateProject       = "CREATE_PROJECT"
	AuditUpdateProject       = "UPDATE_PROJECT"
	AuditDeleteProject       = "DELETE_PROJECT"
	AuditDuplicateProject    = "DUPLICATE_PROJECT"
	AuditImportExcel         = "IMPORT_EXCEL"
	AuditSystemRestore       = "SYSTEM_RESTORE"
	AuditDataExport          = "DATA_EXPORT"
	AuditUpdateSettings      = "UPDATE_SETTINGS"
	AuditConnectDirectory    = "CONNECT_DIRECTORY"
	AuditDisconnectDirectory = "DISCONNECT_DIRECTORY"
)
