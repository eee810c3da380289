// Package rollback records, orders, and executes reversible actions for
// a single orchestration run.
package rollback

// Type identifies what kind of reversal an Action performs.
type Type string

const (
	TypeRestoreFile     Type = "restore-file"
	TypeDeleteSecret    Type = "delete-secret"
	TypeDeleteDatabase  Type = "delete-database"
	TypeDeleteWorker    Type = "delete-worker"
	TypeCustomCommand   Type = "custom-command"
)

// Priority buckets order rollback: worker deletion runs before
// secret deletion, which runs before database deletion, and file
// restoration runs last.
const (
	PriorityRestoreFile    = 10
	PriorityDeleteDatabase = 20
	PriorityDeleteSecret   = 30
	PriorityDeleteWorker   = 40
)

// Action is one reversible step recorded during deployment.
type Action struct {
	ID                string
	Type              Type
	Priority          int
	Description       string
	Critical          bool
	ContinueOnFailure bool

	// Type-specific fields. Only the fields relevant to Type are set.
	BackupPath   string
	OriginalPath string
	SecretKey    string
	Environment  string
	DatabaseName string
	WorkerName   string
	Command      string
	Args         []string
}

// NewRestoreFileAction builds a restore-file action with the default
// priority and critical=true, continue_on_failure=false.
func NewRestoreFileAction(id, backupPath, originalPath string) Action {
	return Action{
		ID:           id,
		Type:         TypeRestoreFile,
		Priority:     PriorityRestoreFile,
		Description:  "restore " + originalPath + " from backup",
		Critical:     true,
		BackupPath:   backupPath,
		OriginalPath: originalPath,
	}
}

// NewDeleteSecretAction builds a delete-secret action.
func NewDeleteSecretAction(id, key, environment string) Action {
	return Action{
		ID:          id,
		Type:        TypeDeleteSecret,
		Priority:    PriorityDeleteSecret,
		Description: "delete secret " + key + " in " + environment,
		Critical:    true,
		SecretKey:   key,
		Environment: environment,
	}
}

// NewDeleteDatabaseAction builds a delete-database action.
func NewDeleteDatabaseAction(id, databaseName string) Action {
	return Action{
		ID:           id,
		Type:         TypeDeleteDatabase,
		Priority:     PriorityDeleteDatabase,
		Description:  "delete database " + databaseName,
		Critical:     true,
		DatabaseName: databaseName,
	}
}

// NewDeleteWorkerAction builds a delete-worker action.
func NewDeleteWorkerAction(id, workerName, environment string) Action {
	return Action{
		ID:          id,
		Type:        TypeDeleteWorker,
		Priority:    PriorityDeleteWorker,
		Description: "delete worker " + workerName + " in " + environment,
		Critical:    true,
		WorkerName:  workerName,
		Environment: environment,
	}
}
