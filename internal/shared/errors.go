package shared

import "fmt"

var (
	// Configuration errors
	ErrMissingConfig      = fmt.Errorf("configuration not found")
	ErrInvalidConfig      = fmt.Errorf("invalid configuration")
	ErrMissingCredentials = fmt.Errorf("missing credentials")

	// Device session errors
	ErrConnection    = fmt.Errorf("connection error")
	ErrCommunication = fmt.Errorf("communication error")
	ErrUnknown       = fmt.Errorf("unknown device error")
	ErrDevice        = fmt.Errorf("device rejected request")
	ErrSessionClosed = fmt.Errorf("session closed")

	// Migration errors
	ErrImport        = fmt.Errorf("import failed")
	ErrExport        = fmt.Errorf("export failed")
	ErrReplication   = fmt.Errorf("replication aborted")
	ErrInvalidRecord = fmt.Errorf("invalid record")
	ErrCreate        = fmt.Errorf("create failed")
	ErrAlreadyExists = fmt.Errorf("user already exists")

	// History errors
	ErrRunNotFound = fmt.Errorf("run not found")

	// Input validation errors
	ErrInvalidInput    = fmt.Errorf("invalid input")
	ErrInvalidArgument = fmt.Errorf("invalid argument")
)
