package logging

// Canonical field name constants for structured logging.
const (
	FieldService   = "service"
	FieldVersion   = "version"
	FieldComponent = "component"

	FieldConnectionID = "connection_id"
	FieldRemote       = "remote"
	FieldPrincipal    = "principal"
	FieldMessage      = "message_type"
	FieldState        = "state"
	FieldOldState     = "old_state"
	FieldNewState     = "new_state"

	FieldCode      = "code"
	FieldReference = "reference"
	FieldFatalKind = "fatal_kind"
	FieldReason    = "reason"
	FieldStack     = "stack"
	FieldAudience  = "audience"

	FieldAddress = "address"
	FieldPath    = "path"
)
