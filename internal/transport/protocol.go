package transport

// Response types written to clients, one JSON object per line.
const (
	TypeSuccess = "SUCCESS"
	TypeFailure = "FAILURE"
	TypeIgnored = "IGNORED"
	TypeRecord  = "RECORD"
)

// Response is one server message.
type Response struct {
	Type     string         `json:"type"`
	Metadata map[string]any `json:"metadata,omitempty"`
	Values   []any          `json:"values,omitempty"`
}

// Summary reports whether r ends a request.
func (r Response) Summary() bool { return r.Type != TypeRecord }

// Code returns the status code of a FAILURE.
func (r Response) Code() string {
	code, _ := r.Metadata["code"].(string)
	return code
}

// Message returns the human-readable text of a FAILURE.
func (r Response) Message() string {
	msg, _ := r.Metadata["message"].(string)
	return msg
}
