package bridge

// MessageType discriminates bridge protocol messages.
type MessageType string

// The four message types a sandboxed context exchanges with the host.
const (
	// TypeReady is sent by the sandbox once its module has loaded.
	TypeReady MessageType = "ready"

	// TypeServiceCall asks the host to invoke a service procedure.
	TypeServiceCall MessageType = "service-call"

	// TypeServiceResponse answers one service call. It carries either
	// Result or Error, never both.
	TypeServiceResponse MessageType = "service-response"

	// TypeError reports a protocol-level problem unrelated to any one
	// pending call.
	TypeError MessageType = "error"
)

// Message is one bridge protocol frame. ID correlates a service call
// with its response; responses reuse the call's id verbatim.
type Message struct {
	Type      MessageType `json:"type"`
	ID        string      `json:"id,omitempty"`
	Service   string      `json:"service,omitempty"`
	Procedure string      `json:"procedure,omitempty"`
	Args      any         `json:"args,omitempty"`
	Result    any         `json:"result,omitempty"`
	Error     string      `json:"error,omitempty"`
}
