// Package bridge implements the message protocol between sandboxed
// widget contexts and the host's service layer.
//
// A sandboxed mount registers a [Session] with a [Bridge] and receives
// an id and a token. The generated sandbox document carries both and
// connects back over a websocket; the bridge validates the token on
// attach and thereafter only dispatches frames arriving on that
// session's attached connection. Service-call frames are routed to a
// [Router] (the service proxy) and answered with a response frame
// carrying either the result or an error, never both. Frames whose
// correlation id matches nothing pending are dropped silently on both
// sides.
//
// The same call/response protocol exists twice: in the generated
// sandbox script (JavaScript) and in the native [Client], which serves
// in-process isolates and tests.
package bridge
