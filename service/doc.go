// Package service routes widget procedure calls to configured
// backends.
//
// A [Proxy] resolves a (service, procedure, args) triple to the
// Backend configured for the service name, constructs it lazily, and
// guarantees at most one live instance per name for the life of the
// process. Results of successful calls are cached per service when a
// TTL is configured, in one bounded store shared across all services.
//
// # Backends
//
// Four kinds ship in subpackages, each implementing [Backend]:
//
//   - remotetool: a spawned child process speaking JSON-RPC over its
//     standard streams (MCP).
//   - httpapi: a remote HTTP API, driven by a declared description or
//     by naming-convention inference.
//   - shellcmd: local commands with a hard execution timeout.
//   - memstore: an in-process shared key-value space.
//
// # Error Policy
//
// Resolution failures (unconfigured service, unknown kind) are errors
// and fail fast. Procedure failures are data: a failure [Result] with
// a human-readable Error, so widget code can render its own error
// state instead of crashing the host.
package service
