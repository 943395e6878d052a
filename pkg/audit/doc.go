// Package audit records role-assignment changes and denied accesses as
// structured audit events.
//
// Every mutation performed through the authorization engine (assign,
// update, revoke, legacy bootstrap) produces an Event identifying the
// acting principal, the affected principal, the role involved and the
// outcome. Events are delivered to a Logger implementation; the package
// ships a structured-log sink (SlogLogger), an append-only JSON-lines
// file sink (FileLogger) and a no-op sink (NopLogger).
//
// Audit logging is best-effort from the engine's perspective: a failed
// audit write is reported to the application log but never blocks or
// fails the underlying operation.
package audit
