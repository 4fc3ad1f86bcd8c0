// Package audit records login events.
//
// An Emitter receives one Event per successful exchange. Sinks:
//
//   - DBEmitter stores events in the auth_audit table and implements retention cleanup
//   - LogEmitter writes events as structured log lines
//   - MultiEmitter fans out to several sinks
//   - NopEmitter discards events
//
// Emission is best effort from the caller's point of view: a failed emission
// is logged and never blocks token issuance.
package audit
