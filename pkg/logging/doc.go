// Package logging provides the structured logging facade used across the
// vault connection core.
//
// Log calls are tagged with a subsystem name and routed through log/slog.
// Two modes are supported:
//
//   - CLI mode: entries are written to an io.Writer through a slog text
//     handler, filtered by level. This is what the vault-core CLI uses.
//   - Embedded mode: entries are forwarded over a channel so an embedding
//     host application can render diagnostics in its own UI without the
//     library writing to stdio.
//
// Security-sensitive events (nonce mismatches, confirmation outcomes) are
// logged here with their context but never with credential or token values.
package logging
