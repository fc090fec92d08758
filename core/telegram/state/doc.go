// Package state keeps per-user conversation state for Telegram flows.
// Sessions are ephemeral: the in-memory manager evicts idle sessions and the
// Redis manager relies on key expiry, so abandoned dialogs never accumulate.
package state
