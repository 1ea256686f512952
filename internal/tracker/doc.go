// Package tracker keeps per-session context of the ISMS objects created
// during a conversation, so follow-up requests can refer to them by name.
// Trackers live for the session only and are never persisted.
package tracker
