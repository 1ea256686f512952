// Package session owns the in-process lifecycle of conversations: each
// session carries an object tracker and the per-turn history fed back to the
// reasoning collaborator. Sessions are identified by UUID and deliberately
// do not survive a restart.
package session
