// Package api exposes the HTTP surface of the agent: session lifecycle
// endpoints, the operation routing endpoint, and a server-sent-events stream
// of per-session progress events with heartbeat keep-alive.
package api
