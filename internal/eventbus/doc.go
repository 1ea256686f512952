// Package eventbus delivers per-session progress events from the request
// handling path to at most one observer stream per session. Producers never
// block and never see delivery errors; consumers wait with a timeout and
// decide themselves whether to heartbeat or disconnect. Each session keeps a
// bounded history ring that survives observer disconnects. Backends: an
// in-process channel broker, Redis lists, and RabbitMQ queues.
package eventbus
