// Package router is the tiered front door for operation requests. Requests
// that the lexical classifier recognises are dispatched straight to the CRUD
// coordinator; everything else is escalated to the reasoning collaborator,
// whose reply may be a final answer or a tool-chain specification run by the
// chain executor. The router emits progress events per session and converts
// every internal failure into a structured error result.
package router
