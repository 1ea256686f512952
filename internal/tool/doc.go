// Package tool holds the process-lifetime tool registry: a concurrency-safe
// map from tool name to an invocable capability. Chain steps and the fast
// path both dispatch through it. Built-in tools wrap the CRUD coordinator
// and the reasoning collaborator; deployments may add more via plugins.
package tool
