// Package chain executes an ordered list of tool invocations against the
// tool registry. Steps may reference earlier results with $name.path
// expressions, guard themselves with compare/exists conditions, and choose
// whether a failure halts the remainder of the chain. Partial completion is
// a defined outcome: a failed chain returns the log and results accumulated
// up to the failing step.
package chain
