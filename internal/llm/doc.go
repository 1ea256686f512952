// Package llm defines the contract between the router and the external
// reasoning collaborator, together with the concrete clients that implement
// it. The collaborator is treated as a single opaque capability: given a
// prompt assembled from the request, the session history and the object
// tracker summary, it returns either a final reply or a tool-chain
// specification encoded as JSON.
package llm
