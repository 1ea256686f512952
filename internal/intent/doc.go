// Package intent converts free-form operation requests into structured
// intents using an ordered list of lexical rules. It performs no scoring or
// backtracking and never calls out to the reasoning collaborator; requests
// that match no rule are reported as unclassified so the router can escalate
// them.
package intent
