// Package isms wraps the external ISMS CRUD backend behind a narrow
// coordinator contract. The fast path of the router dispatches classified
// operations here; what a create or update actually does to the underlying
// records is entirely the backend's business.
package isms
