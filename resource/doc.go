// Package resource defines the data model tracked by the registry: the
// caller-supplied Definition, the registry-owned Resource with its status and
// bounded health history, and the partial Update payload.
//
// Values in this package carry no behavior beyond read helpers, validation
// and the state machine table. Mutation is the registry's job.
package resource
