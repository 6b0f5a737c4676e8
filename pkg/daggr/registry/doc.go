// Package registry provides thread-safe name-to-implementation registries.
//
// Graph definitions loaded from configuration reference node strategies by
// name; a registry is where an application publishes the Go implementations
// those names resolve to. Lookups of unknown names fail with ErrUnknown so
// a definition referencing a missing implementation surfaces as a load
// error, not a nil deref at run time.
package registry
