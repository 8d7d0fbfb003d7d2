// Package registry owns the set of active watchers, keyed by root path.
//
// At most one watcher exists per root. A watcher that fails is dropped from
// the registry and its error is handed to the registry's error sink; it is
// never restarted.
package registry
