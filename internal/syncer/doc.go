// Package syncer drives the cloud synchronization pipeline and the local
// save pipeline.
//
// The Controller owns the sync lifecycle: it pulls the remote snapshot,
// merges it with the local one, lets an optional conflict resolver
// override the automatic result, replaces the in-memory store, pushes the
// merged snapshot back, and persists it locally. At most one sync runs at
// a time; a second invocation while one is in flight is dropped.
//
// The Saver batches rapid local mutations: each Save call arms (or
// re-arms) a short debounce timer, so a burst of edits commits exactly
// once. Every commit writes locally; the remote push happens only when a
// signed-in remote is configured and reachable, otherwise the change is
// recorded in the bounded pending queue and picked up by the next
// successful sync.
//
// Example:
//
//	ctrl := syncer.New(st, database, adapter, userID, nil)
//	go ctrl.Run(ctx)
//
//	saver := syncer.NewSaver(ctrl)
//	saver.Save("attendance updated")
package syncer
