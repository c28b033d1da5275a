// Package handle provides the opaque handle registry mediating between the
// host and native engine objects.
//
// Every engine object the host can reach (index, writer, reader, searcher,
// document, query) is wrapped in exactly one handle. The registry is the
// only component that understands both ownership domains: host-visible
// handles on one side, engine-internal reference counts on the other.
//
// # Lifecycle
//
//	reg := handle.NewRegistry()
//
//	// Register an object, get a handle
//	h := reg.Insert(handle.KindIndex, idx)
//
//	// Resolve with kind checking
//	v, err := reg.GetKinded(h, handle.KindIndex)
//
//	// Release; idempotent, tears down Droppers
//	reg.Release(h)
//
// After Release, every resolve of the same handle fails with an
// invalid_handle error. Slots are recycled under a generation counter, so a
// stale handle can never alias an object created later in the same slot.
//
// # Teardown
//
// Objects implementing Dropper are dropped on release and on registry
// Close. Close releases everything and is the module-unload path.
package handle
