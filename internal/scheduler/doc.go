// Package scheduler fires hydration reminders at their wall-clock times.
//
// # Overview
//
// The Service is the single scheduling authority of the process. It keeps an
// in-memory Registry mapping reminder id to one live timer handle, computes
// fire instants with the pure calculator in the reminder package, and owns
// the reminder lifecycle: create/update/delete from the API layer, fire and
// reschedule (recurring) or fire and finalize (one-shot), plus startup
// reconciliation against the persistent store.
//
// # Firing model
//
// Timers never run scheduler logic in their own callback context. On expiry
// a timer enqueues the reminder id onto a buffered channel consumed by one
// serialized processing loop, which re-fetches the current persisted
// reminder by id (a concurrently updated or deleted reminder is therefore
// never acted on from stale data), hands it to the notification sink, and
// reschedules or finalizes.
//
// # Replacement semantics
//
// Updating a reminder is cancel-then-install, atomic with respect to firing:
// every install stamps the registry entry with a fresh sequence number and a
// fire that lost the race to a cancel or replacement finds the stale
// sequence under the registry lock and is discarded.
//
// # Failure isolation
//
// Sink failures are logged and never prevent rescheduling. A reminder whose
// schedule cannot be computed or installed is skipped with an error log;
// other reminders are unaffected.
package scheduler
