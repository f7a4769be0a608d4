// Package scheduler owns one live timer per active nudge and turns due
// schedules into notification attempts.
//
// # Overview
//
// The Service observes a nudge collection through a read-only snapshot
// accessor. For every active nudge it asks the recurrence engine for the next
// trigger time and arms a one-shot timer. When the timer expires the nudge
// "fires": the notifier is invoked, the current-trigger slot is set for a
// short window, and after a fixed post-fire delay the nudge is re-armed
// against the *current* collection state — so a toggle-off or edit that
// happened during the window is honored rather than overwritten.
//
// The Service never mutates or persists the collection. The collection owner
// calls Reconcile with a fresh snapshot after every add/remove/toggle/update.
//
// # Timer discipline
//
// Timer callbacks carry a per-id version captured at arm time. Cancellation
// bumps the version, so a callback from a cancelled or replaced timer is a
// structural no-op: at most one live timer exists per nudge id and firings
// for one id are strictly sequential.
//
// # Failure model
//
// Notification failures are logged and counted as consumed: delivery is
// attempted at most once per occurrence and scheduling continues regardless.
// Degenerate schedules evaluate to "immediately due"; they fire, then retry
// on the post-fire cadence until the user corrects the rule.
package scheduler
