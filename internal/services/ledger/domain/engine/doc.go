// Package engine executes commands against event-sourced aggregates.
//
// One execution loads the aggregate by replaying its events, asks the
// decider for a decision, appends the decided events with a
// compare-and-swap on the aggregate's last sequence, folds them into state,
// and projects them into the read model. A lost compare-and-swap reloads and
// decides again, so concurrent commands on one aggregate serialize without a
// lock held across the decision.
package engine
