// Package subscription tracks which users follow which sites in real
// time and keeps the broker-level subscriptions in step.
//
// Two levels are kept behind one lock: the set of sites each user
// follows, and a reference count per site. A site is subscribed at the
// broker while its count is positive. Counts change only after the broker
// call succeeds, so a failed subscribe leaves the registry as it was.
// After every reconnect ResubscribeAll rebuilds the broker state from
// the counts.
package subscription
