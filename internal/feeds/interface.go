// Package feeds defines the inbound feed adapter contract shared by the
// fleet and broadcast adapters.
package feeds

// Feed is a source of vehicle and hazard updates. Implementations run their
// own goroutines under the context and wait group they were constructed with
// and commit normalized records straight into the stores; one malformed
// message never blocks the ones behind it.
type Feed interface {
	StartFeed() error
	FeedName() string
}
