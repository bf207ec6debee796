// Package archive persists snapshot history to optional storage backends.
// The engine is fully functional without any of them: all live state is
// rebuildable from the feeds, so archiving is history, not correctness.
package archive

import (
	"context"
	"sync"

	"github.com/jlaranjo/intersectd/internal/types"
)

// Archiver is a storage backend for snapshot history. StartArchiver launches
// the backend's worker goroutine and returns the channel snapshots are
// consumed from.
type Archiver interface {
	StartArchiver(ctx context.Context, wg *sync.WaitGroup) chan<- *types.Snapshot
}
