package archive

import (
	"context"
	"fmt"
	"time"
)

// Archive stores dispatched correction payloads for audit. Archival is best
// effort: a run never fails because its payload could not be archived.
type Archive interface {
	// Put stores one JSON payload under the key and returns its public URL.
	Put(ctx context.Context, key string, payload []byte) (string, error)

	// Get retrieves a previously archived payload.
	Get(ctx context.Context, key string) ([]byte, error)

	// Exists checks whether a payload is already archived.
	Exists(ctx context.Context, key string) (bool, error)
}

// PayloadKey builds the object key for one run's dispatched payload. Keys
// are date-partitioned so retention policies can expire whole prefixes.
func PayloadKey(jobID, runID string, at time.Time) string {
	return fmt.Sprintf("corrections/%s/%s/%s.json", at.UTC().Format("2006/01/02"), jobID, runID)
}
