package counter

import "context"

// Backend is the raw keyed storage beneath the counter store.
// Implementations must be safe for concurrent use. Update must apply the
// read-modify-write atomically with respect to other Updates of the same
// key; the actor layer above additionally serializes all operations for an
// identity, so Backend atomicity is the second line of defense, not the
// first.
type Backend interface {
	// Get returns the raw value for key. The second return is false when
	// the key does not exist.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Update atomically transforms the value at key. fn receives the
	// current value (or found=false) and returns the value to store.
	// An error from fn aborts the update and is returned unchanged.
	Update(ctx context.Context, key string, fn func(old []byte, found bool) ([]byte, error)) error

	// Delete removes key. No-op if the key does not exist.
	Delete(ctx context.Context, key string) error

	// Keys returns all stored keys. Used only by sweeps.
	Keys(ctx context.Context) ([]string, error)

	// Close releases backend resources.
	Close() error
}
