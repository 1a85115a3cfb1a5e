// Package blob abstracts durable byte storage for document artifacts.
package blob

import "context"

// Store is the durable byte-storage collaborator. Keys are opaque storage
// references owned by the caller.
type Store interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}
