package classifier

import (
	"context"

	"github.com/seclayer/urlfilter/internal/urlfilter/domain"
)

// ShardSource provides read access to shard trees. The classifier never
// mutates shards; writes go through the admin service.
type ShardSource interface {
	// Get returns the tree for key, or found=false for keys never written.
	Get(ctx context.Context, key domain.ShardKey) (tree *domain.ShardTree, found bool, err error)
}
