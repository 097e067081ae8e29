package oauthclientsrv

import (
	"context"

	"github.com/identra-io/identra/pkg/iam/oauthclient"
)

// DescriptorCache is the read-through cache the CachedMaterializer consults
// before deriving. Implementations are best-effort; a miss or a failed write
// only costs a re-derivation.
type DescriptorCache interface {
	Get(ctx context.Context, clientID string) (*oauthclient.ClientDescriptor, bool)
	Set(ctx context.Context, d *oauthclient.ClientDescriptor)
	Invalidate(ctx context.Context, clientID string)
}

// CachedMaterializer fronts a Materializer with a descriptor cache. The
// wrapper owns the composition: the Materializer stays cache-free and the
// invalidation hook is wired here.
type CachedMaterializer struct {
	inner *Materializer
	cache DescriptorCache
}

// NewCachedMaterializer wraps the Materializer and registers the cache on
// its invalidation hook.
func NewCachedMaterializer(inner *Materializer, cache DescriptorCache) *CachedMaterializer {
	inner.OnInvalidate(func(clientID string) {
		cache.Invalidate(context.Background(), clientID)
	})
	return &CachedMaterializer{inner: inner, cache: cache}
}

// Materialize returns the cached descriptor when present, deriving and
// caching it otherwise.
func (c *CachedMaterializer) Materialize(ctx context.Context, clientID string) (*oauthclient.ClientDescriptor, error) {
	if d, ok := c.cache.Get(ctx, clientID); ok {
		return d, nil
	}

	d, err := c.inner.Materialize(ctx, clientID)
	if err != nil {
		return nil, err
	}

	c.cache.Set(ctx, d)
	return d, nil
}

// VerifySecret always hits the store; secrets are never cached.
func (c *CachedMaterializer) VerifySecret(ctx context.Context, clientID, secret string) error {
	return c.inner.VerifySecret(ctx, clientID, secret)
}
