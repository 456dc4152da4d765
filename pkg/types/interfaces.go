package types

import "context"

// RemoteSource is the network tier's read path. Fetch reports found=false
// with a nil error when the key does not exist remotely.
type RemoteSource interface {
	Fetch(ctx context.Context, key string) (data []byte, found bool, err error)
}

// RemoteSourceFunc adapts a plain function to RemoteSource.
type RemoteSourceFunc func(ctx context.Context, key string) ([]byte, bool, error)

func (f RemoteSourceFunc) Fetch(ctx context.Context, key string) ([]byte, bool, error) {
	return f(ctx, key)
}
