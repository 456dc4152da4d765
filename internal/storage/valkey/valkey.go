// Package valkey serves the network tier from a Valkey (or Redis) server.
// It only reads; writing the keys is up to whatever populates the server.
package valkey

import (
	"context"
	"fmt"

	valkeygo "github.com/valkey-io/valkey-go"
)

// Config describes the server connection.
type Config struct {
	Addresses []string
	Username  string
	Password  string
	DB        int
	// Prefix is prepended to every cache key.
	Prefix string
}

// Source fetches cache keys with GET.
type Source struct {
	client valkeygo.Client
	prefix string
	owned  bool
}

// New wraps an existing client. The caller keeps ownership of it.
func New(client valkeygo.Client, prefix string) *Source {
	return &Source{client: client, prefix: prefix}
}

// Dial connects to the configured server.
func Dial(cfg Config) (*Source, error) {
	if len(cfg.Addresses) == 0 {
		return nil, fmt.Errorf("valkey: no addresses configured")
	}

	client, err := valkeygo.NewClient(valkeygo.ClientOption{
		InitAddress: cfg.Addresses,
		Username:    cfg.Username,
		Password:    cfg.Password,
		SelectDB:    cfg.DB,
	})
	if err != nil {
		return nil, fmt.Errorf("valkey: connect: %w", err)
	}

	s := New(client, cfg.Prefix)
	s.owned = true
	return s, nil
}

// Fetch implements types.RemoteSource. A nil reply is not-found.
func (s *Source) Fetch(ctx context.Context, key string) ([]byte, bool, error) {
	resp := s.client.Do(ctx, s.client.B().Get().Key(s.prefix+key).Build())
	if err := resp.Error(); err != nil {
		if valkeygo.IsValkeyNil(err) {
			return nil, false, nil
		}
		return nil, false, err
	}

	data, err := resp.AsBytes()
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

// Close closes the client if Dial created it.
func (s *Source) Close() {
	if s.owned {
		s.client.Close()
	}
}
