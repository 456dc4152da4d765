package cache

import (
	"context"
	"fmt"
	"math/rand"
	"testing"

	"github.com/tiercache/tiercache/pkg/types"
)

func newBenchCoordinator(b *testing.B, opts Options) *Coordinator {
	b.Helper()
	c, err := New(context.Background(), opts)
	if err != nil {
		b.Fatal(err)
	}
	b.Cleanup(func() { _ = c.Close() })
	return c
}

func BenchmarkCoordinatorGet(b *testing.B) {
	c := newBenchCoordinator(b, Options{Strategy: types.LRU(0)})
	ctx := context.Background()

	for i := 0; i < 1000; i++ {
		data := make([]byte, 1024)
		rand.Read(data)
		c.Set(ctx, fmt.Sprintf("key-%d", i), data, types.TierMemory)
	}

	b.ResetTimer()
	b.ReportAllocs()

	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			c.Get(ctx, fmt.Sprintf("key-%d", i%1000), types.TierMemory)
			i++
		}
	})
}

func BenchmarkCoordinatorSetWithEviction(b *testing.B) {
	for _, s := range []types.Strategy{types.LRU(500), types.LFU(500), types.Adaptive(500)} {
		b.Run(string(s.Kind), func(b *testing.B) {
			c := newBenchCoordinator(b, Options{Strategy: s})
			ctx := context.Background()

			b.ResetTimer()
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				c.Set(ctx, fmt.Sprintf("key-%d", i%2000), i, types.TierMemory)
			}
		})
	}
}

func BenchmarkDiskRoundTrip(b *testing.B) {
	for _, comp := range []Compression{CompressionNone, CompressionZstd} {
		b.Run(string(comp), func(b *testing.B) {
			c := newBenchCoordinator(b, Options{Disk: &DiskOptions{Directory: b.TempDir(), Compression: comp}})
			ctx := context.Background()
			payload := make([]byte, 4096)

			b.ResetTimer()
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				key := fmt.Sprintf("key-%d", i%100)
				c.Set(ctx, key, payload, types.TierDisk)
				c.Get(ctx, key, types.TierDisk)
			}
		})
	}
}
