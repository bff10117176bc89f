package server

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"mediasrv/internal/store"
)

func BenchmarkMediaServiceListFiltered(b *testing.B) {
	env := newPerfMediaEnv(b, 600, 64)
	ctx := context.Background()
	filter := store.ListFilter{MediaTypePrefix: "video/", Limit: 75}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		items, err := env.srv.media.List(ctx, filter)
		if err != nil {
			b.Fatalf("list filtered: %v", err)
		}
		if len(items) == 0 {
			b.Fatal("list filtered returned no results")
		}
	}
}

func BenchmarkMediaServiceResolve(b *testing.B) {
	env := newPerfMediaEnv(b, 50, 64)
	ctx := context.Background()

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		id := env.media[i%len(env.media)].ID
		if _, err := env.srv.media.Resolve(ctx, id); err != nil {
			b.Fatalf("resolve %s: %v", id, err)
		}
	}
}

func BenchmarkContentRangeFetch(b *testing.B) {
	const blobSize = 1 << 20
	env := newPerfMediaEnv(b, 4, blobSize)

	b.ReportAllocs()
	b.SetBytes(64 << 10)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		start := (i * 4096) % (blobSize - (64 << 10))
		w := env.fetch(env.media[i%len(env.media)].ID, fmt.Sprintf("bytes=%d-%d", start, start+(64<<10)-1))
		if w.Code != http.StatusPartialContent {
			b.Fatalf("range fetch status = %d", w.Code)
		}
	}
}

func BenchmarkContentFullFetch(b *testing.B) {
	const blobSize = 256 << 10
	env := newPerfMediaEnv(b, 4, blobSize)

	b.ReportAllocs()
	b.SetBytes(blobSize)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		w := env.fetch(env.media[i%len(env.media)].ID, "")
		if w.Code != http.StatusOK {
			b.Fatalf("full fetch status = %d", w.Code)
		}
	}
	b.StopTimer()
	env.srv.views.Wait()
}
