package parallel

import (
	"sync/atomic"
	"testing"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestFor(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinChunkSize = 16

	var counter int64
	n := 1000

	For(n, func(_ int) {
		atomic.AddInt64(&counter, 1)
	}, cfg)

	if counter != int64(n) {
		t.Errorf("Expected %d, got %d", n, counter)
	}
}

func TestForRange_CoversEveryIndexOnce(t *testing.T) {
	cfg := Config{Enabled: true, NumWorkers: 7, MinChunkSize: 3}

	n := 1001
	hits := make([]int32, n)
	ForRange(n, func(start, end int) {
		for i := start; i < end; i++ {
			atomic.AddInt32(&hits[i], 1)
		}
	}, cfg)

	for i, h := range hits {
		if h != 1 {
			t.Fatalf("index %d visited %d times", i, h)
		}
	}
}

func TestFor_Sequential(t *testing.T) {
	cfg := Sequential()

	var counter int64
	For(100, func(_ int) {
		atomic.AddInt64(&counter, 1)
	}, cfg)

	if counter != 100 {
		t.Errorf("Expected 100, got %d", counter)
	}
}

func TestFor_SmallChunk(t *testing.T) {
	// Small work units fall back to a single chunk.
	cfg := DefaultConfig()

	calls := 0
	n := cfg.MinChunkSize - 1
	ForRange(n, func(start, end int) {
		calls++
		if start != 0 || end != n {
			t.Errorf("expected one chunk [0,%d), got [%d,%d)", n, start, end)
		}
	}, cfg)

	if calls != 1 {
		t.Errorf("Expected 1 call, got %d", calls)
	}
}

func TestForRange_Empty(t *testing.T) {
	ForRange(0, func(_, _ int) {
		t.Fatal("must not be called for n == 0")
	}, DefaultConfig())
}

func BenchmarkFor(b *testing.B) {
	cfg := DefaultConfig()
	n := 1 << 16

	b.Run("parallel", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			var sum int64
			For(n, func(i int) {
				atomic.AddInt64(&sum, int64(i))
			}, cfg)
		}
	})

	b.Run("sequential", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			var sum int64
			For(n, func(i int) {
				atomic.AddInt64(&sum, int64(i))
			}, Sequential())
		}
	})
}
