package metrics

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBasicProvider_InstrumentsAreSharedByName(t *testing.T) {
	p := NewBasicProvider()

	require.Same(t, p.Counter(BlocksDispatched), p.Counter(BlocksDispatched))
	require.NotSame(t, p.Counter(BlocksDispatched), p.Counter(BytesRead))
	require.Same(t, p.UpDownCounter(BlocksInflight), p.UpDownCounter(BlocksInflight))
	require.Same(t, p.Histogram(FileReadSeconds), p.Histogram(FileReadSeconds))
}

func TestBasicProvider_CounterAndUpDown(t *testing.T) {
	p := NewBasicProvider()

	p.Counter(BlocksDispatched).Add(3)
	p.Counter(BlocksDispatched).Add(2)
	require.Equal(t, int64(5), p.Counter(BlocksDispatched).(*BasicCounter).Snapshot())

	u := p.UpDownCounter(BlocksInflight)
	u.Add(4)
	u.Add(-3)
	require.Equal(t, int64(1), u.(*BasicUpDownCounter).Snapshot())
}

func TestBasicHistogram_Snapshot(t *testing.T) {
	tests := []struct {
		name   string
		values []float64
		want   HistSnapshot
	}{
		{name: "empty", want: HistSnapshot{}},
		{name: "single", values: []float64{0.5}, want: HistSnapshot{Count: 1, Sum: 0.5, Min: 0.5, Max: 0.5, Mean: 0.5}},
		{name: "several", values: []float64{4, 1, 7}, want: HistSnapshot{Count: 3, Sum: 12, Min: 1, Max: 7, Mean: 4}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := &BasicHistogram{}
			for _, v := range tt.values {
				h.Record(v)
			}
			require.Equal(t, tt.want, h.Snapshot())
		})
	}
}

func TestBasicProvider_ConcurrentUse(t *testing.T) {
	const (
		goroutines = 16
		iters      = 500
	)
	p := NewBasicProvider()

	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < iters; i++ {
				p.Counter(BytesRead).Add(1)
				if (g+i)%2 == 0 {
					p.UpDownCounter(BlocksInflight).Add(1)
				} else {
					p.UpDownCounter(BlocksInflight).Add(-1)
				}
				p.Histogram(FileReadSeconds).Record(float64(i % 10))
			}
		}(g)
	}
	wg.Wait()

	read, _ := p.Value(BytesRead)
	require.Equal(t, int64(goroutines*iters), read)
	inflight, _ := p.Value(BlocksInflight)
	require.Zero(t, inflight)

	s := p.Histogram(FileReadSeconds).(*BasicHistogram).Snapshot()
	require.Equal(t, int64(goroutines*iters), s.Count)
	require.Equal(t, 0.0, s.Min)
	require.Equal(t, 9.0, s.Max)
}

func TestBasicProvider_ValueAndNames(t *testing.T) {
	p := NewBasicProvider()
	p.Counter(Restarts).Add(2)
	p.UpDownCounter(BlocksInflight).Add(3)
	p.Histogram(FileReadSeconds).Record(1)

	v, ok := p.Value(Restarts)
	require.True(t, ok)
	require.Equal(t, int64(2), v)

	v, ok = p.Value(BlocksInflight)
	require.True(t, ok)
	require.Equal(t, int64(3), v)

	_, ok = p.Value(FileReadSeconds)
	require.False(t, ok, "histograms are not reported by Value")

	require.Equal(t, []string{BlocksInflight, Restarts}, p.Names())
}
