package hub

import (
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounterGenerator_Sequence(t *testing.T) {
	g := &CounterGenerator{}

	assert.Equal(t, ClientID("0"), g.Next())
	assert.Equal(t, ClientID("1"), g.Next())
	assert.Equal(t, ClientID("2"), g.Next())
}

func TestCounterGenerator_ConcurrentUnique(t *testing.T) {
	g := &CounterGenerator{}
	const n = 1000

	var mu sync.Mutex
	seen := make(map[ClientID]struct{}, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := g.Next()
			mu.Lock()
			seen[id] = struct{}{}
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Len(t, seen, n)
}

func TestUUIDGenerator(t *testing.T) {
	g := UUIDGenerator{}

	first := g.Next()
	second := g.Next()

	assert.NotEqual(t, first, second)
	parsed, err := uuid.Parse(string(first))
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(4), parsed.Version())
}

func TestNewIDGenerator(t *testing.T) {
	tests := []struct {
		strategy string
		wantType any
		wantErr  bool
	}{
		{strategy: StrategyCounter, wantType: &CounterGenerator{}},
		{strategy: "", wantType: &CounterGenerator{}},
		{strategy: StrategyUUID, wantType: UUIDGenerator{}},
		{strategy: "snowflake", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.strategy, func(t *testing.T) {
			g, err := NewIDGenerator(tt.strategy)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.IsType(t, tt.wantType, g)
		})
	}
}
