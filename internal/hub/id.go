package hub

import (
	"fmt"
	"strconv"
	"sync/atomic"

	"github.com/google/uuid"
)

// ID strategies accepted by NewIDGenerator.
const (
	StrategyCounter = "counter"
	StrategyUUID    = "uuid"
)

// IDGenerator hands out unique client identifiers.
type IDGenerator interface {
	Next() ClientID
}

// CounterGenerator yields "0", "1", "2", ... in order.
type CounterGenerator struct {
	next atomic.Uint64
}

// Next returns the current counter value and advances it.
func (g *CounterGenerator) Next() ClientID {
	return ClientID(strconv.FormatUint(g.next.Add(1)-1, 10))
}

// UUIDGenerator yields random version 4 UUIDs.
type UUIDGenerator struct{}

// Next returns a new random UUID.
func (UUIDGenerator) Next() ClientID {
	return ClientID(uuid.NewString())
}

// NewIDGenerator returns the generator for the named strategy.
func NewIDGenerator(strategy string) (IDGenerator, error) {
	switch strategy {
	case StrategyCounter, "":
		return &CounterGenerator{}, nil
	case StrategyUUID:
		return UUIDGenerator{}, nil
	default:
		return nil, fmt.Errorf("unknown id strategy %q", strategy)
	}
}
