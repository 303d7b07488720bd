package utilities

import (
	"os"
	"strconv"
	"sync"

	"github.com/bwmarrin/snowflake"
	"github.com/segmentio/ksuid"
)

// NewKSUID generates a new globally unique KSUID string.
func NewKSUID() string {
	return ksuid.New().String()
}

// IDGenerator hands out snowflake ids from a single node. The node is created
// lazily so a bad SNOWFLAKE_NODE never prevents startup.
type IDGenerator struct {
	nodeID int64
	once   sync.Once
	node   *snowflake.Node
}

// NewIDGenerator returns a generator for the given node id.
func NewIDGenerator(nodeID int64) *IDGenerator {
	return &IDGenerator{nodeID: nodeID}
}

// NewIDGeneratorFromEnv reads the node id from SNOWFLAKE_NODE, defaulting to 1.
func NewIDGeneratorFromEnv() *IDGenerator {
	nodeID, err := strconv.ParseInt(os.Getenv("SNOWFLAKE_NODE"), 10, 64)
	if err != nil {
		nodeID = 1
	}
	return NewIDGenerator(nodeID)
}

// Next returns a snowflake id string. If the node cannot be initialized it
// falls back to a KSUID string so callers always get a unique id.
func (g *IDGenerator) Next() string {
	g.once.Do(func() {
		n, err := snowflake.NewNode(g.nodeID)
		if err == nil {
			g.node = n
		}
	})
	if g.node == nil {
		return NewKSUID()
	}
	return g.node.Generate().String()
}
