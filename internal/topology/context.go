package topology

import (
	"fmt"
	"math/rand/v2"

	"github.com/scttfrdmn/collective-traffic-gen/internal/types"
)

// Context is the run-scoped state threaded through every Build call and
// every traffic generation pass. A run owns exactly one Context.
type Context struct {
	Model          types.Model
	DeviceCount    int
	IterationCount int

	// FirstTPArgs caches the arguments of the first TP line of iteration 0.
	FirstTPArgs *types.CommArgs

	nextSeq int
	rng     *rand.Rand
}

// NewContext returns a context whose randomness is fully determined by seed.
func NewContext(seed uint64) *Context {
	return &Context{
		nextSeq: 1,
		rng:     rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
}

// Rand returns the run's random source. It is not safe for concurrent use.
func (c *Context) Rand() *rand.Rand {
	return c.rng
}

// applyHeader records the header fields. Reparsing the same file on every
// iteration makes this idempotent.
func (c *Context) applyHeader(h Header) {
	c.Model = h.Model
	c.DeviceCount = h.DeviceCount
	c.IterationCount = h.IterationCount
}

// nodeID allocates the next run-unique node id, "<seq>_<KIND><layer>".
func (c *Context) nodeID(kind types.Kind, layer int) string {
	id := fmt.Sprintf("%d_%s%d", c.nextSeq, kind, layer)
	c.nextSeq++
	return id
}

// CarriedNode is the DP node handed from one iteration to the next.
type CarriedNode struct {
	ID   string         `json:"id" yaml:"id"`
	Args types.CommArgs `json:"args" yaml:"args"`
}
