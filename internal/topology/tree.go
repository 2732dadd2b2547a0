package topology

import (
	"sort"

	"github.com/scttfrdmn/collective-traffic-gen/internal/types"
)

// RootToken is the grammar name of the root node.
const RootToken = "Root"

// rootIndex is the arena slot of the root node.
const rootIndex = 0

// Node is one communication node of a tree. Children and Parents hold arena
// indices into the owning Tree.
type Node struct {
	ID            string
	Kind          types.Kind
	Layer         int
	SimulatedHops []string
	Children      []int
	Parents       []int
	Args          types.CommArgs
	// Carried marks the DP node reinserted from the previous iteration.
	Carried bool
}

// IsRoot reports whether n is the tree root.
func (n *Node) IsRoot() bool {
	return n.ID == RootToken
}

// Tree is the arena of nodes built for one iteration.
type Tree struct {
	Iteration int

	nodes   []Node
	byID    map[string]int
	aliases map[string]int
}

func newTree(iteration int) *Tree {
	t := &Tree{
		Iteration: iteration,
		byID:      make(map[string]int),
		aliases:   make(map[string]int),
	}
	t.nodes = append(t.nodes, Node{ID: RootToken, Layer: -1})
	t.byID[RootToken] = rootIndex
	return t
}

// Len returns the number of nodes including the root.
func (t *Tree) Len() int {
	return len(t.nodes)
}

// Node returns the node at arena index i.
func (t *Tree) Node(i int) *Node {
	return &t.nodes[i]
}

// Root returns the root node.
func (t *Tree) Root() *Node {
	return &t.nodes[rootIndex]
}

// Lookup finds a node by id.
func (t *Tree) Lookup(id string) (*Node, bool) {
	i, ok := t.byID[id]
	if !ok {
		return nil, false
	}
	return &t.nodes[i], true
}

// Alias resolves a local alias such as "DP1".
func (t *Tree) Alias(name string) (*Node, bool) {
	i, ok := t.aliases[name]
	if !ok {
		return nil, false
	}
	return &t.nodes[i], true
}

func (t *Tree) addNode(n Node) int {
	i := len(t.nodes)
	t.nodes = append(t.nodes, n)
	t.byID[n.ID] = i
	return i
}

// addEdge links parent to child once; repeated calls are no-ops.
func (t *Tree) addEdge(parent, child int) bool {
	for _, c := range t.nodes[parent].Children {
		if c == child {
			return false
		}
	}
	t.nodes[parent].Children = append(t.nodes[parent].Children, child)
	t.nodes[child].Parents = append(t.nodes[child].Parents, parent)
	return true
}

// TopologicalOrder returns every non-root node index ordered by layer, ties
// broken by creation order. Layers never decrease along an edge, so this is
// a valid topological order.
func (t *Tree) TopologicalOrder() []int {
	order := make([]int, 0, len(t.nodes)-1)
	for i := range t.nodes {
		if i != rootIndex {
			order = append(order, i)
		}
	}
	sort.SliceStable(order, func(a, b int) bool {
		return t.nodes[order[a]].Layer < t.nodes[order[b]].Layer
	})
	return order
}

// ChildIDs returns the ids of n's children in edge order.
func (t *Tree) ChildIDs(n *Node) []string {
	ids := make([]string, 0, len(n.Children))
	for _, c := range n.Children {
		ids = append(ids, t.nodes[c].ID)
	}
	return ids
}
