package encoder

// Graph accumulates the tensor operations of one forward pass without
// running them. Nothing touches the device until Eval is called — this is
// the lazy-build/explicit-eval split called for in the design notes: the
// cost of a forward pass is in Eval, not in assembling it.
type Graph struct {
	ops []func() error
}

// newGraph returns an empty Graph.
func newGraph() *Graph {
	return &Graph{}
}

// NewGraph returns an empty Graph, ready to accumulate one batch's worth of
// Forward calls before a single Eval.
func NewGraph() *Graph {
	return newGraph()
}

// defer_ queues an operation to run in order during Eval.
// (named defer_ to avoid shadowing the keyword; unexported, package-internal)
func (g *Graph) defer_(op func() error) {
	g.ops = append(g.ops, op)
}

// Eval runs every queued operation in order, stopping at the first error.
// This is the "device sync" point: CPU tensor math is synchronous, but the
// same call site is where a GPU-backed engine would block on completion.
func (g *Graph) Eval() error {
	for _, op := range g.ops {
		if err := op(); err != nil {
			return err
		}
	}
	g.ops = nil
	return nil
}
