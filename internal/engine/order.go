package engine

import "github.com/aretw0/relay/pkg/domain"

// Order sorts nodes so every edge source runs before its target. Nodes with
// no ordering constraint keep their declared order. Edges naming unknown nodes
// and cyclic edges are validation errors.
func Order(wf *domain.Workflow) ([]domain.Node, error) {
	index := make(map[string]int, len(wf.Nodes))
	for i, n := range wf.Nodes {
		if _, dup := index[n.ID]; dup {
			return nil, domain.ValidationError("duplicate node id %q in workflow %s", n.ID, wf.ID)
		}
		index[n.ID] = i
	}

	indegree := make([]int, len(wf.Nodes))
	next := make([][]int, len(wf.Nodes))
	for _, e := range wf.Edges {
		from, ok := index[e.From]
		if !ok {
			return nil, domain.ValidationError("edge references unknown node %q", e.From)
		}
		to, ok := index[e.To]
		if !ok {
			return nil, domain.ValidationError("edge references unknown node %q", e.To)
		}
		next[from] = append(next[from], to)
		indegree[to]++
	}

	out := make([]domain.Node, 0, len(wf.Nodes))
	done := make([]bool, len(wf.Nodes))
	for len(out) < len(wf.Nodes) {
		picked := -1
		for i := range wf.Nodes {
			if !done[i] && indegree[i] == 0 {
				picked = i
				break
			}
		}
		if picked < 0 {
			return nil, domain.ValidationError("workflow %s has cyclic edges", wf.ID)
		}
		done[picked] = true
		out = append(out, wf.Nodes[picked])
		for _, to := range next[picked] {
			indegree[to]--
		}
	}
	return out, nil
}
