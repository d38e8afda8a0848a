package pipeline

import (
	"errors"
	"fmt"
	"math/rand"
	"sort"
)

// Node is one node of a fitted decision tree. Leaves have Feature < 0.
type Node struct {
	Feature   int32
	Threshold float64
	Left      int32
	Right     int32
	// Value is the weighted share of positive samples that reached the node.
	Value float64
}

// Tree is a binary decision tree over sparse TF-IDF rows. Samples with
// x[Feature] <= Threshold go left.
type Tree struct {
	Nodes []Node
}

// ErrInvalidTree is returned when a tree's nodes do not form a valid
// binary tree rooted at node 0.
var ErrInvalidTree = errors.New("invalid tree")

// validate checks that every internal node points forward to nodes inside
// the tree and splits on a feature below nFeatures. A tree that passes
// cannot index out of range or loop in Proba.
func (t *Tree) validate(nFeatures int) error {
	if len(t.Nodes) == 0 {
		return fmt.Errorf("%w: no nodes", ErrInvalidTree)
	}
	n := int32(len(t.Nodes))
	for i, node := range t.Nodes {
		if node.Feature < 0 {
			continue
		}
		if int(node.Feature) >= nFeatures {
			return fmt.Errorf("%w: node %d splits on feature %d of %d", ErrInvalidTree, i, node.Feature, nFeatures)
		}
		for _, child := range []int32{node.Left, node.Right} {
			if child <= int32(i) || child >= n {
				return fmt.Errorf("%w: node %d has child %d outside (%d, %d)", ErrInvalidTree, i, child, i, n)
			}
		}
	}
	return nil
}

// Proba returns the positive-class probability for x.
func (t *Tree) Proba(x SparseVector) float64 {
	i := int32(0)
	for {
		n := &t.Nodes[i]
		if n.Feature < 0 {
			return n.Value
		}
		if x.Get(n.Feature) <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
}

// Depth returns the number of edges on the longest root-to-leaf path.
func (t *Tree) Depth() int {
	var walk func(i int32) int
	walk = func(i int32) int {
		n := t.Nodes[i]
		if n.Feature < 0 {
			return 0
		}
		return 1 + max(walk(n.Left), walk(n.Right))
	}
	return walk(0)
}

// treeBuilder grows one tree with Gini impurity. Only samples with a
// positive weight take part, so bootstrap draws are expressed as weights.
type treeBuilder struct {
	rows   []SparseVector
	y      []uint8
	weight []float64
	rng    *rand.Rand
	params ForestParams
	mtry   int
}

type buildTask struct {
	start, end int
	depth      int
	node       int32
}

type split struct {
	feature   int32
	threshold float64
	impurity  float64
}

type entry struct {
	value  float64
	weight float64
	pos    float64
	count  int
}

func (b *treeBuilder) build(samples []int) *Tree {
	t := &Tree{Nodes: []Node{{Feature: -1}}}
	stack := []buildTask{{start: 0, end: len(samples), node: 0}}

	for len(stack) > 0 {
		task := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		node := samples[task.start:task.end]

		var total, pos float64
		for _, s := range node {
			total += b.weight[s]
			if b.y[s] != 0 {
				pos += b.weight[s]
			}
		}
		value := 0.0
		if total > 0 {
			value = pos / total
		}
		t.Nodes[task.node] = Node{Feature: -1, Value: value}

		n := len(node)
		if (b.params.MaxDepth > 0 && task.depth >= b.params.MaxDepth) ||
			n < b.params.MinSamplesSplit ||
			n < 2*b.params.MinSamplesLeaf ||
			pos == 0 || pos == total {
			continue
		}

		best, ok := b.findSplit(node, total, pos)
		if !ok {
			continue
		}

		mid := partition(node, b.rows, best)
		left := int32(len(t.Nodes))
		right := left + 1
		t.Nodes = append(t.Nodes, Node{Feature: -1}, Node{Feature: -1})
		t.Nodes[task.node] = Node{
			Feature:   best.feature,
			Threshold: best.threshold,
			Left:      left,
			Right:     right,
			Value:     value,
		}
		stack = append(stack,
			buildTask{start: task.start + mid, end: task.end, depth: task.depth + 1, node: right},
			buildTask{start: task.start, end: task.start + mid, depth: task.depth + 1, node: left},
		)
	}
	return t
}

// findSplit draws up to mtry features that are non-zero somewhere in the node
// and returns the lowest-impurity threshold among them. Features that are
// zero for every node sample are constant and never drawn.
func (b *treeBuilder) findSplit(node []int, total, pos float64) (split, bool) {
	present := make(map[int32]int)
	var order []int32
	for _, s := range node {
		for _, j := range b.rows[s].Indices {
			if _, ok := present[j]; !ok {
				present[j] = -1
				order = append(order, j)
			}
		}
	}
	if len(order) == 0 {
		return split{}, false
	}

	k := min(b.mtry, len(order))
	for i := 0; i < k; i++ {
		r := i + b.rng.Intn(len(order)-i)
		order[i], order[r] = order[r], order[i]
		present[order[i]] = i
	}
	candidates := order[:k]

	values := make([][]entry, k)
	for _, s := range node {
		row := b.rows[s]
		for idx, j := range row.Indices {
			slot := present[j]
			if slot < 0 {
				continue
			}
			e := entry{value: row.Values[idx], weight: b.weight[s], count: 1}
			if b.y[s] != 0 {
				e.pos = e.weight
			}
			values[slot] = append(values[slot], e)
		}
	}

	best := split{impurity: 2}
	found := false
	for slot, feature := range candidates {
		if sp, ok := b.bestThreshold(feature, values[slot], len(node), total, pos); ok && sp.impurity < best.impurity {
			best = sp
			found = true
		}
	}
	return best, found
}

// bestThreshold sweeps the sorted non-zero values of one feature. Samples
// missing from entries hold zero, which sorts before every TF-IDF weight.
func (b *treeBuilder) bestThreshold(feature int32, entries []entry, n int, total, pos float64) (split, bool) {
	sort.Slice(entries, func(i, j int) bool { return entries[i].value < entries[j].value })

	var nzWeight, nzPos float64
	for _, e := range entries {
		nzWeight += e.weight
		nzPos += e.pos
	}

	leftCount := n - len(entries)
	leftWeight := total - nzWeight
	leftPos := pos - nzPos
	prev := 0.0
	hasPrev := leftCount > 0

	best := split{feature: feature, impurity: 2}
	found := false
	minLeaf := b.params.MinSamplesLeaf

	for i := 0; i <= len(entries); i++ {
		// Consider a cut before entries[i] once a full run of equal values
		// has been moved to the left side.
		if i < len(entries) && hasPrev && entries[i].value == prev {
			leftCount += entries[i].count
			leftWeight += entries[i].weight
			leftPos += entries[i].pos
			continue
		}
		if hasPrev && i < len(entries) {
			rightCount := n - leftCount
			if leftCount >= minLeaf && rightCount >= minLeaf && leftWeight > 0 && total-leftWeight > 0 {
				imp := weightedGini(leftWeight, leftPos, total-leftWeight, pos-leftPos, total)
				if imp < best.impurity {
					best.impurity = imp
					best.threshold = prev + (entries[i].value-prev)/2
					if best.threshold >= entries[i].value {
						best.threshold = prev
					}
					found = true
				}
			}
		}
		if i == len(entries) {
			break
		}
		leftCount += entries[i].count
		leftWeight += entries[i].weight
		leftPos += entries[i].pos
		prev = entries[i].value
		hasPrev = true
	}
	return best, found
}

func gini(weight, pos float64) float64 {
	p := pos / weight
	return 2 * p * (1 - p)
}

func weightedGini(lw, lp, rw, rp, total float64) float64 {
	return (lw*gini(lw, lp) + rw*gini(rw, rp)) / total
}

// partition reorders node so samples going left come first and returns
// the number of them.
func partition(node []int, rows []SparseVector, sp split) int {
	i, j := 0, len(node)-1
	for i <= j {
		if rows[node[i]].Get(sp.feature) <= sp.threshold {
			i++
			continue
		}
		node[i], node[j] = node[j], node[i]
		j--
	}
	return i
}
