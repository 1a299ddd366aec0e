package forecast

import (
	"sort"

	"smartcart-engine/internal/domain"
)

// treeNode is one node of a regression tree, stored in a flat array for
// serialization. Left/Right index into the owning tree's node slice; -1
// marks a leaf.
type treeNode struct {
	Feature   int     `json:"f"`
	Threshold float64 `json:"t"`
	Left      int     `json:"l"`
	Right     int     `json:"r"`
	Value     float64 `json:"v"`
}

// regressionTree predicts the mean target of the training rows that reach
// each leaf.
type regressionTree struct {
	Nodes []treeNode `json:"nodes"`
}

const (
	maxTreeDepth    = 10
	minSamplesSplit = 2
)

// fitTree grows a tree on the given rows using variance-reduction splits.
// The construction is deterministic for a fixed input order.
func fitTree(rows [][domain.FeatureCount]float64, targets []float64) *regressionTree {
	t := &regressionTree{}
	idx := make([]int, len(rows))
	for i := range idx {
		idx[i] = i
	}
	t.grow(rows, targets, idx, 0)
	return t
}

// grow appends the subtree for idx and returns its root node index.
func (t *regressionTree) grow(rows [][domain.FeatureCount]float64, targets []float64, idx []int, depth int) int {
	nodeID := len(t.Nodes)
	t.Nodes = append(t.Nodes, treeNode{Left: -1, Right: -1, Value: meanTarget(targets, idx)})

	if depth >= maxTreeDepth || len(idx) < minSamplesSplit {
		return nodeID
	}

	feature, threshold, ok := bestSplit(rows, targets, idx)
	if !ok {
		return nodeID
	}

	var left, right []int
	for _, i := range idx {
		if rows[i][feature] <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	if len(left) == 0 || len(right) == 0 {
		return nodeID
	}

	leftID := t.grow(rows, targets, left, depth+1)
	rightID := t.grow(rows, targets, right, depth+1)

	t.Nodes[nodeID].Feature = feature
	t.Nodes[nodeID].Threshold = threshold
	t.Nodes[nodeID].Left = leftID
	t.Nodes[nodeID].Right = rightID
	return nodeID
}

// predict walks the tree for one row.
func (t *regressionTree) predict(row [domain.FeatureCount]float64) float64 {
	i := 0
	for {
		n := t.Nodes[i]
		if n.Left < 0 {
			return n.Value
		}
		if row[n.Feature] <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
}

// bestSplit scans every feature and candidate threshold for the split with
// the lowest weighted child variance.
func bestSplit(rows [][domain.FeatureCount]float64, targets []float64, idx []int) (int, float64, bool) {
	bestFeature := -1
	bestThreshold := 0.0
	bestScore := variance(targets, idx) * float64(len(idx))
	if bestScore == 0 {
		return 0, 0, false
	}
	found := false

	values := make([]float64, 0, len(idx))
	for f := 0; f < domain.FeatureCount; f++ {
		values = values[:0]
		for _, i := range idx {
			values = append(values, rows[i][f])
		}
		sort.Float64s(values)

		for k := 0; k+1 < len(values); k++ {
			if values[k] == values[k+1] {
				continue
			}
			threshold := (values[k] + values[k+1]) / 2

			var leftIdx, rightIdx []int
			for _, i := range idx {
				if rows[i][f] <= threshold {
					leftIdx = append(leftIdx, i)
				} else {
					rightIdx = append(rightIdx, i)
				}
			}

			score := variance(targets, leftIdx)*float64(len(leftIdx)) +
				variance(targets, rightIdx)*float64(len(rightIdx))
			if score < bestScore {
				bestScore = score
				bestFeature = f
				bestThreshold = threshold
				found = true
			}
		}
	}
	return bestFeature, bestThreshold, found
}

func meanTarget(targets []float64, idx []int) float64 {
	if len(idx) == 0 {
		return 0
	}
	sum := 0.0
	for _, i := range idx {
		sum += targets[i]
	}
	return sum / float64(len(idx))
}

func variance(targets []float64, idx []int) float64 {
	if len(idx) == 0 {
		return 0
	}
	mean := meanTarget(targets, idx)
	sum := 0.0
	for _, i := range idx {
		d := targets[i] - mean
		sum += d * d
	}
	return sum / float64(len(idx))
}
