package ml

import (
	"encoding/json"
	"math"
	"math/rand"
	"sort"

	"gonum.org/v1/gonum/stat"
)

const (
	defaultMaxDepth       = 10
	defaultMinSamplesLeaf = 1
)

// RegressionTree is a CART-style regression tree stored as a flat node slice.
// Splits are chosen among the per-feature median and mean thresholds by
// lowest weighted squared error.
type RegressionTree struct {
	nodes          []TreeNode
	features       int
	maxDepth       int
	minSamplesLeaf int
	maxFeatures    int
}

type TreeNode struct {
	FeatureIdx int     `json:"feature_idx"`
	Threshold  float64 `json:"threshold"`
	LeftChild  int     `json:"left_child"`
	RightChild int     `json:"right_child"`
	Value      float64 `json:"value"`
	IsLeaf     bool    `json:"is_leaf"`
}

type treeState struct {
	Features       int        `json:"features"`
	MaxDepth       int        `json:"max_depth"`
	MinSamplesLeaf int        `json:"min_samples_leaf"`
	Nodes          []TreeNode `json:"nodes"`
}

func NewRegressionTree(maxDepth, minSamplesLeaf int) *RegressionTree {
	if maxDepth <= 0 {
		maxDepth = defaultMaxDepth
	}
	if minSamplesLeaf <= 0 {
		minSamplesLeaf = defaultMinSamplesLeaf
	}
	return &RegressionTree{maxDepth: maxDepth, minSamplesLeaf: minSamplesLeaf}
}

func (dt *RegressionTree) Fit(features [][]float64, targets []float64) error {
	if err := validateTrainingSet(features, targets); err != nil {
		return err
	}
	idx := make([]int, len(features))
	for i := range idx {
		idx[i] = i
	}
	dt.fitIndices(features, targets, idx, nil)
	return nil
}

// fitIndices grows the tree over the rows named by idx. rnd, when non-nil,
// drives per-node feature subsampling.
func (dt *RegressionTree) fitIndices(features [][]float64, targets []float64, idx []int, rnd *rand.Rand) {
	if dt.maxDepth <= 0 {
		dt.maxDepth = defaultMaxDepth
	}
	if dt.minSamplesLeaf <= 0 {
		dt.minSamplesLeaf = defaultMinSamplesLeaf
	}
	dt.features = len(features[0])
	dt.nodes = dt.buildNode(features, targets, idx, 0, rnd)
}

func (dt *RegressionTree) Predict(features []float64) (float64, error) {
	if len(dt.nodes) == 0 {
		return 0, ErrNotTrained
	}
	if len(features) != dt.features {
		return 0, ErrFeatureWidth
	}
	idx := 0
	for {
		node := dt.nodes[idx]
		if node.IsLeaf {
			return node.Value, nil
		}
		if features[node.FeatureIdx] <= node.Threshold {
			idx = node.LeftChild
		} else {
			idx = node.RightChild
		}
		if idx < 0 || idx >= len(dt.nodes) {
			return 0, errInvalidTree
		}
	}
}

func (dt *RegressionTree) NumFeatures() int {
	return dt.features
}

// Depth returns the length of the longest root-to-leaf path.
func (dt *RegressionTree) Depth() int {
	if len(dt.nodes) == 0 {
		return 0
	}
	var walk func(idx int) int
	walk = func(idx int) int {
		node := dt.nodes[idx]
		if node.IsLeaf {
			return 0
		}
		l, r := walk(node.LeftChild), walk(node.RightChild)
		if l > r {
			return l + 1
		}
		return r + 1
	}
	return walk(0)
}

func (dt *RegressionTree) Save(path string) error {
	if len(dt.nodes) == 0 {
		return ErrNotTrained
	}
	return saveJSON(path, dt)
}

func (dt *RegressionTree) Load(path string) error {
	return loadJSON(path, dt)
}

func (dt *RegressionTree) MarshalJSON() ([]byte, error) {
	return json.Marshal(treeState{
		Features:       dt.features,
		MaxDepth:       dt.maxDepth,
		MinSamplesLeaf: dt.minSamplesLeaf,
		Nodes:          dt.nodes,
	})
}

func (dt *RegressionTree) UnmarshalJSON(data []byte) error {
	var state treeState
	if err := json.Unmarshal(data, &state); err != nil {
		return err
	}
	dt.features = state.Features
	dt.maxDepth = state.MaxDepth
	dt.minSamplesLeaf = state.MinSamplesLeaf
	dt.nodes = state.Nodes
	return nil
}

func (dt *RegressionTree) buildNode(features [][]float64, targets []float64, idx []int, depth int, rnd *rand.Rand) []TreeNode {
	value, sse := meanAndSSE(targets, idx)
	leaf := []TreeNode{{
		FeatureIdx: -1,
		LeftChild:  -1,
		RightChild: -1,
		Value:      value,
		IsLeaf:     true,
	}}
	if depth >= dt.maxDepth || len(idx) < 2*dt.minSamplesLeaf || sse <= 0 {
		return leaf
	}

	bestFeature, threshold, ok := dt.findBestSplit(features, targets, idx, sse, rnd)
	if !ok {
		return leaf
	}

	leftIdx, rightIdx := partition(features, idx, bestFeature, threshold)
	if len(leftIdx) < dt.minSamplesLeaf || len(rightIdx) < dt.minSamplesLeaf {
		return leaf
	}

	leftNodes := dt.buildNode(features, targets, leftIdx, depth+1, rnd)
	rightNodes := dt.buildNode(features, targets, rightIdx, depth+1, rnd)

	root := TreeNode{
		FeatureIdx: bestFeature,
		Threshold:  threshold,
		LeftChild:  1,
		RightChild: 1 + len(leftNodes),
		Value:      value,
		IsLeaf:     false,
	}

	nodes := make([]TreeNode, 0, 1+len(leftNodes)+len(rightNodes))
	nodes = append(nodes, root)
	nodes = append(nodes, leftNodes...)
	nodes = append(nodes, rightNodes...)
	return nodes
}

func (dt *RegressionTree) findBestSplit(features [][]float64, targets []float64, idx []int, parentSSE float64, rnd *rand.Rand) (int, float64, bool) {
	candidates := dt.candidateFeatures(rnd)
	bestFeature := -1
	bestThreshold := 0.0
	bestSSE := parentSSE

	values := make([]float64, len(idx))
	for _, featureIdx := range candidates {
		for i, row := range idx {
			values[i] = features[row][featureIdx]
		}
		// values is scratch space, sorting it in place is fine
		sort.Float64s(values)
		median := stat.Quantile(0.5, stat.Empirical, values, nil)
		for _, threshold := range []float64{median, stat.Mean(values, nil)} {
			sse, ok := splitSSE(features, targets, idx, featureIdx, threshold, dt.minSamplesLeaf)
			if !ok {
				continue
			}
			if sse < bestSSE {
				bestSSE = sse
				bestFeature = featureIdx
				bestThreshold = threshold
			}
		}
	}
	if bestFeature == -1 || parentSSE-bestSSE < 1e-12 {
		return -1, 0, false
	}
	return bestFeature, bestThreshold, true
}

func (dt *RegressionTree) candidateFeatures(rnd *rand.Rand) []int {
	if rnd == nil || dt.maxFeatures <= 0 || dt.maxFeatures >= dt.features {
		all := make([]int, dt.features)
		for i := range all {
			all[i] = i
		}
		return all
	}
	return rnd.Perm(dt.features)[:dt.maxFeatures]
}

func splitSSE(features [][]float64, targets []float64, idx []int, featureIdx int, threshold float64, minLeaf int) (float64, bool) {
	var ln, rn int
	var lsum, lsq, rsum, rsq float64
	for _, row := range idx {
		y := targets[row]
		if features[row][featureIdx] <= threshold {
			ln++
			lsum += y
			lsq += y * y
		} else {
			rn++
			rsum += y
			rsq += y * y
		}
	}
	if ln < minLeaf || rn < minLeaf || ln == 0 || rn == 0 {
		return 0, false
	}
	return (lsq - lsum*lsum/float64(ln)) + (rsq - rsum*rsum/float64(rn)), true
}

func partition(features [][]float64, idx []int, featureIdx int, threshold float64) ([]int, []int) {
	left := make([]int, 0, len(idx)/2)
	right := make([]int, 0, len(idx)/2)
	for _, row := range idx {
		if features[row][featureIdx] <= threshold {
			left = append(left, row)
		} else {
			right = append(right, row)
		}
	}
	return left, right
}

func meanAndSSE(targets []float64, idx []int) (float64, float64) {
	if len(idx) == 0 {
		return 0, 0
	}
	var sum, sq float64
	for _, row := range idx {
		sum += targets[row]
		sq += targets[row] * targets[row]
	}
	n := float64(len(idx))
	return sum / n, math.Max(0, sq-sum*sum/n)
}

func validateTrainingSet(features [][]float64, targets []float64) error {
	if len(features) == 0 || len(targets) == 0 {
		return ErrEmptyData
	}
	if len(features) != len(targets) {
		return ErrSizeMismatch
	}
	width := len(features[0])
	if width == 0 {
		return ErrFeatureWidth
	}
	for _, row := range features {
		if len(row) != width {
			return ErrFeatureWidth
		}
	}
	return nil
}
