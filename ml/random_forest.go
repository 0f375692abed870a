package ml

import (
	"encoding/json"
	"math/rand"
	"runtime"

	"golang.org/x/sync/errgroup"
)

const (
	defaultEstimators = 100
	defaultSeed       = 42
)

// RandomForest averages regression trees fitted on bootstrap samples. Each
// tree draws from its own source seeded with Seed+index, so a fit is
// reproducible regardless of scheduling.
type RandomForest struct {
	Estimators     int
	MaxDepth       int
	MinSamplesLeaf int
	MaxFeatures    int
	// MaxSamples caps the bootstrap sample size; 0 draws len(features) rows.
	MaxSamples int
	Seed       int64

	trees    []*RegressionTree
	features int
}

type forestState struct {
	Estimators     int               `json:"estimators"`
	MaxDepth       int               `json:"max_depth"`
	MinSamplesLeaf int               `json:"min_samples_leaf"`
	MaxFeatures    int               `json:"max_features"`
	MaxSamples     int               `json:"max_samples"`
	Seed           int64             `json:"seed"`
	Features       int               `json:"features"`
	Trees          []*RegressionTree `json:"trees"`
}

func NewRandomForest(opts ModelOptions) *RandomForest {
	rf := &RandomForest{
		Estimators:     opts.Estimators,
		MaxDepth:       opts.MaxDepth,
		MinSamplesLeaf: opts.MinSamplesLeaf,
		MaxFeatures:    opts.MaxFeatures,
		MaxSamples:     opts.MaxSamples,
		Seed:           opts.Seed,
	}
	if rf.Estimators <= 0 {
		rf.Estimators = defaultEstimators
	}
	if rf.Seed == 0 {
		rf.Seed = defaultSeed
	}
	return rf
}

func (rf *RandomForest) Fit(features [][]float64, targets []float64) error {
	if err := validateTrainingSet(features, targets); err != nil {
		return err
	}
	n := len(features)
	samples := n
	if rf.MaxSamples > 0 && rf.MaxSamples < n {
		samples = rf.MaxSamples
	}

	trees := make([]*RegressionTree, rf.Estimators)
	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i := range trees {
		i := i
		g.Go(func() error {
			rnd := rand.New(rand.NewSource(rf.Seed + int64(i)))
			idx := make([]int, samples)
			for j := range idx {
				idx[j] = rnd.Intn(n)
			}
			tree := NewRegressionTree(rf.MaxDepth, rf.MinSamplesLeaf)
			tree.maxFeatures = rf.MaxFeatures
			tree.fitIndices(features, targets, idx, rnd)
			trees[i] = tree
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	rf.trees = trees
	rf.features = len(features[0])
	return nil
}

func (rf *RandomForest) Predict(features []float64) (float64, error) {
	if len(rf.trees) == 0 {
		return 0, ErrNotTrained
	}
	if len(features) != rf.features {
		return 0, ErrFeatureWidth
	}
	var sum float64
	for _, tree := range rf.trees {
		v, err := tree.Predict(features)
		if err != nil {
			return 0, err
		}
		sum += v
	}
	return sum / float64(len(rf.trees)), nil
}

func (rf *RandomForest) NumFeatures() int {
	return rf.features
}

func (rf *RandomForest) Save(path string) error {
	if len(rf.trees) == 0 {
		return ErrNotTrained
	}
	return saveJSON(path, rf)
}

func (rf *RandomForest) Load(path string) error {
	return loadJSON(path, rf)
}

func (rf *RandomForest) MarshalJSON() ([]byte, error) {
	return json.Marshal(forestState{
		Estimators:     rf.Estimators,
		MaxDepth:       rf.MaxDepth,
		MinSamplesLeaf: rf.MinSamplesLeaf,
		MaxFeatures:    rf.MaxFeatures,
		MaxSamples:     rf.MaxSamples,
		Seed:           rf.Seed,
		Features:       rf.features,
		Trees:          rf.trees,
	})
}

func (rf *RandomForest) UnmarshalJSON(data []byte) error {
	var state forestState
	if err := json.Unmarshal(data, &state); err != nil {
		return err
	}
	rf.Estimators = state.Estimators
	rf.MaxDepth = state.MaxDepth
	rf.MinSamplesLeaf = state.MinSamplesLeaf
	rf.MaxFeatures = state.MaxFeatures
	rf.MaxSamples = state.MaxSamples
	rf.Seed = state.Seed
	rf.features = state.Features
	rf.trees = state.Trees
	return nil
}
