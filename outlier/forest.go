package outlier

import (
	"context"
	"math"
	"math/rand/v2"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// eulerGamma is the Euler–Mascheroni constant.
const eulerGamma = 0.5772156649

const leaf = -1

// node is one node of an isolation tree. Children are indices into the
// tree's node slice.
type node struct {
	feature   int // leaf for terminal nodes
	threshold float64
	left      int32
	right     int32
	size      int // training samples that reached a terminal node
}

type isolationTree struct {
	nodes []node
}

// pathLength returns the number of edges from the root to the terminal node
// reached by row, plus the expected remaining depth of the samples held there.
func (t *isolationTree) pathLength(row []float64) float64 {
	depth := 0
	n := &t.nodes[0]
	for n.feature != leaf {
		if row[n.feature] <= n.threshold {
			n = &t.nodes[n.left]
		} else {
			n = &t.nodes[n.right]
		}
		depth++
	}
	return float64(depth) + averagePathLength(n.size)
}

// averagePathLength is the average path length of an unsuccessful search in a
// binary search tree of n samples.
func averagePathLength(n int) float64 {
	switch {
	case n <= 1:
		return 0
	case n == 2:
		return 1
	}
	fn := float64(n)
	return 2*(math.Log(fn-1)+eulerGamma) - 2*(fn-1)/fn
}

// Forest is an ensemble of isolation trees.
type Forest struct {
	Trees      int // number of trees
	MaxSamples int // sub-sample size per tree, capped at the number of rows
	Workers    int // parallel tree builders, 0 for GOMAXPROCS

	trees      []isolationTree
	sampleSize int
}

// NewForest returns an unfitted forest.
func NewForest(trees, maxSamples int) *Forest {
	return &Forest{
		Trees:      trees,
		MaxSamples: maxSamples,
	}
}

// Fit grows the trees on x, a row-major matrix. Each tree draws its own seed
// from r before any tree is built, so the fitted forest depends only on x and
// the state of r, never on the number of workers.
func (f *Forest) Fit(ctx context.Context, x [][]float64, r *rand.Rand) error {
	if f.Trees <= 0 {
		return ErrInvalidTrees
	}
	if f.MaxSamples <= 0 {
		return ErrInvalidMaxSamples
	}
	if len(x) == 0 {
		return ErrTooFewSamples
	}

	f.sampleSize = min(f.MaxSamples, len(x))
	depthLimit := int(math.Ceil(math.Log2(float64(max(f.sampleSize, 2)))))

	seeds := make([][2]uint64, f.Trees)
	for i := range seeds {
		seeds[i] = [2]uint64{r.Uint64(), r.Uint64()}
	}

	trees := make([]isolationTree, f.Trees)
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(f.workers())
	for i := range trees {
		group.Go(func() error {
			if err := groupCtx.Err(); err != nil {
				return err
			}
			b := &treeBuilder{
				x:          x,
				r:          rand.New(rand.NewPCG(seeds[i][0], seeds[i][1])),
				depthLimit: depthLimit,
				lo:         make([]float64, len(x[0])),
				hi:         make([]float64, len(x[0])),
			}
			b.grow(b.subsample(f.sampleSize), 0)
			trees[i] = isolationTree{nodes: b.nodes}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return err
	}

	f.trees = trees
	return nil
}

// ScoreSamples returns the negated anomaly score of every row of x, in
// [-1, 0). Lower values are more anomalous.
func (f *Forest) ScoreSamples(ctx context.Context, x [][]float64) ([]float64, error) {
	if len(f.trees) == 0 {
		return nil, ErrNotFitted
	}

	scores := make([]float64, len(x))
	norm := averagePathLength(f.sampleSize)
	chunk := max(1, (len(x)+f.workers()-1)/f.workers())

	group, groupCtx := errgroup.WithContext(ctx)
	for start := 0; start < len(x); start += chunk {
		end := min(start+chunk, len(x))
		group.Go(func() error {
			for i := start; i < end; i++ {
				if err := groupCtx.Err(); err != nil {
					return err
				}
				sum := 0.0
				for t := range f.trees {
					sum += f.trees[t].pathLength(x[i])
				}
				mean := sum / float64(len(f.trees))
				if norm == 0 {
					scores[i] = -1
					continue
				}
				scores[i] = -math.Exp2(-mean / norm)
			}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	return scores, nil
}

func (f *Forest) workers() int {
	if f.Workers > 0 {
		return f.Workers
	}
	return runtime.GOMAXPROCS(0)
}

type treeBuilder struct {
	x          [][]float64
	r          *rand.Rand
	depthLimit int
	nodes      []node

	lo, hi []float64 // per-feature bounds scratch space
}

// subsample draws n distinct row indices with a partial Fisher–Yates shuffle.
func (b *treeBuilder) subsample(n int) []int {
	idx := make([]int, len(b.x))
	for i := range idx {
		idx[i] = i
	}
	for i := range n {
		j := i + b.r.IntN(len(idx)-i)
		idx[i], idx[j] = idx[j], idx[i]
	}
	return idx[:n]
}

func (b *treeBuilder) grow(idx []int, depth int) int32 {
	id := int32(len(b.nodes))
	b.nodes = append(b.nodes, node{feature: leaf, size: len(idx)})
	if depth >= b.depthLimit || len(idx) <= 1 {
		return id
	}

	feature, ok := b.pickFeature(idx)
	if !ok {
		return id
	}
	lo, hi := b.lo[feature], b.hi[feature]
	threshold := lo + b.r.Float64()*(hi-lo)
	if threshold >= hi {
		threshold = math.Nextafter(hi, lo)
	}

	// partition so rows with x <= threshold come first
	k := 0
	for i, row := range idx {
		if b.x[row][feature] <= threshold {
			idx[i], idx[k] = idx[k], idx[i]
			k++
		}
	}

	left := b.grow(idx[:k], depth+1)
	right := b.grow(idx[k:], depth+1)
	b.nodes[id] = node{feature: feature, threshold: threshold, left: left, right: right}
	return id
}

// pickFeature chooses uniformly among the features that are not constant over
// idx, and fills b.lo and b.hi. It returns false when every feature is constant.
func (b *treeBuilder) pickFeature(idx []int) (int, bool) {
	d := len(b.lo)
	for j := range d {
		b.lo[j] = math.Inf(1)
		b.hi[j] = math.Inf(-1)
	}
	for _, row := range idx {
		for j, v := range b.x[row] {
			b.lo[j] = min(b.lo[j], v)
			b.hi[j] = max(b.hi[j], v)
		}
	}

	candidates := make([]int, 0, d)
	for j := range d {
		if b.hi[j] > b.lo[j] {
			candidates = append(candidates, j)
		}
	}
	if len(candidates) == 0 {
		return 0, false
	}
	return candidates[b.r.IntN(len(candidates))], true
}
