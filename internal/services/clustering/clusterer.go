package clustering

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"runtime"
	"time"

	"LatentTrader/internal/domain/errs"
	"LatentTrader/internal/services/features"
	"LatentTrader/pkg/logger"

	"golang.org/x/sync/errgroup"
)

// State is the lifecycle of a clustering run.
type State int

const (
	StateRunning State = iota
	StateConverged
)

func (s State) String() string {
	if s == StateConverged {
		return "converged"
	}
	return "running"
}

const (
	DefaultMaxIterations = 500

	// changeTol is the per-cell delta below which a soft assignment is stable.
	changeTol = 1e-8

	// normalizedMeanTol bounds the first feature mean when cosine expects
	// normalized input.
	normalizedMeanTol = 1e-6
)

// Option configures a Clusterer.
type Option func(*options)

type options struct {
	maxIterations int
	workers       int
	rng           *rand.Rand
	log           *logger.Logger
}

// WithMaxIterations caps the Assign/Update loop.
func WithMaxIterations(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxIterations = n
		}
	}
}

// WithWorkers bounds the goroutines used per phase.
func WithWorkers(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.workers = n
		}
	}
}

// WithRand injects the random source used for Forgy initialization.
func WithRand(r *rand.Rand) Option {
	return func(o *options) {
		if r != nil {
			o.rng = r
		}
	}
}

// WithSeed makes initialization reproducible.
func WithSeed(seed uint64) Option {
	return func(o *options) {
		o.rng = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	}
}

// WithLogger sets the logger.
func WithLogger(l *logger.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.log = l
		}
	}
}

// Clusterer groups feature windows around K prototypes.
// It is not safe for concurrent use; Assign and Update fan out internally.
type Clusterer struct {
	features   [][]float64
	prototypes [][]float64
	table      [][]float64
	assigned   []int // arg-max per row, hard policy only

	policy     Policy
	k          int
	state      State
	iterations int
	prevMoves  int

	opts options
}

// New validates the input and performs Forgy initialization. The features
// are read but never modified.
func New(feats [][]float64, k int, policy Policy, opts ...Option) (*Clusterer, error) {
	o := options{
		maxIterations: DefaultMaxIterations,
		workers:       runtime.GOMAXPROCS(0),
		log:           logger.Nop(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.rng == nil {
		now := uint64(time.Now().UnixNano())
		o.rng = rand.New(rand.NewPCG(now, now>>1))
	}

	n := len(feats)
	if k <= 0 || k > n {
		return nil, errs.InvalidArgumentf("k=%d must be in [1,%d]", k, n)
	}
	if policy.Density == nil {
		return nil, errs.InvalidArgumentf("policy %q has no density", policy.Name)
	}
	w := len(feats[0])
	if w == 0 {
		return nil, errs.Shapef("empty feature vector")
	}
	for i, f := range feats {
		if len(f) != w {
			return nil, errs.Shapef("feature %d has length %d, want %d", i, len(f), w)
		}
	}

	if policy.Name == PolicyCosine {
		if m := features.Mean(feats[0]); math.Abs(m) > normalizedMeanTol {
			o.log.Warn("features do not look normalized for cosine policy",
				logger.Float64("first_mean", m))
		}
	}

	c := &Clusterer{
		features:  feats,
		policy:    policy,
		k:         k,
		state:     StateRunning,
		prevMoves: math.MaxInt,
		opts:      o,
	}
	c.forgy()

	c.table = make([][]float64, n)
	for i := range c.table {
		c.table[i] = make([]float64, k)
	}
	if !policy.Soft() {
		c.assigned = make([]int, n)
		for i := range c.assigned {
			c.assigned[i] = -1
		}
	}
	return c, nil
}

// forgy copies K distinct randomly chosen features in as prototypes.
func (c *Clusterer) forgy() {
	perm := make([]int, len(c.features))
	for i := range perm {
		perm[i] = i
	}
	c.opts.rng.Shuffle(len(perm), func(i, j int) { perm[i], perm[j] = perm[j], perm[i] })

	c.prototypes = make([][]float64, c.k)
	for j := 0; j < c.k; j++ {
		c.prototypes[j] = append([]float64(nil), c.features[perm[j]]...)
	}
}

// Assign recomputes the membership table and reports whether it changed.
func (c *Clusterer) Assign() bool {
	n := len(c.features)
	chunks := c.chunks(n)
	changed := make([]bool, len(chunks))
	moves := make([]int, len(chunks))

	var g errgroup.Group
	g.SetLimit(c.opts.workers)
	for ci, r := range chunks {
		g.Go(func() error {
			row := make([]float64, c.k)
			for i := r[0]; i < r[1]; i++ {
				c.densities(i, row)
				if c.policy.Soft() {
					if c.assignSoft(i, row) {
						changed[ci] = true
					}
				} else if c.assignHard(i, row) {
					moves[ci]++
				}
			}
			return nil
		})
	}
	_ = g.Wait()

	if c.policy.Soft() {
		for _, ch := range changed {
			if ch {
				return true
			}
		}
		return false
	}

	total := 0
	for _, m := range moves {
		total += m
	}
	prev := c.prevMoves
	c.prevMoves = total
	return total > 0 && total < prev
}

func (c *Clusterer) densities(i int, row []float64) {
	for j, p := range c.prototypes {
		row[j] = c.policy.Density(c.features[i], p)
	}
}

// assignSoft row-normalizes the densities into table row i.
func (c *Clusterer) assignSoft(i int, row []float64) bool {
	sum := 0.0
	for _, d := range row {
		sum += d
	}
	changed := false
	for j, d := range row {
		v := 0.0
		if sum > 0 && !math.IsInf(sum, 0) {
			v = d / sum
		}
		if math.Abs(v-c.table[i][j]) > changeTol {
			changed = true
		}
		c.table[i][j] = v
	}
	return changed
}

// assignHard floors every cell at 0.25*density and gives the winner 1.
// It reports whether the winner moved.
func (c *Clusterer) assignHard(i int, row []float64) bool {
	best := 0
	for j, d := range row {
		if d > row[best] {
			best = j
		}
		c.table[i][j] = hardFloor * d
	}
	c.table[i][best] = 1
	moved := c.assigned[i] != best
	c.assigned[i] = best
	return moved
}

// Update recomputes every prototype from the current table. A prototype
// without support keeps its previous value.
func (c *Clusterer) Update() {
	var g errgroup.Group
	g.SetLimit(c.opts.workers)
	for _, r := range c.chunks(c.k) {
		g.Go(func() error {
			for j := r[0]; j < r[1]; j++ {
				if c.policy.Soft() {
					c.updateSoft(j)
				} else {
					c.updateHard(j)
				}
			}
			return nil
		})
	}
	_ = g.Wait()
}

func (c *Clusterer) updateSoft(j int) {
	w := len(c.prototypes[j])
	acc := make([]float64, w)
	total := 0.0
	for i, f := range c.features {
		t := c.table[i][j]
		if t == 0 {
			continue
		}
		total += t
		for d := 0; d < w; d++ {
			acc[d] += t * f[d]
		}
	}
	if total == 0 {
		return
	}
	for d := range acc {
		c.prototypes[j][d] = acc[d] / total
	}
}

func (c *Clusterer) updateHard(j int) {
	w := len(c.prototypes[j])
	acc := make([]float64, w)
	members := 0
	for i, f := range c.features {
		if c.assigned[i] != j {
			continue
		}
		members++
		for d := 0; d < w; d++ {
			acc[d] += f[d]
		}
	}
	if members == 0 {
		return
	}
	for d := range acc {
		c.prototypes[j][d] = acc[d] / float64(members)
	}
}

// Run iterates Assign then Update until the table stops changing.
func (c *Clusterer) Run(ctx context.Context) error {
	if c.state == StateConverged {
		return nil
	}
	start := time.Now()
	for c.iterations < c.opts.maxIterations {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("clustering interrupted after %d iterations: %w", c.iterations, err)
		}
		c.iterations++
		if !c.Assign() {
			c.state = StateConverged
			c.opts.log.Debug("clustering converged",
				logger.String("policy", c.policy.Name),
				logger.Int("k", c.k),
				logger.Int("iterations", c.iterations),
				logger.Duration("elapsed_ms", time.Since(start)))
			return nil
		}
		c.Update()
	}
	return &errs.NonConvergenceError{Iterations: c.opts.maxIterations}
}

// Prototypes returns a copy of the current prototypes.
func (c *Clusterer) Prototypes() [][]float64 { return deepCopy(c.prototypes) }

// Membership returns a copy of the current N×K membership table.
func (c *Clusterer) Membership() [][]float64 { return deepCopy(c.table) }

func (c *Clusterer) State() State    { return c.state }
func (c *Clusterer) Iterations() int { return c.iterations }
func (c *Clusterer) Policy() Policy  { return c.policy }

// chunks splits [0,n) into at most workers contiguous ranges.
func (c *Clusterer) chunks(n int) [][2]int {
	parts := c.opts.workers
	if parts > n {
		parts = n
	}
	if parts < 1 {
		parts = 1
	}
	size := (n + parts - 1) / parts
	out := make([][2]int, 0, parts)
	for lo := 0; lo < n; lo += size {
		hi := lo + size
		if hi > n {
			hi = n
		}
		out = append(out, [2]int{lo, hi})
	}
	return out
}

func deepCopy(m [][]float64) [][]float64 {
	out := make([][]float64, len(m))
	for i, row := range m {
		out[i] = append([]float64(nil), row...)
	}
	return out
}
