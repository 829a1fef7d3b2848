package po

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"research-terminal/internal/errors"
)

// clustering is a dendrogram over the assets of a model plus its k-cluster cut.
type clustering struct {
	tree   *dendrogram
	k      int
	labels []int
}

func buildClustering(m *model, opts Options) (*clustering, error) {
	codep, err := Codependence(m.returns, opts.Codependence)
	if err != nil {
		return nil, err
	}
	tree, err := linkageCluster(CodependenceDistance(codep, opts.Codependence), opts.Linkage)
	if err != nil {
		return nil, err
	}

	k := opts.K
	if k == 0 {
		k = tree.optimalClusters(opts.MaxK)
	}
	if k > m.n() {
		k = m.n()
	}
	return &clustering{tree: tree, k: k, labels: tree.cut(k)}, nil
}

// members returns the leaves of each cluster label.
func (c *clustering) members() [][]int {
	out := make([][]int, c.k)
	for _, leaf := range c.tree.order() {
		out[c.labels[leaf]] = append(out[c.labels[leaf]], leaf)
	}
	return out
}

// naiveWeights is the inverse-risk portfolio over assets: inverse variance for MV,
// inverse stand-alone risk otherwise.
func naiveWeights(m *model, assets []int, risks []float64) []float64 {
	w := make([]float64, len(assets))
	for i, a := range assets {
		r := risks[a]
		if m.measure.Name == "MV" {
			r *= r
		}
		if r > 0 {
			w[i] = 1 / r
		}
	}
	if s := floats.Sum(w); s > 0 {
		floats.Scale(1/s, w)
	} else {
		w = equalWeights(len(assets))
	}
	return w
}

// clusterRisk is the risk of the inverse-risk portfolio over the assets.
// MV uses variance so that bisection splits follow inverse variance.
func clusterRisk(m *model, assets []int, risks []float64) float64 {
	sub := naiveWeights(m, assets, risks)
	w := make([]float64, m.n())
	for i, a := range assets {
		w[a] = sub[i]
	}
	if m.measure.Name == "MV" {
		return m.variance(w)
	}
	return m.risk(w)
}

// hrpWeights allocates by recursive bisection along the dendrogram: each split gives the
// riskier child the smaller share.
func hrpWeights(m *model, c *clustering) []float64 {
	risks := m.assetRisks()
	w := make([]float64, m.n())

	var split func(node int, share float64)
	split = func(node int, share float64) {
		if node < c.tree.n {
			w[node] = share
			return
		}
		l, r := c.tree.children(node)
		rl := clusterRisk(m, c.tree.leaves(l), risks)
		rr := clusterRisk(m, c.tree.leaves(r), risks)
		alpha := 0.5
		if rl+rr > 0 {
			alpha = 1 - rl/(rl+rr)
		}
		split(l, share*alpha)
		split(r, share*(1-alpha))
	}
	split(c.tree.root(), 1)
	return clean(w)
}

// hercWeights splits risk across the k clusters along the dendrogram, then allocates inside
// each cluster by inverse risk.
func hercWeights(m *model, c *clustering) []float64 {
	risks := m.assetRisks()
	w := make([]float64, m.n())

	sameCluster := func(leaves []int) bool {
		for _, l := range leaves[1:] {
			if c.labels[l] != c.labels[leaves[0]] {
				return false
			}
		}
		return true
	}

	var split func(node int, share float64)
	split = func(node int, share float64) {
		leaves := c.tree.leaves(node)
		if sameCluster(leaves) {
			for i, v := range naiveWeights(m, leaves, risks) {
				w[leaves[i]] = share * v
			}
			return
		}
		l, r := c.tree.children(node)
		rl := clusterRisk(m, c.tree.leaves(l), risks)
		rr := clusterRisk(m, c.tree.leaves(r), risks)
		alpha := 0.5
		if rl+rr > 0 {
			alpha = 1 - rl/(rl+rr)
		}
		split(l, share*alpha)
		split(r, share*(1-alpha))
	}
	split(c.tree.root(), 1)
	return clean(w)
}

// ncoWeights solves the intra-cluster objective inside each cluster, then the
// inter-cluster objective on the resulting cluster portfolios.
func ncoWeights(m *model, c *clustering, opts Options) ([]float64, error) {
	groups := c.members()
	t, _ := m.returns.Dims()
	intra := make([][]float64, len(groups))
	clusterReturns := mat.NewDense(t, len(groups), nil)
	symbols := make([]string, len(groups))

	for g, assets := range groups {
		sub := m.returns.Subset(assets)
		subModel, err := newModel(sub, opts)
		if err != nil {
			return nil, err
		}
		local := opts
		local.TargetReturn, local.TargetRisk = -1, -1
		wg, err := meanRiskWeights(subModel, opts.Objective, local, nil)
		if err != nil {
			return nil, err
		}
		intra[g] = wg
		clusterReturns.SetCol(g, sub.Portfolio(wg))
		symbols[g] = sub.Symbols[0]
	}

	reduced := &Returns{Dates: m.returns.Dates, Symbols: symbols, Data: clusterReturns, Freq: m.returns.Freq}
	outer, err := newModel(reduced, opts)
	if err != nil {
		return nil, err
	}
	inter, err := meanRiskWeights(outer, opts.ObjectiveNCO, opts, nil)
	if err != nil {
		return nil, err
	}

	w := make([]float64, m.n())
	for g, assets := range groups {
		for i, a := range assets {
			w[a] = intra[g][i] * inter[g]
		}
	}
	if math.IsNaN(floats.Sum(w)) {
		return nil, errors.NewOptimizationError("NCO", "weights are not finite", nil)
	}
	return clean(w), nil
}
