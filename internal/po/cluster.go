package po

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// merge is one agglomeration step. Ids below n are leaves, id n+i is the cluster formed by
// merge i.
type merge struct {
	left, right int
	height      float64
	size        int
}

// dendrogram is the result of agglomerative clustering on n leaves.
type dendrogram struct {
	n      int
	merges []merge
}

// linkageCluster runs agglomerative clustering on a distance matrix with Lance-Williams
// updates for single, complete, average and ward linkage.
func linkageCluster(dist *mat.Dense, method string) (*dendrogram, error) {
	n, _ := dist.Dims()
	switch method {
	case "single", "complete", "average", "ward":
	default:
		return nil, fmt.Errorf("unknown linkage %q", method)
	}

	d := make([][]float64, n)
	for i := range d {
		d[i] = make([]float64, n)
		for j := range d[i] {
			d[i][j] = dist.At(i, j)
		}
	}

	active := make([]bool, n)
	ids := make([]int, n)
	sizes := make([]int, n)
	for i := 0; i < n; i++ {
		active[i], ids[i], sizes[i] = true, i, 1
	}

	den := &dendrogram{n: n}
	for step := 0; step < n-1; step++ {
		a, b := -1, -1
		best := math.Inf(1)
		for i := 0; i < n; i++ {
			if !active[i] {
				continue
			}
			for j := i + 1; j < n; j++ {
				if active[j] && d[i][j] < best {
					best, a, b = d[i][j], i, j
				}
			}
		}

		ni, nj := float64(sizes[a]), float64(sizes[b])
		for k := 0; k < n; k++ {
			if !active[k] || k == a || k == b {
				continue
			}
			dka, dkb := d[k][a], d[k][b]
			var v float64
			switch method {
			case "single":
				v = math.Min(dka, dkb)
			case "complete":
				v = math.Max(dka, dkb)
			case "average":
				v = (ni*dka + nj*dkb) / (ni + nj)
			case "ward":
				nk := float64(sizes[k])
				v = math.Sqrt(((nk+ni)*dka*dka + (nk+nj)*dkb*dkb - nk*best*best) / (nk + ni + nj))
			}
			d[k][a], d[a][k] = v, v
		}

		den.merges = append(den.merges, merge{left: ids[a], right: ids[b], height: best, size: sizes[a] + sizes[b]})
		ids[a] = n + step
		sizes[a] += sizes[b]
		active[b] = false
	}
	return den, nil
}

// children returns the two sub-clusters of an internal node.
func (d *dendrogram) children(node int) (int, int) {
	m := d.merges[node-d.n]
	return m.left, m.right
}

func (d *dendrogram) root() int {
	if d.n == 1 {
		return 0
	}
	return d.n + len(d.merges) - 1
}

// leaves returns the leaves under node in dendrogram order.
func (d *dendrogram) leaves(node int) []int {
	if node < d.n {
		return []int{node}
	}
	l, r := d.children(node)
	return append(d.leaves(l), d.leaves(r)...)
}

// order returns every leaf in dendrogram (quasi-diagonal) order.
func (d *dendrogram) order() []int {
	return d.leaves(d.root())
}

// cut assigns each leaf a cluster label so that exactly k clusters remain.
func (d *dendrogram) cut(k int) []int {
	if k < 1 {
		k = 1
	}
	if k > d.n {
		k = d.n
	}

	parent := make([]int, d.n+len(d.merges))
	for i := range parent {
		parent[i] = i
	}
	for i := 0; i < d.n-k; i++ {
		m := d.merges[i]
		parent[m.left] = d.n + i
		parent[m.right] = d.n + i
	}

	find := func(x int) int {
		for parent[x] != x {
			x = parent[x]
		}
		return x
	}

	labels := make([]int, d.n)
	index := make(map[int]int)
	for leaf := 0; leaf < d.n; leaf++ {
		r := find(leaf)
		if _, ok := index[r]; !ok {
			index[r] = len(index)
		}
		labels[leaf] = index[r]
	}
	return labels
}

// optimalClusters picks the number of clusters with the largest gap between consecutive
// merge heights, bounded by maxK.
func (d *dendrogram) optimalClusters(maxK int) int {
	if d.n < 3 {
		return d.n
	}
	if maxK > d.n-1 {
		maxK = d.n - 1
	}

	bestK, bestGap := 2, math.Inf(-1)
	for k := 2; k <= maxK; k++ {
		// merges[n-k] is the step that would join k clusters into k-1
		gap := d.merges[d.n-k].height - d.merges[d.n-k-1].height
		if gap > bestGap {
			bestK, bestGap = k, gap
		}
	}
	return bestK
}
