package fat16

import (
	"sort"
)

// SeenClusters is the set of clusters that have already been attributed to a
// recovered item (file, directory or orphan). It only ever grows. Both
// scanners consult it before walking so that no cluster is recovered twice.
//
// It is not safe for concurrent use.
type SeenClusters struct {
	clusters map[uint32]struct{}
}

// NewSeenClusters returns an empty set.
func NewSeenClusters() *SeenClusters {
	return &SeenClusters{
		clusters: make(map[uint32]struct{}),
	}
}

// Has indicates whether the cluster has already been attributed. A nil set
// contains nothing.
func (sc *SeenClusters) Has(clusterNumber uint32) bool {
	if sc == nil {
		return false
	}

	_, found := sc.clusters[clusterNumber]
	return found
}

// Add records the given clusters.
func (sc *SeenClusters) Add(clusterNumbers ...uint32) {
	for _, clusterNumber := range clusterNumbers {
		sc.clusters[clusterNumber] = struct{}{}
	}
}

// Len returns the number of clusters in the set.
func (sc *SeenClusters) Len() int {
	if sc == nil {
		return 0
	}

	return len(sc.clusters)
}

// Sorted returns the clusters in ascending order.
func (sc *SeenClusters) Sorted() []uint32 {
	if sc == nil {
		return []uint32{}
	}

	sorted := make([]uint32, 0, len(sc.clusters))
	for clusterNumber := range sc.clusters {
		sorted = append(sorted, clusterNumber)
	}

	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i] < sorted[j]
	})

	return sorted
}
