// This file recovers chains that the FAT still marks as allocated but that no
// live directory entry refers to anymore.

package fat16

import (
	"errors"
	"reflect"
	"sort"

	"github.com/dsoprea/go-logging"
)

var (
	orphanLogger = log.NewLogger("fat16.orphans")
)

// OrphanScanResult is the outcome of the orphan pass.
type OrphanScanResult struct {
	// Blobs are in ascending order of head cluster.
	Blobs    []OrphanBlob
	Failures []RecoveryFailure
}

// OrphanScanner sweeps the whole data region for in-use clusters that the
// directory pass did not explain. It must only run after the directory pass
// has finished filling the SeenClusters it is given; otherwise chains that
// are still linked from a directory would be reported a second time.
type OrphanScanner struct {
	fr   *Fat16Reader
	seen *SeenClusters
}

// NewOrphanScanner returns a new OrphanScanner over the set left behind by the
// directory pass.
func NewOrphanScanner(fr *Fat16Reader, seen *SeenClusters) *OrphanScanner {
	return &OrphanScanner{
		fr:   fr,
		seen: seen,
	}
}

// Scan reconstructs every orphaned chain. A cluster is a candidate if its FAT
// entry is in use (allocated or end-of-chain) and it has not been seen.
//
// Chains are keyed by their head. To find heads, every candidate that another
// candidate links to is marked as referenced; unreferenced candidates are
// walked first, in ascending order. Whatever remains afterward (chains whose
// head is gone, or pure cycles) is then walked from its lowest cluster.
func (ors *OrphanScanner) Scan() (result OrphanScanResult, err error) {
	defer func() {
		if errRaw := recover(); errRaw != nil {
			var ok bool
			if err, ok = errRaw.(error); ok == true {
				err = log.Wrap(err)
			} else {
				err = log.Errorf("Error not an error: [%s] [%v]", reflect.TypeOf(errRaw).Name(), errRaw)
			}
		}
	}()

	result = OrphanScanResult{
		Blobs:    make([]OrphanBlob, 0),
		Failures: make([]RecoveryFailure, 0),
	}

	geometry := ors.fr.Geometry()

	candidates := make([]uint32, 0)
	referenced := make(map[uint32]struct{})

	for clusterNumber := uint32(2); clusterNumber < geometry.CountOfClusters; clusterNumber++ {
		if ors.seen.Has(clusterNumber) == true {
			continue
		}

		fe, err := ors.fr.ReadFatEntry(clusterNumber)
		log.PanicIf(err)

		if fe.Raw.IsInUse() == false {
			continue
		}

		candidates = append(candidates, clusterNumber)

		if nextClusterNumber, ok := fe.Raw.NextCluster(); ok == true {
			referenced[nextClusterNumber] = struct{}{}
		}
	}

	orphanLogger.Debugf(nil, "Found (%d) orphan candidates.", len(candidates))

	for _, clusterNumber := range candidates {
		if _, found := referenced[clusterNumber]; found == true {
			continue
		}

		ors.recoverChain(clusterNumber, &result)
	}

	for _, clusterNumber := range candidates {
		ors.recoverChain(clusterNumber, &result)
	}

	sort.Slice(result.Blobs, func(i, j int) bool {
		return result.Blobs[i].HeadCluster < result.Blobs[j].HeadCluster
	})

	return result, nil
}

// recoverChain walks the chain at the given cluster unless that cluster was
// already attributed. Every cluster touched is marked as seen so the sweep
// never enters the same chain again from an interior node.
func (ors *OrphanScanner) recoverChain(clusterNumber uint32, result *OrphanScanResult) {
	if ors.seen.Has(clusterNumber) == true {
		return
	}

	data, visitedClusters, err := ors.fr.WalkChain(clusterNumber, NoSizeLimit, ors.seen)
	ors.seen.Add(visitedClusters...)

	if err != nil {
		if errors.Is(err, ErrCorruptChain) == false {
			log.Panic(err)
		}

		failure := RecoveryFailure{
			Cluster:  clusterNumber,
			Clusters: visitedClusters,
			Err:      err,
		}

		orphanLogger.Warningf(nil, "%s", failure)

		result.Failures = append(result.Failures, failure)

		return
	}

	ob := OrphanBlob{
		HeadCluster: clusterNumber,
		Data:        data,
		Clusters:    visitedClusters,
	}

	orphanLogger.Debugf(nil, "Recovered: %s", ob)

	result.Blobs = append(result.Blobs, ob)
}
