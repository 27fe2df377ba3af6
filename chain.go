package fat16

import (
	"bytes"
	"fmt"
	"io"
	"reflect"

	"github.com/dsoprea/go-logging"
)

const (
	// NoSizeLimit tells the chain readers to return every byte of every
	// cluster in the chain.
	NoSizeLimit = int64(-1)
)

var (
	chainLogger = log.NewLogger("fat16.chain")
)

// ClusterVisitorFunc is a visitor callback as all clusters in the chain are
// visited.
type ClusterVisitorFunc func(fc *Fat16Cluster) (doContinue bool, err error)

// EnumerateClusters calls the given callback for each cluster in the chain
// starting from the given cluster, in chain order, until the end-of-chain
// marker.
//
// Every cluster is visited at most once per call: a link back to a cluster
// already visited by this walk fails with ErrCorruptChain. So does a link to
// a free, reserved or bad cluster, a link outside of the data region, and a
// link into any cluster in `owned` (clusters already attributed to another
// item). `owned` may be nil.
func (fr *Fat16Reader) EnumerateClusters(startingClusterNumber uint32, cb ClusterVisitorFunc, owned *SeenClusters) (err error) {
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

	fr.assertParsed()

	if fr.geometry.IsValidCluster(startingClusterNumber) == false {
		log.Panic(fmt.Errorf("%w: starting cluster (%d) outside of [2, %d)", ErrCorruptChain, startingClusterNumber, fr.geometry.CountOfClusters))
	} else if owned.Has(startingClusterNumber) == true {
		log.Panic(fmt.Errorf("%w: starting cluster (%d) already belongs to another item", ErrCorruptChain, startingClusterNumber))
	}

	visited := make(map[uint32]struct{})

	currentClusterNumber := startingClusterNumber
	for {
		fc, err := fr.GetCluster(currentClusterNumber)
		log.PanicIf(err)

		visited[currentClusterNumber] = struct{}{}

		doContinue, err := cb(fc)
		log.PanicIf(err)

		if doContinue == false {
			break
		}

		fe, err := fr.ReadFatEntry(currentClusterNumber)
		log.PanicIf(err)

		if fe.Type == FatEntryEndOfChain {
			break
		} else if fe.Type != FatEntryAllocated {
			log.Panic(fmt.Errorf("%w: cluster (%d) links to a [%s] entry (0x%04x)", ErrCorruptChain, currentClusterNumber, fe.Type, uint16(fe.Raw)))
		}

		nextClusterNumber := fe.Next()

		if fr.geometry.IsValidCluster(nextClusterNumber) == false {
			log.Panic(fmt.Errorf("%w: cluster (%d) links outside of the data region: (%d)", ErrCorruptChain, currentClusterNumber, nextClusterNumber))
		} else if _, found := visited[nextClusterNumber]; found == true {
			log.Panic(fmt.Errorf("%w: cycle: cluster (%d) links back to cluster (%d)", ErrCorruptChain, currentClusterNumber, nextClusterNumber))
		} else if owned.Has(nextClusterNumber) == true {
			log.Panic(fmt.Errorf("%w: cluster (%d) is cross-linked into cluster (%d), which already belongs to another item", ErrCorruptChain, currentClusterNumber, nextClusterNumber))
		}

		currentClusterNumber = nextClusterNumber
	}

	return nil
}

// WriteFromClusterChain writes the content of every cluster in the chain
// starting from the given one. If `maxBytes` is not NoSizeLimit, only the
// first `maxBytes` bytes are written; the rest of the chain is still walked
// (and reported in `visitedClusters`) but its bytes are discarded. If the
// chain holds fewer than `maxBytes` bytes, ErrTruncatedFile is returned after
// everything available has been written.
//
// `visitedClusters` is valid even when an error is returned.
func (fr *Fat16Reader) WriteFromClusterChain(firstClusterNumber uint32, maxBytes int64, owned *SeenClusters, w io.Writer) (visitedClusters []uint32, written int64, err error) {
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

	visitedClusters = make([]uint32, 0)

	clusterCb := func(fc *Fat16Cluster) (doContinueCluster bool, err error) {
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

		visitedClusters = append(visitedClusters, fc.ClusterNumber())

		sectorCb := func(sectorNumber uint32, data []byte) (doContinueSector bool, err error) {
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

			if maxBytes != NoSizeLimit {
				remaining := maxBytes - written
				if remaining <= 0 {
					// Slack past the declared size. Never data.
					return false, nil
				} else if remaining < int64(len(data)) {
					data = data[:remaining]
				}
			}

			n, err := w.Write(data)
			log.PanicIf(err)

			written += int64(n)

			return true, nil
		}

		err = fc.EnumerateSectors(sectorCb)
		log.PanicIf(err)

		return true, nil
	}

	err = fr.EnumerateClusters(firstClusterNumber, clusterCb, owned)
	log.PanicIf(err)

	if maxBytes != NoSizeLimit && written < maxBytes {
		log.Panic(fmt.Errorf("%w: chain at cluster (%d) holds (%d) bytes but (%d) were declared", ErrTruncatedFile, firstClusterNumber, written, maxBytes))
	}

	chainLogger.Debugf(nil, "Walked chain at cluster (%d): (%d) clusters, (%d) bytes.", firstClusterNumber, len(visitedClusters), written)

	return visitedClusters, written, nil
}

// WalkChain returns the content of the chain starting at the given cluster
// along with the clusters it is made of, in chain order. See
// WriteFromClusterChain for the meaning of `maxBytes` and `owned`.
//
// On ErrCorruptChain and ErrTruncatedFile, `data` holds everything read before
// the problem and `visitedClusters` every cluster that was touched.
func (fr *Fat16Reader) WalkChain(startingClusterNumber uint32, maxBytes int64, owned *SeenClusters) (data []byte, visitedClusters []uint32, err error) {
	b := new(bytes.Buffer)

	visitedClusters, _, err = fr.WriteFromClusterChain(startingClusterNumber, maxBytes, owned, b)

	return b.Bytes(), visitedClusters, err
}
