// This file recovers the files that are still reachable from the directory
// tree.

package fat16

import (
	"errors"
	"fmt"
	"path"
	"reflect"

	"github.com/dsoprea/go-logging"
)

var (
	scannerLogger = log.NewLogger("fat16.scanner")
)

// subdirectoryVisit is what to do with a subdirectory entry.
type subdirectoryVisit int

const (
	subdirectoryNew subdirectoryVisit = iota
	subdirectoryAlreadyVisited
	subdirectoryInvalid
)

// DirectoryScanResult is the outcome of the directory pass.
type DirectoryScanResult struct {
	Files       []RecoveredFile
	Directories []DirectoryListing
	Failures    []RecoveryFailure
}

// DirectoryScanner walks the directory tree from the root and recovers every
// regular file it finds. Every cluster that it attributes to a directory or a
// file is added to the SeenClusters it was given.
type DirectoryScanner struct {
	fr   *Fat16Reader
	seen *SeenClusters

	// listOnly skips reading file content. Only directory clusters are added
	// to `seen`.
	listOnly bool
}

// NewDirectoryScanner returns a new DirectoryScanner. `seen` is owned by the
// caller, which is expected to hand the same set to the OrphanScanner
// afterward.
func NewDirectoryScanner(fr *Fat16Reader, seen *SeenClusters) *DirectoryScanner {
	return &DirectoryScanner{
		fr:   fr,
		seen: seen,
	}
}

// Scan recovers everything under the root directory. Problems with single
// entries are reported in the result; only I/O failures on the image abort
// the scan.
func (ds *DirectoryScanner) Scan() (result DirectoryScanResult, err error) {
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

	result = DirectoryScanResult{
		Files:       make([]RecoveredFile, 0),
		Directories: make([]DirectoryListing, 0),
		Failures:    make([]RecoveryFailure, 0),
	}

	err = ds.scanDirectory(RootDirectoryCluster, "", &result)
	log.PanicIf(err)

	return result, nil
}

// List walks the same tree as Scan but only builds the directory listings. No
// file content is read, so the result has no Files and only directory-level
// failures. The SeenClusters it leaves behind is not suitable for an orphan
// sweep.
func (ds *DirectoryScanner) List() (result DirectoryScanResult, err error) {
	ds.listOnly = true
	defer func() {
		ds.listOnly = false
	}()

	return ds.Scan()
}

func (ds *DirectoryScanner) classifySubdirectory(clusterNumber uint32) subdirectoryVisit {
	if ds.fr.Geometry().IsValidCluster(clusterNumber) == false {
		return subdirectoryInvalid
	} else if ds.seen.Has(clusterNumber) == true {
		return subdirectoryAlreadyVisited
	}

	return subdirectoryNew
}

type pendingSubdirectory struct {
	clusterNumber uint32
	path          string
}

// scanDirectory lists one directory, recovers its files and then descends
// into its subdirectories in on-disk order. A subdirectory whose cluster has
// already been seen is not entered again, which bounds the recursion even
// when the tree loops back onto itself.
func (ds *DirectoryScanner) scanDirectory(clusterNumber uint32, directoryPath string, result *DirectoryScanResult) (err error) {
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

	scannerLogger.Debugf(nil, "Scanning directory at cluster (%d): [%s]", clusterNumber, displayPath(directoryPath))

	en := NewFat16Navigator(ds.fr, clusterNumber)

	listing := DirectoryListing{
		Cluster: clusterNumber,
		Path:    directoryPath,
		Entries: make([]ListingEntry, 0),
	}

	subdirectories := make([]pendingSubdirectory, 0)

	cb := func(entryIndex int, de Fat16DirectoryEntry) (err error) {
		switch de.Type() {
		case DirectoryEntryDeleted, DirectoryEntryOther:
			scannerLogger.Debugf(nil, "Skipping entry (%d) in [%s]: %s", entryIndex, displayPath(directoryPath), de)

		case DirectoryEntrySubdirectory:
			if de.IsDotEntry() == true {
				return nil
			}

			psd := pendingSubdirectory{
				clusterNumber: de.StartingCluster(),
				path:          path.Join(directoryPath, de.Filename()),
			}

			subdirectories = append(subdirectories, psd)

		case DirectoryEntryRegularFile:
			le := ListingEntry{
				Filename:     de.Filename(),
				DeclaredSize: de.FileSize,
				Modified:     de.LastModifiedTimestamp(),
			}

			listing.Entries = append(listing.Entries, le)

			if ds.listOnly == true {
				return nil
			}

			rf, failure, err := ds.recoverFile(clusterNumber, directoryPath, de)
			log.PanicIf(err)

			if rf != nil {
				result.Files = append(result.Files, *rf)
			}

			if failure != nil {
				result.Failures = append(result.Failures, *failure)
			}
		}

		return nil
	}

	visitedClusters, err := en.EnumerateDirectoryEntries(ds.seen, cb)
	if err != nil {
		if errors.Is(err, ErrCorruptChain) == false {
			log.Panic(err)
		}

		scannerLogger.Warningf(nil, "Directory [%s] at cluster (%d) is damaged; keeping the entries that could be read: %v", displayPath(directoryPath), clusterNumber, err)

		failure := RecoveryFailure{
			Path:     directoryPath,
			Cluster:  clusterNumber,
			Clusters: visitedClusters,
			Err:      err,
		}

		result.Failures = append(result.Failures, failure)
	}

	result.Directories = append(result.Directories, listing)

	for _, psd := range subdirectories {
		switch ds.classifySubdirectory(psd.clusterNumber) {
		case subdirectoryNew:
			err := ds.scanDirectory(psd.clusterNumber, psd.path, result)
			log.PanicIf(err)

		case subdirectoryAlreadyVisited:
			scannerLogger.Warningf(nil, "Subdirectory [%s] points at cluster (%d), which was already visited. Not descending.", displayPath(psd.path), psd.clusterNumber)

			failure := RecoveryFailure{
				Path:     psd.path,
				Cluster:  psd.clusterNumber,
				Clusters: []uint32{},
				Err:      fmt.Errorf("%w: subdirectory cluster (%d) already belongs to another item", ErrCorruptChain, psd.clusterNumber),
			}

			result.Failures = append(result.Failures, failure)

		case subdirectoryInvalid:
			scannerLogger.Warningf(nil, "Subdirectory [%s] points at invalid cluster (%d).", displayPath(psd.path), psd.clusterNumber)

			failure := RecoveryFailure{
				Path:     psd.path,
				Cluster:  psd.clusterNumber,
				Clusters: []uint32{},
				Err:      fmt.Errorf("%w: subdirectory cluster (%d) outside of the data region", ErrCorruptChain, psd.clusterNumber),
			}

			result.Failures = append(result.Failures, failure)
		}
	}

	return nil
}

// recoverFile walks the chain of one regular file. A corrupt chain yields
// only a failure; a short chain yields both the partial file and a failure.
// Any other error is returned and aborts the scan.
func (ds *DirectoryScanner) recoverFile(directoryCluster uint32, directoryPath string, de Fat16DirectoryEntry) (rf *RecoveredFile, failure *RecoveryFailure, err error) {
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

	filePath := path.Join(directoryPath, de.Filename())
	startingCluster := de.StartingCluster()

	rf = &RecoveredFile{
		Name:             de.BaseName(),
		Extension:        de.ExtensionName(),
		Path:             filePath,
		DirectoryCluster: directoryCluster,
		StartingCluster:  startingCluster,
		DeclaredSize:     de.FileSize,
		Modified:         de.LastModifiedTimestamp(),
		Data:             []byte{},
		Clusters:         []uint32{},
	}

	// Empty files have no chain at all.
	if startingCluster == 0 {
		if de.FileSize == 0 {
			return rf, nil, nil
		}

		rf.Truncated = true

		failure = &RecoveryFailure{
			Path:     filePath,
			Cluster:  startingCluster,
			Clusters: []uint32{},
			Err:      fmt.Errorf("%w: (%d) bytes declared but no starting cluster", ErrTruncatedFile, de.FileSize),
		}

		scannerLogger.Warningf(nil, "%s", failure)

		return rf, failure, nil
	}

	data, visitedClusters, err := ds.fr.WalkChain(startingCluster, int64(de.FileSize), ds.seen)
	ds.seen.Add(visitedClusters...)

	if err == nil {
		rf.Data = data
		rf.Clusters = visitedClusters

		scannerLogger.Debugf(nil, "Recovered: %s", rf)

		return rf, nil, nil
	}

	failure = &RecoveryFailure{
		Path:     filePath,
		Cluster:  startingCluster,
		Clusters: visitedClusters,
		Err:      err,
	}

	if errors.Is(err, ErrTruncatedFile) == true {
		rf.Data = data
		rf.Clusters = visitedClusters
		rf.Truncated = true

		scannerLogger.Warningf(nil, "%s", failure)

		return rf, failure, nil
	} else if errors.Is(err, ErrCorruptChain) == true {
		scannerLogger.Warningf(nil, "%s", failure)

		return nil, failure, nil
	}

	log.Panic(err)
	return nil, nil, nil
}
