// This file supports enumerating the entries of a single directory.

package fat16

import (
	"errors"
	"reflect"

	"github.com/dsoprea/go-logging"
)

const (
	// RootDirectoryCluster is the cluster number used for the root
	// directory, which on FAT16 lives in a fixed region rather than in the
	// data region. ".." entries of first-level directories point at it.
	RootDirectoryCluster = uint32(0)
)

// Fat16Navigator knows how to get the entries of a single directory.
type Fat16Navigator struct {
	fr                 *Fat16Reader
	firstClusterNumber uint32
}

// NewFat16Navigator returns a new Fat16Navigator instance. Pass
// RootDirectoryCluster for the root directory.
func NewFat16Navigator(fr *Fat16Reader, firstClusterNumber uint32) (en *Fat16Navigator) {
	return &Fat16Navigator{
		fr:                 fr,
		firstClusterNumber: firstClusterNumber,
	}
}

// FirstClusterNumber returns the cluster that the directory starts at.
func (en *Fat16Navigator) FirstClusterNumber() uint32 {
	return en.firstClusterNumber
}

// IsRoot indicates whether this is the fixed root directory.
func (en *Fat16Navigator) IsRoot() bool {
	return en.firstClusterNumber == RootDirectoryCluster
}

// ReadDirectory returns the raw content of the directory. Subdirectories are
// read for their full allocated length. On ErrCorruptChain whatever could be
// read is still returned along with the error.
func (en *Fat16Navigator) ReadDirectory(owned *SeenClusters) (data []byte, visitedClusters []uint32, err error) {
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

	if en.IsRoot() == true {
		data, err = en.fr.ReadRootDirectory()
		log.PanicIf(err)

		return data, []uint32{}, nil
	}

	data, visitedClusters, err = en.fr.WalkChain(en.firstClusterNumber, NoSizeLimit, owned)
	if err != nil && errors.Is(err, ErrCorruptChain) == true {
		return data, visitedClusters, err
	}

	log.PanicIf(err)

	return data, visitedClusters, nil
}

// DirectoryEntryVisitorFunc is a function type used as a callback over each
// directory entry.
type DirectoryEntryVisitorFunc func(entryIndex int, de Fat16DirectoryEntry) (err error)

// EnumerateDirectoryEntries reads the directory and calls the callback for
// every entry, in on-disk order, up to (not including) the first unused
// entry. The clusters of the directory itself are added to `owned` (if not
// nil) before the first callback.
//
// If the directory's own chain is corrupt, the entries that could be read are
// still enumerated and the ErrCorruptChain is returned afterward.
func (en *Fat16Navigator) EnumerateDirectoryEntries(owned *SeenClusters, cb DirectoryEntryVisitorFunc) (visitedClusters []uint32, err error) {
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

	data, visitedClusters, readErr := en.ReadDirectory(owned)
	if readErr != nil && errors.Is(readErr, ErrCorruptChain) == false {
		log.Panic(readErr)
	}

	if owned != nil {
		owned.Add(visitedClusters...)
	}

	entryCount := len(data) / directoryEntryBytesCount
	for i := 0; i < entryCount; i++ {
		directoryEntryData := data[i*directoryEntryBytesCount : (i+1)*directoryEntryBytesCount]

		// We've hit the terminal record.
		if directoryEntryData[0] == entryMarkerEndOfDirectory {
			break
		}

		de, err := parseDirectoryEntry(directoryEntryData)
		log.PanicIf(err)

		err = cb(i, de)
		log.PanicIf(err)
	}

	if readErr != nil {
		return visitedClusters, readErr
	}

	return visitedClusters, nil
}
