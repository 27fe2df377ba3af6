package fat16

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
)

// RecoveredFile is a file recovered through a live directory entry. It is
// never modified after the scan that built it.
type RecoveredFile struct {
	// Name and Extension are the space-trimmed 8.3 components.
	Name      string
	Extension string

	// Path is the slash-separated path of the file from the root directory.
	Path string

	// DirectoryCluster is the first cluster of the directory holding the
	// entry (RootDirectoryCluster for the root).
	DirectoryCluster uint32

	StartingCluster uint32
	DeclaredSize    uint32
	Modified        time.Time

	Data []byte

	// Clusters is the chain that produced the data, in chain order.
	Clusters []uint32

	// Truncated is set when the chain ended before DeclaredSize bytes were
	// found. Data holds everything that was available.
	Truncated bool
}

// Filename returns "NAME.EXT".
func (rf RecoveredFile) Filename() string {
	return JoinShortName(rf.Name, rf.Extension)
}

func (rf RecoveredFile) String() string {
	return fmt.Sprintf("RecoveredFile<PATH=[%s] FIRST-CLUSTER=(%d) SIZE=(%d) CLUSTERS=(%d) TRUNCATED=[%v]>", rf.Path, rf.StartingCluster, len(rf.Data), len(rf.Clusters), rf.Truncated)
}

// ListingEntry is one regular file in a directory listing.
type ListingEntry struct {
	Filename     string
	DeclaredSize uint32
	Modified     time.Time
}

// DirectoryListing associates a scanned directory with the regular files it
// contains, in on-disk order.
type DirectoryListing struct {
	// Cluster is the first cluster of the directory (RootDirectoryCluster for
	// the root).
	Cluster uint32
	Path    string
	Entries []ListingEntry
}

// OrphanBlob is the content of an allocated chain that no live directory
// entry refers to. It has no name; it is identified by its head cluster.
type OrphanBlob struct {
	HeadCluster uint32
	Data        []byte
	Clusters    []uint32
}

func (ob OrphanBlob) String() string {
	return fmt.Sprintf("OrphanBlob<HEAD-CLUSTER=(%d) SIZE=(%d) CLUSTERS=(%d)>", ob.HeadCluster, len(ob.Data), len(ob.Clusters))
}

// RecoveryFailure is a problem that was contained to a single item (one
// directory entry, one subdirectory or one orphan candidate).
type RecoveryFailure struct {
	// Path is set for items found through a directory entry.
	Path string

	// Cluster is the starting cluster of the item.
	Cluster uint32

	// Clusters is every cluster touched before the failure. These clusters
	// are considered seen.
	Clusters []uint32

	Err error
}

// Kind returns the taxonomy sentinel that the failure belongs to, or nil.
func (rf RecoveryFailure) Kind() error {
	for _, kind := range []error{ErrCorruptChain, ErrTruncatedFile, ErrImageTooSmall, ErrMalformedBootSector} {
		if errors.Is(rf.Err, kind) == true {
			return kind
		}
	}

	return nil
}

func (rf RecoveryFailure) String() string {
	return fmt.Sprintf("RecoveryFailure<PATH=[%s] CLUSTER=(%d) KIND=[%v] ERROR=[%v]>", rf.Path, rf.Cluster, rf.Kind(), rf.Err)
}

// RecoveryReport is the aggregate result of a recovery run. It is handed to
// the output stage as-is.
type RecoveryReport struct {
	Geometry VolumeGeometry

	Files       []RecoveredFile
	Directories []DirectoryListing

	// Orphans are in ascending order of head cluster.
	Orphans []OrphanBlob

	Failures []RecoveryFailure
}

// FindFile returns the first recovered file with the given path.
func (rr *RecoveryReport) FindFile(path string) (rf RecoveredFile, found bool) {
	for _, rf := range rr.Files {
		if rf.Path == path {
			return rf, true
		}
	}

	return rf, false
}

// FindOrphan returns the orphan blob keyed by the given head cluster.
func (rr *RecoveryReport) FindOrphan(headCluster uint32) (ob OrphanBlob, found bool) {
	for _, ob := range rr.Orphans {
		if ob.HeadCluster == headCluster {
			return ob, true
		}
	}

	return ob, false
}

// WriteListing writes the textual listing: each scanned directory, by
// cluster, followed by its regular files and their declared sizes.
func (rr *RecoveryReport) WriteListing(w io.Writer) (err error) {
	for _, dl := range rr.Directories {
		_, err = fmt.Fprintf(w, "Directory at cluster %d (%s):\n", dl.Cluster, displayPath(dl.Path))
		if err != nil {
			return err
		}

		for _, le := range dl.Entries {
			_, err = fmt.Fprintf(w, "Good file: %s - Length: %d\n", le.Filename, le.DeclaredSize)
			if err != nil {
				return err
			}
		}

		_, err = fmt.Fprintf(w, "\n")
		if err != nil {
			return err
		}
	}

	return nil
}

// Listing returns the textual listing as a string.
func (rr *RecoveryReport) Listing() string {
	b := new(bytes.Buffer)

	// Writes to a buffer can not fail.
	rr.WriteListing(b)

	return b.String()
}

// Dump prints a summary of the report.
func (rr *RecoveryReport) Dump() {
	fmt.Printf("Recovery Report\n")
	fmt.Printf("===============\n")
	fmt.Printf("\n")

	fmt.Printf("%s\n", rr.Geometry)
	fmt.Printf("\n")

	fmt.Printf("Files: (%d)\n", len(rr.Files))
	for _, rf := range rr.Files {
		fmt.Printf("- %s\n", rf)
	}

	fmt.Printf("\n")

	fmt.Printf("Orphans: (%d)\n", len(rr.Orphans))
	for _, ob := range rr.Orphans {
		fmt.Printf("- %s\n", ob)
	}

	fmt.Printf("\n")

	fmt.Printf("Failures: (%d)\n", len(rr.Failures))
	for _, rf := range rr.Failures {
		fmt.Printf("- %s\n", rf)
	}

	fmt.Printf("\n")
}

func displayPath(path string) string {
	return "/" + strings.TrimPrefix(path, "/")
}
