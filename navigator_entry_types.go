package fat16

import (
	"fmt"
	"reflect"
	"time"

	"github.com/dsoprea/go-logging"
	"github.com/go-restruct/restruct"
)

const (
	directoryEntryBytesCount = 32

	entryMarkerEndOfDirectory = 0x00
	entryMarkerDeleted        = 0xe5
	entryMarkerDot            = 0x2e

	// A leading 05h stands in for a real E5h in the first name character.
	entryMarkerKanjiE5 = 0x05
)

// DirectoryEntryType is the closed set of classifications of a 32-byte
// directory entry.
type DirectoryEntryType int

const (
	// DirectoryEntryUnused is the terminator. It and everything after it in
	// the directory are ignored.
	DirectoryEntryUnused DirectoryEntryType = iota

	// DirectoryEntryDeleted has E5h as its first name byte.
	DirectoryEntryDeleted

	// DirectoryEntrySubdirectory has the directory attribute.
	DirectoryEntrySubdirectory

	// DirectoryEntryRegularFile is a plain (archive/read-only) file.
	DirectoryEntryRegularFile

	// DirectoryEntryOther is a volume label, a long-filename slot, or a
	// hidden/system entry.
	DirectoryEntryOther
)

var (
	directoryEntryTypeNames = map[DirectoryEntryType]string{
		DirectoryEntryUnused:       "Unused",
		DirectoryEntryDeleted:      "Deleted",
		DirectoryEntrySubdirectory: "Subdirectory",
		DirectoryEntryRegularFile:  "RegularFile",
		DirectoryEntryOther:        "Other",
	}
)

func (det DirectoryEntryType) String() string {
	name, found := directoryEntryTypeNames[det]
	if found == false {
		return fmt.Sprintf("DirectoryEntryType(%d)", int(det))
	}

	return name
}

// FileAttributes is the attribute byte of a directory entry.
type FileAttributes uint8

const (
	AttributeReadOnly    FileAttributes = 0x01
	AttributeHidden      FileAttributes = 0x02
	AttributeSystem      FileAttributes = 0x04
	AttributeVolumeLabel FileAttributes = 0x08
	AttributeDirectory   FileAttributes = 0x10
	AttributeArchive     FileAttributes = 0x20

	// AttributeLongFilename is the combination used by VFAT name slots.
	AttributeLongFilename = AttributeReadOnly | AttributeHidden | AttributeSystem | AttributeVolumeLabel
)

func (fa FileAttributes) IsReadOnly() bool {
	return fa&AttributeReadOnly > 0
}

func (fa FileAttributes) IsHidden() bool {
	return fa&AttributeHidden > 0
}

func (fa FileAttributes) IsSystem() bool {
	return fa&AttributeSystem > 0
}

func (fa FileAttributes) IsVolumeLabel() bool {
	return fa&AttributeVolumeLabel > 0
}

func (fa FileAttributes) IsDirectory() bool {
	return fa&AttributeDirectory > 0
}

func (fa FileAttributes) IsArchive() bool {
	return fa&AttributeArchive > 0
}

func (fa FileAttributes) IsLongFilename() bool {
	return fa&0x3f == AttributeLongFilename
}

func (fa FileAttributes) String() string {
	return fmt.Sprintf("FileAttributes<IS-READONLY=[%v] IS-HIDDEN=[%v] IS-SYSTEM=[%v] IS-VOLUME-LABEL=[%v] IS-DIRECTORY=[%v] IS-ARCHIVE=[%v]>",
		fa.IsReadOnly(), fa.IsHidden(), fa.IsSystem(), fa.IsVolumeLabel(), fa.IsDirectory(), fa.IsArchive())
}

// DosTime is the packed time of a directory entry (two-second resolution).
type DosTime uint16

func (dt DosTime) Second() int {
	return int(dt&31) * 2
}

func (dt DosTime) Minute() int {
	return int(dt>>5) & 63
}

func (dt DosTime) Hour() int {
	return int(dt>>11) & 31
}

// DosDate is the packed date of a directory entry.
type DosDate uint16

func (dd DosDate) Day() int {
	return int(dd & 31)
}

func (dd DosDate) Month() int {
	return int(dd>>5) & 15
}

func (dd DosDate) Year() int {
	return 1980 + int(dd>>9)
}

// DosTimestamp combines a date and a time. The on-disk values carry no
// timezone, so UTC is used.
func DosTimestamp(dd DosDate, dt DosTime) time.Time {
	if dd == 0 {
		return time.Time{}
	}

	return time.Date(dd.Year(), time.Month(dd.Month()), dd.Day(), dt.Hour(), dt.Minute(), dt.Second(), 0, time.UTC)
}

// Fat16DirectoryEntry is one raw 32-byte directory entry.
type Fat16DirectoryEntry struct {
	Name       [8]byte
	Extension  [3]byte
	Attributes FileAttributes

	NtReserved      uint8
	CreateTimeTenth uint8
	CreateTime      DosTime
	CreateDate      DosDate
	LastAccessDate  DosDate

	// FirstClusterHigh is only meaningful on FAT32.
	FirstClusterHigh uint16

	WriteTime       DosTime
	WriteDate       DosDate
	FirstClusterLow uint16
	FileSize        uint32
}

// Type classifies the entry.
func (de Fat16DirectoryEntry) Type() DirectoryEntryType {
	switch de.Name[0] {
	case entryMarkerEndOfDirectory:
		return DirectoryEntryUnused
	case entryMarkerDeleted:
		return DirectoryEntryDeleted
	}

	fa := de.Attributes

	if fa.IsLongFilename() == true || fa.IsVolumeLabel() == true {
		return DirectoryEntryOther
	} else if fa.IsDirectory() == true {
		return DirectoryEntrySubdirectory
	} else if fa.IsHidden() == true || fa.IsSystem() == true {
		return DirectoryEntryOther
	}

	return DirectoryEntryRegularFile
}

// IsDotEntry indicates the "." and ".." entries of a subdirectory.
func (de Fat16DirectoryEntry) IsDotEntry() bool {
	return de.Name[0] == entryMarkerDot
}

// BaseName returns the space-trimmed 8-character name.
func (de Fat16DirectoryEntry) BaseName() string {
	name := de.Name
	if name[0] == entryMarkerKanjiE5 {
		name[0] = entryMarkerDeleted
	}

	return ShortNameFromRaw(name[:])
}

// ExtensionName returns the space-trimmed 3-character extension.
func (de Fat16DirectoryEntry) ExtensionName() string {
	return ShortNameFromRaw(de.Extension[:])
}

// Filename returns "NAME.EXT", or just "NAME" if there is no extension.
func (de Fat16DirectoryEntry) Filename() string {
	return JoinShortName(de.BaseName(), de.ExtensionName())
}

// StartingCluster returns the first cluster of the entry's chain. The high
// word is not part of FAT16 and is ignored.
func (de Fat16DirectoryEntry) StartingCluster() uint32 {
	return uint32(de.FirstClusterLow)
}

// LastModifiedTimestamp returns the write timestamp.
func (de Fat16DirectoryEntry) LastModifiedTimestamp() time.Time {
	return DosTimestamp(de.WriteDate, de.WriteTime)
}

// CreateTimestamp returns the creation timestamp.
func (de Fat16DirectoryEntry) CreateTimestamp() time.Time {
	return DosTimestamp(de.CreateDate, de.CreateTime)
}

func (de Fat16DirectoryEntry) String() string {
	return fmt.Sprintf("DirectoryEntry<NAME=[%s] TYPE=[%s] ATTRIBUTES=(0x%02x) FIRST-CLUSTER=(%d) SIZE=(%d)>", de.Filename(), de.Type(), uint8(de.Attributes), de.StartingCluster(), de.FileSize)
}

// Dump prints every field of the entry.
func (de Fat16DirectoryEntry) Dump() {
	fmt.Printf("Directory Entry\n")
	fmt.Printf("===============\n")
	fmt.Printf("\n")

	fmt.Printf("Name: [%s]\n", de.Filename())
	fmt.Printf("Type: [%s]\n", de.Type())
	fmt.Printf("Attributes: (0x%02x)\n", uint8(de.Attributes))
	fmt.Printf("- %s\n", de.Attributes)
	fmt.Printf("Created: [%s]\n", de.CreateTimestamp())
	fmt.Printf("Modified: [%s]\n", de.LastModifiedTimestamp())
	fmt.Printf("FirstClusterHigh: (%d)\n", de.FirstClusterHigh)
	fmt.Printf("FirstClusterLow: (%d)\n", de.FirstClusterLow)
	fmt.Printf("FileSize: (%d)\n", de.FileSize)

	fmt.Printf("\n")
}

func parseDirectoryEntry(directoryEntryData []byte) (de Fat16DirectoryEntry, err error) {
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

	if len(directoryEntryData) != directoryEntryBytesCount {
		log.Panicf("directory entry must be (%d) bytes: (%d)", directoryEntryBytesCount, len(directoryEntryData))
	}

	err = restruct.Unpack(directoryEntryData, defaultEncoding, &de)
	log.PanicIf(err)

	return de, nil
}
