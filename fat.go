package fat16

import (
	"fmt"
	"reflect"

	"github.com/dsoprea/go-logging"
)

const (
	fatEntryBytesCount = 2
)

// FatEntryType is the closed set of meanings a 16-bit FAT entry can have.
type FatEntryType int

const (
	// FatEntryFree (0000h) is an unallocated cluster.
	FatEntryFree FatEntryType = iota

	// FatEntryReserved (0001h) never appears in a valid chain.
	FatEntryReserved

	// FatEntryAllocated (0002h-FFEFh) links to the next cluster of a chain.
	FatEntryAllocated

	// FatEntryReservedRange (FFF0h-FFF6h) is reserved and should not be used.
	FatEntryReservedRange

	// FatEntryBad (FFF7h) marks a cluster with bad sectors.
	FatEntryBad

	// FatEntryEndOfChain (FFF8h-FFFFh) marks the last cluster of a chain.
	FatEntryEndOfChain
)

var (
	fatEntryTypeNames = map[FatEntryType]string{
		FatEntryFree:          "Free",
		FatEntryReserved:      "Reserved",
		FatEntryAllocated:     "Allocated",
		FatEntryReservedRange: "ReservedRange",
		FatEntryBad:           "Bad",
		FatEntryEndOfChain:    "EndOfChain",
	}
)

func (fet FatEntryType) String() string {
	name, found := fatEntryTypeNames[fet]
	if found == false {
		return fmt.Sprintf("FatEntryType(%d)", int(fet))
	}

	return name
}

// MappedCluster is the raw value of one FAT entry.
type MappedCluster uint16

const (
	// EndOfChainMarker is the canonical value written for the last cluster.
	EndOfChainMarker MappedCluster = 0xffff

	// BadClusterMarker marks a cluster as having bad sectors.
	BadClusterMarker MappedCluster = 0xfff7
)

// Classify maps the raw value onto exactly one FatEntryType.
func (mc MappedCluster) Classify() FatEntryType {
	switch {
	case mc == 0x0000:
		return FatEntryFree
	case mc == 0x0001:
		return FatEntryReserved
	case mc <= 0xffef:
		return FatEntryAllocated
	case mc <= 0xfff6:
		return FatEntryReservedRange
	case mc == 0xfff7:
		return FatEntryBad
	default:
		return FatEntryEndOfChain
	}
}

// IsInUse indicates that the cluster belongs to some chain, whether in the
// middle of it or at its end.
func (mc MappedCluster) IsInUse() bool {
	t := mc.Classify()
	return t == FatEntryAllocated || t == FatEntryEndOfChain
}

// IsLast indicates that no more clusters follow the cluster that led to this
// entry.
func (mc MappedCluster) IsLast() bool {
	return mc.Classify() == FatEntryEndOfChain
}

// IsBad indicates that this cluster has been marked as having one or more bad
// sectors.
func (mc MappedCluster) IsBad() bool {
	return mc.Classify() == FatEntryBad
}

// NextCluster returns the linked cluster if the entry is allocated.
func (mc MappedCluster) NextCluster() (clusterNumber uint32, ok bool) {
	if mc.Classify() != FatEntryAllocated {
		return 0, false
	}

	return uint32(mc), true
}

// FatEntry is one decoded entry of the FAT.
type FatEntry struct {
	// Cluster is the cluster that this entry describes.
	Cluster uint32

	Raw  MappedCluster
	Type FatEntryType
}

// Next returns the next cluster in the chain. Only meaningful for
// FatEntryAllocated.
func (fe FatEntry) Next() uint32 {
	return uint32(fe.Raw)
}

func (fe FatEntry) String() string {
	return fmt.Sprintf("FatEntry<CLUSTER=(%d) RAW=(0x%04x) TYPE=[%s]>", fe.Cluster, uint16(fe.Raw), fe.Type)
}

// fatSectorCache keeps the most recently read FAT sector. Chains are usually
// allocated contiguously, so consecutive lookups tend to hit the same sector.
type fatSectorCache struct {
	isLoaded     bool
	sectorNumber uint32
	data         []byte
}

// ReadFatEntry decodes the FAT entry for the given cluster from the first
// FAT.
func (fr *Fat16Reader) ReadFatEntry(clusterNumber uint32) (fe FatEntry, err error) {
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

	if fr.geometry.IsValidCluster(clusterNumber) == false {
		log.Panic(fmt.Errorf("%w: no FAT entry for cluster (%d) outside of [2, %d)", ErrCorruptChain, clusterNumber, fr.geometry.CountOfClusters))
	}

	entriesPerSector := fr.geometry.BytesPerSector / fatEntryBytesCount

	// The geometry guarantees that the FAT covers every valid cluster.
	sectorNumber := fr.geometry.FatStart + clusterNumber/entriesPerSector

	if fr.fatCache.isLoaded == false || fr.fatCache.sectorNumber != sectorNumber {
		data, err := fr.ReadSector(sectorNumber)
		log.PanicIf(err)

		fr.fatCache = fatSectorCache{
			isLoaded:     true,
			sectorNumber: sectorNumber,
			data:         data,
		}
	}

	offset := (clusterNumber % entriesPerSector) * fatEntryBytesCount
	raw := MappedCluster(defaultEncoding.Uint16(fr.fatCache.data[offset : offset+fatEntryBytesCount]))

	fe = FatEntry{
		Cluster: clusterNumber,
		Raw:     raw,
		Type:    raw.Classify(),
	}

	return fe, nil
}

// EncodeFatEntry stores the value for the given cluster into a raw FAT
// buffer. The buffer is never the image itself; this exists to construct FAT
// regions (e.g. for synthetic images).
func EncodeFatEntry(fat []byte, clusterNumber uint32, value MappedCluster) {
	offset := clusterNumber * fatEntryBytesCount
	if uint64(offset)+fatEntryBytesCount > uint64(len(fat)) {
		log.Panicf("cluster (%d) does not fit in a FAT of (%d) bytes", clusterNumber, len(fat))
	}

	defaultEncoding.PutUint16(fat[offset:offset+fatEntryBytesCount], uint16(value))
}

// FatUsage tallies the entries of the FAT over the data clusters.
type FatUsage struct {
	Free          int
	Allocated     int
	EndOfChain    int
	Bad           int
	ReservedRange int
	Reserved      int
}

// InUse is the count of clusters that belong to some chain.
func (fu FatUsage) InUse() int {
	return fu.Allocated + fu.EndOfChain
}

// Dump prints the tallies.
func (fu FatUsage) Dump() {
	fmt.Printf("FAT Usage\n")
	fmt.Printf("=========\n")
	fmt.Printf("\n")

	fmt.Printf("Free: (%d)\n", fu.Free)
	fmt.Printf("Allocated: (%d)\n", fu.Allocated)
	fmt.Printf("EndOfChain: (%d)\n", fu.EndOfChain)
	fmt.Printf("Bad: (%d)\n", fu.Bad)
	fmt.Printf("ReservedRange: (%d)\n", fu.ReservedRange)
	fmt.Printf("Reserved: (%d)\n", fu.Reserved)

	fmt.Printf("\n")
}

// FatUsage classifies every FAT entry in [2, CountOfClusters).
func (fr *Fat16Reader) FatUsage() (usage FatUsage, err error) {
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

	for clusterNumber := uint32(2); clusterNumber < fr.geometry.CountOfClusters; clusterNumber++ {
		fe, err := fr.ReadFatEntry(clusterNumber)
		log.PanicIf(err)

		switch fe.Type {
		case FatEntryFree:
			usage.Free++
		case FatEntryReserved:
			usage.Reserved++
		case FatEntryAllocated:
			usage.Allocated++
		case FatEntryReservedRange:
			usage.ReservedRange++
		case FatEntryBad:
			usage.Bad++
		case FatEntryEndOfChain:
			usage.EndOfChain++
		}
	}

	return usage, nil
}
