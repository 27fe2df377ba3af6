package fat16

import (
	"bytes"
	"fmt"
	"io"
	"reflect"

	"encoding/binary"

	"github.com/dsoprea/go-logging"
	"github.com/dustin/go-humanize"
	"github.com/go-restruct/restruct"
)

const (
	bootSectorHeaderSize = 512
)

var (
	defaultEncoding = binary.LittleEndian

	requiredSectorSignature = uint16(0xaa55)
)

// BootSectorHeader is the boot sector of a FAT16 volume: the BPB followed by
// the FAT12/16 extended BPB. It is parsed once when the image is opened and
// never changes afterward.
type BootSectorHeader struct {
	// JumpBoot is the x86 jump over the BPB (EBh xxh 90h or E9h xxh xxh).
	JumpBoot [3]byte

	// OemName is informational only. It is usually "MSWIN4.1" or the name of
	// the formatting tool.
	OemName [8]byte

	// BytesPerSector is one of 512, 1024, 2048 or 4096.
	BytesPerSector uint16

	// SectorsPerCluster is a power of two between 1 and 128.
	SectorsPerCluster uint8

	// ReservedSectorCount is the number of sectors before the first FAT,
	// including the boot sector itself. Typically 1 on FAT16.
	ReservedSectorCount uint16

	// NumberOfFats is the count of FAT copies. Only the first is consulted.
	NumberOfFats uint8

	// RootEntryCount is the number of 32-byte entries in the fixed root
	// directory region.
	RootEntryCount uint16

	// TotalSectors16 is the volume size in sectors, or zero if the size is
	// held in TotalSectors32.
	TotalSectors16 uint16

	// Media is the media descriptor (F8h for fixed disks).
	Media uint8

	// FatSize16 is the size of one FAT in sectors.
	FatSize16 uint16

	SectorsPerTrack uint16
	NumberOfHeads   uint16
	HiddenSectors   uint32

	// TotalSectors32 is the volume size in sectors when TotalSectors16 is
	// zero.
	TotalSectors32 uint32

	// The FAT12/16 extended BPB starts here. FAT32 volumes keep FatSize32 in
	// these same bytes; see FatSize32().

	DriveNumber           uint8
	Reserved1             uint8
	ExtendedBootSignature uint8
	VolumeId              uint32
	VolumeLabel           [11]byte
	FileSystemType        [8]byte

	BootCode [448]byte

	// SectorSignature should be AA55h. It is not enforced since damaged
	// images are exactly what this package is for.
	SectorSignature uint16
}

// FatSize32 returns the four bytes at offset 36 interpreted as the FAT32
// FAT-size field. On FAT16 these bytes belong to the extended BPB and the
// value is informational.
func (bsh BootSectorHeader) FatSize32() uint32 {
	return uint32(bsh.DriveNumber) |
		uint32(bsh.Reserved1)<<8 |
		uint32(bsh.ExtendedBootSignature)<<16 |
		(bsh.VolumeId&0xff)<<24
}

// TotalSectors returns the effective volume size in sectors.
func (bsh BootSectorHeader) TotalSectors() uint32 {
	if bsh.TotalSectors16 != 0 {
		return uint32(bsh.TotalSectors16)
	}

	return bsh.TotalSectors32
}

// HasValidSignature indicates whether the sector ends in AA55h.
func (bsh BootSectorHeader) HasValidSignature() bool {
	return bsh.SectorSignature == requiredSectorSignature
}

// Label returns the volume label with the padding removed.
func (bsh BootSectorHeader) Label() string {
	return ShortNameFromRaw(bsh.VolumeLabel[:])
}

// Dump prints all of the BPB parameters.
func (bsh BootSectorHeader) Dump() {
	fmt.Printf("Boot Sector Header\n")
	fmt.Printf("==================\n")
	fmt.Printf("\n")

	fmt.Printf("JumpBoot: (%x)\n", bsh.JumpBoot[:])
	fmt.Printf("OemName: [%s]\n", ShortNameFromRaw(bsh.OemName[:]))
	fmt.Printf("BytesPerSector: (%d)\n", bsh.BytesPerSector)
	fmt.Printf("SectorsPerCluster: (%d)\n", bsh.SectorsPerCluster)
	fmt.Printf("ReservedSectorCount: (%d)\n", bsh.ReservedSectorCount)
	fmt.Printf("NumberOfFats: (%d)\n", bsh.NumberOfFats)
	fmt.Printf("RootEntryCount: (%d)\n", bsh.RootEntryCount)
	fmt.Printf("TotalSectors16: (%d)\n", bsh.TotalSectors16)
	fmt.Printf("Media: (0x%02x)\n", bsh.Media)
	fmt.Printf("FatSize16: (%d)\n", bsh.FatSize16)
	fmt.Printf("SectorsPerTrack: (%d)\n", bsh.SectorsPerTrack)
	fmt.Printf("NumberOfHeads: (%d)\n", bsh.NumberOfHeads)
	fmt.Printf("HiddenSectors: (%d)\n", bsh.HiddenSectors)
	fmt.Printf("TotalSectors32: (%d)\n", bsh.TotalSectors32)
	fmt.Printf("FatSize32: (%d)\n", bsh.FatSize32())
	fmt.Printf("\n")

	fmt.Printf("DriveNumber: (0x%02x)\n", bsh.DriveNumber)
	fmt.Printf("ExtendedBootSignature: (0x%02x)\n", bsh.ExtendedBootSignature)
	fmt.Printf("VolumeId: (0x%08x)\n", bsh.VolumeId)
	fmt.Printf("VolumeLabel: [%s]\n", bsh.Label())
	fmt.Printf("FileSystemType: [%s]\n", ShortNameFromRaw(bsh.FileSystemType[:]))
	fmt.Printf("SectorSignature: (0x%04x) VALID=[%v]\n", bsh.SectorSignature, bsh.HasValidSignature())

	fmt.Printf("\n")
}

func (bsh BootSectorHeader) String() string {
	return fmt.Sprintf("BootSector<ID=(0x%08x) LABEL=[%s] SECTOR-SIZE=(%d) SECTORS-PER-CLUSTER=(%d)>", bsh.VolumeId, bsh.Label(), bsh.BytesPerSector, bsh.SectorsPerCluster)
}

// VolumeGeometry holds every layout constant derived from the BPB. All values
// are in sectors unless noted. It is computed once per image.
type VolumeGeometry struct {
	BytesPerSector    uint32
	SectorsPerCluster uint32
	NumberOfFats      uint32
	RootEntryCount    uint32
	TotalSectors      uint32
	FatSize           uint32

	RootDirSectors  uint32
	FirstDataSector uint32
	DataSectors     uint32

	// CountOfClusters bounds the cluster-number space: valid data clusters
	// are [2, CountOfClusters).
	CountOfClusters uint32

	FatStart     uint32
	RootDirStart uint32
}

// NewVolumeGeometry derives the layout from the BPB. The arithmetic uses
// truncating integer division throughout.
func NewVolumeGeometry(bsh BootSectorHeader) (vg VolumeGeometry, err error) {
	bytesPerSector := uint32(bsh.BytesPerSector)
	sectorsPerCluster := uint32(bsh.SectorsPerCluster)

	if bytesPerSector == 0 {
		return vg, fmt.Errorf("%w: bytes-per-sector is zero", ErrMalformedBootSector)
	} else if isPowerOfTwo(bytesPerSector) == false || bytesPerSector < 512 || bytesPerSector > 4096 {
		return vg, fmt.Errorf("%w: bytes-per-sector not valid: (%d)", ErrMalformedBootSector, bytesPerSector)
	} else if sectorsPerCluster == 0 {
		return vg, fmt.Errorf("%w: sectors-per-cluster is zero", ErrMalformedBootSector)
	} else if isPowerOfTwo(sectorsPerCluster) == false {
		return vg, fmt.Errorf("%w: sectors-per-cluster not a power of two: (%d)", ErrMalformedBootSector, sectorsPerCluster)
	} else if bsh.NumberOfFats == 0 {
		return vg, fmt.Errorf("%w: FAT count is zero", ErrMalformedBootSector)
	} else if bsh.FatSize16 == 0 {
		return vg, fmt.Errorf("%w: FAT size is zero (not FAT16?)", ErrMalformedBootSector)
	}

	vg = VolumeGeometry{
		BytesPerSector:    bytesPerSector,
		SectorsPerCluster: sectorsPerCluster,
		NumberOfFats:      uint32(bsh.NumberOfFats),
		RootEntryCount:    uint32(bsh.RootEntryCount),
		TotalSectors:      bsh.TotalSectors(),
		FatSize:           uint32(bsh.FatSize16),
	}

	vg.RootDirSectors = (vg.RootEntryCount*directoryEntryBytesCount + bytesPerSector - 1) / bytesPerSector

	reservedSectorCount := uint32(bsh.ReservedSectorCount)
	metadataSectors := reservedSectorCount + vg.NumberOfFats*vg.FatSize + vg.RootDirSectors

	vg.FatStart = reservedSectorCount
	vg.RootDirStart = reservedSectorCount + vg.NumberOfFats*vg.FatSize
	vg.FirstDataSector = metadataSectors

	if vg.TotalSectors <= metadataSectors {
		return VolumeGeometry{}, fmt.Errorf("%w: no data region: total-sectors (%d) <= metadata-sectors (%d)", ErrMalformedBootSector, vg.TotalSectors, metadataSectors)
	}

	vg.DataSectors = vg.TotalSectors - metadataSectors
	vg.CountOfClusters = vg.DataSectors / sectorsPerCluster

	if vg.CountOfClusters == 0 {
		return VolumeGeometry{}, fmt.Errorf("%w: cluster count is zero", ErrMalformedBootSector)
	}

	// Every cluster in the data region must have a FAT entry.
	fatCapacity := vg.FatSize * bytesPerSector / fatEntryBytesCount
	if vg.CountOfClusters > fatCapacity {
		return VolumeGeometry{}, fmt.Errorf("%w: FAT of (%d) sectors holds (%d) entries but the volume has (%d) clusters", ErrMalformedBootSector, vg.FatSize, fatCapacity, vg.CountOfClusters)
	}

	return vg, nil
}

// ClusterSize returns the size of one cluster in bytes.
func (vg VolumeGeometry) ClusterSize() uint32 {
	return vg.BytesPerSector * vg.SectorsPerCluster
}

// IsValidCluster indicates whether the cluster addresses the data region.
func (vg VolumeGeometry) IsValidCluster(clusterNumber uint32) bool {
	return clusterNumber >= 2 && clusterNumber < vg.CountOfClusters
}

// FirstSectorOfCluster returns the absolute sector where the cluster starts.
func (vg VolumeGeometry) FirstSectorOfCluster(clusterNumber uint32) uint32 {
	return vg.FirstDataSector + (clusterNumber-2)*vg.SectorsPerCluster
}

// MinimumImageSize is the number of bytes the image needs just to hold the
// metadata regions.
func (vg VolumeGeometry) MinimumImageSize() int64 {
	return int64(vg.FirstDataSector) * int64(vg.BytesPerSector)
}

// Dump prints the derived layout.
func (vg VolumeGeometry) Dump() {
	fmt.Printf("Volume Geometry\n")
	fmt.Printf("===============\n")
	fmt.Printf("\n")

	fmt.Printf("BytesPerSector: (%d)\n", vg.BytesPerSector)
	fmt.Printf("SectorsPerCluster: (%d)\n", vg.SectorsPerCluster)
	fmt.Printf("-> Cluster-size: (%d)\n", vg.ClusterSize())
	fmt.Printf("TotalSectors: (%d)\n", vg.TotalSectors)
	fmt.Printf("-> Volume-size: [%s]\n", humanize.IBytes(uint64(vg.TotalSectors)*uint64(vg.BytesPerSector)))
	fmt.Printf("FatStart: (%d)\n", vg.FatStart)
	fmt.Printf("FatSize: (%d) x (%d)\n", vg.FatSize, vg.NumberOfFats)
	fmt.Printf("RootDirStart: (%d)\n", vg.RootDirStart)
	fmt.Printf("RootDirSectors: (%d) -> (%d) entries\n", vg.RootDirSectors, vg.RootEntryCount)
	fmt.Printf("FirstDataSector: (%d)\n", vg.FirstDataSector)
	fmt.Printf("DataSectors: (%d)\n", vg.DataSectors)
	fmt.Printf("CountOfClusters: (%d)\n", vg.CountOfClusters)

	fmt.Printf("\n")
}

func (vg VolumeGeometry) String() string {
	return fmt.Sprintf("VolumeGeometry<FAT-START=(%d) ROOT-DIR-START=(%d) FIRST-DATA-SECTOR=(%d) CLUSTERS=(%d) CLUSTER-SIZE=(%d)>", vg.FatStart, vg.RootDirStart, vg.FirstDataSector, vg.CountOfClusters, vg.ClusterSize())
}

func isPowerOfTwo(n uint32) bool {
	return n != 0 && n&(n-1) == 0
}

// NewBootSectorHeaderFromReader reads and decodes the first sector of the
// image. The reader must be positioned at the start of the volume.
func NewBootSectorHeaderFromReader(r io.Reader) (bsh BootSectorHeader, err error) {
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

	raw := make([]byte, bootSectorHeaderSize)

	_, err = io.ReadFull(r, raw)
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		log.Panic(fmt.Errorf("%w: could not read boot sector", ErrImageTooSmall))
	}

	log.PanicIf(err)

	bsh, err = parseBootSectorHeader(raw)
	log.PanicIf(err)

	return bsh, nil
}

func parseBootSectorHeader(raw []byte) (bsh BootSectorHeader, err error) {
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

	if len(raw) < bootSectorHeaderSize {
		log.Panic(fmt.Errorf("%w: boot sector is (%d) bytes", ErrImageTooSmall, len(raw)))
	}

	err = restruct.Unpack(raw[:bootSectorHeaderSize], defaultEncoding, &bsh)
	log.PanicIf(err)

	if bytes.Equal(bsh.JumpBoot[:], []byte{0, 0, 0}) == true {
		bootLogger.Warningf(nil, "Boot sector has an empty jump instruction.")
	}

	return bsh, nil
}
