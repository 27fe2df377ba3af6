// This package manages the low-level, on-disk storage structures of a FAT16
// volume image. The image is only ever read.

package fat16

import (
	"fmt"
	"io"
	"reflect"

	"github.com/dsoprea/go-logging"
)

var (
	bootLogger      = log.NewLogger("fat16.bootsector")
	structureLogger = log.NewLogger("fat16.structures")
)

// Fat16Reader knows where to find all of the statically-located structures,
// how to parse them, and how to find clusters and chains of clusters. All
// reads are a seek followed by a full, fixed-size read, so one instance must
// not be shared between goroutines.
type Fat16Reader struct {
	rs io.ReadSeeker

	bsh      BootSectorHeader
	geometry VolumeGeometry
	isParsed bool

	fatCache fatSectorCache
}

// NewFat16Reader returns a new instance of Fat16Reader.
func NewFat16Reader(rs io.ReadSeeker) *Fat16Reader {
	return &Fat16Reader{
		rs: rs,
	}
}

// Parse loads the boot sector and derives the geometry. This is always a
// small read (does not scale with size). Any failure here is fatal for the
// image.
func (fr *Fat16Reader) Parse() (err error) {
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

	_, err = fr.rs.Seek(0, io.SeekStart)
	log.PanicIf(err)

	bsh, err := NewBootSectorHeaderFromReader(fr.rs)
	log.PanicIf(err)

	geometry, err := NewVolumeGeometry(bsh)
	log.PanicIf(err)

	imageSize, err := fr.rs.Seek(0, io.SeekEnd)
	log.PanicIf(err)

	if imageSize < geometry.MinimumImageSize() {
		log.Panic(fmt.Errorf("%w: image is (%d) bytes but metadata needs (%d)", ErrImageTooSmall, imageSize, geometry.MinimumImageSize()))
	}

	dataEnd := int64(geometry.FirstDataSector+geometry.DataSectors) * int64(geometry.BytesPerSector)
	if imageSize < dataEnd {
		structureLogger.Warningf(nil, "Image is shorter than the declared volume: (%d) < (%d)", imageSize, dataEnd)
	}

	fr.bsh = bsh
	fr.geometry = geometry
	fr.fatCache = fatSectorCache{}
	fr.isParsed = true

	structureLogger.Debugf(nil, "Parsed: %s %s", bsh, geometry)

	return nil
}

func (fr *Fat16Reader) assertParsed() {
	if fr.isParsed == false {
		log.Panicf("boot-sector not loaded yet")
	}
}

// BootSector returns the parsed boot-sector.
func (fr *Fat16Reader) BootSector() BootSectorHeader {
	return fr.bsh
}

// Geometry returns the layout derived from the boot-sector.
func (fr *Fat16Reader) Geometry() VolumeGeometry {
	return fr.geometry
}

// SectorSize is the sector-size from the BPB.
func (fr *Fat16Reader) SectorSize() uint32 {
	return fr.geometry.BytesPerSector
}

// SectorsPerCluster is the sectors-per-cluster from the BPB.
func (fr *Fat16Reader) SectorsPerCluster() uint32 {
	return fr.geometry.SectorsPerCluster
}

// ReadSectors reads `count` consecutive sectors starting at the given
// absolute sector. A short read is reported as ErrImageTooSmall.
func (fr *Fat16Reader) ReadSectors(sectorNumber, count uint32) (data []byte, err error) {
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

	sectorSize := int64(fr.geometry.BytesPerSector)
	offset := int64(sectorNumber) * sectorSize

	_, err = fr.rs.Seek(offset, io.SeekStart)
	log.PanicIf(err)

	data = make([]byte, int64(count)*sectorSize)

	_, err = io.ReadFull(fr.rs, data)
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		log.Panic(fmt.Errorf("%w: sectors (%d)-(%d) extend past the end of the image", ErrImageTooSmall, sectorNumber, sectorNumber+count-1))
	}

	log.PanicIf(err)

	return data, nil
}

// ReadSector reads exactly one sector.
func (fr *Fat16Reader) ReadSector(sectorNumber uint32) (data []byte, err error) {
	return fr.ReadSectors(sectorNumber, 1)
}

// ReadRootDirectory returns the raw fixed-size root directory region.
func (fr *Fat16Reader) ReadRootDirectory() (data []byte, err error) {
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

	if fr.geometry.RootDirSectors == 0 {
		return []byte{}, nil
	}

	data, err = fr.ReadSectors(fr.geometry.RootDirStart, fr.geometry.RootDirSectors)
	log.PanicIf(err)

	return data, nil
}

// GetCluster gets a Cluster instance for the given cluster.
func (fr *Fat16Reader) GetCluster(clusterNumber uint32) (fc *Fat16Cluster, err error) {
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
		log.Panic(fmt.Errorf("%w: cluster (%d) outside of [2, %d)", ErrCorruptChain, clusterNumber, fr.geometry.CountOfClusters))
	}

	fc = &Fat16Cluster{
		fr:            fr,
		clusterNumber: clusterNumber,
		firstSector:   fr.geometry.FirstSectorOfCluster(clusterNumber),
	}

	return fc, nil
}

// Fat16Cluster manages reads on the sectors in a cluster and checks that the
// requested sectors are within bounds.
type Fat16Cluster struct {
	fr *Fat16Reader

	clusterNumber uint32
	firstSector   uint32
}

// ClusterNumber gets the number of the cluster that this instance represents.
func (fc *Fat16Cluster) ClusterNumber() uint32 {
	return fc.clusterNumber
}

// FirstSector is the absolute sector that the cluster starts at.
func (fc *Fat16Cluster) FirstSector() uint32 {
	return fc.firstSector
}

// GetSectorByIndex gets the data for the given sector within the cluster that
// this instance represents.
func (fc *Fat16Cluster) GetSectorByIndex(sectorIndex uint32) (data []byte, err error) {
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

	sectorsPerCluster := fc.fr.SectorsPerCluster()
	if sectorIndex >= sectorsPerCluster {
		log.Panicf("sector-index exceeds the number of sectors per cluster: (%d) >= (%d)", sectorIndex, sectorsPerCluster)
	}

	data, err = fc.fr.ReadSector(fc.firstSector + sectorIndex)
	log.PanicIf(err)

	return data, nil
}

// Data reads every sector of the cluster in one go.
func (fc *Fat16Cluster) Data() (data []byte, err error) {
	return fc.fr.ReadSectors(fc.firstSector, fc.fr.SectorsPerCluster())
}

// SectorVisitorFunc is a visitor callback that is called for each sector in a
// cluster.
type SectorVisitorFunc func(sectorNumber uint32, data []byte) (bool, error)

// EnumerateSectors calls the given callback for each sector in the cluster that
// this instance represents.
func (fc *Fat16Cluster) EnumerateSectors(cb SectorVisitorFunc) (err error) {
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

	for i := uint32(0); i < fc.fr.SectorsPerCluster(); i++ {
		sectorData, err := fc.GetSectorByIndex(i)
		log.PanicIf(err)

		doContinue, err := cb(fc.firstSector+i, sectorData)
		log.PanicIf(err)

		if doContinue == false {
			break
		}
	}

	return nil
}

func (fc *Fat16Cluster) String() string {
	return fmt.Sprintf("Cluster<NUMBER=(%d) FIRST-SECTOR=(%d)>", fc.clusterNumber, fc.firstSector)
}
