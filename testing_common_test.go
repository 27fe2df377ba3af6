package fat16

import (
	"bytes"

	"github.com/dsoprea/go-logging"
)

const (
	testBytesPerSector = 512
	testRootEntryCount = 16
)

var (
	// 2021-03-15 13:45:30
	testWriteDate = DosDate(41<<9 | 3<<5 | 15)
	testWriteTime = DosTime(13<<11 | 45<<5 | 15)
)

// testImage is a small FAT16 volume built in memory: one reserved sector, one
// FAT of one sector, a one-sector root directory of 16 entries and a data
// region filling the rest.
type testImage struct {
	raw      []byte
	geometry VolumeGeometry
}

func newTestImage() *testImage {
	return newTestImageWith(1, 64)
}

func newTestImageWith(sectorsPerCluster uint8, totalSectors uint16) *testImage {
	raw := newTestImageBytes(sectorsPerCluster, totalSectors)

	bsh, err := parseBootSectorHeader(raw[:bootSectorHeaderSize])
	log.PanicIf(err)

	geometry, err := NewVolumeGeometry(bsh)
	log.PanicIf(err)

	ti := &testImage{
		raw:      raw,
		geometry: geometry,
	}

	ti.setFatEntry(0, 0xfff8)
	ti.setFatEntry(1, EndOfChainMarker)

	return ti
}

// newTestImageBytes returns the raw image with only the boot sector filled
// in. The geometry is not validated.
func newTestImageBytes(sectorsPerCluster uint8, totalSectors uint16) []byte {
	raw := make([]byte, int(totalSectors)*testBytesPerSector)

	copy(raw[0:3], []byte{0xeb, 0x3c, 0x90})
	copy(raw[3:11], []byte("MSWIN4.1"))
	defaultEncoding.PutUint16(raw[11:13], testBytesPerSector)
	raw[13] = sectorsPerCluster
	defaultEncoding.PutUint16(raw[14:16], 1)
	raw[16] = 1
	defaultEncoding.PutUint16(raw[17:19], testRootEntryCount)
	defaultEncoding.PutUint16(raw[19:21], totalSectors)
	raw[21] = 0xf8
	defaultEncoding.PutUint16(raw[22:24], 1)
	raw[38] = 0x29
	defaultEncoding.PutUint32(raw[39:43], 0x1234abcd)
	copy(raw[43:54], []byte("TESTVOLUME "))
	copy(raw[54:62], []byte("FAT16   "))
	raw[510] = 0x55
	raw[511] = 0xaa

	return raw
}

func (ti *testImage) fat() []byte {
	start := ti.geometry.FatStart * testBytesPerSector
	end := start + ti.geometry.FatSize*testBytesPerSector

	return ti.raw[start:end]
}

func (ti *testImage) setFatEntry(clusterNumber uint32, value MappedCluster) {
	EncodeFatEntry(ti.fat(), clusterNumber, value)
}

// setChain links the given clusters in order and terminates the last one.
func (ti *testImage) setChain(clusterNumbers ...uint32) {
	for i, clusterNumber := range clusterNumbers {
		if i == len(clusterNumbers)-1 {
			ti.setFatEntry(clusterNumber, EndOfChainMarker)
		} else {
			ti.setFatEntry(clusterNumber, MappedCluster(clusterNumbers[i+1]))
		}
	}
}

func (ti *testImage) clusterOffset(clusterNumber uint32) int {
	return int(ti.geometry.FirstSectorOfCluster(clusterNumber)) * testBytesPerSector
}

func (ti *testImage) writeCluster(clusterNumber uint32, data []byte) {
	clusterSize := int(ti.geometry.ClusterSize())
	if len(data) > clusterSize {
		log.Panicf("data does not fit in one cluster: (%d)", len(data))
	}

	offset := ti.clusterOffset(clusterNumber)
	copy(ti.raw[offset:offset+clusterSize], data)
}

// fillCluster fills the whole cluster with the low byte of its number.
func (ti *testImage) fillCluster(clusterNumber uint32) {
	ti.writeCluster(clusterNumber, bytes.Repeat([]byte{byte(clusterNumber)}, int(ti.geometry.ClusterSize())))
}

func (ti *testImage) setRootEntry(entryIndex int, entry []byte) {
	offset := int(ti.geometry.RootDirStart)*testBytesPerSector + entryIndex*directoryEntryBytesCount
	copy(ti.raw[offset:offset+directoryEntryBytesCount], entry)
}

func (ti *testImage) setDirectoryEntry(directoryCluster uint32, entryIndex int, entry []byte) {
	offset := ti.clusterOffset(directoryCluster) + entryIndex*directoryEntryBytesCount
	copy(ti.raw[offset:offset+directoryEntryBytesCount], entry)
}

// addFile writes the content into consecutive clusters starting at the given
// one, chains them, and returns the entry to register in some directory.
func (ti *testImage) addFile(name, extension string, firstCluster uint32, content []byte) []byte {
	clusterSize := int(ti.geometry.ClusterSize())

	clusterNumbers := make([]uint32, 0)
	for i := 0; i == 0 || i*clusterSize < len(content); i++ {
		clusterNumber := firstCluster + uint32(i)

		end := (i + 1) * clusterSize
		if end > len(content) {
			end = len(content)
		}

		ti.writeCluster(clusterNumber, content[i*clusterSize:end])
		clusterNumbers = append(clusterNumbers, clusterNumber)
	}

	ti.setChain(clusterNumbers...)

	return makeDirectoryEntry(name, extension, AttributeArchive, uint16(firstCluster), uint32(len(content)))
}

// addSubdirectory allocates a one-cluster directory holding "." and "..".
// The caller adds the remaining entries starting at index 2.
func (ti *testImage) addSubdirectory(name string, clusterNumber, parentClusterNumber uint32) []byte {
	ti.setChain(clusterNumber)

	ti.setDirectoryEntry(clusterNumber, 0, makeDirectoryEntry(".", "", AttributeDirectory, uint16(clusterNumber), 0))
	ti.setDirectoryEntry(clusterNumber, 1, makeDirectoryEntry("..", "", AttributeDirectory, uint16(parentClusterNumber), 0))

	return makeDirectoryEntry(name, "", AttributeDirectory, uint16(clusterNumber), 0)
}

func (ti *testImage) reader() *bytes.Reader {
	return bytes.NewReader(ti.raw)
}

func (ti *testImage) parsedReader() *Fat16Reader {
	fr := NewFat16Reader(ti.reader())

	err := fr.Parse()
	log.PanicIf(err)

	return fr
}

func makeDirectoryEntry(name, extension string, attributes FileAttributes, firstCluster uint16, fileSize uint32) []byte {
	entry := make([]byte, directoryEntryBytesCount)

	copy(entry[0:8], []byte(name+"        ")[:8])
	copy(entry[8:11], []byte(extension+"   ")[:3])
	entry[11] = byte(attributes)

	defaultEncoding.PutUint16(entry[22:24], uint16(testWriteTime))
	defaultEncoding.PutUint16(entry[24:26], uint16(testWriteDate))
	defaultEncoding.PutUint16(entry[26:28], firstCluster)
	defaultEncoding.PutUint32(entry[28:32], fileSize)

	return entry
}

func makeDeletedEntry(name, extension string, firstCluster uint16, fileSize uint32) []byte {
	entry := makeDirectoryEntry(name, extension, AttributeArchive, firstCluster, fileSize)
	entry[0] = entryMarkerDeleted

	return entry
}
