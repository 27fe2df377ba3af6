package fat16

import (
	"bytes"
	"errors"
	"testing"

	"github.com/dsoprea/go-logging"
	"github.com/google/go-cmp/cmp"
)

func TestFat16Reader_WalkChain(t *testing.T) {
	defer func() {
		if errRaw := recover(); errRaw != nil {
			err := errRaw.(error)

			log.PrintError(err)
			t.Fatalf("Test failed.")
		}
	}()

	ti := newTestImage()
	ti.setChain(5, 9, 7)
	ti.fillCluster(5)
	ti.fillCluster(9)
	ti.fillCluster(7)

	fr := ti.parsedReader()

	data, visitedClusters, err := fr.WalkChain(5, NoSizeLimit, nil)
	log.PanicIf(err)

	if diff := cmp.Diff([]uint32{5, 9, 7}, visitedClusters); diff != "" {
		t.Fatalf("Clusters not correct (-want +got):\n%s", diff)
	}

	expected := make([]byte, 0)
	expected = append(expected, bytes.Repeat([]byte{5}, 512)...)
	expected = append(expected, bytes.Repeat([]byte{9}, 512)...)
	expected = append(expected, bytes.Repeat([]byte{7}, 512)...)

	if bytes.Equal(data, expected) != true {
		t.Fatalf("Chain data not correct.")
	}
}

func TestFat16Reader_WalkChain_LargerClusters(t *testing.T) {
	ti := newTestImageWith(2, 64)
	ti.setChain(2, 3)

	fr := ti.parsedReader()

	data, visitedClusters, err := fr.WalkChain(2, NoSizeLimit, nil)
	log.PanicIf(err)

	if len(data) != 2*2*512 {
		t.Fatalf("Chain length not correct: (%d)", len(data))
	} else if len(visitedClusters) != 2 {
		t.Fatalf("Cluster count not correct: (%d)", len(visitedClusters))
	}
}

func TestFat16Reader_WalkChain_Cycle(t *testing.T) {
	ti := newTestImage()
	ti.setFatEntry(5, 6)
	ti.setFatEntry(6, 5)

	fr := ti.parsedReader()

	data, visitedClusters, err := fr.WalkChain(5, NoSizeLimit, nil)
	if errors.Is(err, ErrCorruptChain) == false {
		t.Fatalf("Error not correct: [%v]", err)
	} else if diff := cmp.Diff([]uint32{5, 6}, visitedClusters); diff != "" {
		t.Fatalf("Clusters not correct (-want +got):\n%s", diff)
	} else if len(data) != 1024 {
		t.Fatalf("Partial data not returned: (%d)", len(data))
	}
}

func TestFat16Reader_WalkChain_SelfLink(t *testing.T) {
	ti := newTestImage()
	ti.setFatEntry(5, 5)

	fr := ti.parsedReader()

	_, visitedClusters, err := fr.WalkChain(5, NoSizeLimit, nil)
	if errors.Is(err, ErrCorruptChain) == false {
		t.Fatalf("Error not correct: [%v]", err)
	} else if len(visitedClusters) != 1 {
		t.Fatalf("Clusters not correct: %v", visitedClusters)
	}
}

func TestFat16Reader_WalkChain_MaxBytes(t *testing.T) {
	ti := newTestImage()
	ti.setChain(5, 6, 7)
	ti.fillCluster(5)
	ti.fillCluster(6)
	ti.fillCluster(7)

	fr := ti.parsedReader()

	full, _, err := fr.WalkChain(5, NoSizeLimit, nil)
	log.PanicIf(err)

	for _, maxBytes := range []int64{0, 1, 511, 512, 700, 1536} {
		data, visitedClusters, err := fr.WalkChain(5, maxBytes, nil)
		log.PanicIf(err)

		if bytes.Equal(data, full[:maxBytes]) != true {
			t.Fatalf("Data for limit (%d) not a prefix of the chain.", maxBytes)
		}

		// The tail of the chain is slack but still belongs to the file.
		if len(visitedClusters) != 3 {
			t.Fatalf("Clusters for limit (%d) not correct: %v", maxBytes, visitedClusters)
		}
	}
}

func TestFat16Reader_WalkChain_Truncated(t *testing.T) {
	ti := newTestImage()
	ti.setChain(5)
	ti.fillCluster(5)

	fr := ti.parsedReader()

	data, visitedClusters, err := fr.WalkChain(5, 1000, nil)
	if errors.Is(err, ErrTruncatedFile) == false {
		t.Fatalf("Error not correct: [%v]", err)
	} else if len(data) != 512 {
		t.Fatalf("Available data not returned: (%d)", len(data))
	} else if len(visitedClusters) != 1 {
		t.Fatalf("Clusters not correct: %v", visitedClusters)
	}
}

func TestFat16Reader_WalkChain_BrokenLinks(t *testing.T) {
	testCases := []struct {
		name  string
		value MappedCluster
	}{
		{"free", 0x0000},
		{"reserved", 0x0001},
		{"reserved range", 0xfff3},
		{"bad", BadClusterMarker},
		{"out of range", 100},
	}

	for _, tc := range testCases {
		ti := newTestImage()
		ti.setFatEntry(5, tc.value)

		fr := ti.parsedReader()

		_, visitedClusters, err := fr.WalkChain(5, NoSizeLimit, nil)
		if errors.Is(err, ErrCorruptChain) == false {
			t.Fatalf("Error not correct for [%s] link: [%v]", tc.name, err)
		} else if len(visitedClusters) != 1 || visitedClusters[0] != 5 {
			t.Fatalf("Clusters not correct for [%s] link: %v", tc.name, visitedClusters)
		}
	}
}

func TestFat16Reader_WalkChain_InvalidStart(t *testing.T) {
	ti := newTestImage()
	fr := ti.parsedReader()

	for _, clusterNumber := range []uint32{0, 1, 61} {
		_, visitedClusters, err := fr.WalkChain(clusterNumber, NoSizeLimit, nil)
		if errors.Is(err, ErrCorruptChain) == false {
			t.Fatalf("Error not correct for start (%d): [%v]", clusterNumber, err)
		} else if len(visitedClusters) != 0 {
			t.Fatalf("No cluster should be visited: %v", visitedClusters)
		}
	}
}

func TestFat16Reader_WalkChain_CrossLink(t *testing.T) {
	ti := newTestImage()
	ti.setChain(5, 6, 7)

	fr := ti.parsedReader()

	owned := NewSeenClusters()
	owned.Add(7)

	_, visitedClusters, err := fr.WalkChain(5, NoSizeLimit, owned)
	if errors.Is(err, ErrCorruptChain) == false {
		t.Fatalf("Error not correct: [%v]", err)
	} else if diff := cmp.Diff([]uint32{5, 6}, visitedClusters); diff != "" {
		t.Fatalf("Clusters not correct (-want +got):\n%s", diff)
	}

	owned = NewSeenClusters()
	owned.Add(5)

	_, _, err = fr.WalkChain(5, NoSizeLimit, owned)
	if errors.Is(err, ErrCorruptChain) == false {
		t.Fatalf("Error not correct for owned start: [%v]", err)
	}
}

func TestFat16Reader_EnumerateClusters_Stop(t *testing.T) {
	ti := newTestImage()
	ti.setChain(5, 6, 7)

	fr := ti.parsedReader()

	visited := make([]uint32, 0)

	cb := func(fc *Fat16Cluster) (bool, error) {
		visited = append(visited, fc.ClusterNumber())
		return len(visited) < 2, nil
	}

	err := fr.EnumerateClusters(5, cb, nil)
	log.PanicIf(err)

	if diff := cmp.Diff([]uint32{5, 6}, visited); diff != "" {
		t.Fatalf("Clusters not correct (-want +got):\n%s", diff)
	}
}

func TestFat16Reader_WriteFromClusterChain(t *testing.T) {
	ti := newTestImage()
	ti.setChain(5, 6)
	ti.fillCluster(5)
	ti.fillCluster(6)

	fr := ti.parsedReader()

	b := new(bytes.Buffer)

	visitedClusters, written, err := fr.WriteFromClusterChain(5, 600, nil, b)
	log.PanicIf(err)

	if written != 600 || b.Len() != 600 {
		t.Fatalf("Written count not correct: (%d) (%d)", written, b.Len())
	} else if len(visitedClusters) != 2 {
		t.Fatalf("Clusters not correct: %v", visitedClusters)
	} else if b.Bytes()[511] != 5 || b.Bytes()[512] != 6 {
		t.Fatalf("Data not correct at cluster boundary.")
	}
}
