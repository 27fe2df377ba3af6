package fat16

import (
	"encoding/hex"

	"github.com/zeebo/blake3"
	"gopkg.in/yaml.v3"
)

const (
	manifestFilename = "manifest.yaml"
)

// ManifestItem describes one output file and where its content came from.
type ManifestItem struct {
	// OutputPath is relative to the output root.
	OutputPath string `yaml:"output_path"`

	// SourcePath is the path on the volume. Orphans have none.
	SourcePath string `yaml:"source_path,omitempty"`

	StartingCluster uint32   `yaml:"starting_cluster"`
	Clusters        []uint32 `yaml:"clusters,flow"`
	Size            int      `yaml:"size"`
	DeclaredSize    uint32   `yaml:"declared_size,omitempty"`
	Truncated       bool     `yaml:"truncated,omitempty"`

	// Blake3 is the hex digest of the content written.
	Blake3 string `yaml:"blake3"`
}

// ManifestFailure is the serialized form of a RecoveryFailure.
type ManifestFailure struct {
	Path     string   `yaml:"path,omitempty"`
	Cluster  uint32   `yaml:"cluster"`
	Clusters []uint32 `yaml:"clusters,flow"`
	Kind     string   `yaml:"kind"`
	Error    string   `yaml:"error"`
}

// Manifest is written next to the recovered content so that the output can
// be checked later without the image.
type Manifest struct {
	ClusterSize     uint32 `yaml:"cluster_size"`
	CountOfClusters uint32 `yaml:"cluster_count"`

	Files    []ManifestItem    `yaml:"files"`
	Orphans  []ManifestItem    `yaml:"orphans"`
	Failures []ManifestFailure `yaml:"failures"`
}

// NewManifest starts a manifest for the given report. Items are added as
// their files are written.
func NewManifest(report *RecoveryReport) *Manifest {
	m := &Manifest{
		ClusterSize:     report.Geometry.ClusterSize(),
		CountOfClusters: report.Geometry.CountOfClusters,
		Files:           make([]ManifestItem, 0),
		Orphans:         make([]ManifestItem, 0),
		Failures:        make([]ManifestFailure, 0),
	}

	for _, failure := range report.Failures {
		kind := ""
		if err := failure.Kind(); err != nil {
			kind = err.Error()
		}

		mf := ManifestFailure{
			Path:     failure.Path,
			Cluster:  failure.Cluster,
			Clusters: failure.Clusters,
			Kind:     kind,
			Error:    failure.Err.Error(),
		}

		m.Failures = append(m.Failures, mf)
	}

	return m
}

// Encode returns the YAML form of the manifest.
func (m *Manifest) Encode() ([]byte, error) {
	return yaml.Marshal(m)
}

// ParseManifest decodes a manifest previously written by Encode.
func ParseManifest(raw []byte) (m Manifest, err error) {
	err = yaml.Unmarshal(raw, &m)
	if err != nil {
		return Manifest{}, err
	}

	return m, nil
}

// ContentHash returns the hex BLAKE3-256 digest of the data.
func ContentHash(data []byte) string {
	h := blake3.New()

	// Never fails.
	h.Write(data)

	return hex.EncodeToString(h.Sum(nil))
}
