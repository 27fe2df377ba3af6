package fat16

import (
	"fmt"
	"os"
	"path"
	"reflect"
	"strings"

	"github.com/dsoprea/go-logging"
	"github.com/spf13/afero"
)

const (
	goodFilesDirectoryName = "Good_Files"
	unlinkedDirectoryName  = "unlinked"
	listingFilename        = "listing.txt"
)

var (
	writerLogger = log.NewLogger("fat16.writer")
)

// ReportWriter stores a RecoveryReport onto a filesystem:
//
//	<root>/Good_Files/listing.txt
//	<root>/Good_Files/<NAME.EXT>
//	<root>/unlinked/unlinked_file_<cluster>.bin
//	<root>/manifest.yaml
//
// Recovered files with the same name (from different directories) are
// disambiguated with their starting cluster: NAME_<cluster>.EXT.
//
// Write never mixes its output with that of an earlier run. If any of the
// paths above already exist it fails before writing anything; call Clear
// first to replace them.
type ReportWriter struct {
	fs       afero.Fs
	rootPath string
}

// NewReportWriter returns a new ReportWriter.
func NewReportWriter(fs afero.Fs, rootPath string) *ReportWriter {
	return &ReportWriter{
		fs:       fs,
		rootPath: rootPath,
	}
}

// GoodFilesPath is the directory that recovered files are written to.
func (rw *ReportWriter) GoodFilesPath() string {
	return path.Join(rw.rootPath, goodFilesDirectoryName)
}

// UnlinkedPath is the directory that orphan blobs are written to.
func (rw *ReportWriter) UnlinkedPath() string {
	return path.Join(rw.rootPath, unlinkedDirectoryName)
}

// ManifestPath is where the manifest is written.
func (rw *ReportWriter) ManifestPath() string {
	return path.Join(rw.rootPath, manifestFilename)
}

// ExistingOutput returns the output paths left behind by an earlier run.
func (rw *ReportWriter) ExistingOutput() (existing []string, err error) {
	existing = make([]string, 0)

	for _, outputPath := range []string{rw.GoodFilesPath(), rw.UnlinkedPath(), rw.ManifestPath()} {
		exists, err := afero.Exists(rw.fs, outputPath)
		if err != nil {
			return nil, err
		} else if exists == true {
			existing = append(existing, outputPath)
		}
	}

	return existing, nil
}

// Clear removes everything that a previous Write produced. Nothing else under
// the root is touched.
func (rw *ReportWriter) Clear() (err error) {
	existing, err := rw.ExistingOutput()
	if err != nil {
		return err
	}

	for _, outputPath := range existing {
		writerLogger.Infof(nil, "Removing previous output: [%s]", outputPath)

		err := rw.fs.RemoveAll(outputPath)
		if err != nil {
			return err
		}
	}

	return nil
}

// OrphanFilename returns the name that the orphan with the given head cluster
// is stored under.
func OrphanFilename(headCluster uint32) string {
	return fmt.Sprintf("unlinked_file_%d.bin", headCluster)
}

// Write stores the whole report and returns the paths written, in order.
func (rw *ReportWriter) Write(report *RecoveryReport) (written []string, err error) {
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

	existing, err := rw.ExistingOutput()
	log.PanicIf(err)

	if len(existing) > 0 {
		log.Panic(fmt.Errorf("output from an earlier run is in the way: %v: %w", existing, os.ErrExist))
	}

	goodFilesPath := rw.GoodFilesPath()

	// Assign every name up front so that a collision fails the write before
	// anything is stored.
	filepaths, err := assignFilepaths(goodFilesPath, report.Files)
	log.PanicIf(err)

	written = make([]string, 0)

	err = rw.fs.MkdirAll(goodFilesPath, 0755)
	log.PanicIf(err)

	listingFilepath := path.Join(goodFilesPath, listingFilename)

	err = afero.WriteFile(rw.fs, listingFilepath, []byte(report.Listing()), 0644)
	log.PanicIf(err)

	written = append(written, listingFilepath)

	m := NewManifest(report)

	for i, rf := range report.Files {
		filepath := filepaths[i]

		err = afero.WriteFile(rw.fs, filepath, rf.Data, 0644)
		log.PanicIf(err)

		written = append(written, filepath)

		mi := ManifestItem{
			OutputPath:      path.Join(goodFilesDirectoryName, path.Base(filepath)),
			SourcePath:      rf.Path,
			StartingCluster: rf.StartingCluster,
			Clusters:        rf.Clusters,
			Size:            len(rf.Data),
			DeclaredSize:    rf.DeclaredSize,
			Truncated:       rf.Truncated,
			Blake3:          ContentHash(rf.Data),
		}

		m.Files = append(m.Files, mi)
	}

	if len(report.Orphans) > 0 {
		unlinkedPath := rw.UnlinkedPath()

		err = rw.fs.MkdirAll(unlinkedPath, 0755)
		log.PanicIf(err)

		for _, ob := range report.Orphans {
			filepath := path.Join(unlinkedPath, OrphanFilename(ob.HeadCluster))

			err = afero.WriteFile(rw.fs, filepath, ob.Data, 0644)
			log.PanicIf(err)

			written = append(written, filepath)

			mi := ManifestItem{
				OutputPath:      path.Join(unlinkedDirectoryName, OrphanFilename(ob.HeadCluster)),
				StartingCluster: ob.HeadCluster,
				Clusters:        ob.Clusters,
				Size:            len(ob.Data),
				Blake3:          ContentHash(ob.Data),
			}

			m.Orphans = append(m.Orphans, mi)
		}
	}

	encoded, err := m.Encode()
	log.PanicIf(err)

	manifestFilepath := rw.ManifestPath()

	err = afero.WriteFile(rw.fs, manifestFilepath, encoded, 0644)
	log.PanicIf(err)

	written = append(written, manifestFilepath)

	writerLogger.Debugf(nil, "Wrote (%d) files under [%s].", len(written), rw.rootPath)

	return written, nil
}

// Verify re-reads the manifest and every output file it lists, and returns
// the output paths whose content no longer matches the recorded digest or
// size. Missing files are reported as mismatches.
func (rw *ReportWriter) Verify() (mismatches []string, err error) {
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

	raw, err := afero.ReadFile(rw.fs, rw.ManifestPath())
	log.PanicIf(err)

	m, err := ParseManifest(raw)
	log.PanicIf(err)

	mismatches = make([]string, 0)

	items := append(append([]ManifestItem{}, m.Files...), m.Orphans...)
	for _, mi := range items {
		data, err := afero.ReadFile(rw.fs, path.Join(rw.rootPath, mi.OutputPath))
		if err != nil {
			if os.IsNotExist(err) == false {
				log.Panic(err)
			}

			writerLogger.Warningf(nil, "Output file is missing: [%s]", mi.OutputPath)

			mismatches = append(mismatches, mi.OutputPath)
			continue
		}

		if len(data) != mi.Size || ContentHash(data) != mi.Blake3 {
			writerLogger.Warningf(nil, "Output file does not match the manifest: [%s]", mi.OutputPath)

			mismatches = append(mismatches, mi.OutputPath)
		}
	}

	return mismatches, nil
}

// sanitizeFilename keeps damaged names from escaping the output directory.
func sanitizeFilename(filename string) string {
	filename = strings.Map(func(r rune) rune {
		if r == '/' || r == '\\' || r < 0x20 {
			return '_'
		}

		return r
	}, filename)

	if filename == "" || filename == "." || filename == ".." {
		return ""
	}

	return filename
}

// assignFilepaths returns the output path of each recovered file, in order.
// Collisions are only checked against the other files of the same report.
func assignFilepaths(parentPath string, files []RecoveredFile) (filepaths []string, err error) {
	filepaths = make([]string, len(files))
	assigned := make(map[string]struct{})

	for i, rf := range files {
		filepath, err := uniqueFilepath(parentPath, rf, assigned)
		if err != nil {
			return nil, err
		}

		assigned[filepath] = struct{}{}
		filepaths[i] = filepath
	}

	return filepaths, nil
}

func uniqueFilepath(parentPath string, rf RecoveredFile, assigned map[string]struct{}) (filepath string, err error) {
	filename := sanitizeFilename(rf.Filename())
	if filename == "" {
		filename = fmt.Sprintf("unnamed_%d", rf.StartingCluster)
	}

	filepath = path.Join(parentPath, filename)

	if _, found := assigned[filepath]; found == false {
		return filepath, nil
	}

	name := fmt.Sprintf("%s_%d", sanitizeFilename(rf.Name), rf.StartingCluster)
	filepath = path.Join(parentPath, JoinShortName(name, sanitizeFilename(rf.Extension)))

	if _, found := assigned[filepath]; found == true {
		return "", fmt.Errorf("two recovered files map to the same output file: [%s]: %w", filepath, os.ErrExist)
	}

	return filepath, nil
}
