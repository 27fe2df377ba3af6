package fat16

import (
	"io"
	"reflect"

	"github.com/dsoprea/go-logging"
)

var (
	recoveryLogger = log.NewLogger("fat16.recovery")
)

// RecoveryOptions tunes a recovery run.
type RecoveryOptions struct {
	// SkipOrphans disables the orphan sweep.
	SkipOrphans bool
}

// Recoverer runs the directory pass and then the orphan pass over one parsed
// image. It owns the SeenClusters set that connects the two passes.
type Recoverer struct {
	fr      *Fat16Reader
	options RecoveryOptions
}

// NewRecoverer returns a new Recoverer. The reader must already be parsed.
func NewRecoverer(fr *Fat16Reader, options RecoveryOptions) *Recoverer {
	return &Recoverer{
		fr:      fr,
		options: options,
	}
}

// Recover produces the report. Per-item problems are in the report's
// Failures; an error is only returned if the image itself can not be read,
// and then no report is returned at all.
func (r *Recoverer) Recover() (report *RecoveryReport, err error) {
	defer func() {
		if errRaw := recover(); errRaw != nil {
			report = nil

			var ok bool
			if err, ok = errRaw.(error); ok == true {
				err = log.Wrap(err)
			} else {
				err = log.Errorf("Error not an error: [%s] [%v]", reflect.TypeOf(errRaw).Name(), errRaw)
			}
		}
	}()

	r.fr.assertParsed()

	seen := NewSeenClusters()

	ds := NewDirectoryScanner(r.fr, seen)

	dsr, err := ds.Scan()
	log.PanicIf(err)

	report = &RecoveryReport{
		Geometry:    r.fr.Geometry(),
		Files:       dsr.Files,
		Directories: dsr.Directories,
		Orphans:     make([]OrphanBlob, 0),
		Failures:    dsr.Failures,
	}

	recoveryLogger.Infof(nil, "Directory pass: (%d) files in (%d) directories, (%d) failures.", len(dsr.Files), len(dsr.Directories), len(dsr.Failures))

	if r.options.SkipOrphans == true {
		return report, nil
	}

	// The orphan pass consumes what the directory pass left in `seen`.
	ors := NewOrphanScanner(r.fr, seen)

	osr, err := ors.Scan()
	log.PanicIf(err)

	report.Orphans = osr.Blobs
	report.Failures = append(report.Failures, osr.Failures...)

	recoveryLogger.Infof(nil, "Orphan pass: (%d) chains, (%d) failures.", len(osr.Blobs), len(osr.Failures))

	return report, nil
}

// RecoverImage parses the image and runs a full recovery with default
// options.
func RecoverImage(rs io.ReadSeeker) (report *RecoveryReport, err error) {
	defer func() {
		if errRaw := recover(); errRaw != nil {
			report = nil

			var ok bool
			if err, ok = errRaw.(error); ok == true {
				err = log.Wrap(err)
			} else {
				err = log.Errorf("Error not an error: [%s] [%v]", reflect.TypeOf(errRaw).Name(), errRaw)
			}
		}
	}()

	fr := NewFat16Reader(rs)

	err = fr.Parse()
	log.PanicIf(err)

	r := NewRecoverer(fr, RecoveryOptions{})

	report, err = r.Recover()
	log.PanicIf(err)

	return report, nil
}
