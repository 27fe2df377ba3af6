package main

import (
	"fmt"
	"os"

	"github.com/dsoprea/go-logging"
	"github.com/dustin/go-humanize"
	"github.com/jessevdk/go-flags"
	"github.com/spf13/afero"

	"github.com/dsoprea/go-fat16"
)

type rootParameters struct {
	Filepath    string `short:"f" long:"filepath" description:"File-path of FAT16 image" required:"true"`
	OutputPath  string `short:"o" long:"output-path" description:"Directory to write recovered content into" default:"."`
	SkipOrphans bool   `short:"s" long:"skip-orphans" description:"Do not sweep for orphaned chains"`
	Verbose     bool   `short:"v" long:"verbose" description:"Print the report summary"`
	Verify      bool   `long:"verify" description:"Re-read the output and check it against the manifest"`
	Overwrite   bool   `long:"overwrite" description:"Replace the output of an earlier run instead of failing"`
}

var (
	rootArguments = new(rootParameters)
)

func main() {
	defer func() {
		if state := recover(); state != nil {
			err := log.Wrap(state.(error))
			log.PrintError(err)
			os.Exit(-1)
		}
	}()

	p := flags.NewParser(rootArguments, flags.Default)

	_, err := p.Parse()
	if err != nil {
		os.Exit(1)
	}

	f, err := os.Open(rootArguments.Filepath)
	log.PanicIf(err)

	defer f.Close()

	fr := fat16.NewFat16Reader(f)

	err = fr.Parse()
	log.PanicIf(err)

	options := fat16.RecoveryOptions{
		SkipOrphans: rootArguments.SkipOrphans,
	}

	r := fat16.NewRecoverer(fr, options)

	report, err := r.Recover()
	log.PanicIf(err)

	if rootArguments.Verbose == true {
		report.Dump()
	}

	rw := fat16.NewReportWriter(afero.NewOsFs(), rootArguments.OutputPath)

	if rootArguments.Overwrite == true {
		err := rw.Clear()
		log.PanicIf(err)
	}

	written, err := rw.Write(report)
	log.PanicIf(err)

	recoveredBytes := uint64(0)
	for _, rf := range report.Files {
		recoveredBytes += uint64(len(rf.Data))
	}

	for _, ob := range report.Orphans {
		recoveredBytes += uint64(len(ob.Data))
	}

	fmt.Printf("(%d) files and (%d) orphaned chains recovered (%s) into (%d) output files.\n", len(report.Files), len(report.Orphans), humanize.Bytes(recoveredBytes), len(written))

	if rootArguments.Verify == true {
		mismatches, err := rw.Verify()
		log.PanicIf(err)

		if len(mismatches) > 0 {
			for _, outputPath := range mismatches {
				fmt.Printf("MISMATCH: %s\n", outputPath)
			}

			os.Exit(2)
		}

		fmt.Printf("Output verified against the manifest.\n")
	}

	if len(report.Failures) > 0 {
		fmt.Printf("(%d) items could not be fully recovered:\n", len(report.Failures))

		for _, failure := range report.Failures {
			fmt.Printf("- %s\n", failure)
		}
	}
}
