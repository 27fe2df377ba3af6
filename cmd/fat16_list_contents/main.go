package main

import (
	"fmt"
	"os"

	"path/filepath"

	"github.com/dsoprea/go-logging"
	"github.com/dustin/go-humanize"
	"github.com/jessevdk/go-flags"

	"github.com/dsoprea/go-fat16"
)

type rootParameters struct {
	Filepath       string `short:"f" long:"filepath" description:"File-path of FAT16 image" required:"true"`
	FilenameFilter string `short:"p" long:"pattern" description:"Filename filter"`
	ShowOrphans    bool   `short:"o" long:"orphans" description:"Also list orphaned chains"`
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

	var report *fat16.RecoveryReport

	if rootArguments.ShowOrphans == true {
		// Orphans can only be told apart once every file chain is known.
		r := fat16.NewRecoverer(fr, fat16.RecoveryOptions{})

		report, err = r.Recover()
		log.PanicIf(err)
	} else {
		ds := fat16.NewDirectoryScanner(fr, fat16.NewSeenClusters())

		dsr, err := ds.List()
		log.PanicIf(err)

		report = &fat16.RecoveryReport{
			Geometry:    fr.Geometry(),
			Directories: dsr.Directories,
			Failures:    dsr.Failures,
		}
	}

	for _, dl := range report.Directories {
		for _, le := range dl.Entries {
			if rootArguments.FilenameFilter != "" {
				isMatched, err := filepath.Match(rootArguments.FilenameFilter, le.Filename)
				log.PanicIf(err)

				if isMatched != true {
					continue
				}
			}

			modified := ""
			if le.Modified.IsZero() == false {
				modified = le.Modified.Format("2006-01-02 15:04:05")
			}

			fmt.Printf("%15s %19s (%6d) /%s\n", humanize.Comma(int64(le.DeclaredSize)), modified, dl.Cluster, joinPath(dl.Path, le.Filename))
		}
	}

	if rootArguments.ShowOrphans == true {
		fmt.Printf("\n")

		for _, ob := range report.Orphans {
			fmt.Printf("%15s %19s (%6d) %s\n", humanize.Bytes(uint64(len(ob.Data))), "", ob.HeadCluster, fat16.OrphanFilename(ob.HeadCluster))
		}
	}

	for _, failure := range report.Failures {
		fmt.Fprintf(os.Stderr, "%s\n", failure)
	}
}

func joinPath(directoryPath, filename string) string {
	if directoryPath == "" {
		return filename
	}

	return directoryPath + "/" + filename
}
