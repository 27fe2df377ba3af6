package main

import (
	"os"

	"github.com/dsoprea/go-logging"
	"github.com/jessevdk/go-flags"

	"github.com/dsoprea/go-fat16"
)

type rootParameters struct {
	Filepath string `short:"f" long:"filepath" description:"File-path of FAT16 image" required:"true"`
	NoUsage  bool   `short:"n" long:"no-usage" description:"Do not scan the FAT for usage counts"`
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

	fr.BootSector().Dump()
	fr.Geometry().Dump()

	if rootArguments.NoUsage == false {
		usage, err := fr.FatUsage()
		log.PanicIf(err)

		usage.Dump()
	}
}
