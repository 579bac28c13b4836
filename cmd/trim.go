// fastq-to-ubam: adapter trimming and conversion of paired FASTQ files to unaligned BAM.
// Copyright (c) 2021 imec vzw.

// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version, and Additional Terms
// (see below).

// This program is distributed in the hope that it will be useful, but
// WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the GNU
// Affero General Public License for more details.

// You should have received a copy of the GNU Affero General Public
// License and Additional Terms along with this program. If not, see
// <https://github.com/ExaScience/fastq-to-ubam/blob/master/LICENSE.txt>.

package cmd

import (
	"bytes"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime"

	"github.com/fatih/color"

	"github.com/exascience/fastq-to-ubam/convert"
	"github.com/exascience/fastq-to-ubam/internal"
	"github.com/exascience/fastq-to-ubam/sam"
)

// TrimHelp is the help string for this command.
const TrimHelp = "\ntrim parameters:\n" +
	"fastq-to-ubam trim --read1 fastq-file --read2 fastq-file\n" +
	"--adapter1 sequence --adapter2 sequence\n" +
	"--output sam-or-bam-file\n" +
	"--rg-id id --rg-sample sample --rg-library library\n" +
	"--rg-platform platform --rg-platform-unit unit --rg-centre centre\n" +
	"[--nr-of-threads n]\n" +
	"[--tmp-dir path]\n" +
	"[--max-records-in-memory n]\n" +
	"[--check-pairs]\n" +
	"[--timed]\n" +
	"[--profile file]\n" +
	"[--log-path path]\n"

// Trim implements the fastq-to-ubam trim command.
func Trim() error {
	var (
		read1, read2, adapter1, adapter2, output string
		readGroup                                sam.ReadGroup
		nrOfThreads, maxRecordsInMemory          int
		tmpDir, profile, logPath                 string
		checkPairs, timed                        bool
	)

	var flags flag.FlagSet

	flags.StringVar(&read1, "read1", "", "FASTQ file with the first reads of each pair")
	flags.StringVar(&read2, "read2", "", "FASTQ file with the second reads of each pair")
	flags.StringVar(&adapter1, "adapter1", "", "adapter sequence for read1")
	flags.StringVar(&adapter2, "adapter2", "", "adapter sequence for read2")
	flags.StringVar(&output, "output", "", "SAM or BAM output file")
	flags.StringVar(&readGroup.ID, "rg-id", "", "read group identifier")
	flags.StringVar(&readGroup.Sample, "rg-sample", "", "read group sample")
	flags.StringVar(&readGroup.Library, "rg-library", "", "read group library")
	flags.StringVar(&readGroup.Platform, "rg-platform", "", "read group platform")
	flags.StringVar(&readGroup.PlatformUnit, "rg-platform-unit", "", "read group platform unit")
	flags.StringVar(&readGroup.Centre, "rg-centre", "", "read group sequencing centre")
	flags.IntVar(&nrOfThreads, "nr-of-threads", 0, "number of worker threads per input")
	flags.StringVar(&tmpDir, "tmp-dir", "", "directory for temporary sort runs")
	flags.IntVar(&maxRecordsInMemory, "max-records-in-memory", sam.DefaultMaxRecordsInMemory, "number of records held in memory before spilling to disk")
	flags.BoolVar(&checkPairs, "check-pairs", false, "fail unless every read has exactly one mate")
	flags.BoolVar(&timed, "timed", false, "measure the runtime")
	flags.StringVar(&profile, "profile", "", "write a CPU profile")
	flags.StringVar(&logPath, "log-path", "", "write log files to the specified directory")

	parseFlags(&flags, 2, TrimHelp)

	if err := setLogOutput(logPath); err != nil {
		return err
	}

	// sanity checks

	var sanityChecksFailed bool

	if !checkExist("--read1", read1) {
		sanityChecksFailed = true
	}
	if !checkExist("--read2", read2) {
		sanityChecksFailed = true
	}
	if !checkAdapter("--adapter1", adapter1) {
		sanityChecksFailed = true
	}
	if !checkAdapter("--adapter2", adapter2) {
		sanityChecksFailed = true
	}
	if !checkCreate("--output", output) || !checkOutputExtension("--output", output) {
		sanityChecksFailed = true
	}
	if err := readGroup.Validate(); err != nil {
		log.Println("Error:", err)
		sanityChecksFailed = true
	}
	if nrOfThreads < 0 {
		log.Println("Error: Invalid nr-of-threads: ", nrOfThreads)
		sanityChecksFailed = true
	}
	if maxRecordsInMemory <= 0 {
		log.Println("Error: Invalid max-records-in-memory: ", maxRecordsInMemory)
		sanityChecksFailed = true
	}
	if tmpDir != "" && !checkDirectory("--tmp-dir", tmpDir) {
		sanityChecksFailed = true
	}

	if sanityChecksFailed {
		fmt.Fprint(os.Stderr, TrimHelp)
		os.Exit(1)
	}

	// building the command line

	var command bytes.Buffer
	fmt.Fprint(&command, os.Args[0], " trim --read1 ", read1, " --read2 ", read2)
	fmt.Fprint(&command, " --adapter1 ", adapter1, " --adapter2 ", adapter2)
	fmt.Fprint(&command, " --output ", output)
	fmt.Fprint(&command, " --rg-id ", readGroup.ID, " --rg-sample ", readGroup.Sample)
	fmt.Fprint(&command, " --rg-library ", readGroup.Library, " --rg-platform ", readGroup.Platform)
	fmt.Fprint(&command, " --rg-platform-unit ", readGroup.PlatformUnit, " --rg-centre ", readGroup.Centre)
	if nrOfThreads > 0 {
		runtime.GOMAXPROCS(nrOfThreads)
		fmt.Fprint(&command, " --nr-of-threads ", nrOfThreads)
	}
	if tmpDir != "" {
		fmt.Fprint(&command, " --tmp-dir ", tmpDir)
	}
	if maxRecordsInMemory != sam.DefaultMaxRecordsInMemory {
		fmt.Fprint(&command, " --max-records-in-memory ", maxRecordsInMemory)
	}
	if checkPairs {
		fmt.Fprint(&command, " --check-pairs")
	}
	if timed {
		fmt.Fprint(&command, " --timed")
	}
	if profile != "" {
		fmt.Fprint(&command, " --profile ", profile)
	}
	if logPath != "" {
		fmt.Fprint(&command, " --log-path ", logPath)
	}

	// executing command

	log.Println("Executing command:\n", command.String())

	cfg := &convert.Config{
		Read1:              read1,
		Read2:              read2,
		Adapter1:           adapter1,
		Adapter2:           adapter2,
		Threads:            nrOfThreads,
		ReadGroup:          readGroup,
		TempDir:            tmpDir,
		MaxRecordsInMemory: maxRecordsInMemory,
		CheckPairs:         checkPairs,
		CommandLine:        command.String(),
	}

	var stats *convert.Stats
	err := timedRun(timed, profile, "Converting FASTQ to unaligned reads.", 1, func() error {
		var err error
		stats, err = runTrim(cfg, output)
		return err
	})
	if err != nil {
		return err
	}
	printStats(stats)
	return nil
}

// runTrim writes the converted reads to output. On failure, a partially
// written output file is removed.
func runTrim(cfg *convert.Config, output string) (stats *convert.Stats, err error) {
	pathname := output
	if output != "/dev/stdout" {
		if pathname, err = internal.FullPathname(output); err != nil {
			return nil, err
		}
		if err = os.MkdirAll(filepath.Dir(pathname), 0700); err != nil {
			return nil, err
		}
	}
	sink, err := sam.Create(pathname)
	if err != nil {
		return nil, err
	}
	defer func() {
		if nerr := sink.Close(); err == nil {
			err = nerr
		}
		if err != nil && pathname != "/dev/stdout" {
			_ = os.Remove(pathname)
		}
	}()
	return convert.Run(cfg, sink)
}

func printStats(stats *convert.Stats) {
	line := func(label, format string, v interface{}) {
		log.Println(color.HiGreenString(label), color.HiMagentaString(format, v))
	}
	line("Reads processed:  ", "%d", stats.Reads())
	line("Adapters trimmed: ", "%d", stats.Trimmed())
	line("Adapters masked:  ", "%d", stats.Masked())
	line("Without adapter:  ", "%d", stats.Untouched())
	line("Records written:  ", "%d", stats.Written)
	if stats.Runs > 0 {
		line("Sort runs spilled:", "%d", stats.Runs)
	}
	line("Elapsed time:     ", "%v", stats.Elapsed)
}
