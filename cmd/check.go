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
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/fatih/color"

	"github.com/exascience/fastq-to-ubam/convert"
)

// CheckHelp is the help string for this command.
const CheckHelp = "\ncheck parameters:\n" +
	"fastq-to-ubam check sam-or-bam-file\n" +
	"[--check-pairs]\n" +
	"[--log-path path]\n"

// Check implements the fastq-to-ubam check command.
func Check() error {
	var (
		checkPairs bool
		logPath    string
	)

	var flags flag.FlagSet

	flags.BoolVar(&checkPairs, "check-pairs", false, "verify that every read has exactly one mate")
	flags.StringVar(&logPath, "log-path", "", "write log files to the specified directory")

	parseFlags(&flags, 3, CheckHelp)

	input := getFilename(os.Args[2], CheckHelp)

	if err := setLogOutput(logPath); err != nil {
		return err
	}

	if !checkExist("", input) {
		fmt.Fprint(os.Stderr, CheckHelp)
		os.Exit(1)
	}

	result, err := convert.Verify(input, checkPairs)
	if err != nil {
		return err
	}
	log.Println(color.HiGreenString("Sort order:       "), color.HiMagentaString("%v", result.Header.HDSO()))
	log.Println(color.HiGreenString("Records checked:  "), color.HiMagentaString("%d", result.Alignments))
	if checkPairs {
		log.Println(color.HiGreenString("Pairs complete:   "), color.HiMagentaString("%d", result.Alignments/2))
	}
	return nil
}
