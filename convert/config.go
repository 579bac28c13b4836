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

// Package convert trims and converts paired FASTQ files into one
// unaligned, queryname-sorted stream of alignments.
package convert

import (
	"os"
	"runtime"
	"strings"

	"github.com/exascience/fastq-to-ubam/sam"
)

// Config holds the parameters of a conversion run.
type Config struct {
	// Read1 and Read2 name the FASTQ files of the first and second
	// reads of each pair, plain or gzip-compressed.
	Read1, Read2 string

	// Adapter1 and Adapter2 are the adapter sequences searched in
	// Read1 and Read2 respectively.
	Adapter1, Adapter2 string

	// Threads bounds the number of workers transforming each input
	// stream. 0 means runtime.GOMAXPROCS(0).
	Threads int

	ReadGroup sam.ReadGroup

	// TempDir holds sort run files. Empty means os.TempDir().
	TempDir string

	// MaxRecordsInMemory bounds the number of records buffered before
	// a sorted run is spilled to TempDir. 0 means
	// sam.DefaultMaxRecordsInMemory.
	MaxRecordsInMemory int

	// CheckPairs makes the run fail unless every read name occurs
	// exactly once in each input.
	CheckPairs bool

	// CommandLine is recorded in the @PG header line.
	CommandLine string
}

// isSequence reports whether s consists of letters only, which
// admits every IUPAC nucleotide code in either case.
func isSequence(s string) bool {
	for i := 0; i < len(s); i++ {
		if c := s[i] | 0x20; c < 'a' || c > 'z' {
			return false
		}
	}
	return true
}

// Validate checks the configuration. It returns a *ConfigError for
// the first invalid value found.
func (cfg *Config) Validate() error {
	switch {
	case cfg.Read1 == "":
		return &ConfigError{"read1", "is missing"}
	case cfg.Read2 == "":
		return &ConfigError{"read2", "is missing"}
	case cfg.Read1 == cfg.Read2 && cfg.Read1 != "/dev/stdin":
		return &ConfigError{"read2", "names the same file as read1"}
	case cfg.Read1 == "/dev/stdin" && cfg.Read2 == "/dev/stdin":
		return &ConfigError{"read1 and read2", "cannot both be read from standard input"}
	case cfg.Adapter1 == "":
		return &ConfigError{"adapter1", "is empty"}
	case cfg.Adapter2 == "":
		return &ConfigError{"adapter2", "is empty"}
	case !isSequence(cfg.Adapter1):
		return &ConfigError{"adapter1", "contains characters other than letters"}
	case !isSequence(cfg.Adapter2):
		return &ConfigError{"adapter2", "contains characters other than letters"}
	case cfg.Threads < 0:
		return &ConfigError{"threads", "is negative"}
	case cfg.MaxRecordsInMemory < 0:
		return &ConfigError{"max records in memory", "is negative"}
	}
	if err := cfg.ReadGroup.Validate(); err != nil {
		return &ConfigError{"read group", strings.TrimPrefix(err.Error(), "read group ")}
	}
	if cfg.TempDir != "" {
		info, err := os.Stat(cfg.TempDir)
		if err != nil {
			return &ConfigError{"temporary directory", err.Error()}
		}
		if !info.IsDir() {
			return &ConfigError{"temporary directory", cfg.TempDir + " is not a directory"}
		}
	}
	for _, input := range []struct{ field, name string }{{"read1", cfg.Read1}, {"read2", cfg.Read2}} {
		if input.name == "/dev/stdin" {
			continue
		}
		if _, err := os.Stat(input.name); err != nil {
			return &ConfigError{input.field, err.Error()}
		}
	}
	return nil
}

func (cfg *Config) threads() int {
	if cfg.Threads > 0 {
		return cfg.Threads
	}
	return runtime.GOMAXPROCS(0)
}
