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

package convert

import (
	"sync/atomic"
	"time"

	"github.com/exascience/fastq-to-ubam/trim"
)

// StreamStats counts the reads of one input stream by trim outcome.
// Counters are updated atomically by concurrent workers.
type StreamStats struct {
	Reads     int64
	Trimmed   int64
	Masked    int64
	Untouched int64
}

func (s *StreamStats) add(trimmed, masked, untouched int64) {
	atomic.AddInt64(&s.Trimmed, trimmed)
	atomic.AddInt64(&s.Masked, masked)
	atomic.AddInt64(&s.Untouched, untouched)
	atomic.AddInt64(&s.Reads, trimmed+masked+untouched)
}

func (s *StreamStats) count(outcomes []trim.Outcome) {
	var counts [3]int64
	for _, outcome := range outcomes {
		counts[outcome]++
	}
	s.add(counts[trim.Trimmed], counts[trim.Masked], counts[trim.Untouched])
}

// Stats summarizes a conversion run.
type Stats struct {
	Read1, Read2 StreamStats

	// Written is the number of alignments passed to the sink.
	Written int64

	// Runs is the number of sorted runs spilled to disk.
	Runs int

	Elapsed time.Duration
}

// Reads returns the total number of reads of both streams.
func (s *Stats) Reads() int64 { return s.Read1.Reads + s.Read2.Reads }

// Trimmed returns the total number of trimmed reads.
func (s *Stats) Trimmed() int64 { return s.Read1.Trimmed + s.Read2.Trimmed }

// Masked returns the total number of masked reads.
func (s *Stats) Masked() int64 { return s.Read1.Masked + s.Read2.Masked }

// Untouched returns the total number of reads without adapter.
func (s *Stats) Untouched() int64 { return s.Read1.Untouched + s.Read2.Untouched }
