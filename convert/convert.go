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
	"errors"
	"fmt"
	"time"

	"github.com/exascience/pargo/parallel"
	"github.com/exascience/pargo/pipeline"

	"github.com/exascience/fastq-to-ubam/fastq"
	"github.com/exascience/fastq-to-ubam/internal"
	"github.com/exascience/fastq-to-ubam/sam"
	"github.com/exascience/fastq-to-ubam/trim"
	"github.com/exascience/fastq-to-ubam/utils"
)

const (
	minBatchSize = 1024
	maxBatchSize = 16384
)

// NewHeader returns the header of the converted output: queryname
// sort order, the configured read group, and a @PG line for this
// program.
func NewHeader(cfg *Config) *sam.Header {
	hdr := sam.NewHeader()
	hdr.SetHDSO(sam.Queryname)
	hdr.AddReadGroup(&cfg.ReadGroup)
	hdr.AddProgram(utils.ProgramName, utils.ProgramName, utils.ProgramVersion, cfg.CommandLine)
	return hdr
}

// transform runs one input stream through the record builder and
// adds the resulting alignments to the sorter.
func transform(reader *fastq.Reader, builder *trim.Builder, sorter *sam.Sorter, stats *StreamStats, threads int) error {
	var p pipeline.Pipeline
	p.Source(reader)
	p.SetVariableBatchSize(minBatchSize, maxBatchSize)
	p.Add(
		pipeline.LimitedPar(threads, func(p *pipeline.Pipeline, _ pipeline.NodeKind, _ *int) (receiver pipeline.Receiver, _ pipeline.Finalizer) {
			receiver = func(_ int, data interface{}) interface{} {
				reads := data.([]fastq.Read)
				alns := make([]*sam.Alignment, 0, len(reads))
				outcomes := make([]trim.Outcome, 0, len(reads))
				for i := range reads {
					aln, outcome, err := builder.Build(&reads[i])
					if err != nil {
						var formatError *fastq.FormatError
						if errors.As(err, &formatError) {
							formatError.File = reader.Name()
						}
						p.SetErr(err)
						return nil
					}
					alns = append(alns, aln)
					outcomes = append(outcomes, outcome)
				}
				stats.count(outcomes)
				return alns
			}
			return
		}),
		pipeline.Seq(func(p *pipeline.Pipeline, _ pipeline.NodeKind, _ *int) (receiver pipeline.Receiver, _ pipeline.Finalizer) {
			receiver = func(_ int, data interface{}) interface{} {
				if alns, ok := data.([]*sam.Alignment); ok && len(alns) > 0 {
					if err := sorter.Add(alns); err != nil {
						p.SetErr(err)
					}
				}
				return nil
			}
			return
		}),
	)
	p.Run()
	if err := p.Err(); err != nil {
		return fmt.Errorf("%w, while converting %v", err, reader.Name())
	}
	return nil
}

// Run converts the paired FASTQ files named in cfg and writes the
// header followed by all alignments, sorted by read name, to sink.
//
// Both inputs are transformed concurrently. Sorting starts only when
// both are complete, and alignments reach the sink in strict order
// from a single goroutine. Any failure aborts the run, and temporary
// sort runs are removed. Run does not close the sink.
func Run(cfg *Config, sink sam.AlignmentSink) (stats *Stats, err error) {
	start := time.Now()
	if err = cfg.Validate(); err != nil {
		return nil, err
	}
	builder1, err := trim.NewBuilder(cfg.Adapter1, true, &cfg.ReadGroup)
	if err != nil {
		return nil, &ConfigError{"adapter1", err.Error()}
	}
	builder2, err := trim.NewBuilder(cfg.Adapter2, false, &cfg.ReadGroup)
	if err != nil {
		return nil, &ConfigError{"adapter2", err.Error()}
	}

	read1, err := fastq.Open(cfg.Read1)
	if err != nil {
		return nil, err
	}
	defer internal.Close(read1, &err)
	read2, err := fastq.Open(cfg.Read2)
	if err != nil {
		return nil, err
	}
	defer internal.Close(read2, &err)

	sorter := sam.NewSorter(sam.QuerynameLess, cfg.TempDir, cfg.MaxRecordsInMemory)
	defer func() {
		if nerr := sorter.Close(); err == nil {
			err = nerr
		}
	}()

	stats = &Stats{}
	threads := cfg.threads()
	var err1, err2 error
	parallel.Do(
		func() { err1 = transform(read1, builder1, sorter, &stats.Read1, threads) },
		func() { err2 = transform(read2, builder2, sorter, &stats.Read2, threads) },
	)
	if err = err1; err == nil {
		err = err2
	}
	if err != nil {
		return nil, err
	}
	stats.Runs = sorter.Runs()

	if err = sink.WriteHeader(NewHeader(cfg)); err != nil {
		return nil, &SinkError{"header", err}
	}
	var checker *PairChecker
	if cfg.CheckPairs {
		checker = NewPairChecker()
	}
	if err = sorter.Sort(func(aln *sam.Alignment) error {
		if checker != nil {
			if err := checker.Check(aln); err != nil {
				return err
			}
		}
		if err := sink.WriteAlignment(aln); err != nil {
			return &SinkError{"alignment " + aln.QNAME, err}
		}
		stats.Written++
		return nil
	}); err != nil {
		return nil, err
	}
	if checker != nil {
		if err = checker.Finish(); err != nil {
			return nil, err
		}
	}
	stats.Elapsed = time.Since(start)
	return stats, nil
}
