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

// Package sam is a library for reading and writing SAM and BAM
// files, the standard formats for sequence alignment data. See
// http://samtools.github.io/hts-specs/SAMv1.pdf for the format
// definitions.
//
// The package represents alignment records as Alignment values and
// headers as Header values. Both files on disk (OutputFile) and
// in-memory collections (Sam) can receive alignments through the
// AlignmentSink interface.
//
// Records can be brought into queryname order with a Sorter, which
// keeps a bounded number of records in memory and spills sorted runs
// to temporary files when that bound is exceeded. In-memory sorting
// uses the pargo library for parallel stable sorting, see
// https://godoc.org/github.com/ExaScience/pargo/sort for details.
package sam
