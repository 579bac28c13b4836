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
	"fmt"

	"github.com/exascience/fastq-to-ubam/internal"
	"github.com/exascience/fastq-to-ubam/sam"
)

// VerifyResult summarizes a verified output file.
type VerifyResult struct {
	Header     *sam.Header
	Alignments int64
}

// Verify reads a SAM or BAM file and checks that its header declares
// queryname order, that its alignments are in that order, and, with
// checkPairs, that every read name forms exactly one complete pair.
func Verify(name string, checkPairs bool) (result *VerifyResult, err error) {
	input, err := sam.Open(name)
	if err != nil {
		return nil, err
	}
	defer internal.Close(input, &err)
	hdr, err := input.ParseHeader()
	if err != nil {
		return nil, fmt.Errorf("%v, while reading header of %v", err, name)
	}
	if so := hdr.HDSO(); so != sam.Queryname {
		return nil, fmt.Errorf("file %v has sort order %v instead of %v", name, so, sam.Queryname)
	}
	result = &VerifyResult{Header: hdr}
	var checker *PairChecker
	if checkPairs {
		checker = NewPairChecker()
	}
	var previous *sam.Alignment
	if err = input.Scan(func(aln *sam.Alignment) error {
		if previous != nil && sam.QuerynameLess(aln, previous) {
			return fmt.Errorf("read %v at record %v is out of queryname order", aln.QNAME, result.Alignments+1)
		}
		if checker != nil {
			if err := checker.Check(aln); err != nil {
				return err
			}
		}
		previous = aln
		result.Alignments++
		return nil
	}); err != nil {
		return nil, err
	}
	if checker != nil {
		if err = checker.Finish(); err != nil {
			return nil, err
		}
	}
	return result, nil
}
