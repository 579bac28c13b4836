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

package trim

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/exascience/fastq-to-ubam/fastq"
	"github.com/exascience/fastq-to-ubam/sam"
)

// Flags set on every converted read: paired, unmapped, mate unmapped.
const pairedUnmapped = sam.Multiple | sam.Unmapped | sam.NextUnmapped

// A Builder converts raw FASTQ reads of one input stream into
// unaligned alignments. A Builder is immutable and can be shared by
// any number of goroutines.
type Builder struct {
	Adapter   string
	First     bool
	ReadGroup *sam.ReadGroup
	Policy    Policy
}

// NewBuilder returns a Builder with the default policy.
func NewBuilder(adapter string, first bool, rg *sam.ReadGroup) (*Builder, error) {
	if adapter == "" {
		return nil, errors.New("empty adapter sequence")
	}
	if rg == nil || rg.ID == "" {
		return nil, errors.New("missing read group")
	}
	return &Builder{Adapter: adapter, First: first, ReadGroup: rg, Policy: DefaultPolicy}, nil
}

// ReadName extracts the read name from an identifier: the text up to
// the first whitespace, with one leading '@' removed if present. The
// '@' is optional so that names already stripped of it, such as SAM
// QNAMEs, map to themselves.
func ReadName(id string) string {
	if i := strings.IndexFunc(id, unicode.IsSpace); i >= 0 {
		id = id[:i]
	}
	return strings.TrimPrefix(id, "@")
}

// Build converts a raw read into an unaligned alignment. It fails
// with a *fastq.FormatError if the read is malformed, or if the read
// name is empty. Identifiers without a leading '@' are malformed
// FASTQ, so the name always comes from an '@' line here.
func (b *Builder) Build(read *fastq.Read) (*sam.Alignment, Outcome, error) {
	if err := read.Validate(); err != nil {
		return nil, Untouched, err
	}
	name := ReadName(read.ID)
	if name == "" {
		return nil, Untouched, &fastq.FormatError{Line: read.Line, Read: read.ID, Err: fmt.Errorf("%w: empty read name", fastq.ErrInvalid)}
	}
	aln := sam.NewAlignment()
	aln.QNAME = name
	var outcome Outcome
	aln.SEQ, aln.QUAL, outcome = b.Policy.Apply(Locate(read.Seq, b.Adapter), read.Seq, read.Qual)
	if aln.SEQ == "" {
		aln.SEQ, aln.QUAL = "*", "*"
	}
	aln.FLAG = pairedUnmapped
	if b.First {
		aln.FLAG |= sam.First
	} else {
		aln.FLAG |= sam.Last
	}
	aln.SetRG(b.ReadGroup.ID)
	return aln, outcome, nil
}

// ParseRawRead splits a four-line text block into a FASTQ read. It
// fails with a *fastq.FormatError wrapping fastq.ErrShort if the block
// has fewer than four lines.
func ParseRawRead(text string) (*fastq.Read, error) {
	lines := strings.SplitN(strings.TrimRight(text, "\n"), "\n", 5)
	if len(lines) < 4 {
		return nil, &fastq.FormatError{Err: fmt.Errorf("%w: %v of 4 lines in record", fastq.ErrShort, len(lines))}
	}
	for i := range lines[:4] {
		lines[i] = strings.TrimSuffix(lines[i], "\r")
	}
	return &fastq.Read{ID: lines[0], Seq: lines[1], Plus: lines[2], Qual: lines[3]}, nil
}
