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
	"fmt"
	"strings"
)

// Outcome records what a Policy did to a read.
type Outcome int

// Possible outcomes of Policy.Apply.
const (
	Untouched Outcome = iota
	Trimmed
	Masked
)

func (o Outcome) String() string {
	switch o {
	case Untouched:
		return "untouched"
	case Trimmed:
		return "trimmed"
	case Masked:
		return "masked"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// Default policy constants.
const (
	DefaultMaskThreshold = 35
	DefaultMaskLength    = 34

	// MaskBase and MaskQuality fill masked reads. '2' is Phred 17.
	MaskBase    = 'N'
	MaskQuality = '2'
)

// Policy decides how a read is changed once an adapter has been
// located in it.
//
// An adapter found beyond MaskThreshold is trimmed off together with
// everything after it. An adapter found at or before MaskThreshold
// leaves too little usable sequence, so the whole read is replaced by
// MaskLength masking bases with matching qualities.
type Policy struct {
	MaskThreshold int
	MaskLength    int
}

// DefaultPolicy is the trim/mask policy used for conversion.
var DefaultPolicy = Policy{MaskThreshold: DefaultMaskThreshold, MaskLength: DefaultMaskLength}

var (
	maskedSeq  = strings.Repeat(string(rune(MaskBase)), DefaultMaskLength)
	maskedQual = strings.Repeat(string(rune(MaskQuality)), DefaultMaskLength)
)

func (policy Policy) mask() (seq, qual string) {
	if policy.MaskLength == DefaultMaskLength {
		return maskedSeq, maskedQual
	}
	return strings.Repeat(string(rune(MaskBase)), policy.MaskLength),
		strings.Repeat(string(rune(MaskQuality)), policy.MaskLength)
}

// Apply returns the sequence and qualities of a read after applying
// the policy for an adapter located at index. A negative index means
// no adapter was found, and the read is returned unchanged. seq and
// qual must have equal lengths.
func (policy Policy) Apply(index int, seq, qual string) (string, string, Outcome) {
	switch {
	case index < 0:
		return seq, qual, Untouched
	case index > policy.MaskThreshold:
		return seq[:index], qual[:index], Trimmed
	default:
		mseq, mqual := policy.mask()
		return mseq, mqual, Masked
	}
}
