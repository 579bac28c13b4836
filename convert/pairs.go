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
	"github.com/exascience/fastq-to-ubam/sam"
)

// A PairChecker verifies, over a queryname-sorted stream, that every
// read name occurs exactly twice: once as first of pair, then once as
// second of pair.
type PairChecker struct {
	name        string
	first, last int
	started     bool
}

// NewPairChecker returns an empty PairChecker.
func NewPairChecker() *PairChecker {
	return &PairChecker{}
}

func (c *PairChecker) flush() error {
	if !c.started {
		return nil
	}
	switch {
	case c.first == 0:
		return &PairingError{c.name, "no first-of-pair read"}
	case c.last == 0:
		return &PairingError{c.name, "no second-of-pair read"}
	case c.first > 1 || c.last > 1:
		return &PairingError{c.name, "duplicate read name"}
	}
	return nil
}

// Check adds the next alignment of the sorted stream.
func (c *PairChecker) Check(aln *sam.Alignment) error {
	if !c.started || aln.QNAME != c.name {
		if err := c.flush(); err != nil {
			return err
		}
		c.name, c.first, c.last, c.started = aln.QNAME, 0, 0, true
	}
	switch {
	case aln.IsFirst() && !aln.IsLast():
		c.first++
	case aln.IsLast() && !aln.IsFirst():
		c.last++
	default:
		return &PairingError{aln.QNAME, "read is neither first nor second of pair"}
	}
	return nil
}

// Finish checks the last read name of the stream.
func (c *PairChecker) Finish() error {
	err := c.flush()
	c.started = false
	return err
}
