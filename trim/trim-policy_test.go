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
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestApply(t *testing.T) {
	seq := strings.Repeat("A", 100)
	qual := strings.Repeat("I", 100)

	s, q, outcome := DefaultPolicy.Apply(NotFound, seq, qual)
	assert.Equal(t, seq, s)
	assert.Equal(t, qual, q)
	assert.Equal(t, Untouched, outcome)

	s, q, outcome = DefaultPolicy.Apply(40, seq, qual)
	assert.Equal(t, seq[:40], s)
	assert.Equal(t, qual[:40], q)
	assert.Equal(t, Trimmed, outcome)

	s, q, outcome = DefaultPolicy.Apply(36, seq, qual)
	assert.Len(t, s, 36)
	assert.Len(t, q, 36)
	assert.Equal(t, Trimmed, outcome)

	for _, index := range []int{0, 10, 35} {
		s, q, outcome = DefaultPolicy.Apply(index, seq, qual)
		assert.Equal(t, strings.Repeat("N", 34), s)
		assert.Equal(t, strings.Repeat("2", 34), q)
		assert.Equal(t, Masked, outcome)
	}
}

func TestApplyCustomPolicy(t *testing.T) {
	policy := Policy{MaskThreshold: 5, MaskLength: 3}
	s, q, outcome := policy.Apply(5, "ACGTACGTAC", "IIIIIIIIII")
	assert.Equal(t, "NNN", s)
	assert.Equal(t, "222", q)
	assert.Equal(t, Masked, outcome)
	s, _, outcome = policy.Apply(6, "ACGTACGTAC", "IIIIIIIIII")
	assert.Equal(t, "ACGTAC", s)
	assert.Equal(t, Trimmed, outcome)
}

func TestOutcomeString(t *testing.T) {
	assert.Equal(t, "untouched", Untouched.String())
	assert.Equal(t, "trimmed", Trimmed.String())
	assert.Equal(t, "masked", Masked.String())
	assert.Equal(t, "Outcome(7)", Outcome(7).String())
}
