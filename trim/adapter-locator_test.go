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
)

func TestLocate(t *testing.T) {
	tests := []struct {
		seq, adapter string
		index        int
	}{
		{"ACGTACGT", "ACGT", 4},
		{"ACGTACGT", "TTTT", NotFound},
		{"ACGT", "ACGT", 0},
		{"ACG", "ACGT", NotFound},
		{"", "A", NotFound},
		{"AAAAA", "AA", 3},
		{"acgtACGT", "ACGT", 4},
	}
	for _, test := range tests {
		if index := Locate(test.seq, test.adapter); index != test.index {
			t.Errorf("Locate(%q, %q) = %v, want %v", test.seq, test.adapter, index, test.index)
		}
	}
}

func BenchmarkLocate(b *testing.B) {
	seq := strings.Repeat("ACGTTGCA", 19) + "AGATCGGAAGAGC"
	for i := 0; i < b.N; i++ {
		Locate(seq, "AGATCGGAAGAGC")
	}
}
