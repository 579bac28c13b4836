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

package sam

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTestFile(t *testing.T, name string, n int) []*Alignment {
	out, err := Create(name)
	require.NoError(t, err)
	require.NoError(t, out.WriteHeader(testHeader()))
	var alns []*Alignment
	for i := 0; i < n; i++ {
		for _, flag := range []uint16{First, Last} {
			aln := unaligned(fmt.Sprintf("read%06d", i), flag)
			require.NoError(t, out.WriteAlignment(aln))
			alns = append(alns, aln)
		}
	}
	require.NoError(t, out.Close())
	return alns
}

func TestOutputFileRoundTrip(t *testing.T) {
	for _, ext := range []string{SamExt, BamExt} {
		name := filepath.Join(t.TempDir(), "out"+ext)
		alns := writeTestFile(t, name, 5000)

		sam, err := ReadSam(name)
		require.NoError(t, err, ext)
		if diff := cmp.Diff(testHeader(), sam.Header); diff != "" {
			t.Errorf("%v header mismatch (-want +got):\n%s", ext, diff)
		}
		require.Len(t, sam.Alignments, len(alns), ext)
		if diff := cmp.Diff(alns, sam.Alignments); diff != "" {
			t.Errorf("%v alignments mismatch (-want +got):\n%s", ext, diff)
		}
	}
}

func TestEmptyOutputFile(t *testing.T) {
	name := filepath.Join(t.TempDir(), "empty.bam")
	writeTestFile(t, name, 0)
	sam, err := ReadSam(name)
	require.NoError(t, err)
	assert.Empty(t, sam.Alignments)
	assert.Equal(t, Queryname, sam.Header.HDSO())
}

func TestCreateCram(t *testing.T) {
	_, err := Create(filepath.Join(t.TempDir(), "out.cram"))
	assert.Error(t, err)
}

func TestScanStops(t *testing.T) {
	name := filepath.Join(t.TempDir(), "out.sam")
	writeTestFile(t, name, 10)
	input, err := Open(name)
	require.NoError(t, err)
	defer input.Close()
	_, err = input.ParseHeader()
	require.NoError(t, err)
	count := 0
	err = input.Scan(func(*Alignment) error {
		count++
		if count == 3 {
			return fmt.Errorf("stop")
		}
		return nil
	})
	assert.EqualError(t, err, "stop")
}
