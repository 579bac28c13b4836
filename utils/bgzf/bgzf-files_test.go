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

package bgzf

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"io/ioutil"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteRead(t *testing.T) {
	payload := []byte(strings.Repeat("ACGTNACGTTGCA", 20000))

	var buf bytes.Buffer
	w := NewWriter(&buf, -1)
	for i := 0; i < len(payload); i += 777 {
		end := i + 777
		if end > len(payload) {
			end = len(payload)
		}
		_, err := w.Write(payload[i:end])
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	assert.True(t, bytes.HasSuffix(buf.Bytes(), eofMarker))

	// any gzip reader must accept BGZF output
	gz, err := gzip.NewReader(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	plain, err := ioutil.ReadAll(gz)
	require.NoError(t, err)
	assert.Equal(t, payload, plain)

	r, err := NewReader(bufio.NewReader(bytes.NewReader(buf.Bytes())))
	require.NoError(t, err)
	parallel, err := ioutil.ReadAll(r)
	require.NoError(t, err)
	require.NoError(t, r.Close())
	assert.Equal(t, payload, parallel)
}

func TestEmptyFile(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf, 1)
	require.NoError(t, w.Close())
	assert.Equal(t, eofMarker, buf.Bytes())
}

func TestIsGzip(t *testing.T) {
	ok, err := IsGzip(bufio.NewReader(bytes.NewReader(eofMarker)))
	require.NoError(t, err)
	assert.True(t, ok)

	in := bufio.NewReader(strings.NewReader("@SIM1\nACGT\n+\n2222\n"))
	ok, err = IsGzip(in)
	require.NoError(t, err)
	assert.False(t, ok)
	first, _ := in.ReadByte()
	assert.Equal(t, byte('@'), first)
}
