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

// Package nibbles packs nucleotide sequences two bases per byte, as
// BAM records store them.
package nibbles

import "log"

// Alphabet lists the bases in the order of their 4-bit codes.
const Alphabet = "=ACMGRSVTWYHKDBN"

var codes [256]byte

func init() {
	for i := range codes {
		codes[i] = 15
	}
	for i := 0; i < len(Alphabet); i++ {
		codes[Alphabet[i]] = byte(i)
		codes[Alphabet[i]|0x20] = byte(i)
	}
	codes['='] = 0
}

// Code returns the 4-bit code of a base. Lowercase bases share the
// code of their uppercase form. Anything else is coded as N.
func Code(base byte) byte {
	return codes[base]
}

// Nibbles is a view of a byte slice as a sequence of 4-bit values,
// high nibble first.
type Nibbles struct {
	n     int
	bytes []byte
}

// Make allocates nibbles for n values.
func Make(n int) Nibbles {
	return Nibbles{n: n, bytes: make([]byte, (n+1)>>1)}
}

// View interprets the first (n+1)/2 bytes of packed as n nibbles.
func View(n int, packed []byte) Nibbles {
	if len(packed) < (n+1)>>1 {
		log.Panic("packed slice too short")
	}
	return Nibbles{n: n, bytes: packed}
}

// Len returns the number of nibbles.
func (n Nibbles) Len() int { return n.n }

// Bytes returns the backing byte slice.
func (n Nibbles) Bytes() []byte { return n.bytes }

// Get returns the nibble at the given index.
func (n Nibbles) Get(index int) byte {
	if index >= n.n {
		log.Panic("index out of range")
	}
	return 0xF & (n.bytes[index>>1] >> uint((1^index&1)<<2))
}

// Set sets the nibble at the given index.
func (n Nibbles) Set(index int, value byte) {
	if index >= n.n {
		log.Panic("index out of range")
	}
	shift := uint((1 ^ index&1) << 2)
	i := index >> 1
	n.bytes[i] = n.bytes[i]&^(0xF<<shift) | (0xF&value)<<shift
}

// Pack stores the codes of seq into packed, which must hold at least
// (len(seq)+1)/2 bytes. A trailing odd nibble is zero.
func Pack(packed []byte, seq string) {
	nib := View(len(seq), packed)
	if len(seq)&1 == 1 {
		packed[len(seq)>>1] = 0
	}
	for i := 0; i < len(seq); i++ {
		nib.Set(i, codes[seq[i]])
	}
}

// Unpack decodes n bases from packed.
func Unpack(packed []byte, n int) string {
	nib := View(n, packed)
	seq := make([]byte, n)
	for i := range seq {
		seq[i] = Alphabet[nib.Get(i)]
	}
	return string(seq)
}
