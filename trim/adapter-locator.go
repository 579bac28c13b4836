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

// Package trim detects adapter contamination in reads, trims or masks
// it, and turns raw FASTQ records into unaligned alignment records.
package trim

import "strings"

// NotFound is returned by Locate when the adapter does not occur in
// the sequence.
const NotFound = -1

// Locate returns the index of the rightmost exact occurrence of
// adapter in seq, or NotFound. The adapter must not be empty.
func Locate(seq, adapter string) int {
	return strings.LastIndex(seq, adapter)
}
