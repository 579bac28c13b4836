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

package utils

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIntern(t *testing.T) {
	var wg sync.WaitGroup
	symbols := make([]Symbol, 8)
	for i := range symbols {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			symbols[i] = Intern(string([]byte{'R', 'G'}))
		}(i)
	}
	wg.Wait()
	for _, s := range symbols {
		assert.True(t, s == symbols[0])
		assert.Equal(t, "RG", *s)
	}
	assert.False(t, Intern("RG") == Intern("PG"))
}

func TestMaps(t *testing.T) {
	record := StringMap{}
	assert.True(t, record.SetUniqueEntry("ID", "rg1"))
	assert.False(t, record.SetUniqueEntry("ID", "rg2"))
	assert.Equal(t, "rg1", record["ID"])

	var tags SmallMap
	rg := Intern("RG")
	_, found := tags.Get(rg)
	assert.False(t, found)
	tags.Set(rg, "rg1")
	tags.Set(Intern("XT"), int32(3))
	tags.Set(rg, "rg2")
	assert.Len(t, tags, 2)
	value, found := tags.Get(rg)
	assert.True(t, found)
	assert.Equal(t, "rg2", value)
}
