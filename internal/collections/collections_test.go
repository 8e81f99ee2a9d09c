// Copyright 2025 EngFlow Inc. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package collections

import (
	"cmp"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMapSlice(t *testing.T) {
	assert.Equal(t, []string{"1", "2", "3"}, MapSlice([]int{1, 2, 3}, strconv.Itoa))
	assert.Equal(t, []string{}, MapSlice([]int{}, strconv.Itoa))
}

func TestFilterSlice(t *testing.T) {
	even := func(x int) bool { return x%2 == 0 }
	assert.Equal(t, []int{2, 4}, FilterSlice([]int{1, 2, 3, 4}, even))
	assert.Empty(t, FilterSlice([]int{1, 3}, even))
}

func TestFindDuplicates(t *testing.T) {
	assert.Nil(t, FindDuplicates([]string{"a", "b"}))
	assert.Equal(t, []string{"a"}, FindDuplicates([]string{"a", "b", "a"}))
}

func TestSet(t *testing.T) {
	s := SetOf("x", "y")
	assert.True(t, s.Contains("x"))
	assert.False(t, s.Contains("z"))

	s.Add("z")
	assert.True(t, s.Contains("z"))

	s.Remove("z")
	assert.False(t, s.Contains("z"))

	assert.Equal(t, []string{"x", "y"}, s.SortedValues(cmp.Compare))
	assert.ElementsMatch(t, []string{"x", "y"}, ToSet([]string{"x", "y", "x"}).Values())
}
