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

package origin

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCursorAdvancedBy(t *testing.T) {
	testCases := []struct {
		text     string
		expected Cursor
	}{
		{"", Cursor{Line: 1, Column: 1}},
		{"abc", Cursor{Line: 1, Column: 4, Offset: 3}},
		{"a\n", Cursor{Line: 2, Column: 1, Offset: 2}},
		{"a\nbc", Cursor{Line: 2, Column: 3, Offset: 4}},
		{"\n\n", Cursor{Line: 3, Column: 1, Offset: 2}},
	}
	for _, tc := range testCases {
		assert.Equal(t, tc.expected, CursorInit.AdvancedBy(tc.text), "advancing by %q", tc.text)
	}
}

func TestSpanning(t *testing.T) {
	c := CursorInit.AdvancedBy("ab\n")
	o := c.Spanning("kernel.okl", "xyz")
	assert.Equal(t, Origin{Path: "kernel.okl", Line: 2, Column: 1, Start: 3, End: 6}, o)
	assert.Equal(t, "kernel.okl:2:1", o.String())
}

func TestOriginString(t *testing.T) {
	assert.Equal(t, "<input>:0:0", Origin{}.String())
	assert.True(t, Origin{}.IsZero())
}
