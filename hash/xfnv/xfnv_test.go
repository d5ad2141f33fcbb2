/*
 * Copyright 2024 CloudWeGo Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package xfnv

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHash(t *testing.T) {
	require.Equal(t, Hash([]byte("1234")), Hash([]byte("1234")))
	require.NotEqual(t, Hash([]byte("12345")), Hash([]byte("12346")))
	require.Equal(t, Hash([]byte("12345678")), Hash([]byte("12345678")))
	require.NotEqual(t, Hash([]byte("123456789")), Hash([]byte("123456788")))
}

func TestHashEmpty(t *testing.T) {
	require.Equal(t, Hash(nil), Hash([]byte{}))
}

func BenchmarkHash(b *testing.B) {
	data := make([]byte, 256)
	for i := range data {
		data[i] = byte(i)
	}
	b.SetBytes(int64(len(data)))
	for i := 0; i < b.N; i++ {
		_ = Hash(data)
	}
}
