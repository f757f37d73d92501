// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package asyncqueue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPushThenNextReturnsBuffered(t *testing.T) {
	q := New[int]()
	q.Push(1)
	q.Push(2)

	v, ok := q.Next()
	require.True(t, ok)
	assert.Equal(t, 1, v)

	v, ok = q.Next()
	require.True(t, ok)
	assert.Equal(t, 2, v)
}

func TestNextBlocksUntilPush(t *testing.T) {
	q := New[string]()
	done := make(chan string, 1)

	go func() {
		v, ok := q.Next()
		if ok {
			done <- v
		}
	}()

	time.Sleep(10 * time.Millisecond)
	q.Push("hello")

	select {
	case v := <-done:
		assert.Equal(t, "hello", v)
	case <-time.After(time.Second):
		t.Fatal("Next did not unblock after Push")
	}
}

func TestCloseUnblocksWaitingConsumer(t *testing.T) {
	q := New[int]()
	done := make(chan bool, 1)

	go func() {
		_, ok := q.Next()
		done <- ok
	}()

	time.Sleep(10 * time.Millisecond)
	q.Close()

	select {
	case ok := <-done:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("Next did not unblock after Close")
	}
}

func TestCloseIsIdempotentAndDropsFuturePushes(t *testing.T) {
	q := New[int]()
	q.Close()
	q.Close() // must not panic

	q.Push(42)
	_, ok := q.Next()
	assert.False(t, ok)
}
