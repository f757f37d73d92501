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
package runtime

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teradata-labs/loomrun/internal/bus"
)

func newTestContainer(t *testing.T) (*RuntimeContainer, *bus.Bus) {
	t.Helper()
	b := bus.New(nil, nil)
	store := newFakeStore()
	c := NewRuntimeContainer(Container{ContainerID: "c1"}, t.TempDir(), b, store, fakeFactory, nil, nil)
	t.Cleanup(func() { c.Dispose(context.Background()) })
	return c, b
}

func TestRunImageReusesLiveAgentForSameImage(t *testing.T) {
	c, _ := newTestContainer(t)
	img := Image{ImageID: "img-1", ContainerID: "c1", SessionID: "sess-1"}

	r1, err := c.RunImage(context.Background(), img)
	require.NoError(t, err)
	assert.False(t, r1.Reused)

	r2, err := c.RunImage(context.Background(), img)
	require.NoError(t, err)
	assert.True(t, r2.Reused)
	assert.Same(t, r1.Agent, r2.Agent)
}

func TestRunImageRebuildsAfterDestroy(t *testing.T) {
	c, _ := newTestContainer(t)
	img := Image{ImageID: "img-1", ContainerID: "c1", SessionID: "sess-1"}

	r1, err := c.RunImage(context.Background(), img)
	require.NoError(t, err)
	require.NoError(t, c.DestroyAgent(context.Background(), r1.Agent.Record.AgentID))

	r2, err := c.RunImage(context.Background(), img)
	require.NoError(t, err)
	assert.False(t, r2.Reused)
	assert.NotSame(t, r1.Agent, r2.Agent)
}

func TestStopImageRemovesMappingAndDestroysAgent(t *testing.T) {
	c, _ := newTestContainer(t)
	img := Image{ImageID: "img-1", ContainerID: "c1", SessionID: "sess-1"}

	r1, err := c.RunImage(context.Background(), img)
	require.NoError(t, err)
	require.NoError(t, c.StopImage(context.Background(), img.ImageID))

	_, ok := c.AgentByImageID(img.ImageID)
	assert.False(t, ok)
	assert.Equal(t, LifecycleDestroyed, r1.Agent.Record.State())
}

func TestDisposeDestroysAllAgentsAndEmitsContainerDestroyed(t *testing.T) {
	c, b := newTestContainer(t)
	img := Image{ImageID: "img-1", ContainerID: "c1", SessionID: "sess-1"}
	_, err := c.RunImage(context.Background(), img)
	require.NoError(t, err)

	var sawDestroyed bool
	b.On("container_destroyed", func(_ context.Context, ev bus.SystemEvent) error {
		sawDestroyed = true
		return nil
	}, bus.SubscribeOptions{})

	require.NoError(t, c.Dispose(context.Background()))
	assert.True(t, sawDestroyed)
	assert.Empty(t, c.ListAgents())
}
