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
	"github.com/teradata-labs/loomrun/internal/config"
	"github.com/teradata-labs/loomrun/internal/message"
)

func newTestRuntime(t *testing.T) (*Runtime, *fakeStore) {
	t.Helper()
	store := newFakeStore()
	b := bus.New(nil, nil)
	cfg := &config.RuntimeConfig{BasePath: t.TempDir()}
	rt := New(b, store, fakeFactory, nil, cfg, nil)
	t.Cleanup(func() { rt.Dispose(context.Background()) })
	return rt, store
}

func TestContainerCreateIsIdempotentByID(t *testing.T) {
	rt, _ := newTestRuntime(t)
	ctx := context.Background()

	id1, err := rt.ContainerCreate(ctx, "c1")
	require.NoError(t, err)
	id2, err := rt.ContainerCreate(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, id1, id2)
	assert.True(t, rt.ContainerGet("c1"))
	assert.ElementsMatch(t, []string{"c1"}, rt.ContainerList())
}

func TestImageCreateMergesDefaultAgentAndPersistsAtomically(t *testing.T) {
	rt, store := newTestRuntime(t)
	ctx := context.Background()

	rt.cfg.DefaultAgent = config.DefaultAgent{Name: "default-name", SystemPrompt: "be kind"}

	img, err := rt.ImageCreate(ctx, ImageCreateInput{ContainerID: "c1"})
	require.NoError(t, err)
	assert.Equal(t, "default-name", img.Name)
	assert.Equal(t, "be kind", img.SystemPrompt)

	_, ok, err := store.FindImageByID(ctx, img.ImageID)
	require.NoError(t, err)
	assert.True(t, ok)
	_, ok = store.sessions[img.SessionID]
	assert.True(t, ok, "CreateImageWithSession must persist both records together")
}

func TestImageRunThenRunAgainReusesAgent(t *testing.T) {
	rt, _ := newTestRuntime(t)
	ctx := context.Background()

	img, err := rt.ImageCreate(ctx, ImageCreateInput{ContainerID: "c1"})
	require.NoError(t, err)

	agentID1, reused1, err := rt.ImageRun(ctx, img.ImageID)
	require.NoError(t, err)
	assert.False(t, reused1)

	agentID2, reused2, err := rt.ImageRun(ctx, img.ImageID)
	require.NoError(t, err)
	assert.True(t, reused2)
	assert.Equal(t, agentID1, agentID2)
}

func TestImageDeleteStopsAgentAndClearsSessionThenImage(t *testing.T) {
	rt, store := newTestRuntime(t)
	ctx := context.Background()

	img, err := rt.ImageCreate(ctx, ImageCreateInput{ContainerID: "c1"})
	require.NoError(t, err)
	agentID, _, err := rt.ImageRun(ctx, img.ImageID)
	require.NoError(t, err)

	require.NoError(t, store.AddMessage(ctx, img.SessionID, message.NewUserMessage("m1", img.SessionID, nil, 1)))

	require.NoError(t, rt.ImageDelete(ctx, img.ImageID))

	_, ok, err := store.FindImageByID(ctx, img.ImageID)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, store.messages[img.SessionID])
	_, ok = store.sessions[img.SessionID]
	assert.False(t, ok)

	_, stillOnline := rt.AgentGet(agentID)
	assert.False(t, stillOnline)
}

func TestMessageSendAutoActivatesOfflineImage(t *testing.T) {
	rt, _ := newTestRuntime(t)
	ctx := context.Background()

	img, err := rt.ImageCreate(ctx, ImageCreateInput{ContainerID: "c1"})
	require.NoError(t, err)

	agentID, err := rt.MessageSend(ctx, img.ImageID, "", []message.ContentPart{{Type: "text", Text: "hi"}}, "req-1")
	require.NoError(t, err)
	assert.NotEmpty(t, agentID)

	state, ok := rt.AgentGet(agentID)
	require.True(t, ok)
	assert.Equal(t, LifecycleRunning, state)
}

func TestAgentInterruptOnOfflineImageIsNoOp(t *testing.T) {
	rt, _ := newTestRuntime(t)
	ctx := context.Background()

	img, err := rt.ImageCreate(ctx, ImageCreateInput{ContainerID: "c1"})
	require.NoError(t, err)

	agentID, err := rt.AgentInterrupt(ctx, img.ImageID, "", "req-1")
	require.NoError(t, err)
	assert.Empty(t, agentID)
}

func TestDisposeRejectsFurtherOperations(t *testing.T) {
	rt, _ := newTestRuntime(t)
	ctx := context.Background()
	require.NoError(t, rt.Dispose(ctx))

	_, err := rt.ContainerCreate(ctx, "c1")
	assert.ErrorIs(t, err, errDisposed)
}
