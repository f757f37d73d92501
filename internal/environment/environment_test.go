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
package environment

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teradata-labs/loomrun/internal/bus"
)

func TestDriveableEventStampsEnvelope(t *testing.T) {
	meta := ReceptorMeta{RequestID: "req-1", Context: bus.EventContext{AgentID: "agent-1", SessionID: "sess-1"}}
	ev := driveableEvent(bus.EventTextDelta, meta, map[string]any{"text": "hi"})

	assert.Equal(t, bus.EventTextDelta, ev.Type)
	assert.Equal(t, bus.SourceEnvironment, ev.Source)
	assert.Equal(t, bus.CategoryStream, ev.Category)
	assert.Equal(t, bus.IntentNotification, ev.Intent)
	assert.Equal(t, "req-1", ev.RequestID)
	require.NotNil(t, ev.Context)
	assert.Equal(t, "agent-1", ev.Context.AgentID)
	assert.Equal(t, "sess-1", ev.Context.SessionID)
}
