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
package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveAPIKeyReturnsLiteralWithoutKeyringPrefix(t *testing.T) {
	cfg := &RuntimeConfig{LLMProvider: LLMProvider{APIKey: "sk-literal"}}
	key, err := cfg.ResolveAPIKey()
	require.NoError(t, err)
	assert.Equal(t, "sk-literal", key)
}

func TestResolveAPIKeyRejectsMalformedKeyringReference(t *testing.T) {
	cfg := &RuntimeConfig{LLMProvider: LLMProvider{APIKey: "keyring:no-slash-here"}}
	_, err := cfg.ResolveAPIKey()
	assert.Error(t, err)
}

func TestWithDefaultAgentIncomingWins(t *testing.T) {
	cfg := &RuntimeConfig{DefaultAgent: DefaultAgent{
		Name: "default-name", Description: "default-desc", SystemPrompt: "default-prompt",
		MCPServers: []string{"default-server"},
	}}

	merged := cfg.WithDefaultAgent(DefaultAgent{Name: "custom-name"})
	assert.Equal(t, "custom-name", merged.Name)
	assert.Equal(t, "default-desc", merged.Description)
	assert.Equal(t, "default-prompt", merged.SystemPrompt)
	assert.Equal(t, []string{"default-server"}, merged.MCPServers)
}

func TestWithDefaultAgentFallsBackToDefaultsWhenIncomingEmpty(t *testing.T) {
	cfg := &RuntimeConfig{DefaultAgent: DefaultAgent{Name: "default-name"}}
	merged := cfg.WithDefaultAgent(DefaultAgent{})
	assert.Equal(t, "default-name", merged.Name)
}

func TestGetReturnsSameSingletonAcrossCalls(t *testing.T) {
	a := Get()
	b := Get()
	assert.Same(t, a, b)
}
