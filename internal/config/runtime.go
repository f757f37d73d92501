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
// Package config holds the runtime's process-wide RuntimeConfig: the five
// configuration options this runtime recognizes, plus secret resolution
// for provider API keys.
package config

import (
	"fmt"
	"strings"
	"sync"

	"github.com/zalando/go-keyring"
)

// LLMProviderKind selects which Environment adapter the factory builds.
type LLMProviderKind string

const (
	ProviderAnthropic  LLMProviderKind = "anthropic"
	ProviderBedrock    LLMProviderKind = "bedrock"
	ProviderSSEGateway LLMProviderKind = "sse"
)

// LLMProvider is the factory-yielded credential/model bundle the Effector
// uses to construct its SDK client.
type LLMProvider struct {
	Kind    LLMProviderKind
	APIKey  string
	BaseURL string
	Model   string
	Region  string // bedrock
}

// DefaultAgent is merged into image_create when the caller's config omits
// fields.
type DefaultAgent struct {
	Name         string
	Description  string
	SystemPrompt string
	MCPServers   []string
}

// PersistenceKind selects which backend Store implementation to construct.
type PersistenceKind string

const (
	PersistenceSQLite   PersistenceKind = "sqlite"
	PersistencePostgres PersistenceKind = "postgres"
)

// PersistenceConfig configures the persistence backend.
type PersistenceConfig struct {
	Kind      PersistenceKind
	DSN       string // sqlite path or postgres connection string
	Encrypted bool   // sqlite only: use go-sqlcipher instead of modernc.org/sqlite
}

// RuntimeConfig is the process-wide configuration the core reads; it holds
// exactly this runtime's configuration options.
type RuntimeConfig struct {
	mu sync.RWMutex

	Persistence  PersistenceConfig
	LLMProvider  LLMProvider
	BasePath     string
	DefaultAgent DefaultAgent

	// EnvironmentFactoryOverride lets tests substitute a fake Environment
	// without touching any other wiring; nil means "use the real factory".
	EnvironmentFactoryOverride any
}

var (
	global     *RuntimeConfig
	globalOnce sync.Once
)

// Get returns the process-wide RuntimeConfig, constructing one with
// BasePath "." and every other field zero on first access.
func Get() *RuntimeConfig {
	globalOnce.Do(func() {
		global = &RuntimeConfig{BasePath: "."}
	})
	return global
}

// Set replaces the process-wide RuntimeConfig.
func Set(cfg *RuntimeConfig) {
	global = cfg
}

// ResolveAPIKey returns the LLM provider's API key, resolving it through the
// OS keyring when the configured value is a "keyring:service/account"
// reference rather than a literal key, so API keys never need to live in a
// config file on disk.
func (c *RuntimeConfig) ResolveAPIKey() (string, error) {
	c.mu.RLock()
	raw := c.LLMProvider.APIKey
	c.mu.RUnlock()

	const prefix = "keyring:"
	if !strings.HasPrefix(raw, prefix) {
		return raw, nil
	}
	ref := strings.TrimPrefix(raw, prefix)
	parts := strings.SplitN(ref, "/", 2)
	if len(parts) != 2 {
		return "", fmt.Errorf("config: malformed keyring reference %q, want service/account", raw)
	}
	return keyring.Get(parts[0], parts[1])
}

// WithDefaultAgent merges the configured DefaultAgent with incoming, preferring
// the caller's non-empty fields (incoming wins), image_create's merge rule.
func (c *RuntimeConfig) WithDefaultAgent(incoming DefaultAgent) DefaultAgent {
	c.mu.RLock()
	defaults := c.DefaultAgent
	c.mu.RUnlock()

	merged := defaults
	if incoming.Name != "" {
		merged.Name = incoming.Name
	}
	if incoming.Description != "" {
		merged.Description = incoming.Description
	}
	if incoming.SystemPrompt != "" {
		merged.SystemPrompt = incoming.SystemPrompt
	}
	if len(incoming.MCPServers) > 0 {
		merged.MCPServers = incoming.MCPServers
	}
	return merged
}
