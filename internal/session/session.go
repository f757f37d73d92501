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
// Package session holds the Session record — an image's persistent message
// log — and the repository contract the persistence backends satisfy for it.
package session

import (
	"context"

	"github.com/teradata-labs/loomrun/internal/message"
)

// Session is the persistent record backing one Image's message log.
type Session struct {
	SessionID   string
	ImageID     string
	ContainerID string
	CreatedAt   int64
	UpdatedAt   int64
}

// Store is the persistence contract for sessions.
// image_create persists the owning Image and its Session atomically; see
// the persistence backends for the transaction boundary.
type Store interface {
	SaveSession(ctx context.Context, s Session) error
	AddMessage(ctx context.Context, sessionID string, m message.Message) error
	GetMessages(ctx context.Context, sessionID string) ([]message.Message, error)
	ClearMessages(ctx context.Context, sessionID string) error
	DeleteSession(ctx context.Context, sessionID string) error
}
