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
package session

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teradata-labs/loomrun/internal/message"
)

// fakeStore is an in-memory Store used to exercise the contract shape; the
// concrete backends (internal/persistence) have their own tests.
type fakeStore struct {
	sessions map[string]Session
	messages map[string][]message.Message
}

func newFakeStore() *fakeStore {
	return &fakeStore{sessions: map[string]Session{}, messages: map[string][]message.Message{}}
}

func (s *fakeStore) SaveSession(_ context.Context, sess Session) error {
	s.sessions[sess.SessionID] = sess
	return nil
}

func (s *fakeStore) AddMessage(_ context.Context, sessionID string, m message.Message) error {
	s.messages[sessionID] = append(s.messages[sessionID], m)
	return nil
}

func (s *fakeStore) GetMessages(_ context.Context, sessionID string) ([]message.Message, error) {
	return s.messages[sessionID], nil
}

func (s *fakeStore) ClearMessages(_ context.Context, sessionID string) error {
	delete(s.messages, sessionID)
	return nil
}

func (s *fakeStore) DeleteSession(_ context.Context, sessionID string) error {
	delete(s.sessions, sessionID)
	delete(s.messages, sessionID)
	return nil
}

var _ Store = (*fakeStore)(nil)

func TestStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()

	sess := Session{SessionID: "sess-1", ImageID: "img-1", ContainerID: "c-1", CreatedAt: 1, UpdatedAt: 1}
	require.NoError(t, store.SaveSession(ctx, sess))

	m := message.NewUserMessage("msg-1", "sess-1", []message.ContentPart{{Type: "text", Text: "hello"}}, 1)
	require.NoError(t, store.AddMessage(ctx, "sess-1", m))

	got, err := store.GetMessages(ctx, "sess-1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, m.ID, got[0].ID)
	require.Len(t, got[0].Content, 1)
	assert.Equal(t, "hello", got[0].Content[0].Text)

	require.NoError(t, store.ClearMessages(ctx, "sess-1"))
	got, err = store.GetMessages(ctx, "sess-1")
	require.NoError(t, err)
	assert.Empty(t, got)

	require.NoError(t, store.DeleteSession(ctx, "sess-1"))
	_, ok := store.sessions["sess-1"]
	assert.False(t, ok)
}
