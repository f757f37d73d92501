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
	"fmt"
	"sync"

	"github.com/teradata-labs/loomrun/internal/bus"
	"github.com/teradata-labs/loomrun/internal/environment"
	"github.com/teradata-labs/loomrun/internal/message"
	"github.com/teradata-labs/loomrun/internal/session"
)

// fakeStore is an in-memory runtime.Store for tests that exercise Runtime/
// CommandHandler without a real persistence backend.
type fakeStore struct {
	mu         sync.Mutex
	containers map[string]Container
	images     map[string]Image
	sessions   map[string]session.Session
	messages   map[string][]message.Message
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		containers: map[string]Container{},
		images:     map[string]Image{},
		sessions:   map[string]session.Session{},
		messages:   map[string][]message.Message{},
	}
}

func (s *fakeStore) SaveContainer(_ context.Context, c Container) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.containers[c.ContainerID] = c
	return nil
}

func (s *fakeStore) FindContainerByID(_ context.Context, containerID string) (Container, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.containers[containerID]
	return c, ok, nil
}

func (s *fakeStore) SaveImage(_ context.Context, img Image) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.images[img.ImageID] = img
	return nil
}

func (s *fakeStore) FindImageByID(_ context.Context, imageID string) (Image, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	img, ok := s.images[imageID]
	return img, ok, nil
}

func (s *fakeStore) FindImagesByContainerID(_ context.Context, containerID string) ([]Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Image
	for _, img := range s.images {
		if img.ContainerID == containerID {
			out = append(out, img)
		}
	}
	return out, nil
}

func (s *fakeStore) FindAllImages(_ context.Context) ([]Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Image, 0, len(s.images))
	for _, img := range s.images {
		out = append(out, img)
	}
	return out, nil
}

func (s *fakeStore) UpdateMetadata(_ context.Context, imageID string, meta ImageMetadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	img, ok := s.images[imageID]
	if !ok {
		return fmt.Errorf("fakeStore: unknown image %q", imageID)
	}
	img.Metadata = meta
	s.images[imageID] = img
	return nil
}

func (s *fakeStore) DeleteImage(_ context.Context, imageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.images, imageID)
	return nil
}

func (s *fakeStore) SaveSession(_ context.Context, sess session.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.SessionID] = sess
	return nil
}

func (s *fakeStore) AddMessage(_ context.Context, sessionID string, m message.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages[sessionID] = append(s.messages[sessionID], m)
	return nil
}

func (s *fakeStore) GetMessages(_ context.Context, sessionID string) ([]message.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.messages[sessionID], nil
}

func (s *fakeStore) ClearMessages(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.messages, sessionID)
	return nil
}

func (s *fakeStore) DeleteSession(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
	return nil
}

func (s *fakeStore) CreateImageWithSession(_ context.Context, img Image, sess session.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.images[img.ImageID] = img
	s.sessions[sess.SessionID] = sess
	return nil
}

var _ Store = (*fakeStore)(nil)

// fakeEnvironment is a no-op environment.Environment: it never drives a real
// turn, so tests exercise Runtime/CommandHandler wiring without a live LLM.
type fakeEnvironment struct{}

func (fakeEnvironment) Warmup(context.Context) error { return nil }
func (fakeEnvironment) Close() error                 { return nil }

func fakeFactory(cfg environment.Config, _ bus.Producer, _ bus.Consumer) (environment.Environment, error) {
	return fakeEnvironment{}, nil
}
