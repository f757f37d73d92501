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
package pubsub

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEventConstructorsStampType(t *testing.T) {
	created := NewCreatedEvent("a")
	assert.Equal(t, CreatedEvent, created.Type)
	assert.Equal(t, "a", created.Payload)

	updated := NewUpdatedEvent(42)
	assert.Equal(t, UpdatedEvent, updated.Type)
	assert.Equal(t, 42, updated.Payload)

	deleted := NewDeletedEvent(struct{ ID string }{ID: "x"})
	assert.Equal(t, DeletedEvent, deleted.Type)
	assert.Equal(t, "x", deleted.Payload.ID)
}
