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

	"github.com/teradata-labs/loomrun/internal/session"
)

// ContainerStore is the persistence contract for container records (§6).
type ContainerStore interface {
	SaveContainer(ctx context.Context, c Container) error
	FindContainerByID(ctx context.Context, containerID string) (Container, bool, error)
}

// ImageStore is the persistence contract for image records (§6).
type ImageStore interface {
	SaveImage(ctx context.Context, img Image) error
	FindImageByID(ctx context.Context, imageID string) (Image, bool, error)
	FindImagesByContainerID(ctx context.Context, containerID string) ([]Image, error)
	FindAllImages(ctx context.Context) ([]Image, error)
	UpdateMetadata(ctx context.Context, imageID string, meta ImageMetadata) error
	DeleteImage(ctx context.Context, imageID string) error
}

// Store is the full persistence surface the command handler needs:
// containers, images, and (via session.Store) sessions/messages. image_create
// atomicity (image+session together) is the backend's responsibility.
type Store interface {
	ContainerStore
	ImageStore
	session.Store

	CreateImageWithSession(ctx context.Context, img Image, sess session.Session) error
}
