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
package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/teradata-labs/loomrun/internal/message"
	"github.com/teradata-labs/loomrun/internal/runtime"
	"github.com/teradata-labs/loomrun/internal/session"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS containers (
	container_id TEXT PRIMARY KEY,
	created_at   BIGINT NOT NULL
);
CREATE TABLE IF NOT EXISTS images (
	image_id          TEXT PRIMARY KEY,
	container_id      TEXT NOT NULL,
	session_id        TEXT NOT NULL,
	name              TEXT,
	description       TEXT,
	system_prompt     TEXT,
	mcp_servers       TEXT,
	resume_session_id TEXT,
	created_at        BIGINT NOT NULL,
	updated_at        BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_images_container ON images(container_id);
CREATE TABLE IF NOT EXISTS sessions (
	session_id   TEXT PRIMARY KEY,
	image_id     TEXT NOT NULL,
	container_id TEXT NOT NULL,
	created_at   BIGINT NOT NULL,
	updated_at   BIGINT NOT NULL
);
CREATE TABLE IF NOT EXISTS messages (
	id               TEXT PRIMARY KEY,
	session_id       TEXT NOT NULL,
	role             TEXT NOT NULL,
	subtype          TEXT NOT NULL,
	timestamp        BIGINT NOT NULL,
	parent_id        TEXT,
	content_json     TEXT,
	text             TEXT,
	finished_at      BIGINT,
	tool_call_json   TEXT,
	tool_call_id     TEXT,
	tool_result_json TEXT,
	error_text       TEXT,
	error_code       TEXT,
	usage_json       TEXT
);
CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id, timestamp);
`

// PostgresStore implements runtime.Store against lib/pq, for deployments that
// run the daemon as multiple replicas sharing one database (the
// alternate backend — sqlite is single-process by construction).
type PostgresStore struct {
	db *sql.DB
}

// OpenPostgres opens dsn and runs the migration once.
func OpenPostgres(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("persistence: open postgres: %w", err)
	}
	if _, err := db.Exec(postgresSchema); err != nil {
		return nil, fmt.Errorf("persistence: migrate: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) Close() error {
	return errors.Join(s.db.Close())
}

func (s *PostgresStore) SaveContainer(ctx context.Context, c runtime.Container) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO containers(container_id, created_at) VALUES ($1, $2)
		ON CONFLICT(container_id) DO NOTHING`, c.ContainerID, c.CreatedAt)
	return err
}

func (s *PostgresStore) FindContainerByID(ctx context.Context, containerID string) (runtime.Container, bool, error) {
	var c runtime.Container
	err := s.db.QueryRowContext(ctx, `SELECT container_id, created_at FROM containers WHERE container_id = $1`, containerID).
		Scan(&c.ContainerID, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return runtime.Container{}, false, nil
	}
	if err != nil {
		return runtime.Container{}, false, err
	}
	return c, true, nil
}

func (s *PostgresStore) SaveImage(ctx context.Context, img runtime.Image) error {
	mcp, err := json.Marshal(img.MCPServers)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO images(image_id, container_id, session_id, name, description, system_prompt, mcp_servers, resume_session_id, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		ON CONFLICT(image_id) DO UPDATE SET
			name=excluded.name, description=excluded.description, system_prompt=excluded.system_prompt,
			mcp_servers=excluded.mcp_servers, resume_session_id=excluded.resume_session_id, updated_at=excluded.updated_at`,
		img.ImageID, img.ContainerID, img.SessionID, img.Name, img.Description, img.SystemPrompt, string(mcp),
		img.Metadata.ResumeSessionID, img.CreatedAt, img.UpdatedAt)
	return err
}

const pgImageColumns = `image_id, container_id, session_id, name, description, system_prompt, mcp_servers, resume_session_id, created_at, updated_at`

func (s *PostgresStore) FindImageByID(ctx context.Context, imageID string) (runtime.Image, bool, error) {
	var img runtime.Image
	var mcp string
	err := s.db.QueryRowContext(ctx, `SELECT `+pgImageColumns+` FROM images WHERE image_id = $1`, imageID).
		Scan(&img.ImageID, &img.ContainerID, &img.SessionID, &img.Name, &img.Description, &img.SystemPrompt,
			&mcp, &img.Metadata.ResumeSessionID, &img.CreatedAt, &img.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return runtime.Image{}, false, nil
	}
	if err != nil {
		return runtime.Image{}, false, err
	}
	_ = json.Unmarshal([]byte(mcp), &img.MCPServers)
	return img, true, nil
}

func (s *PostgresStore) queryImages(ctx context.Context, query string, args ...any) ([]runtime.Image, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []runtime.Image
	for rows.Next() {
		var img runtime.Image
		var mcp string
		if err := rows.Scan(&img.ImageID, &img.ContainerID, &img.SessionID, &img.Name, &img.Description, &img.SystemPrompt,
			&mcp, &img.Metadata.ResumeSessionID, &img.CreatedAt, &img.UpdatedAt); err != nil {
			return nil, err
		}
		_ = json.Unmarshal([]byte(mcp), &img.MCPServers)
		out = append(out, img)
	}
	return out, rows.Err()
}

func (s *PostgresStore) FindImagesByContainerID(ctx context.Context, containerID string) ([]runtime.Image, error) {
	return s.queryImages(ctx, `SELECT `+pgImageColumns+` FROM images WHERE container_id = $1`, containerID)
}

func (s *PostgresStore) FindAllImages(ctx context.Context) ([]runtime.Image, error) {
	return s.queryImages(ctx, `SELECT `+pgImageColumns+` FROM images`)
}

func (s *PostgresStore) UpdateMetadata(ctx context.Context, imageID string, meta runtime.ImageMetadata) error {
	_, err := s.db.ExecContext(ctx, `UPDATE images SET resume_session_id = $1 WHERE image_id = $2`, meta.ResumeSessionID, imageID)
	return err
}

func (s *PostgresStore) DeleteImage(ctx context.Context, imageID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM images WHERE image_id = $1`, imageID)
	return err
}

func (s *PostgresStore) SaveSession(ctx context.Context, sess session.Session) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions(session_id, image_id, container_id, created_at, updated_at) VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT(session_id) DO UPDATE SET updated_at = excluded.updated_at`,
		sess.SessionID, sess.ImageID, sess.ContainerID, sess.CreatedAt, sess.UpdatedAt)
	return err
}

func (s *PostgresStore) AddMessage(ctx context.Context, sessionID string, m message.Message) error {
	content, _ := json.Marshal(m.Content)
	toolCall, _ := json.Marshal(m.ToolCall)
	toolResult, _ := json.Marshal(m.ToolResult)
	var usage []byte
	if m.Usage != nil {
		usage, _ = json.Marshal(m.Usage)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO messages(id, session_id, role, subtype, timestamp, parent_id, content_json, text, finished_at,
			tool_call_json, tool_call_id, tool_result_json, error_text, error_code, usage_json)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
		ON CONFLICT(id) DO UPDATE SET
			tool_result_json=excluded.tool_result_json, tool_call_id=excluded.tool_call_id`,
		m.ID, sessionID, string(m.Role), string(m.Subtype), m.Timestamp, m.ParentID, string(content), m.Text, m.FinishedAt,
		string(toolCall), m.ToolCallID, string(toolResult), m.ErrorText, m.ErrorCode, string(usage))
	return err
}

func (s *PostgresStore) GetMessages(ctx context.Context, sessionID string) ([]message.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, role, subtype, timestamp, parent_id, content_json, text, finished_at,
			tool_call_json, tool_call_id, tool_result_json, error_text, error_code, usage_json
		FROM messages WHERE session_id = $1 ORDER BY timestamp ASC`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []message.Message
	for rows.Next() {
		var m message.Message
		var content, toolCall, toolResult, usage string
		if err := rows.Scan(&m.ID, &m.Role, &m.Subtype, &m.Timestamp, &m.ParentID, &content, &m.Text, &m.FinishedAt,
			&toolCall, &m.ToolCallID, &toolResult, &m.ErrorText, &m.ErrorCode, &usage); err != nil {
			return nil, err
		}
		m.SessionID = sessionID
		_ = json.Unmarshal([]byte(content), &m.Content)
		_ = json.Unmarshal([]byte(toolCall), &m.ToolCall)
		_ = json.Unmarshal([]byte(toolResult), &m.ToolResult)
		if usage != "" {
			var u message.Usage
			if json.Unmarshal([]byte(usage), &u) == nil {
				m.Usage = &u
			}
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *PostgresStore) ClearMessages(ctx context.Context, sessionID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE session_id = $1`, sessionID)
	return err
}

func (s *PostgresStore) DeleteSession(ctx context.Context, sessionID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE session_id = $1`, sessionID)
	return err
}

// CreateImageWithSession persists img and sess atomically, mirroring SQLiteStore.
func (s *PostgresStore) CreateImageWithSession(ctx context.Context, img runtime.Image, sess session.Session) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	mcp, err := json.Marshal(img.MCPServers)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO images(image_id, container_id, session_id, name, description, system_prompt, mcp_servers, resume_session_id, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		img.ImageID, img.ContainerID, img.SessionID, img.Name, img.Description, img.SystemPrompt, string(mcp),
		img.Metadata.ResumeSessionID, img.CreatedAt, img.UpdatedAt); err != nil {
		return fmt.Errorf("persistence: insert image: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO sessions(session_id, image_id, container_id, created_at, updated_at) VALUES ($1,$2,$3,$4,$5)`,
		sess.SessionID, sess.ImageID, sess.ContainerID, sess.CreatedAt, sess.UpdatedAt); err != nil {
		return fmt.Errorf("persistence: insert session: %w", err)
	}
	return tx.Commit()
}
