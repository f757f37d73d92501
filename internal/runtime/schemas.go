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

// requestSchemas holds a JSON Schema (draft-07 subset gojsonschema supports)
// per request type, validated at the CommandHandler boundary before the
// operation runs. Payloads not
// listed here (simple or empty-bodied requests) skip schema validation.
var requestSchemas = map[string]string{
	"container_create_request": `{
		"type": "object",
		"required": ["containerId"],
		"properties": {"containerId": {"type": "string", "minLength": 1}}
	}`,
	"container_get_request": `{
		"type": "object",
		"required": ["containerId"],
		"properties": {"containerId": {"type": "string", "minLength": 1}}
	}`,
	"image_create_request": `{
		"type": "object",
		"required": ["containerId"],
		"properties": {
			"containerId": {"type": "string", "minLength": 1},
			"config": {"type": "object"}
		}
	}`,
	"image_run_request": `{
		"type": "object",
		"required": ["imageId"],
		"properties": {"imageId": {"type": "string", "minLength": 1}}
	}`,
	"image_stop_request": `{
		"type": "object",
		"required": ["imageId"],
		"properties": {"imageId": {"type": "string", "minLength": 1}}
	}`,
	"image_update_request": `{
		"type": "object",
		"required": ["imageId"],
		"properties": {"imageId": {"type": "string", "minLength": 1}}
	}`,
	"image_get_request": `{
		"type": "object",
		"required": ["imageId"],
		"properties": {"imageId": {"type": "string", "minLength": 1}}
	}`,
	"image_delete_request": `{
		"type": "object",
		"required": ["imageId"],
		"properties": {"imageId": {"type": "string", "minLength": 1}}
	}`,
	"image_messages_request": `{
		"type": "object",
		"required": ["imageId"],
		"properties": {"imageId": {"type": "string", "minLength": 1}}
	}`,
	"message_send_request": `{
		"type": "object",
		"required": ["content"],
		"properties": {
			"imageId": {"type": "string"},
			"agentId": {"type": "string"},
			"content": {"type": "array", "minItems": 1}
		}
	}`,
	"agent_interrupt_request": `{
		"type": "object",
		"properties": {
			"imageId": {"type": "string"},
			"agentId": {"type": "string"}
		}
	}`,
	"agent_get_request": `{
		"type": "object",
		"required": ["agentId"],
		"properties": {"agentId": {"type": "string", "minLength": 1}}
	}`,
	"agent_destroy_request": `{
		"type": "object",
		"required": ["agentId"],
		"properties": {"agentId": {"type": "string", "minLength": 1}}
	}`,
}
