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
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"github.com/teradata-labs/loomrun/internal/message"
)

// Estimator counts tokens locally for providers that don't report usage on
// the wire. One encoding is loaded lazily and
// shared across turns; cl100k_base is a reasonable approximation for
// Claude-family models, which don't publish a public tiktoken encoding.
type Estimator struct {
	once sync.Once
	enc  *tiktoken.Tiktoken
	err  error
}

func (e *Estimator) encoding() (*tiktoken.Tiktoken, error) {
	e.once.Do(func() {
		e.enc, e.err = tiktoken.GetEncoding("cl100k_base")
	})
	return e.enc, e.err
}

// Estimate returns a token count estimate for text, or 0 if the encoding
// failed to load (estimation is best-effort, never fatal).
func (e *Estimator) Estimate(text string) int {
	enc, err := e.encoding()
	if err != nil || enc == nil {
		return 0
	}
	return len(enc.Encode(text, nil, nil))
}

// EstimateUsage builds a Usage for an assistant message when the provider
// did not report token counts, estimating output tokens from its text and
// input tokens from the preceding user turn's content.
func (e *Estimator) EstimateUsage(model string, inputText string, outputText string) *message.Usage {
	return &message.Usage{
		InputTokens:  e.Estimate(inputText),
		OutputTokens: e.Estimate(outputText),
		Model:        model,
	}
}
