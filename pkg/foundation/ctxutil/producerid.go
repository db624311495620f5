// Copyright © 2023 Meroxa, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package ctxutil

import (
	"context"

	"github.com/madmazoku/bulkmixer/pkg/foundation/log"
	"github.com/rs/zerolog"
)

// producerIDCtxKey is used as the key when saving a producer id in a context.
type producerIDCtxKey struct{}

// ContextWithProducerID wraps ctx and returns a context that carries the
// producer id of the connection currently being handled.
func ContextWithProducerID(ctx context.Context, producerID string) context.Context {
	return context.WithValue(ctx, producerIDCtxKey{}, producerID)
}

// ProducerIDFromContext fetches the producer id from the context. If the
// context does not carry one it returns "".
func ProducerIDFromContext(ctx context.Context) string {
	v := ctx.Value(producerIDCtxKey{})
	if v != nil {
		return v.(string)
	}
	return ""
}

// ProducerIDLogCtxHook fetches the producer id from the context and, if
// present, adds it to the log output. Attach it to a logger used while
// handling one connection's Reader so every line it emits is attributable.
type ProducerIDLogCtxHook struct{}

// Run executes the log hook.
func (h ProducerIDLogCtxHook) Run(ctx context.Context, e *zerolog.Event, _ zerolog.Level) {
	p := ProducerIDFromContext(ctx)
	if p != "" {
		e.Str(log.ProducerIDField, p)
	}
}
