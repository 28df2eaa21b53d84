/*
Copyright 2024 The Redo Log Engine Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

     http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package redolog

import (
	"sync"

	"github.com/redologengine/redolog/pkg/lsn"
)

// Consumer is the small capability object spec.md §9 prescribes in place
// of dynamic dispatch: a name, a callback reporting the oldest LSN this
// collaborator still needs, and a rush callback Reserve calls when a
// reservation would push the logical log size past soft or hard
// capacity.
type Consumer struct {
	Name      string
	OldestLSN func() lsn.LSN
	Rush      func()
}

// consumerRegistry is the fixed, linearly-scanned set of registered
// consumers, per spec.md §4.4/§6. The checkpointer registers itself as
// the last-resort consumer so oldestNeeded never runs ahead of what has
// actually been made durable and checkpointed.
type consumerRegistry struct {
	mu        sync.Mutex
	consumers []Consumer
}

func newConsumerRegistry() *consumerRegistry {
	return &consumerRegistry{}
}

// Register adds c, replacing any existing consumer with the same name.
func (r *consumerRegistry) Register(c Consumer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.consumers {
		if r.consumers[i].Name == c.Name {
			r.consumers[i] = c
			return
		}
	}
	r.consumers = append(r.consumers, c)
}

// Unregister removes the consumer named name, if present.
func (r *consumerRegistry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.consumers {
		if r.consumers[i].Name == name {
			r.consumers = append(r.consumers[:i], r.consumers[i+1:]...)
			return
		}
	}
}

// OldestNeeded returns the minimum, over every registered consumer, of
// its oldest-needed LSN. With no consumers registered (before Start
// registers the checkpointer) it returns fallback.
func (r *consumerRegistry) OldestNeeded(fallback lsn.LSN) lsn.LSN {
	r.mu.Lock()
	cs := make([]Consumer, len(r.consumers))
	copy(cs, r.consumers)
	r.mu.Unlock()

	if len(cs) == 0 {
		return fallback
	}
	oldest := cs[0].OldestLSN()
	for _, c := range cs[1:] {
		if l := c.OldestLSN(); l < oldest {
			oldest = l
		}
	}
	return oldest
}

// Rush calls every registered consumer's Rush callback, asking them to
// release their hold on old LSNs sooner (spec.md §4.4 step 7).
func (r *consumerRegistry) Rush() {
	r.mu.Lock()
	cs := make([]Consumer, len(r.consumers))
	copy(cs, r.consumers)
	r.mu.Unlock()

	for _, c := range cs {
		if c.Rush != nil {
			c.Rush()
		}
	}
}
