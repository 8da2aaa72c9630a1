// Copyright 2023 LiveKit, Inc.
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

package opsqueue

import (
	"sync"

	"github.com/frostbyte73/core"
	"github.com/gammazero/deque"

	"github.com/livekit/protocol/logger"
)

// OpsQueue runs queued functions one at a time, in the order they were enqueued,
// on a single goroutine. Unlike a buffered channel it never drops or blocks on Enqueue.
type OpsQueue struct {
	logger logger.Logger
	name   string

	lock      sync.Mutex
	ops       deque.Deque[func()]
	wake      chan struct{}
	isStarted bool

	stop core.Fuse
	done core.Fuse
}

func NewOpsQueue(logger logger.Logger, name string) *OpsQueue {
	return &OpsQueue{
		logger: logger,
		name:   name,
		wake:   make(chan struct{}, 1),
	}
}

func (oq *OpsQueue) SetLogger(logger logger.Logger) {
	oq.lock.Lock()
	defer oq.lock.Unlock()

	oq.logger = logger
}

func (oq *OpsQueue) Start() {
	oq.lock.Lock()
	if oq.isStarted {
		oq.lock.Unlock()
		return
	}
	oq.isStarted = true
	oq.lock.Unlock()

	go oq.process()
}

// Stop prevents new ops from being enqueued. Ops already in the queue still run;
// the returned channel is closed once they have.
func (oq *OpsQueue) Stop() <-chan struct{} {
	oq.stop.Break()

	oq.lock.Lock()
	started := oq.isStarted
	oq.lock.Unlock()
	if !started {
		oq.done.Break()
	}
	return oq.done.Watch()
}

func (oq *OpsQueue) Enqueue(op func()) {
	if oq.stop.IsBroken() {
		return
	}

	oq.lock.Lock()
	// process decides to exit under the lock, so nothing pushed here is left behind
	if oq.stop.IsBroken() {
		oq.lock.Unlock()
		return
	}
	oq.ops.PushBack(op)
	oq.lock.Unlock()

	select {
	case oq.wake <- struct{}{}:
	default:
	}
}

func (oq *OpsQueue) Len() int {
	oq.lock.Lock()
	defer oq.lock.Unlock()

	return oq.ops.Len()
}

func (oq *OpsQueue) process() {
	defer oq.done.Break()

	for {
		oq.lock.Lock()
		if oq.ops.Len() == 0 {
			if oq.stop.IsBroken() {
				oq.lock.Unlock()
				return
			}
			oq.lock.Unlock()

			select {
			case <-oq.wake:
			case <-oq.stop.Watch():
			}
			continue
		}
		op := oq.ops.PopFront()
		oq.lock.Unlock()

		oq.run(op)
	}
}

func (oq *OpsQueue) run(op func()) {
	defer func() {
		if r := recover(); r != nil {
			oq.logger.Errorw("ops queue op panicked", nil, "name", oq.name, "panic", r)
		}
	}()

	op()
}
