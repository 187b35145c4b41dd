// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package internal

import (
	"context"
	"hash/fnv"
	"sync"
)

// Sharded runs handlers on a fixed number of goroutines, routing every value
// with the same key to the same goroutine so values sharing a key are handled
// in dispatch order. Returns a function to dispatch a value and a function
// that stops accepting values and waits for the queued ones to be handled.
func Sharded[T any](
	shards uint,
	queue uint,
	handler func(context.Context, T),
) (func(context.Context, string, T), func()) {
	type args struct {
		ctx context.Context
		val T
	}

	if shards == 0 {
		shards = 1
	}

	var wg sync.WaitGroup
	queues := make([]chan args, shards)
	for i := range queues {
		queues[i] = make(chan args, queue)
		wg.Add(1)
		go func(q <-chan args) {
			defer wg.Done()
			for a := range q {
				handler(a.ctx, a.val)
			}
		}(queues[i])
	}

	// Send the context along so it controls the lifecycle of this handler
	// invocation.
	dispatch := func(ctx context.Context, key string, val T) {
		select {
		case queues[shard(key, shards)] <- args{ctx, val}:
		case <-ctx.Done():
		}
	}

	var once sync.Once
	done := func() {
		once.Do(func() {
			for _, q := range queues {
				close(q)
			}
			wg.Wait()
		})
	}
	return dispatch, done
}

func shard(key string, shards uint) uint {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return uint(h.Sum32()) % shards
}
