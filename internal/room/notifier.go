package room

import (
	"context"
	"sync"
)

type listener struct {
	ch   chan Room
	done <-chan struct{}
}

// LocalNotifier fans rows out inside a single process. It backs the
// embedded SQLite deployment, where there is no second instance to reach.
type LocalNotifier struct {
	mu        sync.RWMutex
	listeners map[*listener]struct{}
	buffer    int
}

func NewLocalNotifier(buffer int) *LocalNotifier {
	if buffer <= 0 {
		buffer = 64
	}
	return &LocalNotifier{listeners: make(map[*listener]struct{}), buffer: buffer}
}

func (n *LocalNotifier) Publish(ctx context.Context, room Room) error {
	n.mu.RLock()
	defer n.mu.RUnlock()
	for l := range n.listeners {
		select {
		case l.ch <- room.Clone():
		case <-l.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (n *LocalNotifier) Listen(ctx context.Context) (<-chan Room, error) {
	l := &listener{ch: make(chan Room, n.buffer), done: ctx.Done()}
	n.mu.Lock()
	n.listeners[l] = struct{}{}
	n.mu.Unlock()

	go func() {
		<-ctx.Done()
		n.mu.Lock()
		delete(n.listeners, l)
		close(l.ch)
		n.mu.Unlock()
	}()
	return l.ch, nil
}
