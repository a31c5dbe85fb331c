package event

import (
	"context"
	"errors"
	"log"
	"time"
)

// Listener consumes events from a publisher's queue on a dedicated goroutine
// and hands them to the registered handler.
type Listener[T any] struct {
	publisher *Publisher[T]
	handler   func(*Event[T])
	ctx       context.Context
	cancel    context.CancelFunc
}

func NewListener[T any](publisher *Publisher[T], handler func(*Event[T])) *Listener[T] {
	ctx, cancel := context.WithCancel(context.Background())
	return &Listener[T]{
		publisher: publisher,
		handler:   handler,
		ctx:       ctx,
		cancel:    cancel,
	}
}

func (l *Listener[T]) Stop() {
	l.cancel()
}

func (l *Listener[T]) Start() {
	go func() {
		for {
			select {
			case <-l.ctx.Done():
				return
			default:
				event, err := l.publisher.Consume(l.ctx)
				if err != nil {
					if errors.Is(err, context.Canceled) {
						return
					}
					log.Printf("event listener: consume failed: %v", err)
					continue
				}
				if event == nil {
					// empty poll-style queue; back off briefly
					time.Sleep(10 * time.Millisecond)
					continue
				}
				l.handler(event)
			}
		}
	}()
}
