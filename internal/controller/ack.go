package controller

import (
	"context"
	"time"

	"github.com/dreamware/dstore/internal/noderegistry"
)

// awaitChans waits on a set of already-registered per-node waiter
// channels (keyed by port) until every one has delivered or deadline
// passes, whichever comes first. Nodes absent from the result either
// timed out or had their session close first.
func awaitChans(chans map[int]chan noderegistry.Message, deadline time.Time) map[int]noderegistry.Message {
	ctx, cancel := context.WithDeadline(context.Background(), deadline)
	defer cancel()

	type arrival struct {
		port int
		msg  noderegistry.Message
	}
	results := make(chan arrival, len(chans))
	for port, ch := range chans {
		port, ch := port, ch
		go func() {
			select {
			case msg := <-ch:
				results <- arrival{port: port, msg: msg}
			case <-ctx.Done():
			}
		}()
	}

	acked := make(map[int]noderegistry.Message, len(chans))
	for i := 0; i < len(chans); i++ {
		select {
		case a := <-results:
			acked[a.port] = a.msg
		case <-ctx.Done():
			return acked
		}
	}
	return acked
}
