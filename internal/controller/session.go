package controller

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/dreamware/dstore/internal/protocol"
	"github.com/dreamware/dstore/internal/wire"
)

// Session is one client connection: a command dispatch loop plus the
// per-session recent-load cursor spec.md §4.7 describes.
type Session struct {
	conn *wire.Conn
	ctrl *Controller
	log  zerolog.Logger
}

// serveClientLoop runs the per-client dispatch loop until the
// connection closes. first is the command line already read off conn
// by the shared accept dispatcher (spec.md §4.4: clients and nodes
// share one listening socket, distinguished by whether the first line
// is JOIN); every subsequent line is read here.
func (c *Controller) serveClientLoop(conn *wire.Conn, first []string) {
	s := &Session{conn: conn, ctrl: c, log: c.log.With().Str("role", "client").Logger()}
	defer c.forgetSession(s)
	defer conn.Close()

	tokens := first
	for {
		if len(tokens) > 0 {
			c.dispatchClient(s, tokens)
		}

		var err error
		tokens, err = conn.ReadLine(time.Time{})
		if err != nil {
			return
		}
	}
}

func (c *Controller) dispatchClient(s *Session, tokens []string) {
	cmd, args := tokens[0], tokens[1:]
	if cmd != protocol.Reload {
		c.clearRecentLoad(s)
	}

	switch cmd {
	case protocol.Store:
		c.handleStore(s, args)
	case protocol.Load:
		c.handleLoad(s, args)
	case protocol.Reload:
		c.handleLoad(s, args)
	case protocol.Remove:
		c.handleRemove(s, args)
	case protocol.ListCmd:
		c.handleList(s)
	default:
		s.log.Warn().Str("cmd", cmd).Msg("malformed or unknown client command, discarded")
	}
}
