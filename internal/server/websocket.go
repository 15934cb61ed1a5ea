package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"testctl/internal/events"
	"testctl/pkg/logging"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsBuffer       = 256
)

// Commands a websocket client may send.
const (
	CommandRunTest  = "run test"
	CommandStartEnv = "start env"
	CommandStopEnv  = "stop env"
)

// Events pushed to websocket clients.
const (
	EventUpdate = "update"
	EventError  = "error"
)

type wsCommand struct {
	Command string `json:"command"`
	NodeID  string `json:"nodeid"`
}

type wsMessage struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

type wsError struct {
	Command string `json:"command,omitempty"`
	NodeID  string `json:"nodeid"`
	Error   string `json:"error"`
}

// handleWebsocket pushes the current tree, then every update, to the
// client and executes the commands it sends.
func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Warn("Server", "Websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(s.ctx)
	defer cancel()

	sub := s.backend.SubscribeUpdates(wsBuffer)
	defer s.backend.Unsubscribe(sub)

	out := make(chan wsMessage, wsBuffer)
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		s.writeLoop(ctx, conn, sub, out)
		cancel()
	}()

	logging.Debug("Server", "Websocket client connected from %s", r.RemoteAddr)
	tree, err := s.backend.GetTree(ctx)
	if err != nil {
		logging.Warn("Server", "Could not send initial tree: %v", err)
	} else {
		out <- wsMessage{Event: EventUpdate, Data: tree}
	}

	s.readLoop(ctx, conn, out)
	cancel()
	<-writerDone
	logging.Debug("Server", "Websocket client %s disconnected", r.RemoteAddr)
}

func (s *Server) readLoop(ctx context.Context, conn *websocket.Conn, out chan<- wsMessage) {
	// Closing the connection unblocks ReadJSON on shutdown.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	for {
		var cmd wsCommand
		if err := conn.ReadJSON(&cmd); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logging.Debug("Server", "Websocket read failed: %v", err)
			}
			return
		}
		s.dispatch(ctx, cmd, out)
	}
}

// dispatch executes one client command. Environment teardown blocks, so
// stop runs in the background and reports failures asynchronously.
func (s *Server) dispatch(ctx context.Context, cmd wsCommand, out chan<- wsMessage) {
	fail := func(err error) {
		logging.Warn("Server", "Websocket command %q on %q failed: %v", cmd.Command, cmd.NodeID, err)
		select {
		case out <- wsMessage{Event: EventError, Data: wsError{Command: cmd.Command, NodeID: cmd.NodeID, Error: err.Error()}}:
		case <-ctx.Done():
		}
	}

	switch cmd.Command {
	case CommandRunTest:
		if _, err := s.backend.RunTests(ctx, cmd.NodeID); err != nil {
			fail(err)
		}
	case CommandStartEnv:
		if err := s.backend.StartEnvironment(ctx, cmd.NodeID); err != nil {
			fail(err)
		}
	case CommandStopEnv:
		go func() {
			if err := s.backend.StopEnvironment(ctx, cmd.NodeID); err != nil {
				fail(err)
			}
		}()
	default:
		fail(fmt.Errorf("unknown command %q", cmd.Command))
	}
}

func (s *Server) writeLoop(ctx context.Context, conn *websocket.Conn, sub *events.EventSubscription, out <-chan wsMessage) {
	for {
		var msg wsMessage
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			return
		case msg = <-out:
		case ev, ok := <-sub.Channel:
			if !ok {
				return
			}
			update, isUpdate := ev.(*events.UpdateEvent)
			if !isUpdate {
				continue
			}
			msg = wsMessage{Event: EventUpdate, Data: update.Tree}
		}

		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		if err := conn.WriteJSON(msg); err != nil {
			logging.Debug("Server", "Websocket write failed: %v", err)
			return
		}
	}
}
