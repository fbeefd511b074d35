// internal/handlers/lobby_ws.go
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/go-chi/chi/v5"
	"github.com/jason-s-yu/picofermibagel/internal/broadcast"
	"github.com/jason-s-yu/picofermibagel/internal/command"
	"github.com/jason-s-yu/picofermibagel/internal/middleware"
	"github.com/sirupsen/logrus"
)

const pingInterval = 30 * time.Second

// inbound is the envelope of a client message; the rest of the object is the
// command body.
type inbound struct {
	Type string `json:"type"`
}

// resultFrame answers one inbound command.
type resultFrame struct {
	Type      string         `json:"type"`
	Operation string         `json:"operation"`
	Result    command.Result `json:"result"`
}

type errorFrame struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// LobbyWSHandler subscribes the connection to roomClass pushes and accepts
// commands as {"type": "<operation>", ...} messages.
func (s *Server) LobbyWSHandler(w http.ResponseWriter, r *http.Request) {
	roomClass := chi.URLParam(r, "roomClass")
	remoteAddr := r.RemoteAddr

	// launcher status is fixed at connect time
	launcher, privilegedConn := s.authorizeLauncher(bearerToken(r))
	tokenPresented := bearerToken(r) != ""

	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols:   []string{"lobby"},
		OriginPatterns: originPatterns(s.AllowedOrigins),
	})
	if err != nil {
		s.Logger.WithError(err).Warn("websocket accept error")
		return
	}
	defer c.Close(websocket.StatusInternalError, "handler finished")

	if c.Subprotocol() != "lobby" {
		c.Close(BadSubprotocolError, "client must speak the lobby subprotocol")
		return
	}
	if !validRoomClass(roomClass) {
		c.Close(InvalidRoomClassError, "invalid room class")
		return
	}
	if tokenPresented && !privilegedConn {
		c.Close(InvalidAuthTokenError, "invalid launcher token")
		return
	}

	log := s.Logger.WithFields(logrus.Fields{"room_class": roomClass, "remote": remoteAddr})
	if launcher != "" {
		log = log.WithField("launcher", launcher)
	}
	middleware.LogWebSocketConnect(s.Logger, remoteAddr, r.URL.Path)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	client := s.Hub.Subscribe(roomClass)
	defer s.Hub.Unsubscribe(roomClass, client)

	if err := s.sendSnapshots(ctx, c, roomClass); err != nil {
		log.WithError(err).Warn("failed to send initial snapshot")
		return
	}

	go s.writePump(ctx, cancel, c, client, log)

	err = s.readPump(ctx, c, privilegedConn, log)
	middleware.LogWebSocketDisconnect(s.Logger, remoteAddr, r.URL.Path, err)
	c.Close(websocket.StatusNormalClosure, "")
}

// sendSnapshots writes the current lobby and interest state so a new
// subscriber does not wait for the next write to see anything.
func (s *Server) sendSnapshots(ctx context.Context, c *websocket.Conn, roomClass string) error {
	summary, err := s.Lobbies.Status(ctx, roomClass)
	if err != nil {
		return err
	}
	ev, err := broadcast.NewEvent(broadcast.EventLobbyUpdate, roomClass, summary)
	if err != nil {
		return err
	}
	if err := wsjson.Write(ctx, c, ev); err != nil {
		return err
	}

	counts, err := s.Interest.Counts(ctx)
	if err != nil {
		// interest is advisory, the next push will carry it
		s.Logger.WithError(err).Debug("interest snapshot unavailable")
		return nil
	}
	ev, err = broadcast.NewEvent(broadcast.EventInterestUpdate, "", counts)
	if err != nil {
		return err
	}
	return wsjson.Write(ctx, c, ev)
}

// readPump decodes and dispatches inbound commands until the connection ends.
func (s *Server) readPump(ctx context.Context, c *websocket.Conn, privilegedConn bool, log logrus.FieldLogger) error {
	for {
		typ, msg, err := c.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway || errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
		if typ != websocket.MessageText {
			log.Debug("ignoring non-text message")
			continue
		}

		var env inbound
		if err := json.Unmarshal(msg, &env); err != nil || env.Type == "" {
			if err := wsjson.Write(ctx, c, errorFrame{Type: "error", Message: "Invalid JSON format"}); err != nil {
				return err
			}
			continue
		}

		var res command.Result
		cmd, err := command.Decode(env.Type, msg)
		switch {
		case err != nil:
			res = command.Status{Message: command.Message(err)}
		case privileged[env.Type] && !privilegedConn:
			res = command.Status{Message: "Launcher token required"}
		default:
			res = s.Dispatcher.Dispatch(ctx, cmd)
		}

		if err := wsjson.Write(ctx, c, resultFrame{Type: "result", Operation: env.Type, Result: res}); err != nil {
			return err
		}
	}
}

// writePump forwards hub pushes and keeps the connection alive with pings.
func (s *Server) writePump(ctx context.Context, cancel context.CancelFunc, c *websocket.Conn, client broadcast.Client, log logrus.FieldLogger) {
	defer cancel()
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-client:
			if !ok {
				return
			}
			writeCtx, done := context.WithTimeout(ctx, 5*time.Second)
			err := c.Write(writeCtx, websocket.MessageText, msg)
			done()
			if err != nil {
				log.WithError(err).Debug("push write failed")
				return
			}
		case <-ticker.C:
			pingCtx, done := context.WithTimeout(ctx, 15*time.Second)
			err := c.Ping(pingCtx)
			done()
			if err != nil {
				log.WithError(err).Debug("ping failed, assuming disconnect")
				return
			}
		}
	}
}

// originPatterns turns CORS origins ("https://app.example") into the host
// patterns websocket.Accept expects.
func originPatterns(origins []string) []string {
	var out []string
	for _, o := range origins {
		for _, prefix := range []string{"https://", "http://"} {
			if len(o) > len(prefix) && o[:len(prefix)] == prefix {
				o = o[len(prefix):]
				break
			}
		}
		out = append(out, o)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
