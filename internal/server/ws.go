package server

import (
	"context"
	"errors"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/gin-gonic/gin"

	"github.com/devlane/devlane/internal/launcher"
	"github.com/devlane/devlane/internal/supervisor"
	"github.com/devlane/devlane/internal/telemetry"
)

// inbound is a client-to-plane socket action.
type inbound struct {
	Action    string `json:"action"`
	ProjectID string `json:"projectId"`
}

const wsWriteTimeout = 10 * time.Second

// handleWS upgrades the connection, attaches a hub observer and runs the
// duplex loops: one goroutine drains the observer queue plus direct
// replies onto the socket, the request goroutine reads client actions.
func (r *Router) handleWS(c *gin.Context) {
	conn, err := websocket.Accept(c.Writer, c.Request, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusInternalError, "closed")

	obs := r.hub.Attach()
	defer obs.Close()

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	// Direct replies (pong, action errors) bypass the broadcast hub but
	// share the single writer goroutine.
	replies := make(chan telemetry.Envelope, 16)

	go func() {
		defer cancel()
		for {
			var env telemetry.Envelope
			var ok bool
			select {
			case env, ok = <-obs.C():
				if !ok {
					return
				}
			case env, ok = <-replies:
				if !ok {
					return
				}
			case <-ctx.Done():
				return
			}
			wctx, done := context.WithTimeout(ctx, wsWriteTimeout)
			err := wsjson.Write(wctx, conn, env)
			done()
			if err != nil {
				return
			}
		}
	}()

	for {
		var msg inbound
		if err := wsjson.Read(ctx, conn, &msg); err != nil {
			conn.Close(websocket.StatusNormalClosure, "")
			return
		}
		r.dispatch(ctx, msg, replies)
	}
}

// dispatch handles one client action. Launch and stop actions run in
// goroutines; the read loop must stay responsive.
func (r *Router) dispatch(ctx context.Context, msg inbound, replies chan<- telemetry.Envelope) {
	reply := func(env telemetry.Envelope) {
		env.Timestamp = time.Now()
		select {
		case replies <- env:
		case <-ctx.Done():
		}
	}
	replyErr := func(err error) {
		reply(telemetry.Envelope{Type: telemetry.TypeError, Payload: err.Error()})
	}
	lookup := func() (string, bool) {
		if !isSafeName(msg.ProjectID) {
			replyErr(errors.New("invalid projectId"))
			return "", false
		}
		p, ok := r.store.Get(msg.ProjectID)
		if !ok {
			replyErr(errors.New("unknown project: " + msg.ProjectID))
			return "", false
		}
		return p.Path, true
	}

	switch msg.Action {
	case "ping":
		reply(telemetry.Envelope{Type: telemetry.TypePong})
	case "getProjects":
		reply(telemetry.Envelope{Type: telemetry.TypeStatus, Payload: r.store.Snapshot()})
	case "startProject":
		root, ok := lookup()
		if !ok {
			return
		}
		go func() {
			if _, err := r.launcher.Dev(ctx, launcher.Options{Root: root}); err != nil {
				replyErr(err)
			}
		}()
	case "stopProject":
		if _, ok := lookup(); !ok {
			return
		}
		id := msg.ProjectID
		go func() {
			if err := r.sup.StopProject(id); err != nil {
				replyErr(err)
			}
		}()
	case "restartProject":
		root, ok := lookup()
		if !ok {
			return
		}
		id := msg.ProjectID
		go func() {
			err := r.sup.Restart(id, supervisor.ActionDev)
			var notRunning *supervisor.ErrNotRunning
			if errors.As(err, &notRunning) {
				_, err = r.launcher.Dev(ctx, launcher.Options{Root: root})
			}
			if err != nil {
				replyErr(err)
			}
		}()
	case "buildProject":
		root, ok := lookup()
		if !ok {
			return
		}
		go func() {
			if err := r.launcher.Build(ctx, launcher.Options{Root: root}); err != nil {
				replyErr(err)
			}
		}()
	default:
		replyErr(errors.New("unknown action: " + msg.Action))
	}
}
