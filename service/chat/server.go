package chat

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"TalkWire/logger"
	"TalkWire/service/store"
	"TalkWire/tools/ids"
	"TalkWire/tools/safe"
	"TalkWire/tools/security"
)

type Options struct {
	GatewayID   string
	GraceTTL    time.Duration // unbound connections are dropped after this
	PresenceTTL time.Duration // redis mirror TTL
	SendTimeout time.Duration // budget for persist + fan-out of one intent

	FanoutWorkers int
	FanoutQueue   int
	SendBuffer    int

	// AuthSecret enables JWT verification of register tokens. Empty means
	// the gateway trusts the announced user id verbatim (the identity
	// collaborator authenticated it out-of-band).
	AuthSecret string
}

func (o *Options) norm() {
	if o.GatewayID == "" {
		o.GatewayID = "gw-" + ids.GenerateString()
	}
	if o.GraceTTL <= 0 {
		o.GraceTTL = 30 * time.Second
	}
	if o.PresenceTTL <= 0 {
		o.PresenceTTL = 60 * time.Second
	}
	if o.SendTimeout <= 0 {
		o.SendTimeout = 5 * time.Second
	}
}

// Server is the realtime core: it binds connections to identities, tracks
// presence and routes messages. The store and the optional relay are the
// external collaborators.
type Server struct {
	opts     Options
	reg      *Registry
	fan      *Fanout
	presence *Presence
	router   *Router
	disp     *Dispatcher
	st       store.Store
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

func NewServer(opts Options, st store.Store, remote RemoteDeliverer) *Server {
	opts.norm()
	reg := NewRegistry()
	fan := NewFanout(opts.FanoutWorkers, opts.FanoutQueue)
	s := &Server{
		opts:     opts,
		reg:      reg,
		fan:      fan,
		presence: NewPresence(reg, fan, opts.GatewayID, opts.PresenceTTL),
		router:   NewRouter(reg, st, fan, remote, opts.GatewayID),
		disp:     NewDispatcher(),
		st:       st,
	}
	s.disp.Register(registerHandler{})
	s.disp.Register(sendHandler{})
	return s
}

func (s *Server) GatewayID() string   { return s.opts.GatewayID }
func (s *Server) Registry() *Registry { return s.reg }
func (s *Server) Store() store.Store  { return s.st }
func (s *Server) Router() *Router     { return s.router }

// HandleWS upgrades the request and runs the connection's read loop until
// disconnect. One goroutine reads, one writes; handlers run on the read
// goroutine, which serializes registration and send intents per connection.
func (s *Server) HandleWS(c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Infof("[ws] upgrade failed: %v", err)
		return
	}

	cl := newClient(ids.GenerateString(), ws, s.opts.SendBuffer)
	s.reg.Track(cl)
	logger.Infof("[ws] connected conn=%s remote=%s", cl.ConnID, ws.RemoteAddr())

	// Fail closed: no registration within the grace period drops the
	// connection. Closing the socket unwinds the read loop below.
	cl.startGrace(s.opts.GraceTTL, func() {
		if !cl.Bound() {
			logger.Infof("[ws] grace period expired, dropping unbound conn=%s", cl.ConnID)
			_ = ws.Close()
		}
	})

	safe.Go(cl.writePump)

	ws.SetReadLimit(64 << 10)
	_ = ws.SetReadDeadline(time.Now().Add(3 * pingPeriod))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(3 * pingPeriod))
	})

	for {
		mt, data, rerr := ws.ReadMessage()
		if rerr != nil {
			if websocket.IsCloseError(rerr,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseNoStatusReceived,
			) {
				logger.Infof("[ws] peer closed conn=%s", cl.ConnID)
			} else if ne, ok := rerr.(net.Error); ok && ne.Timeout() {
				logger.Infof("[ws] read timeout conn=%s", cl.ConnID)
			} else {
				logger.Infof("[ws] read err conn=%s err=%v", cl.ConnID, rerr)
			}
			break
		}
		if mt != websocket.TextMessage && mt != websocket.BinaryMessage {
			continue
		}
		_ = ws.SetReadDeadline(time.Now().Add(3 * pingPeriod))

		frame, perr := ParseFrame(data)
		if perr != nil {
			sample := data
			if len(sample) > 256 {
				sample = sample[:256]
			}
			logger.Infof("[ws] bad frame conn=%s err=%v sample=%q", cl.ConnID, perr, sample)
			cl.enqueue(BuildError(perr))
			continue
		}

		h := s.disp.GetHandler(frame.Event)
		if h == nil {
			logger.Infof("[ws] no handler conn=%s event=%s", cl.ConnID, frame.Event)
			continue
		}
		if herr := h.Handle(&Context{S: s}, frame, cl); herr != nil {
			logger.Infof("[ws] handler err conn=%s event=%s err=%v", cl.ConnID, frame.Event, herr)
		}
	}

	s.teardown(cl)
}

// Bind completes session binding for a registration intent. Returns the
// registry error unchanged (AlreadyBound on a conflicting rebind).
func (s *Server) Bind(cl *Client, userID string) error {
	wentOnline, err := s.reg.Bind(cl.ConnID, userID)
	if err != nil {
		return err
	}
	logger.Infof("[ws] bound conn=%s user=%s online_transition=%v", cl.ConnID, userID, wentOnline)
	if wentOnline {
		s.presence.UserOnline(userID)
	} else {
		// Same user, another tab: peers need no broadcast, but this new
		// connection wants a snapshot, and a full-set push to everyone is
		// how missed events stay harmless.
		s.presence.Kick()
	}
	return nil
}

// teardown is idempotent: duplicate disconnect paths funnel through
// Registry.Drop, which treats unknown ids as a no-op.
func (s *Server) teardown(cl *Client) {
	userID, wentOffline := s.reg.Drop(cl.ConnID)
	cl.markClosed()
	if cl.WS != nil {
		_ = cl.WS.Close()
	}
	if wentOffline {
		s.presence.UserOffline(userID)
	} else if userID != "" {
		s.presence.Kick()
	}
	logger.Infof("[ws] closed conn=%s user=%s offline_transition=%v", cl.ConnID, userID, wentOffline)
}

// SendTimeout budget wraps the persistence call; a disconnect mid-flight
// does not cancel a write that already started.
func (s *Server) sendContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), s.opts.SendTimeout)
}

func (s *Server) authOptions() (security.Options, bool) {
	if s.opts.AuthSecret == "" {
		return security.Options{}, false
	}
	return security.DefaultOptions([]byte(s.opts.AuthSecret)), true
}

func (s *Server) Close() {
	s.presence.Close()
	for _, cl := range s.reg.Clients() {
		s.teardown(cl)
	}
	s.fan.Close()
}
