package chat

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"TalkWire/logger"
	"TalkWire/middleware/security"
	"TalkWire/module/chat/model"
	"TalkWire/service/storage"
	"TalkWire/service/store"
	"TalkWire/tools/errs"
)

// REST surface mirroring the routes the web frontend calls alongside the
// socket. The socket path owns live delivery; POST here only persists,
// which is why a send intent may arrive later carrying the persisted id.

func (s *Server) RegisterRoutes(r *gin.Engine, authSecret string) {
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "gateway": s.opts.GatewayID})
	})
	r.GET("/ws", s.HandleWS)

	api := r.Group("/api", security.Middleware(authSecret))
	api.GET("/messages", s.handleListMessages)
	api.POST("/messages", s.handleCreateMessage)
	api.PATCH("/messages/read", s.handleMarkRead)
	api.GET("/users", s.handleListUsers)
}

func (s *Server) handleListMessages(c *gin.Context) {
	caller := security.UserID(c)
	other := c.Query("userId")
	if other == "" {
		abortCoded(c, http.StatusBadRequest, errs.ErrArgs.WithDetail("userId is required"))
		return
	}
	msgs, err := s.st.ListBetween(c.Request.Context(), caller, other)
	if err != nil {
		abortErr(c, err)
		return
	}
	if msgs == nil {
		msgs = []*model.Message{}
	}
	c.JSON(http.StatusOK, msgs)
}

type createMessageReq struct {
	ReceiverID string `json:"receiverId"`
	Text       string `json:"text"`
}

func (s *Server) handleCreateMessage(c *gin.Context) {
	caller := security.UserID(c)
	var req createMessageReq
	if err := c.ShouldBindJSON(&req); err != nil {
		abortCoded(c, http.StatusBadRequest, errs.ErrArgs.WithDetail("malformed body"))
		return
	}
	if err := ValidateIntent(caller, req.ReceiverID, req.Text); err != nil {
		abortErr(c, err)
		return
	}
	m := &model.Message{SenderID: caller, ReceiverID: req.ReceiverID, Text: req.Text}
	if err := s.st.CreateMessage(c.Request.Context(), m); err != nil {
		abortErr(c, err)
		return
	}
	// Unread counter and DM stream follow the record, not the transport;
	// the socket follow-up dedups by id and never re-counts.
	s.router.hot(m)
	c.JSON(http.StatusOK, m)
}

type markReadReq struct {
	SenderID string `json:"senderId"`
}

func (s *Server) handleMarkRead(c *gin.Context) {
	caller := security.UserID(c)
	var req markReadReq
	if err := c.ShouldBindJSON(&req); err != nil || req.SenderID == "" {
		abortCoded(c, http.StatusBadRequest, errs.ErrArgs.WithDetail("senderId is required"))
		return
	}
	n, err := s.st.MarkRead(c.Request.Context(), req.SenderID, caller)
	if err != nil {
		abortErr(c, err)
		return
	}
	if storage.Enabled() {
		if rerr := storage.UnreadReset(req.SenderID, caller); rerr != nil {
			logger.Warnf("[api] unread reset failed sender=%s receiver=%s err=%v", req.SenderID, caller, rerr)
		}
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "updated": n})
}

func (s *Server) handleListUsers(c *gin.Context) {
	caller := security.UserID(c)
	users, err := s.st.ListUsers(c.Request.Context(), caller)
	if err != nil {
		abortErr(c, err)
		return
	}
	for _, u := range users {
		u.IsOnline = s.userOnline(u.ID)
		if lm, lerr := s.st.LastBetween(c.Request.Context(), caller, u.ID); lerr == nil {
			u.LastMessage = &model.LastMessage{
				Text:      lm.Text,
				Timestamp: lm.CreatedAt,
				IsRead:    lm.IsRead,
				IsSent:    lm.SenderID == caller,
			}
		} else if !errors.Is(lerr, store.ErrNotFound) {
			logger.Warnf("[api] last message lookup failed user=%s err=%v", u.ID, lerr)
		}
	}
	if users == nil {
		users = []*model.User{}
	}
	c.JSON(http.StatusOK, users)
}

// userOnline checks the local registry first, then the cross-node mirror.
func (s *Server) userOnline(userID string) bool {
	if s.reg.IsOnline(userID) {
		return true
	}
	if storage.Enabled() {
		if online, err := storage.PresenceAnywhere(userID); err == nil {
			return online
		}
	}
	return false
}

func abortErr(c *gin.Context, err error) {
	var coded *errs.CodeError
	if errors.As(err, &coded) {
		status := http.StatusInternalServerError
		switch coded.Code {
		case errs.CodeArgs, errs.CodeInvalidMessage:
			status = http.StatusBadRequest
		case errs.CodeUnauthorized:
			status = http.StatusUnauthorized
		}
		abortCoded(c, status, coded)
		return
	}
	abortCoded(c, http.StatusInternalServerError, errs.ErrInternal)
}

func abortCoded(c *gin.Context, status int, ce *errs.CodeError) {
	c.AbortWithStatusJSON(status, ce)
}
