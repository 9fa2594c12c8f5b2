package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/lanlink/protocol/pkg/protocol"
)

// ErrorResponse is the uniform error body
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// AckResponse acknowledges an accepted intent. Intents are asynchronous;
// callers observe the outcome through /status.
type AckResponse struct {
	Success bool `json:"success"`
}

// handleHealth handles GET /health
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// handleStatus handles GET /api/v1/status
func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.machine.Status())
}

// handlePeers handles GET /api/v1/peers
func (s *Server) handlePeers(c *gin.Context) {
	peers := s.disc.Peers()
	out := make([]gin.H, 0, len(peers))
	for _, p := range peers {
		out = append(out, gin.H{
			"id":          p.ID,
			"displayName": p.DisplayName,
			"address":     p.Address,
			"lastSeen":    p.LastSeen.UnixMilli(),
		})
	}
	c.JSON(http.StatusOK, gin.H{"peers": out})
}

// handleTransfers handles GET /api/v1/transfers
func (s *Server) handleTransfers(c *gin.Context) {
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Error:   "Invalid limit",
				Message: "limit must be a positive number",
			})
			return
		}
		limit = parsed
	}

	entries, err := s.store.ListTransfers(limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"transfers": entries})
}

// handleContacts handles GET /api/v1/contacts
func (s *Server) handleContacts(c *gin.Context) {
	contacts, err := s.store.ListContacts()
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"contacts": contacts})
}

// handleMessages handles GET /api/v1/messages/:peerID
func (s *Server) handleMessages(c *gin.Context) {
	limit := 100
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Error:   "Invalid limit",
				Message: "limit must be a positive number",
			})
			return
		}
		limit = parsed
	}

	messages, err := s.store.ListMessages(c.Param("peerID"), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": messages})
}

// ===== SESSION INTENTS =====

func (s *Server) handleDiscover(c *gin.Context) {
	s.machine.Discover()
	c.JSON(http.StatusOK, AckResponse{Success: true})
}

func (s *Server) handleConnect(c *gin.Context) {
	s.machine.Connect()
	c.JSON(http.StatusOK, AckResponse{Success: true})
}

func (s *Server) handleAccept(c *gin.Context) {
	s.machine.Accept()
	c.JSON(http.StatusOK, AckResponse{Success: true})
}

// RejectRequest optionally carries a human-readable reason
type RejectRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) handleReject(c *gin.Context) {
	var req RejectRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request body"})
		return
	}
	s.machine.Reject(req.Reason)
	c.JSON(http.StatusOK, AckResponse{Success: true})
}

func (s *Server) handleDisconnect(c *gin.Context) {
	s.machine.Disconnect()
	c.JSON(http.StatusOK, AckResponse{Success: true})
}

// SendFileRequest names a local file to offer to the peer
type SendFileRequest struct {
	Path string `json:"path" binding:"required"`
}

func (s *Server) handleSendFile(c *gin.Context) {
	var req SendFileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "Invalid request body",
			Message: "path is required",
		})
		return
	}
	s.machine.SendFile(req.Path)
	c.JSON(http.StatusOK, AckResponse{Success: true})
}

// SendFilesRequest names local files to offer as one batch
type SendFilesRequest struct {
	Paths []string `json:"paths" binding:"required,min=1"`
}

func (s *Server) handleSendFiles(c *gin.Context) {
	var req SendFilesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "Invalid request body",
			Message: "paths must name at least one file",
		})
		return
	}
	s.machine.SendFiles(req.Paths)
	c.JSON(http.StatusOK, AckResponse{Success: true})
}

// MessageRequest carries an outgoing chat message
type MessageRequest struct {
	Body    string             `json:"body" binding:"required"`
	ReplyTo *protocol.ReplyRef `json:"replyTo,omitempty"`
}

func (s *Server) handleMessage(c *gin.Context) {
	var req MessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "Invalid request body",
			Message: "body is required",
		})
		return
	}
	s.machine.SendText(req.Body, req.ReplyTo)
	c.JSON(http.StatusOK, AckResponse{Success: true})
}

func (s *Server) handleAcceptFile(c *gin.Context) {
	s.machine.AcceptFile()
	c.JSON(http.StatusOK, AckResponse{Success: true})
}

func (s *Server) handleRejectFile(c *gin.Context) {
	var req RejectRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request body"})
		return
	}
	s.machine.RejectFile(req.Reason)
	c.JSON(http.StatusOK, AckResponse{Success: true})
}

func (s *Server) handleCallRequest(c *gin.Context) {
	s.machine.RequestCall()
	c.JSON(http.StatusOK, AckResponse{Success: true})
}

func (s *Server) handleCallAccept(c *gin.Context) {
	s.machine.AcceptCall()
	c.JSON(http.StatusOK, AckResponse{Success: true})
}

func (s *Server) handleCallEnd(c *gin.Context) {
	s.machine.EndCall()
	c.JSON(http.StatusOK, AckResponse{Success: true})
}

// handleForgetPin handles DELETE /api/v1/pins/:peerID. Removing a pin is the
// explicit recovery path after an impersonation warning.
func (s *Server) handleForgetPin(c *gin.Context) {
	if err := s.store.ForgetPin(c.Param("peerID")); err != nil {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error:   "Pin not found",
			Message: "no trust pin exists for this peer",
		})
		return
	}
	c.JSON(http.StatusOK, AckResponse{Success: true})
}
