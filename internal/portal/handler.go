package portal

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/cragr/supportdesk/internal/models"
	"github.com/cragr/supportdesk/internal/remote"
	"github.com/cragr/supportdesk/internal/tokenstore"
)

// MaxUploadBytes caps a single attachment upload.
const MaxUploadBytes = 10 << 20

// Handler serves the portal endpoints.
type Handler struct {
	resolver  ClientResolver
	oauth     OAuthFlow
	store     tokenstore.Store
	session   Session
	sanitizer *Sanitizer
	logger    *slog.Logger

	// SecureCookies marks the OAuth state cookie Secure.
	SecureCookies bool
}

// NewHandler creates a new portal handler. oauth and store may be nil when
// delegated mode is not offered.
func NewHandler(resolver ClientResolver, oauth OAuthFlow, store tokenstore.Store, session Session, logger *slog.Logger) *Handler {
	return &Handler{
		resolver:      resolver,
		oauth:         oauth,
		store:         store,
		session:       session,
		sanitizer:     NewSanitizer(),
		logger:        logger,
		SecureCookies: true,
	}
}

// Register mounts the portal routes on r.
func (h *Handler) Register(r gin.IRouter) {
	api := r.Group("/api", requireIdentity(h.session))
	{
		api.POST("/tickets", h.createTicket)
		api.GET("/tickets", h.listTickets)
		api.GET("/tickets/:key", h.getTicket)
		api.POST("/tickets/:key/comments", h.addComment)
		api.POST("/tickets/:key/attachments", h.addAttachment)
		api.GET("/tickets/:key/attachments/:id", h.downloadAttachment)

		staff := api.Group("", requireStaff())
		staff.GET("/desk", h.desk)
		staff.POST("/tickets/:key/assign", h.assignTicket)
		staff.POST("/tickets/:key/transition", h.transitionTicket)
	}

	oauth := r.Group("/oauth", requireIdentity(h.session), requireStaff())
	{
		oauth.GET("/connect", h.connect)
		oauth.GET("/callback", h.callback)
		oauth.GET("/status", h.status)
		oauth.POST("/disconnect", h.disconnect)
	}
}

// client resolves the caller's ticket client, writing the error response
// when that fails.
func (h *Handler) client(c *gin.Context) (TicketService, bool) {
	id := identity(c)
	client, err := h.resolver.Client(c.Request.Context(), id.TenantID)
	if err != nil {
		h.logger.Error("failed to resolve ticket client",
			"tenant_id", id.TenantID,
			"error", err,
		)
		respondError(c, err)
		return nil, false
	}
	return client, true
}

// ownedTicket fetches a ticket and checks the caller may see it. Tickets
// the caller does not own are reported as not found.
func (h *Handler) ownedTicket(c *gin.Context, client TicketService) (*models.Ticket, bool) {
	key := c.Param("key")
	ticket, err := client.GetTicket(c.Request.Context(), key)
	if err != nil {
		respondError(c, err)
		return nil, false
	}
	if !ownsTicket(*ticket, identity(c)) {
		h.logger.Warn("denied access to ticket owned by another user",
			"issue_key", key,
			"user_id", identity(c).UserID,
		)
		abortError(c, http.StatusNotFound, codeNotFound, "ticket not found")
		return nil, false
	}
	return ticket, true
}

func (h *Handler) createTicket(c *gin.Context) {
	var req createTicketRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortError(c, http.StatusBadRequest, codeInvalidRequest, "summary and description are required")
		return
	}
	if err := req.validate(); err != nil {
		abortError(c, http.StatusBadRequest, codeInvalidRequest, err.Error())
		return
	}

	client, ok := h.client(c)
	if !ok {
		return
	}

	id := identity(c)
	result, err := client.CreateRequest(c.Request.Context(), newCreateInput(req, id))
	if err != nil {
		h.logger.Error("failed to create ticket",
			"user_id", id.UserID,
			"error", err,
		)
		respondError(c, err)
		return
	}

	h.logger.Info("ticket created via portal",
		"issue_key", result.Key(),
		"user_id", id.UserID,
		"mock", result.Mock,
	)

	c.JSON(http.StatusCreated, gin.H{
		"key":  result.Key(),
		"mock": result.Mock,
	})
}

// listTickets returns the caller's tickets. Without credentials the list
// is empty rather than an error.
func (h *Handler) listTickets(c *gin.Context) {
	client, ok := h.client(c)
	if !ok {
		return
	}

	id := identity(c)
	tickets, err := client.GetTicketsByUser(c.Request.Context(), id.UserID, id.Username)
	if remote.IsKind(err, remote.KindNotConfigured) {
		c.JSON(http.StatusOK, gin.H{"tickets": []TicketView{}, "configured": false})
		return
	}
	if err != nil {
		respondError(c, err)
		return
	}

	views := make([]TicketView, 0, len(tickets))
	for _, t := range tickets {
		if !ownsTicket(t, id) {
			continue
		}
		views = append(views, h.sanitizer.ticketView(t))
	}
	c.JSON(http.StatusOK, gin.H{"tickets": views, "configured": true})
}

func (h *Handler) getTicket(c *gin.Context) {
	client, ok := h.client(c)
	if !ok {
		return
	}

	result, err := client.GetTicketWithComments(c.Request.Context(), c.Param("key"))
	if remote.IsKind(err, remote.KindNotConfigured) {
		abortError(c, http.StatusNotFound, codeNotFound, "ticket not found")
		return
	}
	if err != nil {
		respondError(c, err)
		return
	}
	if !ownsTicket(result.Ticket, identity(c)) {
		abortError(c, http.StatusNotFound, codeNotFound, "ticket not found")
		return
	}

	view := h.sanitizer.ticketView(result.Ticket)
	view.Comments = make([]CommentView, 0, len(result.Comments))
	for _, cm := range result.Comments {
		view.Comments = append(view.Comments, h.sanitizer.commentView(cm))
	}
	c.JSON(http.StatusOK, view)
}

type commentRequest struct {
	Body string `json:"body" binding:"required"`
}

func (h *Handler) addComment(c *gin.Context) {
	var req commentRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Body) == "" {
		abortError(c, http.StatusBadRequest, codeInvalidRequest, "body is required")
		return
	}
	if len(req.Body) > maxCommentLength {
		abortError(c, http.StatusBadRequest, codeInvalidRequest, "comment is too long")
		return
	}

	client, ok := h.client(c)
	if !ok {
		return
	}
	ticket, ok := h.ownedTicket(c, client)
	if !ok {
		return
	}

	comment, err := client.AddComment(c.Request.Context(), ticket.Key, portalComment(identity(c), req.Body))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, h.sanitizer.commentView(*comment))
}

func (h *Handler) addAttachment(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, MaxUploadBytes+1<<20)

	header, err := c.FormFile("file")
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		abortError(c, http.StatusRequestEntityTooLarge, codeInvalidRequest, "file is too large")
		return
	}
	if err != nil {
		abortError(c, http.StatusBadRequest, codeInvalidRequest, "file is required")
		return
	}
	if header.Size > MaxUploadBytes {
		abortError(c, http.StatusRequestEntityTooLarge, codeInvalidRequest, "file is too large")
		return
	}

	client, ok := h.client(c)
	if !ok {
		return
	}
	ticket, ok := h.ownedTicket(c, client)
	if !ok {
		return
	}

	file, err := header.Open()
	if err != nil {
		abortError(c, http.StatusBadRequest, codeInvalidRequest, "file could not be read")
		return
	}
	defer file.Close()

	attachments, err := client.AddAttachment(c.Request.Context(), ticket.Key, header.Filename, file)
	if err != nil {
		respondError(c, err)
		return
	}

	views := make([]AttachmentView, 0, len(attachments))
	for _, a := range attachments {
		views = append(views, AttachmentView{ID: a.ID, Filename: h.sanitizer.Text(a.Filename), MimeType: a.MimeType, Size: a.Size})
	}
	c.JSON(http.StatusCreated, gin.H{"attachments": views})
}

// downloadAttachment proxies attachment content. Only attachments listed
// on a ticket the caller owns can be fetched.
func (h *Handler) downloadAttachment(c *gin.Context) {
	client, ok := h.client(c)
	if !ok {
		return
	}
	ticket, ok := h.ownedTicket(c, client)
	if !ok {
		return
	}

	var attachment *models.Attachment
	for i := range ticket.Attachments {
		if ticket.Attachments[i].ID == c.Param("id") {
			attachment = &ticket.Attachments[i]
			break
		}
	}
	if attachment == nil {
		abortError(c, http.StatusNotFound, codeNotFound, "attachment not found")
		return
	}

	content, err := client.DownloadAttachment(c.Request.Context(), attachment.ContentURL)
	if err != nil {
		respondError(c, err)
		return
	}

	contentType := content.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.Header("Content-Disposition", "attachment; filename=\""+strings.ReplaceAll(attachment.Filename, "\"", "")+"\"")
	c.Header("X-Content-Type-Options", "nosniff")
	c.Data(http.StatusOK, contentType, content.Data)
}

type assignRequest struct {
	AccountID string `json:"accountId" binding:"required"`
}

func (h *Handler) assignTicket(c *gin.Context) {
	var req assignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortError(c, http.StatusBadRequest, codeInvalidRequest, "accountId is required")
		return
	}

	client, ok := h.client(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	key := c.Param("key")

	assignable, err := client.IsUserAssignableInProject(ctx, req.AccountID, "")
	if err != nil {
		respondError(c, err)
		return
	}
	if !assignable {
		abortError(c, http.StatusUnprocessableEntity, codeNotAssignable, "user cannot be assigned in this project")
		return
	}

	if err := client.AssignIssue(ctx, key, req.AccountID); err != nil {
		respondError(c, err)
		return
	}

	h.logger.Info("assigned ticket",
		"issue_key", key,
		"account_id", req.AccountID,
		"staff_user_id", identity(c).UserID,
	)
	c.JSON(http.StatusOK, gin.H{"assigned": true})
}

type transitionRequest struct {
	Status string `json:"status" binding:"required"`
}

func (h *Handler) transitionTicket(c *gin.Context) {
	var req transitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortError(c, http.StatusBadRequest, codeInvalidRequest, "status is required")
		return
	}

	client, ok := h.client(c)
	if !ok {
		return
	}

	applied, err := client.TransitionIssue(c.Request.Context(), c.Param("key"), req.Status)
	if err != nil {
		respondError(c, err)
		return
	}

	h.logger.Info("transitioned ticket",
		"issue_key", c.Param("key"),
		"transition_id", applied.ID,
		"staff_user_id", identity(c).UserID,
	)
	c.JSON(http.StatusOK, gin.H{
		"transitioned": true,
		"status":       h.sanitizer.Text(applied.ToStatus.Name),
	})
}

// desk describes the client the caller's tenant resolves to.
func (h *Handler) desk(c *gin.Context) {
	client, ok := h.client(c)
	if !ok {
		return
	}

	resp := gin.H{
		"configured":   client.Configured(),
		"mode":         client.Mode(),
		"projectKey":   client.ProjectKey(),
		"requestTypes": []models.RequestType{},
	}
	if !client.Configured() {
		c.JSON(http.StatusOK, resp)
		return
	}

	types, err := client.ListRequestTypes(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	for i := range types {
		types[i].Name = h.sanitizer.Text(types[i].Name)
		types[i].Description = h.sanitizer.Text(types[i].Description)
	}
	resp["requestTypes"] = types
	c.JSON(http.StatusOK, resp)
}
