package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/mcoot/proxymail/internal/api/request"
	"github.com/mcoot/proxymail/internal/api/response"
	"github.com/mcoot/proxymail/internal/model"
	"github.com/mcoot/proxymail/internal/services/mail"
)

// MailHandler handles mailbox and sending endpoints
type MailHandler struct {
	mailService *mail.Service
}

// NewMailHandler creates a new mail handler
func NewMailHandler(mailService *mail.Service) *MailHandler {
	return &MailHandler{
		mailService: mailService,
	}
}

// pathIdentity reads the {identity} route variable
func pathIdentity(r *http.Request) (model.Identity, error) {
	id, err := model.ParseIdentity(mux.Vars(r)["identity"])
	if err != nil {
		return model.Identity{}, NewInvalidRequestError("identity must be a UUID")
	}
	return id, nil
}

// queryBool reads an optional boolean query parameter
func queryBool(r *http.Request, name string) (bool, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, NewInvalidRequestError(name + " must be a boolean")
	}
	return b, nil
}

// queryInt reads an optional integer query parameter
func queryInt(r *http.Request, name string) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, NewInvalidRequestError(name + " must be an integer")
	}
	return n, nil
}

// sender builds the message sender; no sender_id means the console
func sender(name, id string) (mail.Sender, error) {
	if id == "" {
		s := mail.ConsoleSender()
		if name != "" {
			s.Name = name
		}
		return s, nil
	}
	identity, err := model.ParseIdentity(id)
	if err != nil {
		return mail.Sender{}, NewInvalidRequestError("sender_id must be a UUID")
	}
	if name == "" {
		return mail.Sender{}, NewInvalidRequestError("sender_name is required")
	}
	return mail.Sender{Name: name, Identity: identity}, nil
}

// Session handles POST /api/v1/players/{identity}/session
func (h *MailHandler) Session(w http.ResponseWriter, r *http.Request) {
	id, err := pathIdentity(r)
	if err != nil {
		WriteError(w, err)
		return
	}

	var req request.SessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, NewInvalidRequestError("invalid request body"))
		return
	}
	if req.Username == "" {
		WriteError(w, NewInvalidRequestError("username is required"))
		return
	}

	unread, err := h.mailService.PlayerJoined(r.Context(), id, req.Username)
	if err != nil {
		WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, response.Session{Unread: unread})
}

// Inbox handles GET /api/v1/players/{identity}/messages
func (h *MailHandler) Inbox(w http.ResponseWriter, r *http.Request) {
	id, err := pathIdentity(r)
	if err != nil {
		WriteError(w, err)
		return
	}

	all, err := queryBool(r, "all")
	if err != nil {
		WriteError(w, err)
		return
	}
	start, err := queryInt(r, "start")
	if err != nil {
		WriteError(w, err)
		return
	}
	pageSize, err := queryInt(r, "page_size")
	if err != nil {
		WriteError(w, err)
		return
	}

	page, err := h.mailService.List(r.Context(), id, mail.ListOptions{
		IncludeRead: all,
		Start:       start,
		PageSize:    pageSize,
	})
	if err != nil {
		WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, response.PageFromService(page))
}

// DeleteMessages handles DELETE /api/v1/players/{identity}/messages
func (h *MailHandler) DeleteMessages(w http.ResponseWriter, r *http.Request) {
	id, err := pathIdentity(r)
	if err != nil {
		WriteError(w, err)
		return
	}

	readOnly, err := queryBool(r, "read_only")
	if err != nil {
		WriteError(w, err)
		return
	}

	var deleted int
	if readOnly {
		deleted, err = h.mailService.DeleteRead(r.Context(), id)
	} else {
		deleted, err = h.mailService.DeleteAll(r.Context(), id)
	}
	if err != nil {
		WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, response.Deleted{Deleted: deleted})
}

// DeleteMessage handles DELETE /api/v1/players/{identity}/messages/{id}
func (h *MailHandler) DeleteMessage(w http.ResponseWriter, r *http.Request) {
	recipient, err := pathIdentity(r)
	if err != nil {
		WriteError(w, err)
		return
	}

	msgID, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		WriteError(w, NewInvalidRequestError("id must be a message number"))
		return
	}

	if err := h.mailService.DeleteByID(r.Context(), model.MessageID(msgID), recipient); err != nil {
		WriteError(w, err)
		return
	}

	response.NoContent(w)
}

// Send handles POST /api/v1/messages
func (h *MailHandler) Send(w http.ResponseWriter, r *http.Request) {
	var req request.SendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, NewInvalidRequestError("invalid request body"))
		return
	}
	if req.Recipient == "" {
		WriteError(w, NewInvalidRequestError("recipient is required"))
		return
	}

	from, err := sender(req.SenderName, req.SenderID)
	if err != nil {
		WriteError(w, err)
		return
	}

	msg, err := h.mailService.Send(r.Context(), from, req.Recipient, req.Body)
	if err != nil {
		WriteError(w, err)
		return
	}

	response.Created(w, response.MessageFromModel(msg))
}

// Broadcast handles POST /api/v1/messages/broadcast
func (h *MailHandler) Broadcast(w http.ResponseWriter, r *http.Request) {
	var req request.BroadcastRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, NewInvalidRequestError("invalid request body"))
		return
	}

	from, err := sender(req.SenderName, req.SenderID)
	if err != nil {
		WriteError(w, err)
		return
	}

	count, err := h.mailService.SendToAll(r.Context(), from, req.Body)
	if err != nil {
		WriteError(w, err)
		return
	}

	response.Created(w, response.Broadcast{Count: count})
}
