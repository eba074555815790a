package handler

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/mcoot/proxymail/internal/api/response"
	"github.com/mcoot/proxymail/internal/services/mail"
)

// DirectoryHandler handles username lookups
type DirectoryHandler struct {
	mailService *mail.Service
}

// NewDirectoryHandler creates a new directory handler
func NewDirectoryHandler(mailService *mail.Service) *DirectoryHandler {
	return &DirectoryHandler{
		mailService: mailService,
	}
}

// List handles GET /api/v1/names
func (h *DirectoryHandler) List(w http.ResponseWriter, r *http.Request) {
	names, err := h.mailService.KnownUsernames(r.Context())
	if err != nil {
		WriteError(w, err)
		return
	}
	if names == nil {
		names = []string{}
	}

	response.JSON(w, http.StatusOK, response.Usernames{Usernames: names})
}

// Lookup handles GET /api/v1/names/{name}
func (h *DirectoryHandler) Lookup(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	id, err := h.mailService.LookupName(r.Context(), name)
	if err != nil {
		WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, response.Identity{Name: name, Identity: id.String()})
}
