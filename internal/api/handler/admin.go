package handler

import (
	"net/http"

	"github.com/mcoot/proxymail/internal/api/response"
	"github.com/mcoot/proxymail/internal/services/mail"
)

// AdminHandler handles maintenance endpoints
type AdminHandler struct {
	mailService *mail.Service
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(mailService *mail.Service) *AdminHandler {
	return &AdminHandler{
		mailService: mailService,
	}
}

// Cleanup handles POST /api/v1/admin/cleanup
func (h *AdminHandler) Cleanup(w http.ResponseWriter, r *http.Request) {
	deleted, err := h.mailService.Cleanup(r.Context())
	if err != nil {
		WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, response.Deleted{Deleted: deleted})
}
