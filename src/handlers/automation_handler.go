package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/matichattellino/euphoria-iva/src/logger"
	"github.com/matichattellino/euphoria-iva/src/models"
	"github.com/matichattellino/euphoria-iva/src/services"
	"github.com/matichattellino/euphoria-iva/src/utils"
)

// AutomationHandler answers straight from the remote automation service.
// Requests block while the job is polled.
type AutomationHandler struct {
	automation services.AutomationService
}

func NewAutomationHandler(automation services.AutomationService) *AutomationHandler {
	return &AutomationHandler{automation: automation}
}

type automationRequest struct {
	CUIT        string `json:"cuit"`
	AccessToken string `json:"accessToken"`
	Username    string `json:"username"`
	Password    string `json:"password"`
	DateFrom    string `json:"fechaDesde"`
	DateTo      string `json:"fechaHasta"`
}

func decodeAutomationRequest(w http.ResponseWriter, r *http.Request) (services.Credentials, services.DateRange, bool) {
	var req automationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.SendJSONError(w, "Invalid JSON body", http.StatusBadRequest)
		return services.Credentials{}, services.DateRange{}, false
	}
	creds := services.Credentials{Token: req.AccessToken, CUIT: req.CUIT, Username: req.Username, Password: req.Password}
	return creds, services.DateRange{From: req.DateFrom, To: req.DateTo}, true
}

func (h *AutomationHandler) HandlePosition(w http.ResponseWriter, r *http.Request) {
	creds, dates, ok := decodeAutomationRequest(w, r)
	if !ok {
		return
	}
	full, err := h.automation.FetchPosition(r.Context(), creds, dates)
	if err != nil {
		sendServiceError(w, logger.FromContext(r.Context()), err, "Fetching remote VAT position")
		return
	}
	utils.SendJSON(w, full, http.StatusOK)
}

func (h *AutomationHandler) HandleIssued(w http.ResponseWriter, r *http.Request) {
	h.handleListing(w, r, models.DirectionIssued)
}

func (h *AutomationHandler) HandleReceived(w http.ResponseWriter, r *http.Request) {
	h.handleListing(w, r, models.DirectionReceived)
}

func (h *AutomationHandler) handleListing(w http.ResponseWriter, r *http.Request, direction models.Direction) {
	creds, dates, ok := decodeAutomationRequest(w, r)
	if !ok {
		return
	}
	listing, err := h.automation.FetchListing(r.Context(), direction, creds, dates)
	if err != nil {
		sendServiceError(w, logger.FromContext(r.Context()), err, "Fetching remote "+direction.FileToken())
		return
	}
	utils.SendJSON(w, listing, http.StatusOK)
}
