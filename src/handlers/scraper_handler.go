package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/matichattellino/euphoria-iva/src/logger"
	"github.com/matichattellino/euphoria-iva/src/models"
	"github.com/matichattellino/euphoria-iva/src/services"
	"github.com/matichattellino/euphoria-iva/src/utils"
)

type ScraperHandler struct {
	scraper services.ScraperService
}

func NewScraperHandler(scraper services.ScraperService) *ScraperHandler {
	return &ScraperHandler{scraper: scraper}
}

type scraperRunRequest struct {
	Period   string `json:"periodo"`
	DateFrom string `json:"fechaDesde"`
	DateTo   string `json:"fechaHasta"`
}

type scraperRunResponse struct {
	OK     bool                `json:"ok"`
	Status models.ScraperState `json:"status"`
}

func (h *ScraperHandler) HandleRun(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())

	var req scraperRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.SendJSONError(w, "Invalid JSON body", http.StatusBadRequest)
		return
	}

	state, err := h.scraper.Launch(req.Period, req.DateFrom, req.DateTo)
	if err != nil {
		var spawnErr *services.ProcessSpawnError
		if errors.As(err, &spawnErr) {
			log.Error().Err(err).Msg("Scraper could not be started")
			utils.SendJSONError(w, err.Error(), http.StatusInternalServerError)
			return
		}
		sendServiceError(w, log, err, "Launching scraper")
		return
	}
	utils.SendJSON(w, scraperRunResponse{OK: true, Status: state}, http.StatusOK)
}

func (h *ScraperHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	utils.SendJSON(w, h.scraper.GetStatus(), http.StatusOK)
}
