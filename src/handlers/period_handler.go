package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/matichattellino/euphoria-iva/src/logger"
	"github.com/matichattellino/euphoria-iva/src/models"
	"github.com/matichattellino/euphoria-iva/src/services"
	"github.com/matichattellino/euphoria-iva/src/utils"
)

const (
	defaultPageSize = 50
	maxPageSize     = 500
	receivedTab     = "recibidas"
)

type PeriodHandler struct {
	periodService services.PeriodService
}

func NewPeriodHandler(periodService services.PeriodService) *PeriodHandler {
	return &PeriodHandler{periodService: periodService}
}

// HandleGetPeriod serves the full VAT position of a period. "page" and
// "pageSize" page the list named by "tab" (issued unless tab=recibidas); the
// other list is returned in full.
func (h *PeriodHandler) HandleGetPeriod(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())
	key := chi.URLParam(r, "periodo")

	q := services.PeriodQuery{Key: key}
	if page := pageRequest(r); page != nil {
		if r.URL.Query().Get("tab") == receivedTab {
			q.ReceivedPage = page
		} else {
			q.IssuedPage = page
		}
	}

	full, err := h.periodService.ResolvePeriod(r.Context(), q)
	if err != nil {
		sendServiceError(w, log, err, "Resolving period "+key)
		return
	}

	etag, err := utils.GenerateETag(full)
	if err != nil {
		log.Error().Err(err).Str("period", key).Msg("Failed to generate ETag for period")
	}
	w.Header().Set("Cache-Control", "no-cache, private")
	if etag != "" {
		w.Header().Set("ETag", etag)
		if etagMatches(r.Header.Get("If-None-Match"), etag) {
			log.Debug().Str("period", key).Str("etag", etag).Msg("ETag match for period")
			w.WriteHeader(http.StatusNotModified)
			return
		}
	}
	utils.SendJSON(w, full, http.StatusOK)
}

func (h *PeriodHandler) HandleListPeriods(w http.ResponseWriter, r *http.Request) {
	periods, err := h.periodService.ListPeriods(r.Context())
	if err != nil {
		sendServiceError(w, logger.FromContext(r.Context()), err, "Listing periods")
		return
	}
	utils.SendJSON(w, map[string][]string{"periodos": periods}, http.StatusOK)
}

func (h *PeriodHandler) HandleGetRanking(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "periodo")
	ranking, err := h.periodService.GetRanking(r.Context(), key)
	if err != nil {
		sendServiceError(w, logger.FromContext(r.Context()), err, "Ranking suppliers for "+key)
		return
	}
	utils.SendJSON(w, map[string][]models.RankEntry{"proveedores": ranking}, http.StatusOK)
}

// pageRequest reads page/pageSize. Missing or malformed values mean "no paging";
// a page without a size uses the default size.
func pageRequest(r *http.Request) *models.PageRequest {
	query := r.URL.Query()
	page, _ := strconv.Atoi(query.Get("page"))
	size, _ := strconv.Atoi(query.Get("pageSize"))
	if page < 1 && size < 1 {
		return nil
	}
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = defaultPageSize
	}
	if size > maxPageSize {
		size = maxPageSize
	}
	return &models.PageRequest{Page: page, PageSize: size}
}

func etagMatches(header, etag string) bool {
	for _, candidate := range strings.Split(header, ",") {
		candidate = strings.TrimSpace(candidate)
		if candidate == etag || candidate == "W/"+etag || candidate == "*" {
			return true
		}
	}
	return false
}
