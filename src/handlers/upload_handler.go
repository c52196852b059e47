package handlers

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/dustin/go-humanize"

	"github.com/matichattellino/euphoria-iva/src/logger"
	"github.com/matichattellino/euphoria-iva/src/models"
	"github.com/matichattellino/euphoria-iva/src/parsers"
	"github.com/matichattellino/euphoria-iva/src/security/validation"
	"github.com/matichattellino/euphoria-iva/src/services"
	"github.com/matichattellino/euphoria-iva/src/utils"
)

type UploadHandler struct {
	periodService services.PeriodService
	maxUploadSize int64
}

func NewUploadHandler(periodService services.PeriodService, maxUploadSize int64) *UploadHandler {
	return &UploadHandler{periodService: periodService, maxUploadSize: maxUploadSize}
}

type uploadResponse struct {
	OK    bool               `json:"ok"`
	Saved []string           `json:"saved"`
	Data  *models.FullPeriod `json:"data"`
}

// HandleUpload stores the "emitidos" and/or "recibidos" files of the form's
// "periodo" and ingests the period right away.
func (h *UploadHandler) HandleUpload(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadSize)
	if err := r.ParseMultipartForm(h.maxUploadSize); err != nil {
		log.Warn().Err(err).Int64("limit", h.maxUploadSize).Msg("Failed to parse multipart form or request too large")
		utils.SendJSONError(w, fmt.Sprintf("Failed to parse form or request too large (max %s)", humanize.Bytes(uint64(h.maxUploadSize))), http.StatusBadRequest)
		return
	}

	period := r.FormValue("periodo")
	if !utils.ValidPeriod(period) {
		utils.SendJSONError(w, `Missing field "periodo" formatted YYYY-MM`, http.StatusBadRequest)
		return
	}

	saved := []string{}
	for _, direction := range []models.Direction{models.DirectionIssued, models.DirectionReceived} {
		field := direction.FileToken()
		content, err := h.readFormFile(r, field)
		if errors.Is(err, http.ErrMissingFile) {
			continue
		}
		if err != nil {
			sendServiceError(w, log, err, "Reading uploaded "+field)
			return
		}

		path, err := h.periodService.SaveUpload(period, direction, content)
		if err != nil {
			sendServiceError(w, log, err, "Saving uploaded "+field)
			return
		}
		saved = append(saved, path)
	}

	if len(saved) == 0 {
		utils.SendJSONError(w, "No file received: send \"emitidos\" and/or \"recibidos\"", http.StatusBadRequest)
		return
	}

	log.Info().Str("period", period).Strs("saved", saved).Msg("Upload stored, ingesting period")
	full, err := h.periodService.IngestFiles(r.Context(), period)
	if err != nil {
		sendServiceError(w, log, err, "Ingesting uploaded period "+period)
		return
	}
	utils.SendJSON(w, uploadResponse{OK: true, Saved: saved, Data: full}, http.StatusOK)
}

func (h *UploadHandler) readFormFile(r *http.Request, field string) ([]byte, error) {
	file, header, err := r.FormFile(field)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	if header.Size > h.maxUploadSize {
		return nil, fmt.Errorf("%w: %s is %s, max %s", validation.ErrValidationFailed, field,
			humanize.Bytes(uint64(header.Size)), humanize.Bytes(uint64(h.maxUploadSize)))
	}
	if err := validation.ValidateClientContentType(header.Header.Get("Content-Type")); err != nil {
		return nil, err
	}
	if _, err := validation.ValidateFileContentByMagicBytes(file); err != nil {
		return nil, fmt.Errorf("%s: %w", field, err)
	}

	content, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read uploaded %s: %w", field, err)
	}
	// Reject undecodable content before it replaces a good file on disk.
	if _, err := parsers.Decode(bytes.NewReader(content)); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", validation.ErrValidationFailed, field, err)
	}
	return content, nil
}
