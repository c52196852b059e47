package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/time/rate"

	"github.com/matichattellino/euphoria-iva/src/config"
	"github.com/matichattellino/euphoria-iva/src/services"
	"github.com/matichattellino/euphoria-iva/src/utils"
)

// Services are the application services the HTTP API exposes.
type Services struct {
	Periods    services.PeriodService
	Scraper    services.ScraperService
	Automation services.AutomationService
}

func NewRouter(cfg *config.AppConfig, svc Services) http.Handler {
	periodHandler := NewPeriodHandler(svc.Periods)
	uploadHandler := NewUploadHandler(svc.Periods, cfg.MaxUploadSizeBytes)
	scraperHandler := NewScraperHandler(svc.Scraper)
	automationHandler := NewAutomationHandler(svc.Automation)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger)
	r.Use(middleware.Recoverer)
	r.Use(CORSMiddleware(cfg.AllowedOrigins))
	r.Use(RateLimitMiddleware(rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", HandleHealth)

		r.Get("/iva/{periodo}", periodHandler.HandleGetPeriod)
		r.Get("/periodos", periodHandler.HandleListPeriods)
		r.Get("/proveedores/{periodo}", periodHandler.HandleGetRanking)
		r.Post("/upload", uploadHandler.HandleUpload)

		r.Post("/scraper/run", scraperHandler.HandleRun)
		r.Get("/scraper/status", scraperHandler.HandleStatus)

		r.Post("/posicion-iva", automationHandler.HandlePosition)
		r.Post("/emitidas", automationHandler.HandleIssued)
		r.Post("/recibidas", automationHandler.HandleReceived)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		utils.SendJSONError(w, "Not found", http.StatusNotFound)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		utils.SendJSONError(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})
	return r
}

func HandleHealth(w http.ResponseWriter, _ *http.Request) {
	utils.SendJSON(w, map[string]string{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}, http.StatusOK)
}
