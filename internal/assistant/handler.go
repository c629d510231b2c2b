package assistant

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"golang.org/x/text/language"

	"github.com/ganacsi/ganacsi/internal/auth"
	"github.com/ganacsi/ganacsi/internal/platform/httpx"
)

// Handler answers questions over HTTP.
type Handler struct {
	logger *slog.Logger
	source DataSource
}

// NewHandler builds the assistant handler.
func NewHandler(logger *slog.Logger, source DataSource) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, source: source}
}

// MountRoutes registers assistant routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/ask", h.ask)
}

type askRequest struct {
	Question string `json:"question"`
	Lang     string `json:"lang"`
}

type askResponse struct {
	Answer   string   `json:"answer"`
	Intents  []Intent `json:"intents"`
	Language string   `json:"language"`
	Fallback bool     `json:"fallback"`
}

func (h *Handler) ask(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		httpx.Error(w, http.StatusBadRequest, "question is required")
		return
	}
	lang := Match(req.Lang)
	if req.Lang == "" {
		lang = Match(r.Header.Get("Accept-Language"))
	}

	intents := DetectIntents(req.Question)
	if len(intents) == 0 {
		httpx.JSON(w, http.StatusOK, askResponse{
			Answer:   Fallback(lang),
			Intents:  []Intent{},
			Language: lang.String(),
			Fallback: true,
		})
		return
	}

	principal, _ := auth.PrincipalFromContext(r.Context())
	data, err := Load(r.Context(), h.source, principal.CompanyID, intents)
	if err != nil {
		h.logger.Error("load assistant data", slog.Any("error", err), slog.Int64("company_id", principal.CompanyID))
		httpx.RespondError(w, err)
		return
	}
	answers := make([]string, 0, len(intents))
	for _, intent := range intents {
		if text, ok := Respond(intent, data, lang); ok {
			answers = append(answers, text)
		}
	}
	httpx.JSON(w, http.StatusOK, askResponse{
		Answer:   strings.Join(answers, "\n"),
		Intents:  intents,
		Language: lang.String(),
	})
}

// Fallback is the reply used when no intent is recognised.
func Fallback(lang language.Tag) string {
	return printerFor(lang).Sprintf(keyFallback)
}
