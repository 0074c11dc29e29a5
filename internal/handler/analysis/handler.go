package analysis

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/enrique/backend/internal/analysis/datehint"
	"github.com/zhouzirui/enrique/backend/internal/analysis/intent"
	"github.com/zhouzirui/enrique/backend/internal/analysis/timezone"
	"github.com/zhouzirui/enrique/backend/internal/metrics"
	"github.com/zhouzirui/enrique/backend/pkg/utils"
)

// Handler 暴露纯文本分析能力：意图、时区、时间换算与日期提示。
type Handler struct {
	converter *timezone.Converter
	now       func() time.Time
}

// New creates the handler. Dates without a reference are resolved against now
// in the converter's target zone.
func New(converter *timezone.Converter, now func() time.Time) *Handler {
	if now == nil {
		now = time.Now
	}
	return &Handler{converter: converter, now: now}
}

// RegisterRoutes 注册分析路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/analysis", func(ar chi.Router) {
		ar.Post("/intent", h.handleIntent)
		ar.Post("/timezone", h.handleTimezone)
		ar.Get("/timezone/aliases", h.handleAliases)
		ar.Post("/time", h.handleParseTime)
		ar.Post("/convert", h.handleConvert)
		ar.Post("/date-hint", h.handleDateHint)
	})
}

type textRequest struct {
	Text string `json:"text"`
}

func decodeText(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req textRequest
	if err := utils.DecodeJSON(w, r, &req); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return "", false
	}
	return req.Text, true
}

func (h *Handler) handleIntent(w http.ResponseWriter, r *http.Request) {
	text, ok := decodeText(w, r)
	if !ok {
		return
	}
	match := intent.Explain(text)
	metrics.IntentClassified.WithLabelValues(string(match.Category)).Inc()
	utils.RespondJSON(w, http.StatusOK, match)
}

// TimezoneResponse is the resolver output.
type TimezoneResponse struct {
	Found        bool   `json:"found"`
	Zone         string `json:"zone,omitempty"`
	FriendlyName string `json:"friendlyName,omitempty"`
}

func (h *Handler) handleTimezone(w http.ResponseWriter, r *http.Request) {
	text, ok := decodeText(w, r)
	if !ok {
		return
	}
	zone, found := timezone.Resolve(text)
	resp := TimezoneResponse{Found: found}
	if found {
		resp.Zone = zone
		resp.FriendlyName = timezone.FriendlyName(zone)
	}
	utils.RespondJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleAliases(w http.ResponseWriter, _ *http.Request) {
	utils.RespondJSON(w, http.StatusOK, timezone.Aliases())
}

// ParsedTimeResponse 时间解析结果
type ParsedTimeResponse struct {
	Hour   int    `json:"hour"`
	Minute int    `json:"minute"`
	Clock  string `json:"clock"`
}

func (h *Handler) handleParseTime(w http.ResponseWriter, r *http.Request) {
	text, ok := decodeText(w, r)
	if !ok {
		return
	}
	parsed, err := timezone.ParseTime(text)
	if err != nil {
		utils.RespondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	utils.RespondJSON(w, http.StatusOK, ParsedTimeResponse{Hour: parsed.Hour, Minute: parsed.Minute, Clock: parsed.String()})
}

// ConvertRequest 时间换算请求。Zone 可以是 IANA 标识或 "PST" 这类缩写；
// 缺省时从 Text 中识别。
type ConvertRequest struct {
	Time string `json:"time"`
	Zone string `json:"zone"`
	Text string `json:"text"`
	Date string `json:"date"`
}

func (h *Handler) handleConvert(w http.ResponseWriter, r *http.Request) {
	var req ConvertRequest
	if err := utils.DecodeJSON(w, r, &req); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	timeText := strings.TrimSpace(req.Time)
	if timeText == "" {
		expr, ok := timezone.FindTimeExpression(req.Text)
		if !ok {
			utils.RespondError(w, http.StatusBadRequest, "time is required")
			return
		}
		timeText = expr
	}

	zone, ok := timezone.Normalize(req.Zone)
	if !ok {
		utils.RespondError(w, http.StatusBadRequest, "unknown timezone")
		return
	}
	if zone == "" {
		if zone, ok = timezone.Resolve(req.Text); !ok {
			utils.RespondError(w, http.StatusBadRequest, "zone is required")
			return
		}
	}

	var ref time.Time
	if req.Date != "" {
		parsed, err := time.Parse("2006-01-02", req.Date)
		if err != nil {
			utils.RespondError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
			return
		}
		ref = parsed
	}

	result, err := h.converter.Convert(timeText, zone, ref)
	metrics.TimeConversions.WithLabelValues(metrics.StatusOf(err)).Inc()
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, timezone.ErrParse):
			status = http.StatusUnprocessableEntity
		case errors.Is(err, timezone.ErrUnknownZone):
			status = http.StatusBadRequest
		}
		utils.RespondError(w, status, err.Error())
		return
	}
	utils.RespondJSON(w, http.StatusOK, result)
}

// DateHintRequest 日期提示请求；Reference 为 YYYY-MM-DD，缺省为今天。
type DateHintRequest struct {
	Text      string `json:"text"`
	Reference string `json:"reference"`
}

// DateHintResponse 日期提示结果
type DateHintResponse struct {
	Found bool               `json:"found"`
	Hint  *datehint.DateHint `json:"hint,omitempty"`
	Date  string             `json:"date,omitempty"`
	Error string             `json:"error,omitempty"`
}

func (h *Handler) handleDateHint(w http.ResponseWriter, r *http.Request) {
	var req DateHintRequest
	if err := utils.DecodeJSON(w, r, &req); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	loc := h.converter.Target()
	ref := h.now().In(loc)
	if req.Reference != "" {
		parsed, err := time.ParseInLocation("2006-01-02", req.Reference, loc)
		if err != nil {
			utils.RespondError(w, http.StatusBadRequest, "reference must be YYYY-MM-DD")
			return
		}
		ref = parsed
	}

	hint, found := datehint.Extract(req.Text)
	if !found {
		utils.RespondJSON(w, http.StatusOK, DateHintResponse{})
		return
	}

	resp := DateHintResponse{Found: true, Hint: &hint}
	if day, err := datehint.Resolve(hint, ref); err != nil {
		resp.Error = err.Error()
	} else {
		resp.Date = day.Format("2006-01-02")
	}
	utils.RespondJSON(w, http.StatusOK, resp)
}
