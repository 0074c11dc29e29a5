package calendar

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/zhouzirui/enrique/backend/internal/analysis/datehint"
	calendarModel "github.com/zhouzirui/enrique/backend/internal/model/calendar"
	calendarService "github.com/zhouzirui/enrique/backend/internal/service/calendar"
	"github.com/zhouzirui/enrique/backend/internal/service/tools"
	"github.com/zhouzirui/enrique/backend/pkg/utils"
)

// maxAlternatives caps the limit query parameter.
const maxAlternatives = 10

// Handler 日历查询与预约
type Handler struct {
	backend calendarService.Backend
	loc     *time.Location
	now     func() time.Time
	logger  *zap.Logger
}

// New creates the handler; local dates and times are read in loc.
func New(backend calendarService.Backend, loc *time.Location, now func() time.Time, logger *zap.Logger) *Handler {
	if loc == nil {
		loc = time.UTC
	}
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{backend: backend, loc: loc, now: now, logger: logger.Named("calendar")}
}

// RegisterRoutes 注册日历路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/calendar", func(cr chi.Router) {
		cr.Get("/availability", h.handleAvailability)
		cr.Get("/alternatives", h.handleAlternatives)
		cr.Post("/book", h.handleBook)
	})
}

// AvailabilityResponse lists the open slots of one day.
type AvailabilityResponse struct {
	Backend string                   `json:"backend"`
	Day     string                   `json:"day"`
	Slots   []calendarModel.TimeSlot `json:"slots"`
	Message string                   `json:"message"`
}

// handleAvailability 查询某天空闲时段；date 缺省为今天，支持 "tomorrow" 等提示。
func (h *Handler) handleAvailability(w http.ResponseWriter, r *http.Request) {
	ref := h.now().In(h.loc)
	day := time.Date(ref.Year(), ref.Month(), ref.Day(), 0, 0, 0, 0, h.loc)
	if raw := strings.TrimSpace(r.URL.Query().Get("date")); raw != "" {
		resolved, err := tools.ResolveDay(raw, ref)
		if err != nil {
			utils.RespondError(w, http.StatusBadRequest, err.Error())
			return
		}
		day = resolved
	}

	slots, err := h.backend.CheckAvailability(r.Context(), day)
	if err != nil {
		h.respondBackendError(w, err)
		return
	}

	message := tools.FlexibleCalendar
	if len(slots) > 0 {
		message = tools.FormatSlots(day, slots, h.loc)
	}
	if slots == nil {
		slots = []calendarModel.TimeSlot{}
	}
	utils.RespondJSON(w, http.StatusOK, AvailabilityResponse{
		Backend: h.backend.Name(),
		Day:     day.Format("2006-01-02"),
		Slots:   slots,
		Message: message,
	})
}

// handleAlternatives 返回距 preferred 最近的空闲时段。
func (h *Handler) handleAlternatives(w http.ResponseWriter, r *http.Request) {
	raw := strings.TrimSpace(r.URL.Query().Get("preferred"))
	if raw == "" {
		utils.RespondError(w, http.StatusBadRequest, "preferred is required")
		return
	}
	preferred, err := tools.ParseStart(raw, h.now().In(h.loc))
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	limit := calendarService.DefaultAlternatives
	if rawLimit := r.URL.Query().Get("limit"); rawLimit != "" {
		limit, err = strconv.Atoi(rawLimit)
		if err != nil || limit <= 0 || limit > maxAlternatives {
			utils.RespondError(w, http.StatusBadRequest, "limit must be between 1 and 10")
			return
		}
	}

	slots, err := calendarService.NearestAlternatives(r.Context(), h.backend, preferred, limit)
	if err != nil {
		h.respondBackendError(w, err)
		return
	}
	if slots == nil {
		slots = []calendarModel.TimeSlot{}
	}
	utils.RespondJSON(w, http.StatusOK, slots)
}

// BookRequest 预约请求；Start 接受 RFC3339、"YYYY-MM-DD HH:MM" 或 "tomorrow 2pm"。
type BookRequest struct {
	Name   string   `json:"name"`
	Email  string   `json:"email"`
	Start  string   `json:"start"`
	Notes  string   `json:"notes"`
	Guests []string `json:"guests"`
}

func (h *Handler) handleBook(w http.ResponseWriter, r *http.Request) {
	var req BookRequest
	if err := utils.DecodeJSON(w, r, &req); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	start, err := tools.ParseStart(req.Start, h.now().In(h.loc))
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid start: "+err.Error())
		return
	}

	confirmation, err := h.backend.BookMeeting(r.Context(), calendarModel.BookingRequest{
		Slot:    calendarModel.TimeSlot{Start: start, End: start.Add(calendarService.SlotLength)},
		Contact: calendarModel.Contact{Name: strings.TrimSpace(req.Name), Email: strings.TrimSpace(req.Email)},
		Notes:   req.Notes,
		Guests:  req.Guests,
	})
	if err != nil {
		// The provider may have accepted the request without confirming it.
		if confirmation.Status == calendarModel.StatusPending {
			h.logger.Warn("booking left pending", zap.Time("start", start), zap.Error(err))
			utils.RespondJSON(w, http.StatusAccepted, confirmation)
			return
		}
		h.respondBackendError(w, err)
		return
	}

	utils.RespondJSON(w, http.StatusCreated, confirmation)
}

func (h *Handler) respondBackendError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, calendarService.ErrInvalidBooking),
		errors.Is(err, calendarService.ErrInvalidRange),
		errors.Is(err, datehint.ErrUnresolvable):
		utils.RespondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, calendarService.ErrSlotTaken):
		utils.RespondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, calendarService.ErrSlotUnavailable):
		utils.RespondError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		h.logger.Warn("calendar backend failed", zap.Error(err))
		utils.RespondError(w, http.StatusBadGateway, "calendar backend unavailable")
	}
}
