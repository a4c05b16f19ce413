package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ssaillesh/Booking-agent/internal/domain"
	"github.com/ssaillesh/Booking-agent/internal/kb"
	"github.com/ssaillesh/Booking-agent/internal/scheduling"
	"github.com/ssaillesh/Booking-agent/internal/staff"
	"github.com/ssaillesh/Booking-agent/internal/store"
)

type bookingService interface {
	Book(ctx context.Context, req domain.BookingRequest) (domain.Booking, error)
	Cancel(ctx context.Context, bookingID uuid.UUID) error
}

type staffService interface {
	Create(ctx context.Context, in staff.CreateInput) (domain.StaffMember, error)
	UpdateSchedule(ctx context.Context, staffID string, intervals []domain.WorkingInterval) (domain.StaffMember, error)
	Deactivate(ctx context.Context, staffID string) error
	Get(ctx context.Context, staffID string) (domain.StaffMember, error)
}

type kbService interface {
	Search(ctx context.Context, query string, topK int) ([]kb.Result, error)
	Upsert(ctx context.Context, article kb.Article) (kb.Article, error)
}

type bookingReader interface {
	ListBookings(ctx context.Context, staffID string, windowStart, windowEnd time.Time) ([]domain.Booking, error)
}

type Handler struct {
	bookings bookingService
	staff    staffService
	kb       kbService
	reader   bookingReader
	log      *slog.Logger
}

func NewHandler(bookings bookingService, staffSvc staffService, kbSvc kbService, reader bookingReader, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{
		bookings: bookings,
		staff:    staffSvc,
		kb:       kbSvc,
		reader:   reader,
		log:      log.With(slog.String("component", "http")),
	}
}

func (h *Handler) Register(r *gin.Engine) {
	r.GET("/health", h.health)

	r.POST("/book_appointment", h.bookAppointment)
	r.GET("/bookings", h.listBookings)
	r.POST("/bookings/:id/cancel", h.cancelBooking)
	r.GET("/availability", h.availability)

	r.POST("/staff", h.createStaff)
	r.PUT("/staff/:id/schedule", h.updateSchedule)
	r.DELETE("/staff/:id", h.deactivateStaff)

	r.POST("/search_kb", h.searchKB)
	r.PUT("/kb/articles", h.upsertArticle)
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type bookRequest struct {
	Service string    `json:"service"`
	Staff   string    `json:"staff"`
	Start   time.Time `json:"start"`
	End     time.Time `json:"end"`
	Name    string    `json:"name"`
	Phone   string    `json:"phone"`
}

type bookingResponse struct {
	BookingID string    `json:"booking_id"`
	StaffID   string    `json:"staff_id"`
	Service   string    `json:"service"`
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
	Status    string    `json:"status"`
}

func toBookingResponse(b domain.Booking) bookingResponse {
	return bookingResponse{
		BookingID: b.ID.String(),
		StaffID:   b.StaffID,
		Service:   b.Service,
		Start:     b.StartTime,
		End:       b.EndTime,
		Status:    string(b.Status),
	}
}

func (h *Handler) bookAppointment(c *gin.Context) {
	var req bookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error_kind": "invalid_request", "reason": err.Error()})
		return
	}

	booking, err := h.bookings.Book(c.Request.Context(), domain.BookingRequest{
		StaffID:        req.Staff,
		Service:        req.Service,
		StartTime:      req.Start,
		EndTime:        req.End,
		CustomerName:   req.Name,
		CustomerPhone:  req.Phone,
		IdempotencyKey: c.GetHeader("Idempotency-Key"),
	})
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toBookingResponse(booking))
}

func (h *Handler) cancelBooking(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error_kind": "invalid_request", "reason": "invalid booking id"})
		return
	}
	if err := h.bookings.Cancel(c.Request.Context(), id); err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"booking_id": id.String(), "status": string(domain.BookingStatusCancelled)})
}

func (h *Handler) listBookings(c *gin.Context) {
	staffID := c.Query("staff_id")
	if staffID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error_kind": "invalid_request", "reason": "staff_id is required"})
		return
	}
	from, to, err := parseWindow(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error_kind": "invalid_request", "reason": err.Error()})
		return
	}

	bookings, err := h.reader.ListBookings(c.Request.Context(), staffID, from, to)
	if err != nil {
		h.renderError(c, err)
		return
	}
	out := make([]bookingResponse, 0, len(bookings))
	for _, b := range bookings {
		out = append(out, toBookingResponse(b))
	}
	c.JSON(http.StatusOK, gin.H{"bookings": out, "count": len(out)})
}

func (h *Handler) availability(c *gin.Context) {
	staffID := c.Query("staff_id")
	if staffID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error_kind": "invalid_request", "reason": "staff_id is required"})
		return
	}
	from, to, err := parseWindow(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error_kind": "invalid_request", "reason": err.Error()})
		return
	}
	slotLen := 30 * time.Minute
	if raw := c.Query("slot_minutes"); raw != "" {
		d, err := time.ParseDuration(raw + "m")
		if err != nil || d <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error_kind": "invalid_request", "reason": "invalid slot_minutes"})
			return
		}
		slotLen = d
	}

	member, err := h.staff.Get(c.Request.Context(), staffID)
	if err != nil {
		h.renderError(c, err)
		return
	}
	bookings, err := h.reader.ListBookings(c.Request.Context(), staffID, from, to)
	if err != nil {
		h.renderError(c, err)
		return
	}

	slots := scheduling.FreeSlots(member, bookings, from, to, slotLen)
	c.JSON(http.StatusOK, gin.H{"slots": slots, "count": len(slots)})
}

type workingIntervalDTO struct {
	Weekday     int `json:"weekday"`
	StartMinute int `json:"start_minute"`
	EndMinute   int `json:"end_minute"`
}

type createStaffRequest struct {
	ID           string               `json:"id"`
	DisplayName  string               `json:"display_name"`
	WorkingHours []workingIntervalDTO `json:"working_hours"`
}

func toIntervals(dtos []workingIntervalDTO) []domain.WorkingInterval {
	out := make([]domain.WorkingInterval, 0, len(dtos))
	for _, d := range dtos {
		out = append(out, domain.WorkingInterval{
			Weekday:     time.Weekday(d.Weekday),
			StartMinute: d.StartMinute,
			EndMinute:   d.EndMinute,
		})
	}
	return out
}

func staffResponse(m domain.StaffMember) gin.H {
	hours := make([]workingIntervalDTO, 0, len(m.WorkingIntervals))
	for _, iv := range m.WorkingIntervals {
		hours = append(hours, workingIntervalDTO{
			Weekday:     int(iv.Weekday),
			StartMinute: iv.StartMinute,
			EndMinute:   iv.EndMinute,
		})
	}
	return gin.H{
		"id":            m.ID,
		"display_name":  m.DisplayName,
		"active":        m.Active,
		"working_hours": hours,
	}
}

func (h *Handler) createStaff(c *gin.Context) {
	var req createStaffRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error_kind": "invalid_request", "reason": err.Error()})
		return
	}
	member, err := h.staff.Create(c.Request.Context(), staff.CreateInput{
		ID:               req.ID,
		DisplayName:      req.DisplayName,
		WorkingIntervals: toIntervals(req.WorkingHours),
	})
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusCreated, staffResponse(member))
}

func (h *Handler) updateSchedule(c *gin.Context) {
	var req struct {
		WorkingHours []workingIntervalDTO `json:"working_hours"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error_kind": "invalid_request", "reason": err.Error()})
		return
	}
	member, err := h.staff.UpdateSchedule(c.Request.Context(), c.Param("id"), toIntervals(req.WorkingHours))
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, staffResponse(member))
}

func (h *Handler) deactivateStaff(c *gin.Context) {
	if err := h.staff.Deactivate(c.Request.Context(), c.Param("id")); err != nil {
		h.renderError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type kbQuery struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k"`
}

func (h *Handler) searchKB(c *gin.Context) {
	var req kbQuery
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error_kind": "invalid_request", "reason": err.Error()})
		return
	}
	results, err := h.kb.Search(c.Request.Context(), req.Query, req.TopK)
	if err != nil {
		h.renderError(c, err)
		return
	}
	if results == nil {
		results = []kb.Result{}
	}
	c.JSON(http.StatusOK, gin.H{"results": results})
}

func (h *Handler) upsertArticle(c *gin.Context) {
	var req struct {
		Title   string `json:"title"`
		Content string `json:"content"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error_kind": "invalid_request", "reason": err.Error()})
		return
	}
	article, err := h.kb.Upsert(c.Request.Context(), kb.Article{Title: req.Title, Content: req.Content})
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": article.ID.String(), "title": article.Title})
}

func parseWindow(c *gin.Context) (time.Time, time.Time, error) {
	from, err := time.Parse(time.RFC3339, c.Query("from"))
	if err != nil {
		return time.Time{}, time.Time{}, errors.New("from must be RFC3339")
	}
	to, err := time.Parse(time.RFC3339, c.Query("to"))
	if err != nil {
		return time.Time{}, time.Time{}, errors.New("to must be RFC3339")
	}
	if !to.After(from) {
		return time.Time{}, time.Time{}, errors.New("to must be after from")
	}
	return from.UTC(), to.UTC(), nil
}

// renderError maps service errors onto the wire taxonomy. Every rejection
// carries a specific reason so the caller can pick a different slot or staff
// member.
func (h *Handler) renderError(c *gin.Context, err error) {
	var cErr *scheduling.ConflictError
	if errors.As(err, &cErr) {
		body := gin.H{"error_kind": string(cErr.Kind), "reason": cErr.Error()}
		status := http.StatusConflict
		switch cErr.Kind {
		case scheduling.ConflictInvalidInterval:
			status = http.StatusBadRequest
		case scheduling.ConflictStaffUnknown:
			status = http.StatusNotFound
		case scheduling.ConflictOverlap:
			if cErr.ConflictingBookingID != uuid.Nil {
				body["conflicting_booking_id"] = cErr.ConflictingBookingID.String()
			}
		}
		c.JSON(status, body)
		return
	}

	var schedVErr *scheduling.ValidationError
	var staffVErr *staff.ValidationError
	var kbVErr *kb.ValidationError
	if errors.As(err, &schedVErr) || errors.As(err, &staffVErr) || errors.As(err, &kbVErr) {
		c.JSON(http.StatusBadRequest, gin.H{"error_kind": "invalid_request", "reason": err.Error()})
		return
	}

	switch {
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error_kind": "not_found", "reason": "no such resource"})
	case errors.Is(err, store.ErrIdempotencyConflict):
		c.JSON(http.StatusConflict, gin.H{"error_kind": "idempotency_conflict", "reason": "this request key was already used for a different booking"})
	case errors.Is(err, store.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error_kind": "conflict", "reason": "resource already exists"})
	case errors.Is(err, context.DeadlineExceeded):
		h.log.Warn("request timed out", slog.Any("err", err), slog.String("path", c.FullPath()))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error_kind": "transient", "reason": "service temporarily unavailable, retry later"})
	default:
		h.log.Error("request failed", slog.Any("err", err), slog.String("path", c.FullPath()))
		c.JSON(http.StatusInternalServerError, gin.H{"error_kind": "internal", "reason": "internal error"})
	}
}
