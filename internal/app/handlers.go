package app

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// respondError maps the failure taxonomy to HTTP. Conflict and
// service-unavailable collapse to generic retry guidance; internal detail
// never reaches the visitor.
func (a *App) respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, ErrUnauthorized):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authorized for this booking"})
	case errors.Is(err, ErrBookingNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "booking not found"})
	case errors.Is(err, ErrAlreadyCancelled):
		c.JSON(http.StatusConflict, gin.H{"error": "booking already cancelled"})
	case errors.Is(err, ErrSlotConflict):
		c.JSON(http.StatusConflict, gin.H{"error": "this slot is no longer available, please pick another time"})
	case errors.Is(err, ErrServiceUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "booking is temporarily unavailable, try again shortly"})
	default:
		a.log().Error("request failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

// GET /api/availability?date=YYYY-MM-DD
func (a *App) GetAvailabilityHandler(c *gin.Context) {
	date := c.Query("date")
	if _, err := time.Parse("2006-01-02", date); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "date required (YYYY-MM-DD)"})
		return
	}
	ctx := c.Request.Context()

	vals := a.loadSettings(ctx)
	cfg := calendarConfigFromSettings(vals)
	loc, err := time.LoadLocation(cfg.HostTimezone)
	if err != nil {
		loc = time.UTC
	}

	if reason, ok := dateBookable(cfg, date, a.now(), loc); !ok {
		c.JSON(http.StatusOK, gin.H{"date": date, "available": false, "reason": reason, "slots": []string{}})
		return
	}

	if n, err := a.ReapStaleLocks(ctx, a.lockTTL()); err != nil {
		a.log().Warn("stale lock sweep failed", zap.Error(err))
	} else if n > 0 {
		a.log().Info("reclaimed orphaned slot locks", zap.Int64("count", n))
	}

	candidates := GenerateSlots(cfg)
	var slots []string
	if testModeEnabled(vals) {
		booked, err := a.ListBookedTimes(ctx, date)
		if err != nil {
			a.respondError(c, err)
			return
		}
		for _, s := range candidates {
			if !booked[s] {
				slots = append(slots, s)
			}
		}
	} else {
		slots = a.AvailableSlots(ctx, hostCalendarID(vals), date, candidates, loc, cfg.SlotDuration(), SlotCheckOptions{})
	}

	// Hide slots an in-flight booking attempt has already claimed. Purely
	// a courtesy filter; acquire remains the guarantee.
	locked, err := a.ListLockedTimes(ctx, date)
	if err != nil {
		a.log().Warn("locked-slot filter unavailable", zap.Error(err))
		locked = map[string]bool{}
	}
	open := make([]string, 0, len(slots))
	for _, s := range slots {
		if !locked[s] {
			open = append(open, s)
		}
	}

	c.JSON(http.StatusOK, gin.H{"date": date, "available": len(open) > 0, "slots": open})
}

type createBookingReq struct {
	Name     string `json:"name" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
	Phone    string `json:"phone"`
	Company  string `json:"company"`
	Notes    string `json:"notes"`
	Date     string `json:"date" binding:"required"`
	Time     string `json:"time" binding:"required"`
	Timezone string `json:"timezone"`
}

// POST /api/bookings
func (a *App) CreateBookingHandler(c *gin.Context) {
	var req createBookingReq
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	res, err := a.CreateBooking(c.Request.Context(), BookingRequest{
		Name:     req.Name,
		Email:    req.Email,
		Phone:    req.Phone,
		Company:  req.Company,
		Notes:    req.Notes,
		Date:     req.Date,
		Time:     req.Time,
		Timezone: req.Timezone,
	})
	if err != nil {
		a.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"booking":      res.Booking,
		"manage_token": res.ManageToken,
	})
}

type rescheduleReq struct {
	Date string `json:"date" binding:"required"`
	Time string `json:"time" binding:"required"`
}

// POST /api/bookings/:id/reschedule
func (a *App) RescheduleBookingHandler(c *gin.Context) {
	var req rescheduleReq
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	b, err := a.RescheduleBooking(c.Request.Context(),
		c.Param("id"), c.GetHeader("X-Manage-Token"), req.Date, req.Time)
	if err != nil {
		a.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

// DELETE /api/bookings/:id
func (a *App) CancelBookingHandler(c *gin.Context) {
	err := a.CancelBooking(c.Request.Context(), c.Param("id"), c.GetHeader("X-Manage-Token"))
	if err != nil {
		a.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// GET /api/admin/settings
func (a *App) GetSettingsHandler(c *gin.Context) {
	c.JSON(http.StatusOK, a.loadSettings(c.Request.Context()))
}

// PUT /api/admin/settings
func (a *App) PutSettingsHandler(c *gin.Context) {
	var payload map[string]string
	if err := c.BindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ctx := c.Request.Context()
	for k, v := range payload {
		if k == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "empty settings key"})
			return
		}
		if err := a.UpsertSetting(ctx, k, v); err != nil {
			a.respondError(c, err)
			return
		}
	}
	c.JSON(http.StatusOK, a.loadSettings(ctx))
}

// GET /api/admin/bookings?from=YYYY-MM-DD&to=YYYY-MM-DD
func (a *App) ListBookingsHandler(c *gin.Context) {
	from, to := c.Query("from"), c.Query("to")
	if (from == "") != (to == "") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "from and to must be supplied together"})
		return
	}
	bookings, err := a.ListBookings(c.Request.Context(), from, to)
	if err != nil {
		a.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, bookings)
}

// GET /healthz
func (a *App) HealthHandler(c *gin.Context) {
	var one int
	if err := a.DB.QueryRow(c.Request.Context(), `SELECT 1`).Scan(&one); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
