package app

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type availabilityResponse struct {
	Date      string   `json:"date"`
	Available bool     `json:"available"`
	Reason    string   `json:"reason"`
	Slots     []string `json:"slots"`
}

func getAvailability(t *testing.T, a *App, date string) (int, availabilityResponse) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/api/availability", a.GetAvailabilityHandler)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/availability?date="+date, nil)
	router.ServeHTTP(w, req)

	var body availabilityResponse
	if w.Code == http.StatusOK {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	}
	return w.Code, body
}

func TestAvailabilityRejectsBadDate(t *testing.T) {
	a, _, _, _ := newOrchestratorApp(t)

	code, _ := getAvailability(t, a, "tomorrow")
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestAvailabilityPastDate(t *testing.T) {
	a, mock, _, _ := newOrchestratorApp(t)
	expectSettings(mock)

	code, body := getAvailability(t, a, "2026-08-01")
	assert.Equal(t, http.StatusOK, code)
	assert.False(t, body.Available)
	assert.Equal(t, ReasonPastDate, body.Reason)
	assert.Empty(t, body.Slots)
}

func TestAvailabilityNonBusinessDay(t *testing.T) {
	a, mock, _, _ := newOrchestratorApp(t)
	expectSettings(mock)

	// 2026-09-06 is a Sunday.
	code, body := getAvailability(t, a, "2026-09-06")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, ReasonNotBusinessDay, body.Reason)
}

func TestAvailabilityBlockedDate(t *testing.T) {
	a, mock, _, _ := newOrchestratorApp(t)
	expectSettings(mock, "blocked_dates", `["2026-09-08"]`)

	code, body := getAvailability(t, a, "2026-09-08")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, ReasonBlockedDate, body.Reason)
}

func TestAvailabilityLiveModeFiltersBusyAndLocked(t *testing.T) {
	a, mock, cal, _ := newOrchestratorApp(t)
	cal.events = nil // fully free calendar

	expectSettings(mock)
	mock.ExpectExec("DELETE FROM slot_locks").WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectQuery("FROM slot_locks WHERE scheduled_date").
		WithArgs("2026-09-08").
		WillReturnRows(pgxmock.NewRows([]string{"to_char"}).AddRow("14:00"))

	code, body := getAvailability(t, a, "2026-09-08")
	assert.Equal(t, http.StatusOK, code)
	require.NoError(t, mock.ExpectationsWereMet())

	assert.True(t, body.Available)
	assert.Len(t, body.Slots, 15, "16 candidates minus the locked 14:00")
	assert.NotContains(t, body.Slots, "14:00")
	assert.Equal(t, "09:00", body.Slots[0])
	assert.Equal(t, "16:30", body.Slots[len(body.Slots)-1])
}

func TestAvailabilityFailsClosedWhenCalendarDown(t *testing.T) {
	a, mock, cal, _ := newOrchestratorApp(t)
	cal.listErr = errors.New("connection refused")

	expectSettings(mock)
	mock.ExpectExec("DELETE FROM slot_locks").WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectQuery("FROM slot_locks WHERE scheduled_date").
		WithArgs("2026-09-08").
		WillReturnRows(pgxmock.NewRows([]string{"to_char"}))

	code, body := getAvailability(t, a, "2026-09-08")
	assert.Equal(t, http.StatusOK, code)
	assert.False(t, body.Available)
	assert.Empty(t, body.Slots, "unverifiable days must show no slots, never the full candidate list")
}

func TestAvailabilityTestModeUsesLocalBookings(t *testing.T) {
	a, mock, cal, _ := newOrchestratorApp(t)

	expectSettings(mock, "test_mode", "true")
	mock.ExpectExec("DELETE FROM slot_locks").WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectQuery("FROM bookings WHERE scheduled_date").
		WithArgs("2026-09-08").
		WillReturnRows(pgxmock.NewRows([]string{"to_char"}).AddRow("09:00"))
	mock.ExpectQuery("FROM slot_locks WHERE scheduled_date").
		WithArgs("2026-09-08").
		WillReturnRows(pgxmock.NewRows([]string{"to_char"}))

	code, body := getAvailability(t, a, "2026-09-08")
	assert.Equal(t, http.StatusOK, code)
	require.NoError(t, mock.ExpectationsWereMet())

	assert.NotContains(t, body.Slots, "09:00")
	assert.Len(t, body.Slots, 15)
	assert.Zero(t, cal.listCalls)
}
