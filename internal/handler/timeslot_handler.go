package handler

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-presence-api/internal/timeslot"
	appErrors "github.com/noah-isme/sma-presence-api/pkg/errors"
	"github.com/noah-isme/sma-presence-api/pkg/response"
)

type periodTable interface {
	Periods() []timeslot.Period
	PeriodFor(c timeslot.Clock) (int, bool)
	NextPeriodAfter(c timeslot.Clock) (int, bool)
	StartTimeOf(n int) (timeslot.Clock, error)
	EndTimeOf(n int) (timeslot.Clock, error)
}

// TimeslotHandler answers bell schedule questions.
type TimeslotHandler struct {
	periods periodTable
}

// NewTimeslotHandler builds the handler.
func NewTimeslotHandler(periods periodTable) *TimeslotHandler {
	return &TimeslotHandler{periods: periods}
}

type periodResolution struct {
	Time       timeslot.Clock  `json:"time"`
	Period     *int            `json:"period"`
	NextPeriod *int            `json:"next_period"`
	EndsAt     *timeslot.Clock `json:"ends_at,omitempty"`
}

// List godoc
// @Summary Bell schedule
// @Tags Timeslots
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /timeslots [get]
func (h *TimeslotHandler) List(c *gin.Context) {
	response.OK(c, h.periods.Periods())
}

// Resolve godoc
// @Summary Period at a time of day
// @Description Resolves a 12-hour time such as "9:15 AM". Gaps between periods resolve to null.
// @Tags Timeslots
// @Produce json
// @Param time query string true "Time of day"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /timeslots/resolve [get]
func (h *TimeslotHandler) Resolve(c *gin.Context) {
	clock, err := timeslot.ParseClock(c.Query("time"))
	if err != nil {
		response.Error(c, err)
		return
	}
	out := periodResolution{Time: clock}
	if n, ok := h.periods.PeriodFor(clock); ok {
		out.Period = &n
		if end, err := h.periods.EndTimeOf(n); err == nil {
			out.EndsAt = &end
		}
	}
	if next, ok := h.periods.NextPeriodAfter(clock); ok {
		out.NextPeriod = &next
	}
	response.OK(c, out)
}

// Period godoc
// @Summary One period of the bell schedule
// @Tags Timeslots
// @Produce json
// @Param number path int true "Period number"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /timeslots/{number} [get]
func (h *TimeslotHandler) Period(c *gin.Context) {
	n, err := strconv.Atoi(strings.TrimSpace(c.Param("number")))
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "period number must be numeric"))
		return
	}
	start, err := h.periods.StartTimeOf(n)
	if err != nil {
		response.Error(c, err)
		return
	}
	end, err := h.periods.EndTimeOf(n)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, timeslot.Period{Number: n, Start: start, End: end})
}
