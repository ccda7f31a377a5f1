package api

import (
	"bytes"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"consultbook/internal/availability"
	"consultbook/internal/booking"
	"consultbook/internal/database"
	"consultbook/internal/export"
	"consultbook/internal/models"
	"consultbook/internal/service"

	"github.com/rs/zerolog"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type optionsResponse struct {
	Policy              string              `json:"policy"`
	Timezone            string              `json:"timezone"`
	Today               models.CalendarDate `json:"today"`
	FirstSelectableDate models.CalendarDate `json:"first_selectable_date"`
	Durations           []int               `json:"durations"`
	DefaultDuration     int                 `json:"default_duration"`
	Opening             string              `json:"opening,omitempty"`
	Closing             string              `json:"closing"`
	StepMinutes         int                 `json:"step_minutes,omitempty"`
	FixedSlots          []string            `json:"fixed_slots,omitempty"`
	ClosingCheck        string              `json:"closing_check"`
	MaxCalendarDays     int                 `json:"max_calendar_days"`
}

func (s *HTTPServer) handleOptions(w http.ResponseWriter, _ *http.Request) {
	engine := s.deps.Engine
	p := engine.Policy()

	resp := optionsResponse{
		Policy:              string(p.Kind),
		Timezone:            engine.Location().String(),
		Today:               engine.Today(),
		FirstSelectableDate: engine.FirstSelectableDate(),
		DefaultDuration:     int(p.DefaultDuration),
		Closing:             p.Closing.String(),
		ClosingCheck:        string(p.ClosingCheck),
		MaxCalendarDays:     s.deps.MaxCalendarDays,
	}
	for _, d := range p.AllowedDurations {
		resp.Durations = append(resp.Durations, int(d))
	}
	if p.Kind == availability.PolicyFixedList {
		for _, t := range p.FixedSlots {
			resp.FixedSlots = append(resp.FixedSlots, t.String())
		}
	} else {
		resp.Opening = p.Opening.String()
		resp.StepMinutes = p.StepMinutes
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *HTTPServer) handleDates(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	from := s.deps.Engine.Today()
	if raw := strings.TrimSpace(q.Get("from")); raw != "" {
		d, err := models.ParseCalendarDate(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid from; expected YYYY-MM-DD")
			return
		}
		from = d
	}

	days := defaultCalendarDays
	if raw := strings.TrimSpace(q.Get("days")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "days must be a positive integer")
			return
		}
		days = n
	}
	if days > s.deps.MaxCalendarDays {
		days = s.deps.MaxCalendarDays
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"from":  from,
		"days":  days,
		"dates": s.deps.Engine.SelectableDates(from, days),
	})
}

func (s *HTTPServer) handleSlots(w http.ResponseWriter, r *http.Request) {
	engine := s.deps.Engine
	q := r.URL.Query()

	rawDate := strings.TrimSpace(q.Get("date"))
	if rawDate == "" {
		writeError(w, http.StatusBadRequest, "date is required")
		return
	}
	date, err := models.ParseCalendarDate(rawDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid date format; expected YYYY-MM-DD")
		return
	}

	duration := engine.Policy().DefaultDuration
	if raw := strings.TrimSpace(q.Get("duration")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "duration must be an integer number of minutes")
			return
		}
		duration = models.Duration(n)
	}

	if !engine.IsSelectable(date) {
		writeError(w, http.StatusUnprocessableEntity, booking.ErrDateNotSelectable.Error())
		return
	}

	candidates, err := engine.CandidateSlots(duration)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	available, err := engine.AvailableSlots(duration)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"date":       date,
		"duration":   int(duration),
		"candidates": slotViews(candidates, duration),
		"available":  slotViews(available, duration),
	})
}

func slotViews(starts []models.TimeOfDay, d models.Duration) []models.SlotView {
	out := make([]models.SlotView, 0, len(starts))
	for _, start := range starts {
		out = append(out, models.NewTimeSlot(start, d).View())
	}
	return out
}

func (s *HTTPServer) handleStartSession(w http.ResponseWriter, r *http.Request) {
	view, err := s.deps.Sessions.Start(r.Context())
	if err != nil {
		s.writeSessionError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

func (s *HTTPServer) handleGetSession(w http.ResponseWriter, r *http.Request) {
	view, err := s.deps.Sessions.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeSessionError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *HTTPServer) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Sessions.Delete(r.Context(), r.PathValue("id")); err != nil {
		s.writeSessionError(w, r, err, nil)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *HTTPServer) handleSelectDate(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Date string `json:"date"`
	}
	if err := decodeBody(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	date, err := models.ParseCalendarDate(strings.TrimSpace(body.Date))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid date format; expected YYYY-MM-DD")
		return
	}

	view, err := s.deps.Sessions.SelectDate(r.Context(), r.PathValue("id"), date)
	if err != nil {
		s.writeSessionError(w, r, err, view)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// handleSelectTime принимает {"time":"HH:MM"}; {"time":null} снимает выбор.
func (s *HTTPServer) handleSelectTime(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Time *string `json:"time"`
	}
	if err := decodeBody(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	id := r.PathValue("id")
	var (
		view *service.SessionView
		err  error
	)
	if body.Time == nil {
		view, err = s.deps.Sessions.ClearTime(r.Context(), id)
	} else {
		t, perr := models.ParseTimeOfDay(strings.TrimSpace(*body.Time))
		if perr != nil {
			writeError(w, http.StatusBadRequest, "invalid time format; expected HH:MM")
			return
		}
		view, err = s.deps.Sessions.SelectTime(r.Context(), id, t)
	}
	if err != nil {
		s.writeSessionError(w, r, err, view)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *HTTPServer) handleSelectDuration(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Duration int `json:"duration"`
	}
	if err := decodeBody(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	view, cleared, err := s.deps.Sessions.SelectDuration(r.Context(), r.PathValue("id"), models.Duration(body.Duration))
	if err != nil {
		s.writeSessionError(w, r, err, view)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session":      view,
		"time_cleared": cleared,
	})
}

func (s *HTTPServer) handleSetContact(w http.ResponseWriter, r *http.Request) {
	var body models.Contact
	if err := decodeBody(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	view, err := s.deps.Sessions.SetContact(r.Context(), r.PathValue("id"), body)
	if err != nil {
		s.writeSessionError(w, r, err, view)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *HTTPServer) handleSubmit(w http.ResponseWriter, r *http.Request) {
	view, conf, err := s.deps.Sessions.Submit(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeSessionError(w, r, err, view)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"confirmation": conf,
		"message":      booking.ConfirmationMessage(conf.Request),
		"session":      view,
	})
}

// writeSessionError maps flow and service errors to HTTP statuses. The session
// snapshot is echoed back when the operation left one behind.
func (s *HTTPServer) writeSessionError(w http.ResponseWriter, r *http.Request, err error, view *service.SessionView) {
	body := map[string]any{"error": err.Error()}
	if view != nil {
		body["session"] = view
	}

	var verr *booking.ValidationError
	code := http.StatusInternalServerError
	switch {
	case errors.As(err, &verr):
		code = http.StatusUnprocessableEntity
		body["error"] = verr.UserMessage()
		body["missing"] = nonNil(verr.Missing)
		body["invalid"] = nonNil(verr.Invalid)
	case booking.IsSubmission(err):
		code = http.StatusBadGateway
		body["error"] = "could not submit the request, please try again"
	case errors.Is(err, booking.ErrSubmissionInProgress):
		code = http.StatusConflict
	case errors.Is(err, service.ErrSessionNotFound):
		code = http.StatusNotFound
	case errors.Is(err, service.ErrRateLimited):
		code = http.StatusTooManyRequests
	case errors.Is(err, booking.ErrDateNotSelectable),
		errors.Is(err, booking.ErrDateRequired),
		errors.Is(err, booking.ErrSlotUnavailable),
		errors.Is(err, availability.ErrInvalidDuration):
		code = http.StatusUnprocessableEntity
	}

	if code >= http.StatusInternalServerError {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("session operation failed")
		if code == http.StatusInternalServerError {
			body["error"] = "internal error"
		}
	}
	writeJSON(w, code, body)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// parseRange читает from/to; по умолчанию текущий месяц от сегодняшнего дня.
func (s *HTTPServer) parseRange(r *http.Request) (time.Time, time.Time, error) {
	q := r.URL.Query()
	today := s.deps.Engine.Today()

	from := today
	if raw := strings.TrimSpace(q.Get("from")); raw != "" {
		d, err := models.ParseCalendarDate(raw)
		if err != nil {
			return time.Time{}, time.Time{}, errors.New("invalid from; expected YYYY-MM-DD")
		}
		from = d
	}
	to := from.AddDays(defaultCalendarDays - 1)
	if raw := strings.TrimSpace(q.Get("to")); raw != "" {
		d, err := models.ParseCalendarDate(raw)
		if err != nil {
			return time.Time{}, time.Time{}, errors.New("invalid to; expected YYYY-MM-DD")
		}
		to = d
	}
	return from.Time(time.UTC), to.Time(time.UTC), nil
}

func (s *HTTPServer) handleListConsultations(w http.ResponseWriter, r *http.Request) {
	from, to, err := s.parseRange(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	consultations, err := s.deps.Consultations.List(r.Context(), from, to)
	if err != nil {
		s.writeConsultationError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"from":          from.Format(models.DateLayout),
		"to":            to.Format(models.DateLayout),
		"consultations": consultations,
	})
}

func (s *HTTPServer) handleExportConsultations(w http.ResponseWriter, r *http.Request) {
	if s.deps.Exporter == nil {
		writeError(w, http.StatusNotImplemented, "export is not configured")
		return
	}
	from, to, err := s.parseRange(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	consultations, err := s.deps.Consultations.List(r.Context(), from, to)
	if err != nil {
		s.writeConsultationError(w, r, err)
		return
	}

	// книга собирается целиком до ответа: при ошибке клиент получает чистый 500
	var buf bytes.Buffer
	if err := s.deps.Exporter.WriteTo(&buf, consultations, from, to); err != nil {
		s.writeConsultationError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+export.FileName(from, to)+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	if _, err := buf.WriteTo(w); err != nil {
		zerolog.Ctx(r.Context()).Warn().Err(err).Msg("export write interrupted")
	}
}

func (s *HTTPServer) handleGetConsultation(w http.ResponseWriter, r *http.Request) {
	c, err := s.deps.Consultations.GetByReference(r.Context(), r.PathValue("reference"))
	if err != nil {
		s.writeConsultationError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *HTTPServer) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid consultation id")
		return
	}

	var body struct {
		Status string `json:"status"`
	}
	if err := decodeBody(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	switch body.Status {
	case models.StatusNew, models.StatusContacted, models.StatusClosed:
	default:
		writeError(w, http.StatusBadRequest, "status must be one of new, contacted, closed")
		return
	}

	c, err := s.deps.Consultations.UpdateStatus(r.Context(), id, body.Status)
	if err != nil {
		s.writeConsultationError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *HTTPServer) handleRebuildSheet(w http.ResponseWriter, r *http.Request) {
	if s.deps.SheetsRebuild == nil {
		writeError(w, http.StatusServiceUnavailable, "google sheets sync is not configured")
		return
	}
	from, to, err := s.parseRange(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if to.Before(from) {
		writeError(w, http.StatusBadRequest, "to must not be before from")
		return
	}

	if err := s.deps.SheetsRebuild.EnqueueRebuild(r.Context(), from, to); err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("enqueue sheet rebuild")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{
		"from": from.Format(models.DateLayout),
		"to":   to.Format(models.DateLayout),
	})
}

func (s *HTTPServer) writeConsultationError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidRange):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, database.ErrNotFound):
		writeError(w, http.StatusNotFound, "consultation not found")
	default:
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("consultation request failed")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
