package api

import (
	"net/http"
	"strconv"

	"github.com/hackgods/clinic-appointments/internal/appointment"
	"github.com/hackgods/clinic-appointments/internal/schedule"
)

// panelFilter reads the panel query. Malformed values are ignored.
func panelFilter(r *http.Request) (appointment.PanelFilter, int) {
	q := r.URL.Query()
	f := appointment.PanelFilter{
		Query:  q.Get("q"),
		Status: appointment.Status(q.Get("status")),
	}
	if id, ok := positiveQueryInt(r, "specialty"); ok {
		f.SpecialtyID = id
	}
	if id, ok := positiveQueryInt(r, "doctor"); ok {
		f.DoctorID = id
	}
	if d, err := schedule.ParseDate(q.Get("from")); err == nil {
		f.From = &d
	}
	if d, err := schedule.ParseDate(q.Get("to")); err == nil {
		f.To = &d
	}

	page, err := strconv.Atoi(q.Get("page"))
	if err != nil {
		page = 1
	}
	return f, page
}

func clinicPanelHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f, page := panelFilter(r)

		res, err := svc.Panel(r.Context(), f, page)
		if err != nil {
			handleError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, PanelResponse{
			Items:    toDetailResponses(res.Items, svc.Now()),
			Page:     res.Page,
			Pages:    res.Pages,
			Total:    res.Total,
			PageSize: res.PageSize,
		})
	}
}

func staffCancelHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(r, "id")
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a positive integer")
			return
		}
		req, ok := decodeCancel(w, r)
		if !ok {
			return
		}

		outcome, appt, err := svc.CancelByStaff(r.Context(), identity(r).UserID, id, req.Reason)
		if err != nil {
			handleError(w, r, err)
			return
		}
		writeCancelOutcome(w, svc, outcome, appt)
	}
}
