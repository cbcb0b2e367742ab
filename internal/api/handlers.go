package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/hackgods/clinic-appointments/internal/appointment"
	"github.com/hackgods/clinic-appointments/internal/schedule"
	"github.com/hackgods/clinic-appointments/internal/validation"
)

// toInput parses date and time. Empty values are left nil for the service to
// report as required. Slots start on whole minutes, so seconds must be zero.
func (req BookingRequest) toInput() (appointment.BookingInput, error) {
	in := appointment.BookingInput{
		SpecialtyID: req.SpecialtyID,
		DoctorID:    req.DoctorID,
		Reason:      req.Reason,
	}

	errs := &validation.Errors{}
	if req.Date != "" {
		d, err := schedule.ParseDate(req.Date)
		if err != nil {
			errs.Add("date", "invalid", "enter a date as YYYY-MM-DD")
		} else {
			in.Date = &d
		}
	}
	if req.Time != "" {
		t, err := schedule.ParseTimeOfDay(req.Time)
		if err != nil || t.Second() != 0 {
			errs.Add("time", "invalid", "enter a time as HH:MM")
		} else {
			in.Time = &t
		}
	}
	return in, errs.Err()
}

func decodeBooking(w http.ResponseWriter, r *http.Request) (appointment.BookingInput, bool) {
	var req BookingRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return appointment.BookingInput{}, false
	}
	in, err := req.toInput()
	if err != nil {
		handleError(w, r, err)
		return appointment.BookingInput{}, false
	}
	return in, true
}

func bookAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		in, ok := decodeBooking(w, r)
		if !ok {
			return
		}

		appt, err := svc.Book(r.Context(), identity(r).UserID, in)
		if err != nil {
			handleError(w, r, err)
			return
		}

		writeJSON(w, http.StatusCreated, toAppointmentResponse(*appt, svc.Now()))
	}
}

func rescheduleAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(r, "id")
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a positive integer")
			return
		}
		in, ok := decodeBooking(w, r)
		if !ok {
			return
		}

		appt, err := svc.Reschedule(r.Context(), identity(r).UserID, id, in)
		if err != nil {
			handleError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(*appt, svc.Now()))
	}
}

// decodeCancel accepts an empty body.
func decodeCancel(w http.ResponseWriter, r *http.Request) (CancelRequest, bool) {
	var req CancelRequest
	if r.ContentLength == 0 {
		return req, true
	}
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return req, false
	}
	return req, true
}

func writeCancelOutcome(w http.ResponseWriter, svc *appointment.Service, outcome appointment.CancelOutcome, appt *appointment.Appointment) {
	writeJSON(w, http.StatusOK, CancelResponse{
		Cancelled:   outcome == appointment.OutcomeCancelled,
		Outcome:     string(outcome),
		Appointment: toAppointmentResponse(*appt, svc.Now()),
	})
}

func cancelOwnAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
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

		outcome, appt, err := svc.CancelByPatient(r.Context(), identity(r).UserID, id, req.Reason)
		if err != nil {
			handleError(w, r, err)
			return
		}
		writeCancelOutcome(w, svc, outcome, appt)
	}
}

func listSpecialtiesHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		specs, err := svc.ListSpecialties(r.Context())
		if err != nil {
			handleError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, SpecialtiesResponse{Items: specs})
	}
}

func positiveQueryInt(r *http.Request, key string) (int64, bool) {
	v, err := strconv.ParseInt(r.URL.Query().Get(key), 10, 64)
	return v, err == nil && v > 0
}

// doctorsBySpecialtyHandler feeds the doctor select of the booking form.
// Missing or malformed parameters yield an empty list.
func doctorsBySpecialtyHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := DoctorItemsResponse{Items: []DoctorItem{}}

		specialtyID, ok := positiveQueryInt(r, "specialty")
		if !ok {
			writeJSON(w, http.StatusOK, resp)
			return
		}

		docs, err := svc.ListDoctors(r.Context(), specialtyID)
		if err != nil {
			handleError(w, r, err)
			return
		}
		for _, d := range docs {
			resp.Items = append(resp.Items, DoctorItem{ID: d.ID, Nombre: d.Name})
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// availableTimesHandler lists the free slots of a doctor on a date as HH:MM.
func availableTimesHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := TimeItemsResponse{Items: []string{}}

		doctorID, ok := positiveQueryInt(r, "doctor")
		if !ok {
			writeJSON(w, http.StatusOK, resp)
			return
		}
		date, err := schedule.ParseDate(r.URL.Query().Get("date"))
		if err != nil {
			writeJSON(w, http.StatusOK, resp)
			return
		}

		slots, err := svc.AvailableSlots(r.Context(), doctorID, date)
		if err != nil {
			if errors.Is(err, appointment.ErrDoctorNotFound) {
				writeJSON(w, http.StatusOK, resp)
				return
			}
			handleError(w, r, err)
			return
		}
		for _, s := range slots {
			resp.Items = append(resp.Items, s.String())
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func infoHandler(page InfoResponse) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, page)
	}
}

var (
	aboutPage = InfoResponse{
		Title: "About the clinic",
		Body: "Book, reschedule and cancel medical appointments online. " +
			"Appointments are taken Monday to Friday, 09:00-13:00 and 15:00-19:00.",
	}
	cookiePolicyPage = InfoResponse{
		Title: "Cookie policy",
		Body: "This service only stores what it needs to keep you signed in. " +
			"No advertising or tracking cookies are used.",
	}
)
