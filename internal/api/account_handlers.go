package api

import (
	"errors"
	"net/http"

	"github.com/hackgods/clinic-appointments/internal/account"
	"github.com/hackgods/clinic-appointments/internal/appointment"
	"github.com/hackgods/clinic-appointments/internal/schedule"
)

func registerHandler(accounts *account.Service, appts *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in account.RegisterInput
		if err := decodeJSON(r, &in); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		prof, err := accounts.Register(r.Context(), in)
		if err != nil {
			handleError(w, r, err)
			return
		}

		writeJSON(w, http.StatusCreated, ProfileResponse{
			User:     toUserResponse(prof.User),
			Patient:  toPatientResponse(prof.Patient, schedule.DateOf(appts.Now())),
			Upcoming: []AppointmentDetailResponse{},
			History:  []AppointmentDetailResponse{},
		})
	}
}

func loginHandler(accounts *account.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req LoginRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		res, err := accounts.Login(r.Context(), req.Email, req.Password)
		if err != nil {
			handleError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, LoginResponse{
			Token:     res.Token,
			ExpiresAt: res.ExpiresAt,
			User:      toUserResponse(res.User),
		})
	}
}

// homeHandler shows staff KPIs to clinic panel users and the next appointment
// to patients.
func homeHandler(appts *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := identity(r)
		now := appts.Now()

		if id.ClinicPanel {
			d, err := appts.StaffDashboard(r.Context())
			if err != nil {
				handleError(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, StaffHomeResponse{
				Role:           "staff",
				Today:          d.Today,
				Week:           d.Week,
				CancelledToday: d.CancelledToday,
				TodayList:      toDetailResponses(d.TodayList, now),
			})
			return
		}

		d, err := appts.PatientDashboard(r.Context(), id.UserID)
		if err != nil {
			if errors.Is(err, appointment.ErrNotPatient) {
				writeJSON(w, http.StatusOK, PatientHomeResponse{Role: "user"})
				return
			}
			handleError(w, r, err)
			return
		}

		resp := PatientHomeResponse{Role: "patient", UpcomingCount: d.UpcomingCount}
		if d.Next != nil {
			next := toDetailResponse(*d.Next, now)
			resp.Next = &next
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func writeProfile(w http.ResponseWriter, r *http.Request, appts *appointment.Service, prof *account.Profile) {
	now := appts.Now()
	resp := ProfileResponse{
		User:     toUserResponse(prof.User),
		Patient:  toPatientResponse(prof.Patient, schedule.DateOf(now)),
		Upcoming: []AppointmentDetailResponse{},
		History:  []AppointmentDetailResponse{},
	}

	if prof.Patient != nil {
		upcoming, history, err := appts.PatientAppointments(r.Context(), prof.User.ID)
		if err != nil && !errors.Is(err, appointment.ErrNotPatient) {
			handleError(w, r, err)
			return
		}
		resp.Upcoming = toDetailResponses(upcoming, now)
		resp.History = toDetailResponses(history, now)
	}

	writeJSON(w, http.StatusOK, resp)
}

func getProfileHandler(accounts *account.Service, appts *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		prof, err := accounts.Profile(r.Context(), identity(r).UserID)
		if err != nil {
			handleError(w, r, err)
			return
		}
		writeProfile(w, r, appts, prof)
	}
}

func updateProfileHandler(accounts *account.Service, appts *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in account.UpdateProfileInput
		if err := decodeJSON(r, &in); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		prof, err := accounts.UpdateProfile(r.Context(), identity(r).UserID, in)
		if err != nil {
			handleError(w, r, err)
			return
		}
		writeProfile(w, r, appts, prof)
	}
}
