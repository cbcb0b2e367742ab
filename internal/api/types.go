package api

import (
	"time"

	"github.com/hackgods/clinic-appointments/internal/account"
	"github.com/hackgods/clinic-appointments/internal/appointment"
	"github.com/hackgods/clinic-appointments/internal/schedule"
	"github.com/hackgods/clinic-appointments/internal/validation"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

type ValidationErrorResponse struct {
	Error  string                  `json:"error"`
	Fields []validation.FieldError `json:"fields"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expires_at"`
	User      UserResponse `json:"user"`
}

type UserResponse struct {
	ID          int64  `json:"id"`
	Email       string `json:"email"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	FullName    string `json:"full_name"`
	ClinicPanel bool   `json:"clinic_panel"`
}

type PatientResponse struct {
	ID        int64   `json:"id"`
	BirthDate *string `json:"birth_date"`
	Age       *int    `json:"age"`
	Gender    string  `json:"gender"`
	Phone     *string `json:"phone"`
}

type ProfileResponse struct {
	User     UserResponse                `json:"user"`
	Patient  *PatientResponse            `json:"patient"`
	Upcoming []AppointmentDetailResponse `json:"upcoming"`
	History  []AppointmentDetailResponse `json:"history"`
}

// BookingRequest carries date and time as text so parse failures become field errors.
type BookingRequest struct {
	SpecialtyID int64  `json:"specialty_id"`
	DoctorID    int64  `json:"doctor_id"`
	Date        string `json:"date"`
	Time        string `json:"time"`
	Reason      string `json:"reason"`
}

type CancelRequest struct {
	Reason string `json:"reason"`
}

type AppointmentResponse struct {
	ID           int64      `json:"id"`
	DoctorID     int64      `json:"doctor_id"`
	PatientID    int64      `json:"patient_id"`
	Date         string     `json:"date"`
	Time         string     `json:"time"`
	Reason       string     `json:"reason"`
	Status       string     `json:"status"`
	CreatedAt    time.Time  `json:"created_at"`
	CancelledAt  *time.Time `json:"cancelled_at,omitempty"`
	CancelReason string     `json:"cancel_reason,omitempty"`
}

type AppointmentDetailResponse struct {
	AppointmentResponse
	DoctorName    string `json:"doctor_name"`
	SpecialtyID   int64  `json:"specialty_id"`
	SpecialtyName string `json:"specialty_name"`
	PatientName   string `json:"patient_name"`
	PatientEmail  string `json:"patient_email"`
}

type CancelResponse struct {
	Cancelled   bool                `json:"cancelled"`
	Outcome     string              `json:"outcome"`
	Appointment AppointmentResponse `json:"appointment"`
}

type PanelResponse struct {
	Items    []AppointmentDetailResponse `json:"items"`
	Page     int                         `json:"page"`
	Pages    int                         `json:"pages"`
	Total    int                         `json:"total"`
	PageSize int                         `json:"page_size"`
}

type StaffHomeResponse struct {
	Role           string                      `json:"role"`
	Today          int                         `json:"today"`
	Week           int                         `json:"week"`
	CancelledToday int                         `json:"cancelled_today"`
	TodayList      []AppointmentDetailResponse `json:"today_list"`
}

type PatientHomeResponse struct {
	Role          string                     `json:"role"`
	UpcomingCount int                        `json:"upcoming_count"`
	Next          *AppointmentDetailResponse `json:"next"`
}

type DoctorItem struct {
	ID     int64  `json:"id"`
	Nombre string `json:"nombre"`
}

type DoctorItemsResponse struct {
	Items []DoctorItem `json:"items"`
}

type TimeItemsResponse struct {
	Items []string `json:"items"`
}

type SpecialtiesResponse struct {
	Items []appointment.Specialty `json:"items"`
}

type InfoResponse struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

func toUserResponse(u account.User) UserResponse {
	return UserResponse{
		ID:          u.ID,
		Email:       u.Email,
		FirstName:   u.FirstName,
		LastName:    u.LastName,
		FullName:    u.FullName(),
		ClinicPanel: u.ClinicPanel,
	}
}

func toPatientResponse(p *account.Patient, today schedule.Date) *PatientResponse {
	if p == nil {
		return nil
	}
	resp := &PatientResponse{ID: p.ID, Gender: string(p.Gender), Phone: p.Phone}
	if p.BirthDate != nil {
		s := p.BirthDate.String()
		age := p.Age(today)
		resp.BirthDate = &s
		resp.Age = &age
	}
	return resp
}

// toAppointmentResponse reports the effective status at now.
func toAppointmentResponse(a appointment.Appointment, now time.Time) AppointmentResponse {
	return AppointmentResponse{
		ID:           a.ID,
		DoctorID:     a.DoctorID,
		PatientID:    a.PatientID,
		Date:         a.Date.String(),
		Time:         a.Time.String(),
		Reason:       a.Reason,
		Status:       string(a.EffectiveStatus(now)),
		CreatedAt:    a.CreatedAt,
		CancelledAt:  a.CancelledAt,
		CancelReason: a.CancelReason,
	}
}

func toDetailResponse(d appointment.AppointmentDetail, now time.Time) AppointmentDetailResponse {
	return AppointmentDetailResponse{
		AppointmentResponse: toAppointmentResponse(d.Appointment, now),
		DoctorName:          d.DoctorName,
		SpecialtyID:         d.SpecialtyID,
		SpecialtyName:       d.SpecialtyName,
		PatientName:         d.PatientName,
		PatientEmail:        d.PatientEmail,
	}
}

func toDetailResponses(ds []appointment.AppointmentDetail, now time.Time) []AppointmentDetailResponse {
	out := make([]AppointmentDetailResponse, 0, len(ds))
	for _, d := range ds {
		out = append(out, toDetailResponse(d, now))
	}
	return out
}
