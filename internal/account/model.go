package account

import (
	"strings"
	"time"

	"github.com/hackgods/clinic-appointments/internal/schedule"
)

type Gender string

const (
	GenderUnset  Gender = ""
	GenderMale   Gender = "M"
	GenderFemale Gender = "F"
	GenderOther  Gender = "O"
)

type User struct {
	ID           int64
	Email        string
	FirstName    string
	LastName     string
	PasswordHash string
	IsStaff      bool
	ClinicPanel  bool
	CreatedAt    time.Time
}

// FullName falls back to the email when no name was given.
func (u User) FullName() string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		return u.Email
	}
	return name
}

// Patient is the one-to-one patient record of an account. Its existence is what
// makes an account a patient.
type Patient struct {
	ID        int64
	UserID    int64
	BirthDate *schedule.Date
	Gender    Gender
	Phone     *string
}

// Age in whole years on today, or -1 without a birth date.
func (p Patient) Age(today schedule.Date) int {
	if p.BirthDate == nil {
		return -1
	}
	b := *p.BirthDate
	age := today.Year - b.Year
	if today.Month < b.Month || (today.Month == b.Month && today.Day < b.Day) {
		age--
	}
	return age
}

type Profile struct {
	User    User
	Patient *Patient
}
