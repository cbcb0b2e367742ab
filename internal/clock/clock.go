package clock

import "time"

// Clock supplies the current moment in the clinic's single fixed zone.
type Clock interface {
	Now() time.Time
}

type System struct {
	Location *time.Location
}

func NewSystem(loc *time.Location) System {
	if loc == nil {
		loc = time.Local
	}
	return System{Location: loc}
}

func (s System) Now() time.Time {
	return time.Now().In(s.Location)
}

// Fixed always reports the same moment.
type Fixed struct {
	At time.Time
}

func (f Fixed) Now() time.Time {
	return f.At
}
