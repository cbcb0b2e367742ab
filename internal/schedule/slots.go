package schedule

import "time"

// WorkingWindow is one continuous attending interval, half-open [Start, End).
type WorkingWindow struct {
	Start TimeOfDay
	End   TimeOfDay
}

const SlotStep = 30 * time.Minute

// StandardWindows is the clinic's attending day: 09:00-13:00 and 15:00-19:00.
var StandardWindows = []WorkingWindow{
	{Start: NewTimeOfDay(9, 0), End: NewTimeOfDay(13, 0)},
	{Start: NewTimeOfDay(15, 0), End: NewTimeOfDay(19, 0)},
}

var DefaultWorkingDays = []time.Weekday{
	time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday,
}

// GenerateSlots walks every window from its start in step increments while the
// slot start stays strictly before the window end. Windows are emitted in input order.
func GenerateSlots(windows []WorkingWindow, step time.Duration) []TimeOfDay {
	if step <= 0 {
		return nil
	}
	var out []TimeOfDay
	for _, w := range windows {
		for t := w.Start; t < w.End; t = t.Add(step) {
			out = append(out, t)
		}
	}
	return out
}

// Calendar describes when the clinic takes appointments.
type Calendar struct {
	Windows     []WorkingWindow
	Step        time.Duration
	workingDays map[time.Weekday]bool
}

func NewCalendar(windows []WorkingWindow, step time.Duration, days []time.Weekday) Calendar {
	wd := make(map[time.Weekday]bool, len(days))
	for _, d := range days {
		wd[d] = true
	}
	return Calendar{Windows: windows, Step: step, workingDays: wd}
}

func DefaultCalendar() Calendar {
	return NewCalendar(StandardWindows, SlotStep, DefaultWorkingDays)
}

func (c Calendar) IsWorkingDay(d Date) bool {
	return c.workingDays[d.Weekday()]
}

// Slots returns the bookable slot starts for d, empty on non-working days.
func (c Calendar) Slots(d Date) []TimeOfDay {
	if !c.IsWorkingDay(d) {
		return nil
	}
	return GenerateSlots(c.Windows, c.Step)
}
