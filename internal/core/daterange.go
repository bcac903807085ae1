package core

// DateRange is an inclusive span of calendar days.
type DateRange struct {
	Start Date `json:"start"`
	End   Date `json:"end"`
}

// Quick range presets offered by the reports screen.
const (
	PresetWeek    = "week"
	PresetMonth   = "1month"
	Preset3Months = "3month"
	Preset6Months = "6month"
	PresetYear    = "year"
)

func NewDateRange(start, end Date) (DateRange, error) {
	r := DateRange{Start: start, End: end}
	if err := r.Validate(); err != nil {
		return DateRange{}, err
	}
	return r, nil
}

func (r DateRange) Validate() error {
	if err := r.Start.Validate(); err != nil {
		return invalid("start", err)
	}
	if err := r.End.Validate(); err != nil {
		return invalid("end", err)
	}
	if r.Start.After(r.End.Time) {
		return invalid("range", ErrInvalidRange)
	}
	return nil
}

func (r DateRange) Contains(d Date) bool {
	return !d.Before(r.Start.Time) && !d.After(r.End.Time)
}

func (r DateRange) String() string {
	return r.Start.String() + ".." + r.End.String()
}

// PresetRange resolves a named preset to a range ending today.
func PresetRange(name string, today Date) (DateRange, error) {
	var start Date
	switch name {
	case PresetWeek:
		start = today.AddDays(-7)
	case PresetMonth:
		start = Date{Time: today.AddDate(0, -1, 0)}
	case Preset3Months:
		start = Date{Time: today.AddDate(0, -3, 0)}
	case Preset6Months:
		start = Date{Time: today.AddDate(0, -6, 0)}
	case PresetYear:
		start = Date{Time: today.AddDate(-1, 0, 0)}
	default:
		return DateRange{}, invalid("preset", ErrUnknownPreset)
	}
	return DateRange{Start: start, End: today}, nil
}
