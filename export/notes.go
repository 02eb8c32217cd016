package export

import (
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/lucasjlepore/sporting/activity"
)

// Notes renders a plain-text training summary of one synthesized activity
// and its laps.
func Notes(s activity.Synthesized, laps []activity.Lap) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Session: %s (%d)\n", s.Sport, s.ActivityID)
	fmt.Fprintf(&b, "Start: %s\n", s.Date().Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "Duration %s | Distance %.1f km | Elevation +%.0f m\n",
		formatDuration(s.DurationS), s.DistanceM/1000.0, deref(s.AscentM))

	switch s.Sport {
	case activity.Cycling:
		fmt.Fprintf(&b, "Power %.0f avg / %.0f NP / %.0f max W | Work %.0f kJ | VI %.2f\n",
			deref(s.AvgPowerW), deref(s.NormalizedPower), deref(s.MaxPowerW), deref(s.WorkKJ), deref(s.VariabilityIndex))
	case activity.Running:
		fmt.Fprintf(&b, "Pace %s /km | Speed %.1f km/h\n", formatPace(deref(s.AvgPaceSPerKm)), deref(s.AvgSpeedMPS)*3.6)
	}
	fmt.Fprintf(&b, "HR %.0f avg / %.0f max bpm | Cadence %.0f avg\n",
		deref(s.AvgHeartRate), deref(s.MaxHeartRate), deref(s.AvgCadence))

	if s.IntensityFactor != nil && s.StressScore != nil {
		fmt.Fprintf(&b, "Load IF %.2f | Stress %.0f | Threshold %s\n", *s.IntensityFactor, *s.StressScore, s.ThresholdSource)
	} else {
		b.WriteString("Load IF/stress unavailable (no threshold provided or estimated)\n")
	}

	if len(laps) > 0 {
		b.WriteString("\nLaps\n")
		for _, l := range laps {
			fmt.Fprintf(&b, "- %d %s %s", l.LapIndex+1, l.Label, formatDuration(l.DurationS))
			if l.AvgPowerW != nil {
				fmt.Fprintf(&b, " @%.0fW", *l.AvgPowerW)
			}
			if l.PaceSPerKm != nil {
				fmt.Fprintf(&b, " @%s/km", formatPace(*l.PaceSPerKm))
			}
			b.WriteByte('\n')
		}
	}

	if s.Structure != "" {
		b.WriteString("\nWorkout Structure\n- ")
		b.WriteString(s.Structure)
		b.WriteByte('\n')
	}

	b.WriteString("\nCoaching Notes\n- ")
	b.WriteString(assessment(s))
	b.WriteByte('\n')
	return strings.TrimSpace(b.String())
}

// WriteNotes writes Notes to w.
func WriteNotes(w io.Writer, s activity.Synthesized, laps []activity.Lap) error {
	_, err := io.WriteString(w, Notes(s, laps)+"\n")
	return err
}

func assessment(s activity.Synthesized) string {
	intensity := deref(s.IntensityFactor)
	switch {
	case intensity >= 1.0:
		return "Load above threshold for this duration; follow with an easier endurance day."
	case intensity >= 0.9:
		return "High-intensity load; prioritize sleep and fueling to absorb the session."
	case intensity > 0:
		return "Aerobic load appears manageable and supports base development."
	}
	return "No threshold on record; submit one to get load guidance."
}

func deref(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}

// formatDuration renders seconds as 1h02m03s, 4m05s or 6s.
func formatDuration(seconds float64) string {
	if seconds <= 0 {
		return "0s"
	}
	s := int(math.Round(seconds))
	h, m, sec := s/3600, (s%3600)/60, s%60
	if h > 0 {
		return fmt.Sprintf("%dh%02dm%02ds", h, m, sec)
	}
	if m > 0 {
		return fmt.Sprintf("%dm%02ds", m, sec)
	}
	return fmt.Sprintf("%ds", sec)
}

func formatPace(secondsPerKm float64) string {
	if secondsPerKm <= 0 {
		return "-"
	}
	s := int(math.Round(secondsPerKm))
	return fmt.Sprintf("%d:%02d", s/60, s%60)
}
