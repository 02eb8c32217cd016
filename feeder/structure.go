package feeder

import (
	"fmt"
	"math"
	"strings"

	"github.com/lucasjlepore/sporting/activity"
)

const openerMaxS = 75.0

// describeStructure turns labelled laps into a one-line session description.
// Sessions without work laps have no structure and yield "".
func describeStructure(laps []activity.Lap, ftp float64) string {
	mainStart, mainEnd := mainSetWindow(laps)
	if mainStart < 0 {
		return ""
	}

	var parts []string
	openStart, openers := openersWindow(laps, mainStart)
	warmupEnd := mainStart - 1
	if openers.reps >= 2 {
		warmupEnd = openStart - 1
	}
	if warmupEnd >= 0 {
		parts = append(parts, "warmup "+shortDuration(spanDuration(laps, 0, warmupEnd)))
	}
	if openers.reps >= 2 {
		parts = append(parts, fmt.Sprintf("openers %dx%s/%s", openers.reps, shortDuration(openers.onS), shortDuration(openers.offS)))
	}
	parts = append(parts, mainSetPrescription(laps, mainStart, mainEnd, ftp))
	if start, end := cooldownWindow(laps, mainEnd); start >= 0 {
		parts = append(parts, "cooldown "+shortDuration(spanDuration(laps, start, end)))
	}
	return strings.Join(parts, " + ")
}

// mainSetWindow spans the first to the last work lap, plus a trailing recovery.
func mainSetWindow(laps []activity.Lap) (int, int) {
	start, end := -1, -1
	for i, l := range laps {
		if l.Label == "work" {
			if start < 0 {
				start = i
			}
			end = i
		}
	}
	if end >= 0 && end+1 < len(laps) && laps[end+1].Label == "recovery" {
		end++
	}
	return start, end
}

type openerSet struct {
	reps      int
	onS, offS float64
}

// openersWindow finds short on/off pairs ridden before the main set.
func openersWindow(laps []activity.Lap, mainStart int) (int, openerSet) {
	var workPowers []float64
	for _, l := range laps {
		if l.Label == "work" {
			workPowers = append(workPowers, lapPower(l))
		}
	}
	workAvg := average(workPowers)

	first := -1
	var on, off []float64
	for i := 0; i+1 < mainStart; i++ {
		a, b := laps[i], laps[i+1]
		isOn := a.Label == "activation" ||
			(workAvg > 0 && a.DurationS <= openerMaxS && lapPower(a) >= workAvg*0.90)
		isOff := b.DurationS <= openerMaxS && lapPower(b) > 0 && lapPower(b) < lapPower(a)*0.80
		if !isOn || !isOff {
			continue
		}
		if first < 0 {
			first = i
		}
		on = append(on, a.DurationS)
		off = append(off, b.DurationS)
		i++
	}
	if len(on) < 2 {
		return -1, openerSet{}
	}
	return first, openerSet{reps: len(on), onS: average(on), offS: average(off)}
}

func cooldownWindow(laps []activity.Lap, mainEnd int) (int, int) {
	start := -1
	for i := mainEnd + 1; i < len(laps); i++ {
		if laps[i].Label == "cooldown" {
			start = i
			break
		}
	}
	if start < 0 {
		return -1, -1
	}
	end := start
	for end+1 < len(laps) && (laps[end+1].Label == "cooldown" || laps[end+1].Label == "easy") {
		end++
	}
	return start, end
}

func mainSetPrescription(laps []activity.Lap, start, end int, ftp float64) string {
	var workS, workW, recS, recW []float64
	for i := start; i <= end; i++ {
		switch laps[i].Label {
		case "work":
			workS = append(workS, laps[i].DurationS)
			workW = append(workW, lapPower(laps[i]))
		case "recovery":
			recS = append(recS, laps[i].DurationS)
			recW = append(recW, lapPower(laps[i]))
		}
	}

	out := fmt.Sprintf("%dx%s @%.0fW", len(workS), shortDuration(average(workS)), roundToNearest(average(workW), 5))
	if len(recS) > 0 {
		out += fmt.Sprintf(" with %s @%.0fW recoveries", shortDuration(average(recS)), roundToNearest(average(recW), 5))
	}
	if ftp > 0 {
		out += fmt.Sprintf(" (%.0f%% FTP)", average(workW)/ftp*100)
	}
	return out
}

func lapPower(l activity.Lap) float64 {
	if l.AvgPowerW == nil {
		return 0
	}
	return *l.AvgPowerW
}

func spanDuration(laps []activity.Lap, start, end int) float64 {
	total := 0.0
	for i := start; i <= end; i++ {
		total += laps[i].DurationS
	}
	return total
}

// shortDuration renders 300 as "5m" and 330 as "5m30s".
func shortDuration(seconds float64) string {
	s := int(math.Round(seconds))
	switch {
	case s <= 0:
		return "0s"
	case s%60 == 0:
		return fmt.Sprintf("%dm", s/60)
	case s < 60:
		return fmt.Sprintf("%ds", s)
	}
	return fmt.Sprintf("%dm%02ds", s/60, s%60)
}

func roundToNearest(v, step float64) float64 {
	if v == 0 || step <= 0 {
		return v
	}
	return math.Round(v/step) * step
}
