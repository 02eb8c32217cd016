// Package fitcodectest builds synthetic FIT activity files for tests.
package fitcodectest

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/tormoder/fit"
)

// Activity describes a synthetic activity recorded at 1 Hz.
type Activity struct {
	Sport     fit.Sport
	Start     time.Time
	Seconds   int
	LapEvery  int
	HeartRate func(i int) uint8
	PowerW    func(i int) uint16
	SpeedMPS  func(i int) float64
	Cadence   uint8
}

// Running returns a steady 3.5 m/s run of the given length.
func Running(start time.Time, seconds int) Activity {
	return Activity{
		Sport:     fit.SportRunning,
		Start:     start,
		Seconds:   seconds,
		LapEvery:  300,
		HeartRate: func(int) uint8 { return 150 },
		SpeedMPS:  func(int) float64 { return 3.5 },
		Cadence:   88,
	}
}

// Cycling returns a ride alternating 200 W and 300 W blocks every lap.
func Cycling(start time.Time, seconds int) Activity {
	return Activity{
		Sport:     fit.SportCycling,
		Start:     start,
		Seconds:   seconds,
		LapEvery:  300,
		HeartRate: func(int) uint8 { return 140 },
		PowerW: func(i int) uint16 {
			if (i/300)%2 == 1 {
				return 300
			}
			return 200
		},
		SpeedMPS: func(int) float64 { return 9 },
		Cadence:  90,
	}
}

// Build encodes the activity as a FIT file.
func Build(a Activity) ([]byte, error) {
	if a.Seconds <= 0 {
		return nil, fmt.Errorf("seconds must be positive")
	}
	if a.LapEvery <= 0 {
		a.LapEvery = a.Seconds
	}

	file, err := fit.NewFile(fit.FileTypeActivity, fit.NewHeader(fit.V20, true))
	if err != nil {
		return nil, err
	}
	file.FileId.TimeCreated = a.Start
	act, err := file.Activity()
	if err != nil {
		return nil, err
	}

	start := fit.NewEventMsg()
	start.Timestamp = a.Start
	start.Event = fit.EventTimer
	start.EventType = fit.EventTypeStart
	act.Events = append(act.Events, start)

	var (
		distance    float64
		lapStart    = 0
		lapDistance float64
		lapPower    float64
		lapHR       float64
		totalPower  float64
		totalHR     float64
	)
	for i := 0; i < a.Seconds; i++ {
		ts := a.Start.Add(time.Duration(i) * time.Second)
		rec := fit.NewRecordMsg()
		rec.Timestamp = ts
		speed := 0.0
		if a.SpeedMPS != nil {
			speed = a.SpeedMPS(i)
		}
		if i > 0 {
			distance += speed
			lapDistance += speed
		}
		rec.Distance = uint32(math.Round(distance * 100))
		rec.Speed = uint16(math.Round(speed * 1000))
		rec.Altitude = uint16((100 + 500) * 5)
		rec.Cadence = a.Cadence
		if a.HeartRate != nil {
			rec.HeartRate = a.HeartRate(i)
			lapHR += float64(rec.HeartRate)
			totalHR += float64(rec.HeartRate)
		}
		if a.PowerW != nil {
			rec.Power = a.PowerW(i)
			lapPower += float64(rec.Power)
			totalPower += float64(rec.Power)
		}
		act.Records = append(act.Records, rec)

		if (i+1-lapStart) == a.LapEvery || i == a.Seconds-1 {
			n := float64(i + 1 - lapStart)
			lap := fit.NewLapMsg()
			lap.MessageIndex = fit.MessageIndex(len(act.Laps))
			lap.StartTime = a.Start.Add(time.Duration(lapStart) * time.Second)
			lap.Timestamp = ts
			lap.TotalElapsedTime = uint32(n * 1000)
			lap.TotalTimerTime = uint32(n * 1000)
			lap.TotalDistance = uint32(math.Round(lapDistance * 100))
			if a.HeartRate != nil {
				lap.AvgHeartRate = uint8(math.Round(lapHR / n))
				lap.MaxHeartRate = uint8(math.Round(lapHR / n))
			}
			if a.PowerW != nil {
				lap.AvgPower = uint16(math.Round(lapPower / n))
				lap.MaxPower = uint16(math.Round(lapPower / n))
			}
			lap.AvgSpeed = uint16(math.Round(lapDistance / n * 1000))
			act.Laps = append(act.Laps, lap)
			lapStart, lapDistance, lapPower, lapHR = i+1, 0, 0, 0
		}
	}

	end := a.Start.Add(time.Duration(a.Seconds-1) * time.Second)
	stop := fit.NewEventMsg()
	stop.Timestamp = end
	stop.Event = fit.EventTimer
	stop.EventType = fit.EventTypeStop
	act.Events = append(act.Events, stop)

	n := float64(a.Seconds)
	session := fit.NewSessionMsg()
	session.Sport = a.Sport
	session.StartTime = a.Start
	session.Timestamp = end
	session.TotalElapsedTime = uint32(n * 1000)
	session.TotalTimerTime = uint32(n * 1000)
	session.TotalDistance = uint32(math.Round(distance * 100))
	if a.HeartRate != nil {
		session.AvgHeartRate = uint8(math.Round(totalHR / n))
	}
	if a.PowerW != nil {
		session.AvgPower = uint16(math.Round(totalPower / n))
	}
	session.NumLaps = uint16(len(act.Laps))
	act.Sessions = append(act.Sessions, session)

	var buf bytes.Buffer
	if err := fit.Encode(&buf, file, binary.LittleEndian); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// MustBuild is Build for tests.
func MustBuild(t testing.TB, a Activity) []byte {
	t.Helper()
	data, err := Build(a)
	if err != nil {
		t.Fatalf("build fit fixture: %v", err)
	}
	return data
}
