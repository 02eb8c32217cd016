// Package export writes normalized point rows as CSV or parquet.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	parquetbuffer "github.com/xitongsys/parquet-go-source/buffer"
	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/source"
	"github.com/xitongsys/parquet-go/writer"

	"github.com/lucasjlepore/sporting/activity"
)

// Format is an export file format.
type Format string

const (
	CSV     Format = "csv"
	Parquet Format = "parquet"
)

func ParseFormat(value string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(value))); f {
	case CSV, Parquet:
		return f, nil
	default:
		return "", fmt.Errorf("unknown export format %q", value)
	}
}

var csvHeader = []string{
	"seq", "ts_utc_iso", "elapsed_s", "latitude", "longitude", "altitude_m", "distance_m",
	"speed_mps", "heart_rate", "cadence", "power_w", "pace_s_per_km", "temperature_c",
}

// WritePointsCSV writes points with a header row. Missing values are empty.
func WritePointsCSV(w io.Writer, points []activity.Point) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, p := range points {
		row := []string{
			strconv.Itoa(p.Seq),
			p.Time().Format(time.RFC3339),
			formatFloat(p.ElapsedS),
			formatFloatPtr(p.Latitude),
			formatFloatPtr(p.Longitude),
			formatFloatPtr(p.AltitudeM),
			formatFloatPtr(p.DistanceM),
			formatFloatPtr(p.SpeedMPS),
			formatFloatPtr(p.HeartRate),
			formatFloatPtr(p.Cadence),
			formatFloatPtr(p.PowerW),
			formatFloatPtr(p.PaceSPerKm),
			formatFloatPtr(p.Temperature),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// PointRow is the parquet shape of a point. Absent values are nulls.
type PointRow struct {
	UserID      int64    `parquet:"name=user_id, type=INT64"`
	ActivityID  int64    `parquet:"name=activity_id, type=INT64"`
	Seq         int64    `parquet:"name=seq, type=INT64"`
	TSUTCISO    string   `parquet:"name=ts_utc_iso, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	ElapsedS    float64  `parquet:"name=elapsed_s, type=DOUBLE"`
	Latitude    *float64 `parquet:"name=latitude, type=DOUBLE, repetitiontype=OPTIONAL"`
	Longitude   *float64 `parquet:"name=longitude, type=DOUBLE, repetitiontype=OPTIONAL"`
	AltitudeM   *float64 `parquet:"name=altitude_m, type=DOUBLE, repetitiontype=OPTIONAL"`
	DistanceM   *float64 `parquet:"name=distance_m, type=DOUBLE, repetitiontype=OPTIONAL"`
	SpeedMPS    *float64 `parquet:"name=speed_mps, type=DOUBLE, repetitiontype=OPTIONAL"`
	HeartRate   *float64 `parquet:"name=heart_rate, type=DOUBLE, repetitiontype=OPTIONAL"`
	Cadence     *float64 `parquet:"name=cadence, type=DOUBLE, repetitiontype=OPTIONAL"`
	PowerW      *float64 `parquet:"name=power_w, type=DOUBLE, repetitiontype=OPTIONAL"`
	PaceSPerKm  *float64 `parquet:"name=pace_s_per_km, type=DOUBLE, repetitiontype=OPTIONAL"`
	Temperature *float64 `parquet:"name=temperature_c, type=DOUBLE, repetitiontype=OPTIONAL"`
}

func pointRow(p activity.Point) PointRow {
	return PointRow{
		UserID:      p.UserID,
		ActivityID:  p.ActivityID,
		Seq:         int64(p.Seq),
		TSUTCISO:    p.Time().Format(time.RFC3339),
		ElapsedS:    p.ElapsedS,
		Latitude:    p.Latitude,
		Longitude:   p.Longitude,
		AltitudeM:   p.AltitudeM,
		DistanceM:   p.DistanceM,
		SpeedMPS:    p.SpeedMPS,
		HeartRate:   p.HeartRate,
		Cadence:     p.Cadence,
		PowerW:      p.PowerW,
		PaceSPerKm:  p.PaceSPerKm,
		Temperature: p.Temperature,
	}
}

// WritePointsParquet writes points to a parquet file at path.
func WritePointsParquet(path string, points []activity.Point) error {
	fw, err := local.NewLocalFileWriter(path)
	if err != nil {
		return err
	}
	if err := writeParquet(fw, points); err != nil {
		_ = fw.Close()
		return err
	}
	return fw.Close()
}

// MarshalPointsParquet encodes points as an in-memory parquet file.
func MarshalPointsParquet(points []activity.Point) ([]byte, error) {
	fw := parquetbuffer.NewBufferFile()
	if err := writeParquet(fw, points); err != nil {
		return nil, err
	}
	if err := fw.Close(); err != nil {
		return nil, err
	}
	return append([]byte(nil), fw.Bytes()...), nil
}

func writeParquet(fw source.ParquetFile, points []activity.Point) error {
	pw, err := writer.NewParquetWriter(fw, new(PointRow), 4)
	if err != nil {
		return err
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY
	for _, p := range points {
		if err := pw.Write(pointRow(p)); err != nil {
			_ = pw.WriteStop()
			return fmt.Errorf("write point %d: %w", p.Seq, err)
		}
	}
	return pw.WriteStop()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatFloatPtr(v *float64) string {
	if v == nil {
		return ""
	}
	return formatFloat(*v)
}
