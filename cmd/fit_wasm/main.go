//go:build js && wasm

package main

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"syscall/js"
	"time"

	"github.com/lucasjlepore/sporting/activity"
	"github.com/lucasjlepore/sporting/export"
	"github.com/lucasjlepore/sporting/feeder"
	"github.com/lucasjlepore/sporting/threshold"
)

func main() {
	js.Global().Set("synthesizeFit", js.FuncOf(synthesizeFit))
	select {}
}

// synthesizeFit(fileBytes Uint8Array, options {ftp_w, threshold_pace_s_per_km, format})
// returns {ok, zip, files, structure} or {ok: false, kind, error}.
func synthesizeFit(_ js.Value, args []js.Value) any {
	if len(args) < 2 {
		return failure("bad_request", "expected arguments: fileBytes(Uint8Array), options(object)")
	}
	fileArg, optsArg := args[0], args[1]
	if fileArg.IsUndefined() || fileArg.IsNull() || fileArg.Get("length").Int() == 0 {
		return failure("bad_request", "fit file bytes are required")
	}
	data := make([]byte, fileArg.Get("length").Int())
	if n := js.CopyBytesToGo(data, fileArg); n == 0 {
		return failure("bad_request", "failed to read FIT bytes from JS input")
	}

	var th *threshold.Threshold
	ftp, pace := getFloat(optsArg, "ftp_w"), getFloat(optsArg, "threshold_pace_s_per_km")
	if ftp > 0 || pace > 0 {
		th = &threshold.Threshold{}
		if ftp > 0 {
			th.FTPWatts = &ftp
		}
		if pace > 0 {
			th.ThresholdPaceSPerKm = &pace
		}
	}

	rows, err := feeder.Preview(data, th)
	if err != nil {
		return failure("rejected", err.Error())
	}
	files, err := artifacts(rows, getString(optsArg, "format", string(export.Parquet)))
	if err != nil {
		return failure("unexpected", err.Error())
	}
	zipBytes, err := zipArtifacts(files)
	if err != nil {
		return failure("unexpected", fmt.Sprintf("create zip: %v", err))
	}
	payload := js.Global().Get("Uint8Array").New(len(zipBytes))
	js.CopyBytesToJS(payload, zipBytes)

	names := make([]any, 0, len(files))
	for _, name := range sortedNames(files) {
		names = append(names, name)
	}
	return map[string]any{
		"ok":        true,
		"zip":       payload,
		"files":     names,
		"structure": rows.Workout.Structure,
	}
}

func artifacts(rows *activity.Rows, format string) (map[string][]byte, error) {
	f, err := export.ParseFormat(format)
	if err != nil {
		return nil, err
	}
	workout, err := json.MarshalIndent(rows.Workout, "", "  ")
	if err != nil {
		return nil, err
	}
	laps, err := json.MarshalIndent(rows.Laps, "", "  ")
	if err != nil {
		return nil, err
	}
	files := map[string][]byte{
		"workout.json": workout,
		"laps.json":    laps,
		"notes.txt":    []byte(export.Notes(rows.Workout, rows.Laps) + "\n"),
	}

	switch f {
	case export.Parquet:
		points, err := export.MarshalPointsParquet(rows.Points)
		if err != nil {
			return nil, err
		}
		files["points.parquet"] = points
	default:
		var buf bytes.Buffer
		if err := export.WritePointsCSV(&buf, rows.Points); err != nil {
			return nil, err
		}
		files["points.csv"] = buf.Bytes()
	}
	return files, nil
}

func zipArtifacts(files map[string][]byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	fixedTime := time.Unix(0, 0).UTC()

	for _, name := range sortedNames(files) {
		h := &zip.FileHeader{Name: name, Method: zip.Deflate}
		h.SetModTime(fixedTime)
		w, err := zw.CreateHeader(h)
		if err != nil {
			return nil, err
		}
		if _, err := w.Write(files[name]); err != nil {
			return nil, err
		}
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func sortedNames(files map[string][]byte) []string {
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func failure(kind, msg string) map[string]any {
	return map[string]any{"ok": false, "kind": kind, "error": msg}
}

func getString(v js.Value, key, fallback string) string {
	if v.IsUndefined() || v.IsNull() {
		return fallback
	}
	out := v.Get(key)
	if out.IsUndefined() || out.IsNull() || out.Type() != js.TypeString || out.String() == "" {
		return fallback
	}
	return out.String()
}

func getFloat(v js.Value, key string) float64 {
	if v.IsUndefined() || v.IsNull() {
		return 0
	}
	out := v.Get(key)
	if out.IsUndefined() || out.IsNull() || out.Type() != js.TypeNumber {
		return 0
	}
	return out.Float()
}
