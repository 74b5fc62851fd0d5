package photometer

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// TimestampLayout is YYYYMMDD-HHMMSS in local time.
const TimestampLayout = "20060102-150405"

// Separator between record fields.
const Separator = "\t"

// Record is the result of one Executor call.
type Record struct {
	Time      time.Time
	LED       int
	Resistor  int
	Intensity int
	Samples   []uint16
}

// FormatRecord renders rec as a log line without the trailing newline:
// TIMESTAMP, LED, RESISTOR, INTENSITY and one field per sample, tab separated.
func FormatRecord(rec Record) string {
	var b strings.Builder
	b.WriteString(rec.Time.Local().Format(TimestampLayout))
	for _, v := range []int{rec.LED, rec.Resistor, rec.Intensity} {
		b.WriteString(Separator)
		b.WriteString(strconv.Itoa(v))
	}
	for _, s := range rec.Samples {
		b.WriteString(Separator)
		b.WriteString(strconv.FormatUint(uint64(s), 10))
	}
	return b.String()
}

// ParseRecord parses a line written by FormatRecord. The timestamp is read in loc.
func ParseRecord(line string, loc *time.Location) (Record, error) {
	fields := strings.Split(strings.TrimRight(line, "\r\n"), Separator)
	if len(fields) < 4 {
		return Record{}, fmt.Errorf("invalid record: expected at least 4 fields, got %d", len(fields))
	}

	ts, err := time.ParseInLocation(TimestampLayout, fields[0], loc)
	if err != nil {
		return Record{}, fmt.Errorf("invalid timestamp: %w", err)
	}

	var ints [3]int
	for i := range ints {
		ints[i], err = strconv.Atoi(fields[i+1])
		if err != nil {
			return Record{}, fmt.Errorf("invalid field %d: %w", i+1, err)
		}
	}

	samples := make([]uint16, 0, len(fields)-4)
	for i, f := range fields[4:] {
		v, err := strconv.ParseUint(f, 10, 16)
		if err != nil {
			return Record{}, fmt.Errorf("invalid sample %d: %w", i, err)
		}
		samples = append(samples, uint16(v))
	}

	return Record{
		Time:      ts,
		LED:       ints[0],
		Resistor:  ints[1],
		Intensity: ints[2],
		Samples:   samples,
	}, nil
}
