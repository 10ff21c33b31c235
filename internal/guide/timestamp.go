package guide

import (
	"strconv"
	"strings"
	"time"
)

// ParseTimestamp converts an XMLTV time ("20260214180000 +0000",
// "20260214180000-0300", "20260214180000") to Unix seconds. Malformed or
// out-of-range input yields 0; callers treat 0 as unknown.
func ParseTimestamp(raw string) int64 {
	s := strings.TrimSpace(raw)
	if len(s) < 14 || !allDigits(s[:14]) {
		return 0
	}
	year, _ := strconv.Atoi(s[0:4])
	month, _ := strconv.Atoi(s[4:6])
	day, _ := strconv.Atoi(s[6:8])
	hour, _ := strconv.Atoi(s[8:10])
	minute, _ := strconv.Atoi(s[10:12])
	sec, _ := strconv.Atoi(s[12:14])

	offset := 0
	if rest := strings.TrimSpace(s[14:]); rest != "" {
		if len(rest) != 5 || (rest[0] != '+' && rest[0] != '-') || !allDigits(rest[1:]) {
			return 0
		}
		oh, _ := strconv.Atoi(rest[1:3])
		om, _ := strconv.Atoi(rest[3:5])
		if oh > 14 || om > 59 {
			return 0
		}
		offset = oh*3600 + om*60
		if rest[0] == '-' {
			offset = -offset
		}
	}

	t := time.Date(year, time.Month(month), day, hour, minute, sec, 0, time.UTC)
	// time.Date normalizes overflow (month 13, Feb 30); reject it instead.
	if t.Year() != year || int(t.Month()) != month || t.Day() != day ||
		t.Hour() != hour || t.Minute() != minute || t.Second() != sec {
		return 0
	}
	return t.Unix() - int64(offset)
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return s != ""
}
