// Package ptrx provides pointer helpers for optional fields in request and
// entity structs.
package ptrx

import "time"

// Bool returns a pointer to the bool value passed in.
func Bool(v bool) *bool {
	return &v
}

// String returns a pointer to the string value passed in.
func String(v string) *string {
	return &v
}

// Int returns a pointer to the int value passed in.
func Int(v int) *int {
	return &v
}

// Int64 returns a pointer to the int64 value passed in.
func Int64(v int64) *int64 {
	return &v
}

// Time returns a pointer to the time.Time value passed in.
func Time(v time.Time) *time.Time {
	return &v
}

// ToBool returns the value of the pointer, or false when nil.
func ToBool(p *bool) bool {
	if p == nil {
		return false
	}
	return *p
}

// ToString returns the value of the pointer, or "" when nil.
func ToString(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

// ToInt returns the value of the pointer, or 0 when nil.
func ToInt(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}

// ToTime returns the value of the pointer, or the zero time when nil.
func ToTime(p *time.Time) time.Time {
	if p == nil {
		return time.Time{}
	}
	return *p
}
