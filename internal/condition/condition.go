// Package condition normalizes free-form item condition strings into the
// buckets used by the valuation tables.
package condition

import (
	"strings"
)

// Bucket is a normalized item condition.
type Bucket string

const (
	New      Bucket = "new"
	LikeNew  Bucket = "like_new"
	OpenBox  Bucket = "open_box"
	UsedGood Bucket = "used_good"
	UsedFair Bucket = "used_fair"
	ForParts Bucket = "for_parts"
	Unknown  Bucket = "unknown"
)

// Buckets lists every bucket in descending order of quality.
var Buckets = []Bucket{New, LikeNew, OpenBox, UsedGood, UsedFair, ForParts, Unknown}

// aliases maps lowercase, separator-collapsed spellings to buckets. Checked
// before the keyword scan in Normalize.
var aliases = map[string]Bucket{
	"new":                New,
	"brand new":          New,
	"new in box":         New,
	"nib":                New,
	"sealed":             New,
	"factory sealed":     New,
	"like new":           LikeNew,
	"likenew":            LikeNew,
	"mint":               LikeNew,
	"excellent":          LikeNew,
	"open box":           OpenBox,
	"openbox":            OpenBox,
	"customer return":    OpenBox,
	"returns":            OpenBox,
	"shelf pull":         OpenBox,
	"overstock":          New,
	"refurbished":        UsedGood,
	"used good":          UsedGood,
	"used":               UsedGood,
	"good":               UsedGood,
	"very good":          UsedGood,
	"used fair":          UsedFair,
	"fair":               UsedFair,
	"acceptable":         UsedFair,
	"salvage":            ForParts,
	"for parts":          ForParts,
	"parts":              ForParts,
	"not working":        ForParts,
	"for parts only":     ForParts,
	"broken":             ForParts,
	"unknown":            Unknown,
	"unspecified":        Unknown,
	"untested":           Unknown,
	"as is":              Unknown,
	"n/a":                Unknown,
	"na":                 Unknown,
	"":                   Unknown,
	"not specified":      Unknown,
	"mixed":              Unknown,
	"assorted":           Unknown,
	"uninspected":        Unknown,
	"uninspected return": Unknown,
}

// Normalize maps a raw condition string onto a Bucket. Unrecognized values
// map to Unknown.
func Normalize(raw string) Bucket {
	key := collapse(raw)
	if bucket, ok := aliases[key]; ok {
		return bucket
	}
	if bucket, ok := aliases[strings.ReplaceAll(key, " ", "")]; ok {
		return bucket
	}

	switch {
	case strings.Contains(key, "part") || strings.Contains(key, "broken") || strings.Contains(key, "defective"):
		return ForParts
	case strings.Contains(key, "like new"):
		return LikeNew
	case strings.Contains(key, "open box") || strings.Contains(key, "return"):
		return OpenBox
	case strings.Contains(key, "fair"):
		return UsedFair
	case strings.Contains(key, "used") || strings.Contains(key, "refurb"):
		return UsedGood
	case strings.Contains(key, "new"):
		return New
	}
	return Unknown
}

// Valid reports whether b is one of the known buckets.
func (b Bucket) Valid() bool {
	for _, known := range Buckets {
		if b == known {
			return true
		}
	}
	return false
}

func (b Bucket) String() string {
	return string(b)
}

func collapse(raw string) string {
	lowered := strings.ToLower(strings.TrimSpace(raw))
	lowered = strings.NewReplacer("_", " ", "-", " ").Replace(lowered)
	return strings.Join(strings.Fields(lowered), " ")
}
