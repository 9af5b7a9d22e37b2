package model

import "time"

// Resolution is the bucket length of a Candle, from one minute to one week.
type Resolution string

const (
	Res1m  Resolution = "1m"
	Res5m  Resolution = "5m"
	Res15m Resolution = "15m"
	Res1h  Resolution = "1h"
	Res4h  Resolution = "4h"
	Res1d  Resolution = "1d"
	Res1w  Resolution = "1w"
)

// resolutions is the enumerated set of valid resolutions.
var resolutions = [...]Resolution{Res1m, Res5m, Res15m, Res1h, Res4h, Res1d, Res1w}

// Valid reports whether r is one of the enumerated resolutions.
func (r Resolution) Valid() bool {
	for _, v := range resolutions {
		if v == r {
			return true
		}
	}
	return false
}

// SameBucket reports whether t1 and t2 fall in the same bucket for
// resolution r. Two timestamps are in the same bucket iff they agree on
// the prefix appropriate to the resolution: year/month/week for 1w, and
// progressively finer prefixes (day, hour, hour/4, minute/15, minute/5,
// minute) down to 1m.
//
// SameBucket is reflexive, symmetric and transitive for a fixed r, since
// it is defined purely as equality of a (possibly multi-field) bucket key.
func SameBucket(t1, t2 time.Time, r Resolution) bool {
	t1 = t1.UTC()
	t2 = t2.UTC()

	y1, m1, d1 := t1.Date()
	y2, m2, d2 := t2.Date()

	switch r {
	case Res1w:
		_, wk1 := t1.ISOWeek()
		_, wk2 := t2.ISOWeek()
		return y1 == y2 && m1 == m2 && wk1 == wk2
	case Res1d:
		return y1 == y2 && m1 == m2 && d1 == d2
	case Res4h:
		if y1 != y2 || m1 != m2 || d1 != d2 {
			return false
		}
		return t1.Hour()/4 == t2.Hour()/4
	case Res1h:
		return y1 == y2 && m1 == m2 && d1 == d2 && t1.Hour() == t2.Hour()
	case Res15m:
		if y1 != y2 || m1 != m2 || d1 != d2 || t1.Hour() != t2.Hour() {
			return false
		}
		return t1.Minute()/15 == t2.Minute()/15
	case Res5m:
		if y1 != y2 || m1 != m2 || d1 != d2 || t1.Hour() != t2.Hour() {
			return false
		}
		return t1.Minute()/5 == t2.Minute()/5
	case Res1m:
		return y1 == y2 && m1 == m2 && d1 == d2 && t1.Hour() == t2.Hour() && t1.Minute() == t2.Minute()
	default:
		return false
	}
}

// BucketColumns are the precomputed bucket-prefix columns stored alongside
// every 1-minute candle row, so the Historical Candle Store Query Layer can
// GROUP BY them instead of recomputing bucket membership per query.
//
// hour4, minute15 and minute5 use integer division, which floors for
// non-negative operands.
type BucketColumns struct {
	Year    int
	Month   int
	Week    int
	Day     int
	Hour4   int
	Hour    int
	Minute15 int
	Minute5  int
	Minute   int
}

// BucketColumnsFor computes the BucketColumns for a 1-minute-aligned
// timestamp.
func BucketColumnsFor(ts time.Time) BucketColumns {
	ts = ts.UTC()
	y, m, d := ts.Date()
	_, wk := ts.ISOWeek()
	hour := ts.Hour()
	minute := ts.Minute()
	return BucketColumns{
		Year:     y,
		Month:    int(m),
		Week:     wk,
		Day:      d,
		Hour4:    hour / 4,
		Hour:     hour,
		Minute15: minute / 15,
		Minute5:  minute / 5,
		Minute:   minute,
	}
}
