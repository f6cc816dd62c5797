//
// Copyright (C) 2021 Intel Corporation
//
// SPDX-License-Identifier: Apache-2.0

package inventory

import (
	"time"
)

// UnixMilli converts provided time to milliseconds since epoch.
// The zero time converts to 0 rather than a large negative number.
func UnixMilli(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano() / int64(time.Millisecond)
}

// UnixMilliNow returns the current time as milliseconds since epoch
func UnixMilliNow() int64 {
	return UnixMilli(time.Now())
}

// FromUnixMilli is the inverse of UnixMilli.
func FromUnixMilli(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.Unix(ms/1000, ms%1000*int64(time.Millisecond))
}
