package utils

import (
	"time"
)

// DateKey 当天日期，按 UTC 计算，用于每日计数的 key
func DateKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// UntilNextDay 距离下一个 UTC 零点的时长，作为每日计数的 TTL
func UntilNextDay(t time.Time) time.Duration {
	u := t.UTC()
	next := time.Date(u.Year(), u.Month(), u.Day()+1, 0, 0, 0, 0, time.UTC)
	return next.Sub(u)
}
