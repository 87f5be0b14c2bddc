package helpers

import "time"

func IntSecondDefault(x int, def time.Duration) time.Duration {
	if x <= 0 {
		return def
	}
	return time.Duration(x) * time.Second
}

func IntMillisecondDefault(x int, def time.Duration) time.Duration {
	if x <= 0 {
		return def
	}
	return time.Duration(x) * time.Millisecond
}

func IntDefault(x int, def int) int {
	if x <= 0 {
		return def
	}
	return x
}

func StringDefault(s string, def string) string {
	if s == "" {
		return def
	}
	return s
}

// TicksFor converts duration into number of periods, rounding up, at least 1.
func TicksFor(d, period time.Duration) int {
	if period <= 0 || d <= 0 {
		return 1
	}
	n := int((d + period - 1) / period)
	if n < 1 {
		n = 1
	}
	return n
}
