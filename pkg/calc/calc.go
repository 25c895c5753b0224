// Package calc derives progress figures from byte counters.
package calc

import (
	"math"
	"time"
)

// Percent returns downloaded/total as a whole percentage in 0..100. An unknown total gives 0.
func Percent(downloaded, total int) int {
	if total <= 0 || downloaded <= 0 {
		return 0
	}

	return min(int(math.Round(float64(downloaded)/float64(total)*100)), 100)
}

// Speed returns the average transfer rate in bytes per second since started.
func Speed(downloaded int, started time.Time) float64 {
	if started.IsZero() || downloaded <= 0 {
		return 0
	}

	elapsed := time.Since(started).Seconds()
	if elapsed <= 0 {
		return 0
	}

	return float64(downloaded) / elapsed
}

// ETA estimates the time left at the average speed since started, rounded to seconds.
func ETA(downloaded, total int, started time.Time) time.Duration {
	remaining := total - downloaded

	speed := Speed(downloaded, started)
	if speed <= 0 || remaining <= 0 {
		return 0
	}

	return time.Duration(float64(remaining) / speed * float64(time.Second)).Round(time.Second)
}
