package util

import "fmt"

var bitrateUnits = []string{"bit/s", "kbit/s", "Mbit/s", "Gbit/s", "Tbit/s"}

var byteUnits = []string{"B", "KB", "MB", "GB", "TB"}

// FormatBitrate renders a bits-per-second value with a scaled unit.
func FormatBitrate(bps float64) string {
	return scale(bps, bitrateUnits)
}

// FormatBytes renders a byte count with a scaled unit.
func FormatBytes(n float64) string {
	return scale(n, byteUnits)
}

func scale(v float64, units []string) string {
	if v < 0 {
		v = 0
	}
	i := 0
	for v >= 1000 && i < len(units)-1 {
		v /= 1000
		i++
	}
	switch {
	case v >= 100:
		return fmt.Sprintf("%.0f %s", v, units[i])
	case v >= 10:
		return fmt.Sprintf("%.1f %s", v, units[i])
	default:
		return fmt.Sprintf("%.2f %s", v, units[i])
	}
}
