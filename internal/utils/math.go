package utils

import "math"

// Round keeps two decimal places, enough for the MB and seconds values in
// the health response
func Round(val float64) float64 {
	return math.Round(val*100) / 100
}
