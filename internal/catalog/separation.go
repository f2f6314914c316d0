package catalog

import "math"

// AngularSeparation returns the great-circle separation in degrees between
// two sky positions, using the haversine formulation for numerical
// stability at small angles.
func AngularSeparation(ra1, dec1, ra2, dec2 float64) float64 {
	const degToRad = math.Pi / 180

	dRA := (ra2 - ra1) * degToRad
	dDec := (dec2 - dec1) * degToRad

	sinDDec := math.Sin(dDec / 2)
	sinDRA := math.Sin(dRA / 2)

	a := sinDDec*sinDDec +
		math.Cos(dec1*degToRad)*math.Cos(dec2*degToRad)*sinDRA*sinDRA
	return 2 * math.Asin(math.Min(1, math.Sqrt(a))) / degToRad
}
