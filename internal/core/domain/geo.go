package domain

// Bounds represents a geographic bounding box.
type Bounds struct {
	LatMax float64 `json:"lat_max"`
	LatMin float64 `json:"lat_min"`
	LngMax float64 `json:"lng_max"`
	LngMin float64 `json:"lng_min"`
}

// VirginiaBounds is a box around an area in Virginia, USA.
//
// The max/min labels are swapped relative to the values. Nothing reads it.
var VirginiaBounds = Bounds{
	LatMax: 38.735083,
	LatMin: 40.898677,
	LngMax: -77.109339,
	LngMin: -81.587841,
}
