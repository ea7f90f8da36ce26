package geocode

import (
	"context"
	"regexp"

	"reconquest/internal"
)

var rePostalCode = regexp.MustCompile(`\b(\d{5})\b`)

// DepartmentFallback places an address at its department's prefecture using
// the postal code alone. It never errors and never needs the network.
type DepartmentFallback struct{}

func (DepartmentFallback) Lookup(_ context.Context, address string) (internal.Coordinates, bool, error) {
	dept := DepartmentOf(address)
	if dept == "" {
		return internal.Coordinates{}, false, nil
	}
	c, ok := departmentCentroids[dept]
	if !ok {
		return internal.Coordinates{}, false, nil
	}
	c.Label = "département " + dept
	return c, true, nil
}

// DepartmentOf returns the department code of the last postal code found in
// address, or "" when there is none.
func DepartmentOf(address string) string {
	matches := rePostalCode.FindAllString(address, -1)
	if len(matches) == 0 {
		return ""
	}
	code := matches[len(matches)-1]
	switch {
	case code[:2] == "97" || code[:2] == "98":
		return code[:3]
	case code[:2] == "20":
		if code[2] <= '1' {
			return "2A"
		}
		return "2B"
	default:
		return code[:2]
	}
}

// prefecture coordinates
var departmentCentroids = map[string]internal.Coordinates{
	"01": {Lat: 46.205, Lng: 5.225}, "02": {Lat: 49.564, Lng: 3.620}, "03": {Lat: 46.567, Lng: 3.333},
	"04": {Lat: 44.092, Lng: 6.236}, "05": {Lat: 44.559, Lng: 6.079}, "06": {Lat: 43.703, Lng: 7.266},
	"07": {Lat: 44.735, Lng: 4.599}, "08": {Lat: 49.773, Lng: 4.720}, "09": {Lat: 42.965, Lng: 1.607},
	"10": {Lat: 48.297, Lng: 4.074}, "11": {Lat: 43.213, Lng: 2.349}, "12": {Lat: 44.350, Lng: 2.575},
	"13": {Lat: 43.296, Lng: 5.370}, "14": {Lat: 49.183, Lng: -0.371}, "15": {Lat: 44.926, Lng: 2.440},
	"16": {Lat: 45.649, Lng: 0.156}, "17": {Lat: 46.160, Lng: -1.151}, "18": {Lat: 47.081, Lng: 2.399},
	"19": {Lat: 45.267, Lng: 1.772}, "2A": {Lat: 41.919, Lng: 8.739}, "2B": {Lat: 42.697, Lng: 9.451},
	"21": {Lat: 47.322, Lng: 5.041}, "22": {Lat: 48.514, Lng: -2.765}, "23": {Lat: 46.171, Lng: 1.871},
	"24": {Lat: 45.184, Lng: 0.721}, "25": {Lat: 47.238, Lng: 6.024}, "26": {Lat: 44.933, Lng: 4.892},
	"27": {Lat: 49.024, Lng: 1.151}, "28": {Lat: 48.446, Lng: 1.489}, "29": {Lat: 47.996, Lng: -4.102},
	"30": {Lat: 43.837, Lng: 4.360}, "31": {Lat: 43.605, Lng: 1.444}, "32": {Lat: 43.646, Lng: 0.586},
	"33": {Lat: 44.838, Lng: -0.579}, "34": {Lat: 43.611, Lng: 3.877}, "35": {Lat: 48.117, Lng: -1.678},
	"36": {Lat: 46.811, Lng: 1.691}, "37": {Lat: 47.394, Lng: 0.685}, "38": {Lat: 45.188, Lng: 5.724},
	"39": {Lat: 46.675, Lng: 5.555}, "40": {Lat: 43.890, Lng: -0.500}, "41": {Lat: 47.586, Lng: 1.336},
	"42": {Lat: 45.440, Lng: 4.387}, "43": {Lat: 45.043, Lng: 3.885}, "44": {Lat: 47.218, Lng: -1.554},
	"45": {Lat: 47.903, Lng: 1.909}, "46": {Lat: 44.448, Lng: 1.441}, "47": {Lat: 44.203, Lng: 0.616},
	"48": {Lat: 44.518, Lng: 3.500}, "49": {Lat: 47.478, Lng: -0.563}, "50": {Lat: 49.116, Lng: -1.091},
	"51": {Lat: 48.957, Lng: 4.365}, "52": {Lat: 48.112, Lng: 5.139}, "53": {Lat: 48.073, Lng: -0.770},
	"54": {Lat: 48.692, Lng: 6.184}, "55": {Lat: 48.772, Lng: 5.160}, "56": {Lat: 47.658, Lng: -2.760},
	"57": {Lat: 49.119, Lng: 6.176}, "58": {Lat: 46.990, Lng: 3.159}, "59": {Lat: 50.629, Lng: 3.057},
	"60": {Lat: 49.430, Lng: 2.083}, "61": {Lat: 48.432, Lng: 0.091}, "62": {Lat: 50.291, Lng: 2.778},
	"63": {Lat: 45.778, Lng: 3.087}, "64": {Lat: 43.296, Lng: -0.370}, "65": {Lat: 43.233, Lng: 0.078},
	"66": {Lat: 42.699, Lng: 2.895}, "67": {Lat: 48.573, Lng: 7.752}, "68": {Lat: 48.079, Lng: 7.358},
	"69": {Lat: 45.764, Lng: 4.836}, "70": {Lat: 47.622, Lng: 6.155}, "71": {Lat: 46.307, Lng: 4.828},
	"72": {Lat: 48.007, Lng: 0.199}, "73": {Lat: 45.564, Lng: 5.918}, "74": {Lat: 45.899, Lng: 6.129},
	"75": {Lat: 48.857, Lng: 2.352}, "76": {Lat: 49.443, Lng: 1.100}, "77": {Lat: 48.540, Lng: 2.660},
	"78": {Lat: 48.801, Lng: 2.130}, "79": {Lat: 46.324, Lng: -0.464}, "80": {Lat: 49.894, Lng: 2.296},
	"81": {Lat: 43.929, Lng: 2.148}, "82": {Lat: 44.018, Lng: 1.355}, "83": {Lat: 43.124, Lng: 5.928},
	"84": {Lat: 43.949, Lng: 4.806}, "85": {Lat: 46.670, Lng: -1.426}, "86": {Lat: 46.580, Lng: 0.340},
	"87": {Lat: 45.834, Lng: 1.261}, "88": {Lat: 48.173, Lng: 6.451}, "89": {Lat: 47.798, Lng: 3.567},
	"90": {Lat: 47.638, Lng: 6.863}, "91": {Lat: 48.629, Lng: 2.441}, "92": {Lat: 48.892, Lng: 2.207},
	"93": {Lat: 48.910, Lng: 2.441}, "94": {Lat: 48.791, Lng: 2.455}, "95": {Lat: 49.036, Lng: 2.076},
	"971": {Lat: 15.996, Lng: -61.727}, "972": {Lat: 14.616, Lng: -61.059}, "973": {Lat: 4.933, Lng: -52.330},
	"974": {Lat: -20.882, Lng: 55.450}, "976": {Lat: -12.780, Lng: 45.228},
}
