package util

import (
	"math"
	"strings"

	"trektrace/internal/model"
)

// PolylinePrecision is the Google Maps standard precision factor
const PolylinePrecision = 1e-5

// EncodeTrack encodes track points as a Google encoded polyline, the compact
// form map consumers draw a hike preview from.
func EncodeTrack(points []model.TrackPoint) string {
	coords := make([][2]float64, len(points))
	for i, p := range points {
		coords[i] = [2]float64{p.Latitude, p.Longitude}
	}
	return EncodePolyline(coords)
}

// EncodePolyline encodes [lat, lng] pairs with the default precision
func EncodePolyline(coords [][2]float64) string {
	var sb strings.Builder
	prevLat, prevLng := 0, 0

	for _, c := range coords {
		lat := int(math.Round(c[0] / PolylinePrecision))
		lng := int(math.Round(c[1] / PolylinePrecision))

		encodeValue(&sb, lat-prevLat)
		encodeValue(&sb, lng-prevLng)

		prevLat, prevLng = lat, lng
	}

	return sb.String()
}

func encodeValue(sb *strings.Builder, v int) {
	// Shift left and invert negative values so the sign lands in bit 0
	u := v << 1
	if v < 0 {
		u = ^u
	}
	for u >= 0x20 {
		sb.WriteByte(byte((0x20 | (u & 0x1f)) + 63))
		u >>= 5
	}
	sb.WriteByte(byte(u + 63))
}

// DecodePolyline converts an encoded polyline string to a slice of lat/lng coordinates
// Implementation based on Google's Encoded Polyline Algorithm Format
func DecodePolyline(encoded string) [][2]float64 {
	var points [][2]float64
	index, lat, lng := 0, 0, 0

	for index < len(encoded) {
		var delta int
		var ok bool

		if delta, index, ok = decodeValue(encoded, index); !ok {
			return points
		}
		lat += delta

		if delta, index, ok = decodeValue(encoded, index); !ok {
			return points
		}
		lng += delta

		// Add coordinates in Google standard order: [latitude, longitude]
		points = append(points, [2]float64{float64(lat) * PolylinePrecision, float64(lng) * PolylinePrecision})
	}

	return points
}

func decodeValue(encoded string, index int) (int, int, bool) {
	shift, result := 0, 0
	for {
		if index >= len(encoded) {
			return 0, index, false
		}
		b := int(encoded[index]) - 63
		index++
		result |= (b & 0x1f) << shift
		shift += 5
		if b < 0x20 {
			break
		}
	}

	// Handle the sign bit
	if result&1 != 0 {
		return -(result >> 1) - 1, index, true
	}
	return result >> 1, index, true
}
