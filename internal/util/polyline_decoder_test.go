package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trektrace/internal/model"
)

// Reference example from the encoded polyline algorithm documentation
const referencePolyline = "_p~iF~ps|U_ulLnnqC_mqNvxq`@"

var referenceCoords = [][2]float64{{38.5, -120.2}, {40.7, -120.95}, {43.252, -126.453}}

func TestEncodePolyline_Reference(t *testing.T) {
	assert.Equal(t, referencePolyline, EncodePolyline(referenceCoords))
}

func TestDecodePolyline_Reference(t *testing.T) {
	decoded := DecodePolyline(referencePolyline)
	require.Len(t, decoded, len(referenceCoords))
	for i := range referenceCoords {
		assert.InDelta(t, referenceCoords[i][0], decoded[i][0], 1e-6)
		assert.InDelta(t, referenceCoords[i][1], decoded[i][1], 1e-6)
	}
}

func TestDecodePolyline_Truncated(t *testing.T) {
	// A dangling latitude without a longitude yields only the complete pairs
	decoded := DecodePolyline(referencePolyline[:len(referencePolyline)-3])
	assert.Len(t, decoded, 2)
}

func TestEncodeTrack(t *testing.T) {
	pts := []model.TrackPoint{
		{Latitude: 38.5, Longitude: -120.2},
		{Latitude: 40.7, Longitude: -120.95},
		{Latitude: 43.252, Longitude: -126.453},
	}
	assert.Equal(t, referencePolyline, EncodeTrack(pts))
	assert.Empty(t, EncodeTrack(nil))
}
