package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const twoPointTrack = `<?xml version="1.0" encoding="UTF-8"?>
<gpx version="1.1" creator="test" xmlns="http://www.topografix.com/GPX/1/1">
  <trk>
    <name>Morning run</name>
    <trkseg>
      <trkpt lat="0.0" lon="0.0"><time>2026-10-19T06:00:00Z</time></trkpt>
      <trkpt lat="0.0" lon="0.01"><time>2026-10-19T06:10:00Z</time></trkpt>
    </trkseg>
  </trk>
</gpx>`

func TestSummarizeGPX(t *testing.T) {
	s, err := summarizeGPX([]byte(twoPointTrack))
	require.NoError(t, err)

	assert.InDelta(t, 1.11, s.DistanceKM, 0.01)
	assert.InDelta(t, 10.0, s.DurationMinutes, 0.001)
	assert.Equal(t, 2, s.Points)
	assert.True(t, s.StartedAt.Equal(time.Date(2026, 10, 19, 6, 0, 0, 0, time.UTC)))
}

func TestSummarizeGPX_Invalid(t *testing.T) {
	tests := map[string]string{
		"not xml": "definitely not a gpx file",
		"single point": `<?xml version="1.0"?>
<gpx version="1.1" creator="test" xmlns="http://www.topografix.com/GPX/1/1">
  <trk><trkseg><trkpt lat="1" lon="1"></trkpt></trkseg></trk>
</gpx>`,
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := summarizeGPX([]byte(doc))
			assert.ErrorIs(t, err, errInvalidGPX)
		})
	}
}
