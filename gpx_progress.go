package main

import (
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/tkrajina/gpxgo/gpx"
)

const maxGPXUploadBytes = 10 << 20

// gpxSummary is what a GPX track contributes to a progress entry.
type gpxSummary struct {
	DistanceKM      float64
	DurationMinutes float64
	Points          int
	StartedAt       time.Time
}

// summarizeGPX parses a GPX document and measures its tracks. Duration runs
// from the first to the last timestamped point.
func summarizeGPX(data []byte) (gpxSummary, error) {
	doc, err := gpx.ParseBytes(data)
	if err != nil {
		return gpxSummary{}, fmt.Errorf("%w: %v", errInvalidGPX, err)
	}

	var first, last time.Time
	points := 0
	for _, track := range doc.Tracks {
		for _, segment := range track.Segments {
			for _, p := range segment.Points {
				points++
				if p.Timestamp.IsZero() {
					continue
				}
				if first.IsZero() || p.Timestamp.Before(first) {
					first = p.Timestamp
				}
				if p.Timestamp.After(last) {
					last = p.Timestamp
				}
			}
		}
	}
	if points < 2 {
		return gpxSummary{}, fmt.Errorf("%w: track needs at least two points", errInvalidGPX)
	}

	s := gpxSummary{
		DistanceKM: math.Round(doc.Length2D()/1000*100) / 100,
		Points:     points,
		StartedAt:  first,
	}
	if !first.IsZero() {
		s.DurationMinutes = math.Round(last.Sub(first).Minutes()*10) / 10
	}
	return s, nil
}

// addProgressFromGPX turns an uploaded GPX track into a distance progress entry.
// POST /api/sport-events/:eventId/progress/gpx (multipart: file, notes?).
func (h *Handler) addProgressFromGPX(c *gin.Context) {
	userID := c.GetInt("user_id")
	eventID, ok := paramID(c, "eventId")
	if !ok {
		return
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxGPXUploadBytes)
	fileHeader, err := c.FormFile("file")
	if err != nil {
		apiError(c, http.StatusBadRequest, "file is required (max 10MB)")
		return
	}
	f, err := fileHeader.Open()
	if err != nil {
		apiError(c, http.StatusBadRequest, "could not read uploaded file")
		return
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		apiError(c, http.StatusBadRequest, "could not read uploaded file")
		return
	}

	summary, err := summarizeGPX(data)
	if err != nil {
		h.fail(c, err, "failed to parse GPX")
		return
	}

	body := addProgressRequest{
		Value:    &summary.DistanceKM,
		Unit:     "km",
		Distance: &summary.DistanceKM,
	}
	if summary.DurationMinutes > 0 {
		body.Time = &summary.DurationMinutes
	}
	if !summary.StartedAt.IsZero() {
		body.Date = &summary.StartedAt
	}
	if notes := strings.TrimSpace(c.PostForm("notes")); notes != "" {
		body.Notes = &notes
	}

	entry, err := h.insertProgress(c, eventID, userID, body)
	if err != nil {
		h.fail(c, err, "failed to add progress")
		return
	}

	c.JSON(http.StatusCreated, entry)
}
