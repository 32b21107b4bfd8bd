package main

import (
	"testing"

	"github.com/skip2/go-qrcode"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionCheckInURL(t *testing.T) {
	assert.Equal(t,
		"https://fedacn.app/sport-events/3/sessions/9/checkin",
		sessionCheckInURL("https://fedacn.app", 3, 9))
}

func TestSessionQRCodeEncodes(t *testing.T) {
	png, err := qrcode.Encode(sessionCheckInURL("https://fedacn.app", 3, 9), qrcode.Medium, qrCodeSize)
	require.NoError(t, err)
	assert.Equal(t, []byte("\x89PNG"), png[:4])
}
