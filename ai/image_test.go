package ai

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildAndParseDataURLRoundTrip(t *testing.T) {
	raw := []byte{0xDE, 0xAD, 0xBE, 0xEF}
	url := BuildDataURL("image/png", raw)

	mime, got, err := ParseDataURL(url)
	require.NoError(t, err)
	assert.Equal(t, "image/png", mime)
	assert.Equal(t, raw, got)
}

func TestParseDataURL_MissingPrefix(t *testing.T) {
	_, _, err := ParseDataURL("not-a-data-url")
	assert.Error(t, err)
}

func TestParseDataURL_MissingComma(t *testing.T) {
	_, _, err := ParseDataURL("data:image/png;base64")
	assert.Error(t, err)
}

func TestParseDataURL_MissingBase64Marker(t *testing.T) {
	_, _, err := ParseDataURL("data:image/png,abcd")
	assert.Error(t, err)
}

func TestParseDataURL_InvalidBase64Payload(t *testing.T) {
	_, _, err := ParseDataURL("data:image/png;base64,not valid base64!!")
	assert.Error(t, err)
}

func TestPrepareImageForLimits_NoopWhenWithinLimits(t *testing.T) {
	raw := []byte{1, 2, 3, 4}
	mime, out, err := PrepareImageForLimits("image/png", raw, 1_000_000, 0)
	require.NoError(t, err)
	assert.Equal(t, "image/png", mime)
	assert.Equal(t, raw, out)
}

func TestPrepareImageForLimits_UndecodableOverLimitErrors(t *testing.T) {
	raw := make([]byte, 100)
	_, _, err := PrepareImageForLimits("application/octet-stream", raw, 10, 0)
	assert.Error(t, err)
}
