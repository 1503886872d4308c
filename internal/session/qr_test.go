package session

import (
	"bytes"
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderPairingQR(t *testing.T) {
	uri := "wc:7f6e504bfad60b485450578e05678ed3e8e8c4751d3c6160be17160d63ec90f9@2?relay-protocol=irn&symKey=587d5484ce2a2a6ee3ba1962fdd7e8588e06200c46823bd18fbd67def96ad303"

	code, err := RenderPairingQR(uri)
	require.NoError(t, err)

	assert.Equal(t, uri, code.URI)
	png, err := base64.StdEncoding.DecodeString(code.PNGBase64)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(png, []byte("\x89PNG")))

	lines := strings.Split(strings.TrimSuffix(code.Terminal, "\n"), "\n")
	assert.Greater(t, len(lines), 10)
	assert.Contains(t, code.Terminal, "█")

	_, err = RenderPairingQR("")
	assert.Error(t, err)
}

func TestRenderBlocks(t *testing.T) {
	out := renderBlocks([][]bool{
		{true, false, true},
		{true, true, false},
		{false, true, false},
	})
	assert.Equal(t, "█▄▀\n ▀ \n", out)
}

func TestQRPresenter_OpenClose(t *testing.T) {
	var shown []PairingQR
	dismissed := 0
	p := NewQRPresenter(func(c PairingQR) { shown = append(shown, c) }, func() { dismissed++ }, nil)

	p.Close()
	assert.Zero(t, dismissed, "nothing shown yet")

	p.Open("wc:abc@2")
	require.Len(t, shown, 1)
	assert.Equal(t, "wc:abc@2", shown[0].URI)
	assert.True(t, p.IsOpen())

	p.Close()
	p.Close()
	assert.Equal(t, 1, dismissed)
	assert.False(t, p.IsOpen())

	// render failure shows nothing
	p.Open("")
	assert.Len(t, shown, 1)
	assert.False(t, p.IsOpen())
}
