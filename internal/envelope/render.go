package envelope

import (
	"encoding/base64"
	"fmt"

	"github.com/skip2/go-qrcode"
)

// DefaultPNGSize is the edge length in pixels of rendered PNG symbols
const DefaultPNGSize = 256

// Renderer draws envelopes as QR symbols at recovery level High
type Renderer struct {
	size int
}

// NewRenderer creates a Renderer producing PNGs of size pixels
func NewRenderer(size int) *Renderer {
	if size <= 0 {
		size = DefaultPNGSize
	}
	return &Renderer{size: size}
}

func (r *Renderer) symbol(e Envelope) (*qrcode.QRCode, error) {
	payload, err := Marshal(e)
	if err != nil {
		return nil, err
	}
	q, err := qrcode.New(string(payload), qrcode.High)
	if err != nil {
		return nil, fmt.Errorf("failed to encode QR symbol: %w", err)
	}
	return q, nil
}

// PNG renders the envelope as a PNG image
func (r *Renderer) PNG(e Envelope) ([]byte, error) {
	q, err := r.symbol(e)
	if err != nil {
		return nil, err
	}
	png, err := q.PNG(r.size)
	if err != nil {
		return nil, fmt.Errorf("failed to render QR symbol: %w", err)
	}
	return png, nil
}

// DataURL renders the envelope as a data:image/png;base64 URL for web views
func (r *Renderer) DataURL(e Envelope) (string, error) {
	png, err := r.PNG(e)
	if err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}

// Terminal renders the envelope with block characters for a terminal
func (r *Renderer) Terminal(e Envelope) (string, error) {
	q, err := r.symbol(e)
	if err != nil {
		return "", err
	}
	return q.ToSmallString(false), nil
}
