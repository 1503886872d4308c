package session

import (
	"encoding/base64"
	"fmt"
	"strings"
	"sync"

	"github.com/skip2/go-qrcode"
	"go.uber.org/zap"
)

const qrPNGSize = 256

var _ Presenter = (*QRPresenter)(nil)

// PairingQR is a rendered pairing URI
type PairingQR struct {
	URI       string
	PNGBase64 string // 256x256 PNG, for a UI
	Terminal  string // block rendering, for a console
}

// QRPresenter renders the pairing URI as a QR code and hands it to a sink
type QRPresenter struct {
	show    func(PairingQR)
	dismiss func()
	logger  *zap.Logger

	mu   sync.Mutex
	open bool
}

// NewQRPresenter creates a presenter. show receives each rendered code; dismiss is
// called when the code should be taken down. Either may be nil.
func NewQRPresenter(show func(PairingQR), dismiss func(), logger *zap.Logger) *QRPresenter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QRPresenter{show: show, dismiss: dismiss, logger: logger}
}

// Open renders uri and shows it. Render failures are logged, not returned.
func (p *QRPresenter) Open(uri string) {
	code, err := RenderPairingQR(uri)
	if err != nil {
		p.logger.Error("failed to render pairing QR", zap.Error(err))
		return
	}

	p.mu.Lock()
	p.open = true
	p.mu.Unlock()

	if p.show != nil {
		p.show(code)
	}
}

// Close dismisses a shown code. It does nothing when nothing is shown.
func (p *QRPresenter) Close() {
	p.mu.Lock()
	wasOpen := p.open
	p.open = false
	p.mu.Unlock()

	if wasOpen && p.dismiss != nil {
		p.dismiss()
	}
}

// IsOpen reports whether a code is currently shown
func (p *QRPresenter) IsOpen() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.open
}

// RenderPairingQR encodes uri as a base64 PNG and a terminal block drawing
func RenderPairingQR(uri string) (PairingQR, error) {
	if uri == "" {
		return PairingQR{}, fmt.Errorf("empty pairing URI")
	}

	qr, err := qrcode.New(uri, qrcode.Medium)
	if err != nil {
		return PairingQR{}, fmt.Errorf("failed to create QR code: %w", err)
	}

	png, err := qr.PNG(qrPNGSize)
	if err != nil {
		return PairingQR{}, fmt.Errorf("failed to generate PNG: %w", err)
	}

	return PairingQR{
		URI:       uri,
		PNGBase64: base64.StdEncoding.EncodeToString(png),
		Terminal:  renderBlocks(qr.Bitmap()),
	}, nil
}

// renderBlocks draws two bitmap rows per line with half-block characters
func renderBlocks(bitmap [][]bool) string {
	var b strings.Builder
	for y := 0; y < len(bitmap); y += 2 {
		for x := range bitmap[y] {
			top := bitmap[y][x]
			bottom := y+1 < len(bitmap) && bitmap[y+1][x]
			switch {
			case top && bottom:
				b.WriteRune('█')
			case top:
				b.WriteRune('▀')
			case bottom:
				b.WriteRune('▄')
			default:
				b.WriteRune(' ')
			}
		}
		b.WriteByte('\n')
	}
	return b.String()
}
