// Package qr renders QR payloads for terminal display.
package qr

import (
	"os"
	"strings"

	"github.com/mdp/qrterminal/v3"
)

// ToASCII renders the payload as a half-block terminal QR code.
func ToASCII(raw string) string {
	var b strings.Builder
	qrterminal.GenerateWithConfig(raw, qrterminal.Config{
		Level:      qrterminal.L,
		Writer:     &b,
		HalfBlocks: true,
		QuietZone:  1,
	})
	return b.String()
}

// Print writes the rendered QR code to stdout for scanning.
func Print(raw string) {
	qrterminal.GenerateWithConfig(raw, qrterminal.Config{
		Level:      qrterminal.L,
		Writer:     os.Stdout,
		HalfBlocks: true,
		QuietZone:  1,
	})
}
