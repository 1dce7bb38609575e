//go:build !linux

package reactive

import (
	"os"
	"time"
)

// birthTime approximates the creation time on platforms where stat does
// not expose one.
func birthTime(fi os.FileInfo) time.Time {
	return fi.ModTime()
}
