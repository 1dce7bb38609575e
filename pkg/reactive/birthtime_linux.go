//go:build linux

package reactive

import (
	"os"
	"syscall"
	"time"
)

// birthTime approximates the creation time. Linux stat has no birth time;
// the inode change time is the closest it exposes, and the modification
// time is the fallback.
func birthTime(fi os.FileInfo) time.Time {
	if st, ok := fi.Sys().(*syscall.Stat_t); ok {
		return time.Unix(st.Ctim.Sec, st.Ctim.Nsec)
	}
	return fi.ModTime()
}
