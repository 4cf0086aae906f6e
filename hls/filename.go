package hls

import (
	"crypto/md5"
	"encoding/hex"
	"errors"
	"io/fs"
	"os"
)

// DeriveFilename names a downloaded video after the md5 of its course title
// and video name, so reruns land on the same file.
func DeriveFilename(courseTitle, vodName string) string {
	sum := md5.Sum([]byte(courseTitle + vodName))
	return hex.EncodeToString(sum[:]) + ".mp4"
}

// Exists reports whether path is already present.
func Exists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}
