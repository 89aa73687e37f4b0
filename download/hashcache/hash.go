package hashcache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

const chunkSize = 1 << 20

// HashFile returns the hex SHA-256 of the audio payload of path and the file size.
// For MP3 files the leading ID3v2 block and a trailing ID3v1 tag are left out,
// so writing tags after placement keeps the hash stable. Other formats are
// hashed whole.
func HashFile(path string) (string, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", 0, err
	}
	size := info.Size()

	start, end := int64(0), size
	if strings.EqualFold(filepath.Ext(path), ".mp3") {
		start, end, err = mp3Payload(f, size)
		if err != nil {
			return "", 0, fmt.Errorf("read tag headers: %w", err)
		}
	}

	h := sha256.New()
	buf := make([]byte, chunkSize)
	if _, err := io.CopyBuffer(h, io.NewSectionReader(f, start, end-start), buf); err != nil {
		return "", 0, err
	}
	return hex.EncodeToString(h.Sum(nil)), size, nil
}

// mp3Payload returns the byte range between the ID3v2 header block and an ID3v1 trailer.
func mp3Payload(r io.ReaderAt, size int64) (int64, int64, error) {
	start, end := int64(0), size

	if size >= 10 {
		var head [10]byte
		if _, err := r.ReadAt(head[:], 0); err != nil {
			return 0, 0, err
		}
		if string(head[:3]) == "ID3" {
			tagSize := synchsafe(head[6:10])
			start = 10 + tagSize
			if head[5]&0x10 != 0 {
				start += 10 // footer present
			}
		}
	}

	if end-start >= 128 {
		var tail [3]byte
		if _, err := r.ReadAt(tail[:], size-128); err != nil {
			return 0, 0, err
		}
		if string(tail[:]) == "TAG" {
			end -= 128
		}
	}

	if start > end {
		return 0, size, nil
	}
	return start, end, nil
}

func synchsafe(b []byte) int64 {
	return int64(b[0]&0x7f)<<21 | int64(b[1]&0x7f)<<14 | int64(b[2]&0x7f)<<7 | int64(b[3]&0x7f)
}
