//go:build !(unix || linux || darwin || freebsd || openbsd || netbsd)

package mmap

import (
	"io"
	"os"
)

// Fallback for platforms without mmap support: plain heap buffers.

func osMap(f *os.File, size int) ([]byte, func([]byte) error, error) {
	data := make([]byte, size)
	if _, err := io.ReadFull(f, data); err != nil {
		return nil, nil, err
	}
	return data, func([]byte) error { return nil }, nil
}

func osMapAnon(size int) ([]byte, func([]byte) error, error) {
	return make([]byte, size), func([]byte) error { return nil }, nil
}
