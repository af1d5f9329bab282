package storage

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

const MaxImageSize = 10 << 20

var (
	ErrNotAnImage    = errors.New("uploaded file is not an image")
	ErrImageTooLarge = errors.New("uploaded file exceeds 10 MiB")
)

// Image is an uploaded file whose content has been sniffed as an image.
type Image struct {
	Reader      io.Reader
	ContentType string
	Extension   string
}

// OpenImage reads the multipart file, checks its size and verifies by content that it is an image.
func OpenImage(fh *multipart.FileHeader) (Image, error) {
	if fh.Size > MaxImageSize {
		return Image{}, ErrImageTooLarge
	}
	f, err := fh.Open()
	if err != nil {
		return Image{}, fmt.Errorf("open upload: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, MaxImageSize+1))
	if err != nil {
		return Image{}, fmt.Errorf("read upload: %w", err)
	}
	if len(data) > MaxImageSize {
		return Image{}, ErrImageTooLarge
	}
	return SniffImage(data)
}

func SniffImage(data []byte) (Image, error) {
	mt := mimetype.Detect(data)
	if !strings.HasPrefix(mt.String(), "image/") {
		return Image{}, ErrNotAnImage
	}
	return Image{
		Reader:      bytes.NewReader(data),
		ContentType: mt.String(),
		Extension:   mt.Extension(),
	}, nil
}
