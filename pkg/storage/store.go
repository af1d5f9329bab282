// Package storage keeps uploaded images and issues public URLs for them.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"atelier/pkg/metrics"
)

const (
	BucketGallery       = "gallery"
	BucketProfiles      = "profile-assets"
	BucketProfileImages = "profiles"
)

var (
	ErrInvalidPath   = errors.New("invalid object path")
	ErrUnknownBucket = errors.New("unknown bucket")
)

type Object struct {
	Bucket      string `json:"bucket"`
	Path        string `json:"path"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
	URL         string `json:"url"`
}

// ObjectStore writes objects and resolves their public URLs. Put overwrites an existing object.
type ObjectStore interface {
	Put(ctx context.Context, bucket, objectPath string, r io.Reader, contentType string) (Object, error)
	PublicURL(bucket, objectPath string) string
}

type localStore struct {
	root    string
	baseURL string
	buckets map[string]bool
}

// NewLocalStore stores objects under root/<bucket>/<path>. baseURL is the public prefix that
// maps onto root, e.g. "http://localhost:8080/storage".
func NewLocalStore(root, baseURL string) (ObjectStore, error) {
	s := &localStore{
		root:    root,
		baseURL: strings.TrimRight(baseURL, "/"),
		buckets: map[string]bool{BucketGallery: true, BucketProfiles: true, BucketProfileImages: true},
	}
	for b := range s.buckets {
		if err := os.MkdirAll(filepath.Join(root, b), 0o755); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", b, err)
		}
	}
	return s, nil
}

func (s *localStore) Put(ctx context.Context, bucket, objectPath string, r io.Reader, contentType string) (Object, error) {
	if !s.buckets[bucket] {
		return Object{}, ErrUnknownBucket
	}
	clean, err := cleanPath(objectPath)
	if err != nil {
		return Object{}, err
	}
	if err := ctx.Err(); err != nil {
		return Object{}, err
	}

	dst := filepath.Join(s.root, bucket, filepath.FromSlash(clean))
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return Object{}, fmt.Errorf("create object dir: %w", err)
	}

	// Write to a temp file first so readers never see a partial object.
	tmp, err := os.CreateTemp(filepath.Dir(dst), ".upload-*")
	if err != nil {
		return Object{}, fmt.Errorf("create temp file: %w", err)
	}
	size, copyErr := io.Copy(tmp, r)
	closeErr := tmp.Close()
	if copyErr != nil || closeErr != nil {
		os.Remove(tmp.Name())
		metrics.UploadsTotal.WithLabelValues(bucket, "error").Inc()
		return Object{}, fmt.Errorf("write object: %w", errors.Join(copyErr, closeErr))
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		os.Remove(tmp.Name())
		metrics.UploadsTotal.WithLabelValues(bucket, "error").Inc()
		return Object{}, fmt.Errorf("commit object: %w", err)
	}

	metrics.UploadsTotal.WithLabelValues(bucket, "ok").Inc()
	return Object{
		Bucket:      bucket,
		Path:        clean,
		ContentType: contentType,
		Size:        size,
		URL:         s.PublicURL(bucket, clean),
	}, nil
}

func (s *localStore) PublicURL(bucket, objectPath string) string {
	segments := strings.Split(strings.TrimPrefix(objectPath, "/"), "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return s.baseURL + "/" + url.PathEscape(bucket) + "/" + strings.Join(segments, "/")
}

func cleanPath(p string) (string, error) {
	if p == "" || strings.Contains(p, "\\") {
		return "", ErrInvalidPath
	}
	clean := path.Clean("/" + p)[1:]
	if clean == "" || clean != strings.TrimPrefix(p, "/") {
		return "", ErrInvalidPath
	}
	return clean, nil
}
