// Package storage uploads finished exports to a Supabase bucket.
package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/antoineross/supabase-go"
	storage_go "github.com/supabase-community/storage-go"

	"stayscraper/internal/logger"
)

var ErrNotConfigured = errors.New("supabase storage not configured")

type Options struct {
	URL        string
	ServiceKey string
	Bucket     string
	AppEnv     string
	// SignTTL is how long a download link stays valid. Defaults to a day.
	SignTTL time.Duration
}

// objectStore is the part of the storage client used here.
type objectStore interface {
	UploadFile(bucketId string, relativePath string, data io.Reader, fileOptions ...storage_go.FileOptions) (storage_go.FileUploadResponse, error)
}

type Service struct {
	opts  Options
	files objectStore
	http  *http.Client
	log   *logger.Logger
}

// New connects to Supabase. ErrNotConfigured means uploads are disabled.
func New(opts Options) (*Service, error) {
	if opts.URL == "" || opts.ServiceKey == "" || opts.Bucket == "" {
		return nil, ErrNotConfigured
	}
	client, err := supabase.NewClient(opts.URL, opts.ServiceKey, nil)
	if err != nil {
		return nil, fmt.Errorf("supabase client: %w", err)
	}
	return newService(opts, client.Storage), nil
}

func newService(opts Options, files objectStore) *Service {
	if opts.SignTTL <= 0 {
		opts.SignTTL = 24 * time.Hour
	}
	opts.URL = strings.TrimRight(opts.URL, "/")
	return &Service{
		opts:  opts,
		files: files,
		http:  &http.Client{Timeout: 15 * time.Second},
		log:   logger.New("Storage"),
	}
}

// Upload stores data under <bucket>/<jobID>/<filename>, replacing any
// earlier upload, and returns a signed download URL.
func (s *Service) Upload(ctx context.Context, jobID, filename, contentType string, data []byte) (string, error) {
	objectPath := path.Join(jobID, filename)
	upsert := true
	if _, err := s.files.UploadFile(s.opts.Bucket, objectPath, bytes.NewReader(data), storage_go.FileOptions{
		ContentType: &contentType,
		Upsert:      &upsert,
	}); err != nil {
		return "", fmt.Errorf("upload %s: %w", objectPath, err)
	}
	s.log.LogDebugf("uploaded %s (%d bytes) to bucket %s", objectPath, len(data), s.opts.Bucket)

	signed, err := s.sign(ctx, objectPath)
	if err != nil {
		return "", err
	}
	return signed, nil
}

// sign asks the storage REST API for a signed URL directly; the service
// key is sent fresh on every call.
func (s *Service) sign(ctx context.Context, objectPath string) (string, error) {
	signURL := fmt.Sprintf("%s/storage/v1/object/sign/%s/%s", s.opts.URL, s.opts.Bucket, objectPath)
	body, err := json.Marshal(map[string]int{"expiresIn": int(s.opts.SignTTL.Seconds())})
	if err != nil {
		return "", fmt.Errorf("encode sign body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, signURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build sign request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.opts.ServiceKey)
	req.Header.Set("apikey", s.opts.ServiceKey)

	resp, err := s.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("request signed url: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("create signed url: status %d", resp.StatusCode)
	}

	var signed storage_go.SignedUrlResponse
	if err := json.NewDecoder(resp.Body).Decode(&signed); err != nil {
		return "", fmt.Errorf("decode signed url response: %w", err)
	}
	if signed.SignedURL == "" {
		return "", errors.New("create signed url: empty response")
	}

	p := signed.SignedURL
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if !strings.HasPrefix(p, "/storage/v1/") {
		p = "/storage/v1" + p
	}
	final := s.opts.URL + p
	if s.opts.AppEnv == "local" || s.opts.AppEnv == "development" {
		final = strings.Replace(final, "host.docker.internal", "127.0.0.1", 1)
	}
	return final, nil
}
