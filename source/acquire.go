// Package source fetches, verifies and unpacks the pinned TensorFlow
// source release.
package source

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/apex/log"
	"github.com/benn-herrera/litebind/cache"
	"github.com/benn-herrera/litebind/model"
)

const stageAcquire = "acquire"

// Acquirer makes sure a verified copy of the release archive is on disk.
type Acquirer struct {
	Client *http.Client
	Log    log.Interface
}

// NewAcquirer returns an Acquirer using the default HTTP client policy.
func NewAcquirer(logger log.Interface) *Acquirer {
	return &Acquirer{Client: http.DefaultClient, Log: logger}
}

// Ensure returns archivePath once it holds bytes matching the pinned hash.
// A missing or mismatching file is fetched exactly once; if the fresh copy
// still does not match, the build fails with model.ErrIntegrity and the
// file is left in place.
func (a *Acquirer) Ensure(ctx context.Context, r *model.Release, archivePath string) (string, error) {
	ok, err := Verify(archivePath, r.SHA256)
	if err != nil && !os.IsNotExist(err) {
		return "", model.Fail(stageAcquire, model.ErrIntegrity, err)
	}
	if ok {
		a.Log.WithField("archive", archivePath).Debug("archive verified, skipping fetch")
		return archivePath, nil
	}

	if err == nil {
		a.Log.WithField("archive", archivePath).Warn("archive does not match pinned hash, fetching again")
	}

	url := r.URL()
	if err := a.fetch(ctx, url, archivePath); err != nil {
		return "", err
	}

	ok, err = Verify(archivePath, r.SHA256)
	if err != nil {
		return "", model.Fail(stageAcquire, model.ErrIntegrity, err)
	}
	if !ok {
		return "", model.Failf(stageAcquire, model.ErrIntegrity,
			"%s fetched from %s does not match sha256 %s", archivePath, url, r.SHA256)
	}
	return archivePath, nil
}

func (a *Acquirer) fetch(ctx context.Context, url, dst string) error {
	a.Log.WithField("url", url).Info("fetching source archive")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return model.Fail(stageAcquire, model.ErrTransport, err)
	}
	client := a.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return model.Fail(stageAcquire, model.ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return model.Failf(stageAcquire, model.ErrTransport, "GET %s: %s", url, resp.Status)
	}

	n, err := cache.StreamFileAtomic(dst, resp.Body, 0644)
	if err != nil {
		return model.Fail(stageAcquire, model.ErrTransport, err)
	}
	a.Log.WithFields(log.Fields{"archive": dst, "bytes": n}).Debug("archive written")
	return nil
}

// Verify reports whether the sha256 of the whole file equals want.
// want is compared as lowercase hex.
func Verify(path, want string) (bool, error) {
	got, err := FileSHA256(path)
	if err != nil {
		return false, err
	}
	return got == strings.ToLower(want), nil
}

// FileSHA256 returns the lowercase hex sha256 of the file contents.
func FileSHA256(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hashing %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
