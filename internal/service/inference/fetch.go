package inference

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
)

// Fetch returns a local path for source. Local paths are checked and returned
// as is; http(s) URLs are downloaded once into cacheDir and reused afterwards.
func Fetch(ctx context.Context, source, cacheDir string) (string, error) {
	u, err := url.Parse(source)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		if _, err := os.Stat(source); err != nil {
			return "", fmt.Errorf("model file not found: %s", source)
		}
		return source, nil
	}

	sum := sha256.Sum256([]byte(source))
	target := filepath.Join(cacheDir, hex.EncodeToString(sum[:8])+"-"+path.Base(u.Path))
	if _, err := os.Stat(target); err == nil {
		return target, nil
	}
	if err := download(ctx, source, target); err != nil {
		return "", err
	}
	return target, nil
}

func download(ctx context.Context, srcURL, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srcURL, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("HTTP error %v", resp.Status)
	}

	tmp := target + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, target)
}
