package datasets

import (
	"archive/zip"
	"context"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/YuminosukeSato/textexplain/pkg/errors"
	"github.com/YuminosukeSato/textexplain/pkg/log"
)

// DefaultURL is the public MultiNLI 1.0 archive.
const DefaultURL = "https://cims.nyu.edu/~sbowman/multinli/multinli_1.0.zip"

// httpClient is replaced in tests.
var httpClient = &http.Client{Timeout: 30 * time.Minute}

// haveSplit reports whether dir already holds the file for split.
// An empty split accepts any of Splits.
func haveSplit(dir, split string) bool {
	want := Splits
	if split != "" {
		want = []string{split}
	}
	for _, s := range want {
		if _, err := FindSplit(dir, s); err == nil {
			return true
		}
	}
	return false
}

// Fetch downloads the MultiNLI zip from url into dir and extracts its
// .jsonl members to dir/multinli_1.0. Nothing is downloaded when dir
// already holds the requested split (any split when split is empty).
// It returns the directory to pass to LoadMNLI.
func Fetch(ctx context.Context, url, dir, split string) (string, error) {
	logger := log.GetLoggerWithName("datasets")
	if haveSplit(dir, split) {
		logger.Debug("Dataset already present", log.PathKey, dir, log.SplitKey, split)
		return dir, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errors.Wrapf(err, "create %s", dir)
	}

	start := time.Now()
	archive, err := download(ctx, url, dir)
	if err != nil {
		return "", err
	}
	defer os.Remove(archive)

	n, err := extractJSONL(ctx, archive, filepath.Join(dir, "multinli_1.0"))
	if err != nil {
		return "", err
	}
	if n == 0 {
		return "", errors.Newf("archive %s contains no .jsonl files", url)
	}
	logger.Info("Dataset fetched",
		log.PathKey, dir,
		"files", n,
		log.DurationMsKey, time.Since(start).Milliseconds(),
	)
	return dir, nil
}

// download streams url into a temporary file in dir and returns its path.
func download(ctx context.Context, url, dir string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", errors.Wrapf(err, "request %s", url)
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return "", errors.Wrapf(err, "download %s", url)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", errors.Newf("download %s: unexpected status %s", url, resp.Status)
	}

	tmp, err := os.CreateTemp(dir, "multinli-*.zip")
	if err != nil {
		return "", errors.Wrap(err, "create temporary archive")
	}
	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", errors.Wrapf(err, "download %s", url)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", errors.Wrap(err, "close temporary archive")
	}
	return tmp.Name(), nil
}

// extractJSONL writes every .jsonl member of the archive into dest under its
// base name, so member paths cannot escape dest.
func extractJSONL(ctx context.Context, archive, dest string) (int, error) {
	zr, err := zip.OpenReader(archive)
	if err != nil {
		return 0, errors.Wrapf(err, "open archive %s", archive)
	}
	defer zr.Close()

	if err := os.MkdirAll(dest, 0o755); err != nil {
		return 0, errors.Wrapf(err, "create %s", dest)
	}
	n := 0
	for _, f := range zr.File {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		name := path.Base(f.Name)
		if f.FileInfo().IsDir() || !strings.HasSuffix(name, ".jsonl") || strings.HasPrefix(name, ".") {
			continue
		}
		if err := extractFile(f, filepath.Join(dest, name)); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

func extractFile(f *zip.File, target string) (err error) {
	rc, err := f.Open()
	if err != nil {
		return errors.Wrapf(err, "open member %s", f.Name)
	}
	defer rc.Close()

	out, err := os.Create(target)
	if err != nil {
		return errors.Wrapf(err, "create %s", target)
	}
	defer func() {
		if cerr := out.Close(); cerr != nil && err == nil {
			err = errors.Wrapf(cerr, "close %s", target)
		}
	}()
	if _, err := io.Copy(out, rc); err != nil {
		return errors.Wrapf(err, "extract %s", f.Name)
	}
	return nil
}
