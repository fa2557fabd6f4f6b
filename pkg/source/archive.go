package source

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"hash"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-getter"
	"github.com/mr-tron/base58"
	"github.com/pkg/errors"
	"golang.org/x/crypto/blake2b"

	"github.com/hsbg-ai/forge/pkg/cleanhttp"
	"github.com/hsbg-ai/forge/pkg/manifest"
)

// FetchArchive downloads an archive source, checks its pinned sum, and
// unpacks it into the source dir using whichever go-getter decompressor
// matches the url's extension.
func (f *Fetcher) FetchArchive(ctx context.Context, art *manifest.Artifact) (*Tree, error) {
	if art.SourceKind() != "archive" {
		return nil, errors.Errorf("not an archive source: %s", art.Name)
	}

	escName, err := RepoName(art.Source)
	if err != nil {
		return nil, err
	}

	destPath := filepath.Join(f.SourceDir, escName)

	if _, err := os.Stat(destPath); err == nil {
		return &Tree{Path: destPath, Ref: art.BuildRef()}, nil
	}

	var (
		archive     string
		matchingLen int
	)

	for k := range getter.Decompressors {
		if strings.HasSuffix(art.Source, "."+k) && len(k) > matchingLen {
			archive = k
			matchingLen = len(k)
		}
	}

	dec, ok := getter.Decompressors[archive]
	if !ok {
		return nil, errors.Errorf("no decompressor for source: %s", art.Source)
	}

	tmp, err := os.CreateTemp(filepath.Dir(destPath), ".download-*")
	if err != nil {
		return nil, err
	}

	defer os.Remove(tmp.Name())
	defer tmp.Close()

	sum, err := f.download(ctx, art, tmp)
	if err != nil {
		return nil, err
	}

	f.logger().Debug("downloaded archive", "source", art.Source, "sum", sum)

	err = dec.Decompress(destPath, tmp.Name(), true, 0)
	if err != nil {
		os.RemoveAll(destPath)
		return nil, errors.Wrapf(err, "unpacking %s", art.Source)
	}

	return &Tree{Path: destPath, Ref: art.BuildRef(), ResolvedRef: sum}, nil
}

func (f *Fetcher) download(ctx context.Context, art *manifest.Artifact, w io.Writer) (string, error) {
	resp, err := cleanhttp.Get(ctx, art.Source)
	if err != nil {
		return "", err
	}

	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		return "", errors.Errorf("fetching %s: %s", art.Source, resp.Status)
	}

	st, sv, err := splitSum(art.Sum)
	if err != nil {
		return "", err
	}

	var h hash.Hash

	switch st {
	case "b2":
		h, _ = blake2b.New256(nil)
	case "sha256", "":
		h = sha256.New()
	case "etag":
		h = sha256.New()
	default:
		return "", errors.Errorf("unknown sum type: %s", st)
	}

	_, err = io.Copy(io.MultiWriter(w, h), resp.Body)
	if err != nil {
		return "", err
	}

	switch st {
	case "":
		// unpinned, record only
	case "etag":
		if strings.Trim(resp.Header.Get("Etag"), `"`) != string(sv) {
			return "", errors.Errorf("bad etag sum: %s", art.Source)
		}
	default:
		if !bytes.Equal(sv, h.Sum(nil)) {
			return "", errors.Errorf("bad sum: %s", art.Source)
		}
	}

	if st == "b2" {
		return "b2:" + base58.Encode(h.Sum(nil)), nil
	}

	return "sha256:" + hex.EncodeToString(h.Sum(nil)), nil
}

func splitSum(sum string) (string, []byte, error) {
	if sum == "" {
		return "", nil, nil
	}

	idx := strings.IndexByte(sum, ':')
	if idx == -1 {
		return "", nil, errors.Errorf("malformed sum: %s", sum)
	}

	st := sum[:idx]
	val := sum[idx+1:]

	switch st {
	case "sha256":
		b, err := hex.DecodeString(val)
		return st, b, err
	case "b2":
		b, err := base58.Decode(val)
		return st, b, err
	case "etag":
		return st, []byte(val), nil
	}

	return "", nil, errors.Errorf("unknown sum type: %s", st)
}
