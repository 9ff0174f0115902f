package zoo

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/born-ml/zooexport/internal/loader"
	"github.com/born-ml/zooexport/internal/logger"
	"github.com/born-ml/zooexport/internal/nn"
	"github.com/born-ml/zooexport/internal/tensor"
)

// ErrWeightsMismatch is returned when a weights file does not fit the model.
var ErrWeightsMismatch = errors.New("weights do not match model")

// SourceKind says where weights come from.
type SourceKind int

// Weights sources.
const (
	SourceNone SourceKind = iota // keep the random initialization
	SourcePath                   // local safetensors file
	SourceURL                    // downloaded into the cache
)

// Source is a parsed weights source.
type Source struct {
	Kind     SourceKind
	Location string // file path or URL
	Spec     string // the string it was parsed from
}

func (s Source) String() string { return s.Spec }

// ParseSource parses "default", "none", an http(s) URL or a file path.
func ParseSource(spec string, entry Entry) (Source, error) {
	switch {
	case spec == "" || spec == "default":
		return Source{Kind: SourceURL, Location: entry.DefaultWeights, Spec: "default"}, nil
	case spec == "none":
		return Source{Kind: SourceNone, Spec: spec}, nil
	case strings.HasPrefix(spec, "https://") || strings.HasPrefix(spec, "http://"):
		return Source{Kind: SourceURL, Location: spec, Spec: spec}, nil
	default:
		if _, err := os.Stat(spec); err != nil {
			return Source{}, fmt.Errorf("weights %q: %w", spec, err)
		}
		return Source{Kind: SourcePath, Location: spec, Spec: spec}, nil
	}
}

// CacheEnv overrides the weights cache directory.
const CacheEnv = "ZOOEXPORT_CACHE_DIR"

// CacheDir returns $ZOOEXPORT_CACHE_DIR, or zooexport/weights under the user
// cache directory.
func CacheDir() (string, error) {
	if dir := os.Getenv(CacheEnv); dir != "" {
		return dir, nil
	}
	base, err := os.UserCacheDir()
	if err != nil {
		return "", fmt.Errorf("locate cache directory: %w", err)
	}
	return filepath.Join(base, "zooexport", "weights"), nil
}

// CachePath returns the cache file for a URL: a short hash of the URL
// followed by its base name, so distinct repos never collide.
func CachePath(cacheDir, url string) string {
	sum := sha256.Sum256([]byte(url))
	return filepath.Join(cacheDir, hex.EncodeToString(sum[:6])+"-"+path.Base(url))
}

// Fetcher downloads weights into a cache directory.
type Fetcher struct {
	Client   *http.Client
	CacheDir string
	Log      logger.Logger
}

// Fetch returns the cached file for url, downloading it first when missing.
func (f *Fetcher) Fetch(ctx context.Context, url string) (string, error) {
	dst := CachePath(f.CacheDir, url)
	if _, err := os.Stat(dst); err == nil {
		f.log(ctx).Debug("weights cache hit", "path", dst)
		return dst, nil
	}
	if err := os.MkdirAll(f.CacheDir, 0o755); err != nil {
		return "", fmt.Errorf("create cache directory: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	f.log(ctx).Info("downloading weights", "url", url)
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("download %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download %s: %s", url, resp.Status)
	}

	tmp, err := os.CreateTemp(f.CacheDir, "."+filepath.Base(dst)+".tmp-*")
	if err != nil {
		return "", err
	}
	n, err := io.Copy(tmp, resp.Body)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = os.Rename(tmp.Name(), dst)
	}
	if err != nil {
		_ = os.Remove(tmp.Name())
		return "", fmt.Errorf("download %s: %w", url, err)
	}
	f.log(ctx).Info("downloaded weights", "path", dst, "bytes", n)
	return dst, nil
}

func (f *Fetcher) log(ctx context.Context) logger.Logger {
	if f.Log != nil {
		return f.Log
	}
	return logger.FromContext(ctx)
}

// Resolve returns the local file holding src, fetching URLs. It returns ""
// for SourceNone.
func (f *Fetcher) Resolve(ctx context.Context, src Source) (string, error) {
	switch src.Kind {
	case SourceNone:
		return "", nil
	case SourcePath:
		return src.Location, nil
	default:
		return f.Fetch(ctx, src.Location)
	}
}

// WeightsInfo describes the weights loaded into a model.
type WeightsInfo struct {
	Source  string
	Path    string
	SHA256  string
	Tensors int
}

// LoadFile loads a safetensors file into model. Every entry the model owns
// must be present with its shape; num_batches_tracked entries are ignored
// and any other extra entry is an error.
func LoadFile[B tensor.Backend](model nn.Module[B], path string) (*WeightsInfo, error) {
	f, err := loader.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sd, err := f.StateDict()
	if err != nil {
		return nil, err
	}
	sd = normalizeNames(sd)

	own := model.StateDict()
	var extra []string
	for _, name := range nn.SortedKeys(sd) {
		if _, ok := own[name]; !ok && !strings.HasSuffix(name, "num_batches_tracked") {
			extra = append(extra, name)
		}
	}
	if len(extra) > 0 {
		return nil, fmt.Errorf("%w: unexpected tensors %s", ErrWeightsMismatch, strings.Join(extra, ", "))
	}
	if err := model.LoadStateDict(sd); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrWeightsMismatch, err)
	}

	digest, err := fileSHA256(path)
	if err != nil {
		return nil, err
	}
	return &WeightsInfo{Path: path, SHA256: digest, Tensors: len(own)}, nil
}

// Load applies src to model, fetching URLs through f. A SourceNone leaves
// the model as initialized.
func Load[B tensor.Backend](ctx context.Context, f *Fetcher, model nn.Module[B], src Source) (*WeightsInfo, error) {
	path, err := f.Resolve(ctx, src)
	if err != nil {
		return nil, err
	}
	if path == "" {
		return &WeightsInfo{Source: src.Spec, Tensors: len(model.StateDict())}, nil
	}
	info, err := LoadFile(model, path)
	if err != nil {
		return nil, err
	}
	info.Source = src.Spec
	f.log(ctx).Info("loaded weights", "source", src.Spec, "path", path, "tensors", info.Tensors)
	return info, nil
}

// normalizeNames strips the wrapper prefixes training scripts leave on
// checkpoints ("module." from DataParallel, "model.").
func normalizeNames(sd map[string]*tensor.RawTensor) map[string]*tensor.RawTensor {
	out := make(map[string]*tensor.RawTensor, len(sd))
	for name, raw := range sd {
		for _, prefix := range []string{"module.", "model."} {
			name = strings.TrimPrefix(name, prefix)
		}
		out[name] = raw
	}
	return out
}

func fileSHA256(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
