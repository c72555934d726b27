// internal/mirror/mirror.go

// Package mirror downloads record images and re-hosts them on the
// publishing destination, keeping a per-host cache so repeated runs
// never re-upload the same source image.
package mirror

import (
	"context"
	"crypto/sha1"
	"encoding/csv"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/fanzapress/fanzapress/internal/utils"
	"github.com/fanzapress/fanzapress/pkg/types"
)

// maxImageBytes caps a single download; anything larger is not a
// product image.
const maxImageBytes = 20 << 20

// Uploader pushes image bytes to the destination host. The WordPress
// client satisfies this.
type Uploader interface {
	// DestinationHost returns the host images end up on, used to
	// partition and validate the cache.
	DestinationHost() string

	// UploadImage stores the image and returns its media ID and
	// public URL.
	UploadImage(ctx context.Context, filename, contentType string, data []byte) (int, string, error)

	// ResolveMediaID looks up the media ID of an already-hosted URL.
	// Returns 0 when the destination has no record of it.
	ResolveMediaID(ctx context.Context, destinationURL string) (int, error)
}

// Config controls the mirror.
type Config struct {
	// CacheDir holds the per-host cache CSV files.
	CacheDir string

	// UserAgent is sent on image downloads.
	UserAgent string

	// Timeout bounds a single download. Defaults to 30s.
	Timeout time.Duration

	// Client overrides the HTTP client; used by tests.
	Client *http.Client
}

// Mirror re-hosts images through an Uploader.
type Mirror struct {
	cfg      Config
	uploader Uploader
	client   *http.Client
	logger   utils.Logger
	caches   map[string]*hostCache
}

// New creates a Mirror. The logger may be nil.
func New(cfg Config, uploader Uploader, logger utils.Logger) *Mirror {
	if logger == nil {
		logger = utils.NopLogger{}
	}
	client := cfg.Client
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	return &Mirror{
		cfg:      cfg,
		uploader: uploader,
		client:   client,
		logger:   logger,
		caches:   make(map[string]*hostCache),
	}
}

// MirrorRecord replaces the record's image URLs with re-hosted ones and
// fills in the destination media IDs, returning the number of uploads
// performed (cache hits excluded). Individual image failures are logged
// and leave that image's original URL in place; the record as a whole
// never fails.
func (m *Mirror) MirrorRecord(ctx context.Context, rec *types.Record) int {
	prefix := slug(rec.ExternalID)
	if prefix == "" {
		prefix = "item"
	}
	log := m.logger.WithField("cid", rec.ExternalID)
	uploads := 0

	originalPrimary := rec.PrimaryImage
	if rec.PrimaryImage != "" {
		dest, id, uploaded, err := m.mirrorOne(ctx, rec.PrimaryImage, prefix+"-poster")
		if err != nil {
			log.Warnf("primary image mirror failed: %v", err)
		} else {
			rec.PrimaryImage = dest
			rec.PrimaryImageID = id
			if uploaded {
				uploads++
			}
		}
	}
	if rec.TrailerPoster != "" && rec.TrailerPoster == originalPrimary {
		rec.TrailerPoster = rec.PrimaryImage
	}

	if len(rec.GalleryImages) > 0 {
		ids := make([]int, len(rec.GalleryImages))
		for i, src := range rec.GalleryImages {
			dest, id, uploaded, err := m.mirrorOne(ctx, src, fmt.Sprintf("%s-s%02d", prefix, i+1))
			if err != nil {
				log.Warnf("gallery image %d mirror failed: %v", i+1, err)
				continue
			}
			rec.GalleryImages[i] = dest
			ids[i] = id
			if uploaded {
				uploads++
			}
		}
		rec.GalleryImageIDs = ids
	}
	return uploads
}

// mirrorOne re-hosts a single image, consulting the cache first.
func (m *Mirror) mirrorOne(ctx context.Context, sourceURL, namePrefix string) (string, int, bool, error) {
	host := m.uploader.DestinationHost()
	cache, err := m.cacheFor(host)
	if err != nil {
		return "", 0, false, err
	}

	if entry, ok := cache.lookup(sourceURL); ok {
		if hostOf(entry.destination) == host {
			id, err := m.uploader.ResolveMediaID(ctx, entry.destination)
			if err != nil {
				m.logger.Debugf("media id resolution for cached %s failed: %v", entry.destination, err)
				id = 0
			}
			return entry.destination, id, false, nil
		}
		// Stale entry pointing at a previous destination.
		cache.drop(sourceURL)
	}

	data, contentType, err := m.download(ctx, sourceURL)
	if err != nil {
		return "", 0, false, err
	}

	sum := sha1.Sum(data)
	hash := hex.EncodeToString(sum[:])
	filename := namePrefix + "-" + hash[:8] + extensionFor(contentType, sourceURL)

	id, dest, err := m.uploader.UploadImage(ctx, filename, contentType, data)
	if err != nil {
		return "", 0, false, fmt.Errorf("upload %s: %w", filename, err)
	}

	if err := cache.store(sourceURL, cacheEntry{
		destination: dest,
		hash:        hash,
		size:        int64(len(data)),
	}); err != nil {
		m.logger.Warnf("cache write failed: %v", err)
	}
	return dest, id, true, nil
}

func (m *Mirror) download(ctx context.Context, imageURL string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("build request: %w", err)
	}
	if m.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", m.cfg.UserAgent)
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("download %s: %w", imageURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("download %s: status %d", imageURL, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("read %s: %w", imageURL, err)
	}
	if len(data) > maxImageBytes {
		return nil, "", fmt.Errorf("download %s: exceeds %d bytes", imageURL, maxImageBytes)
	}
	if len(data) == 0 {
		return nil, "", fmt.Errorf("download %s: empty body", imageURL)
	}

	contentType := resp.Header.Get("Content-Type")
	if i := strings.Index(contentType, ";"); i >= 0 {
		contentType = strings.TrimSpace(contentType[:i])
	}
	return data, contentType, nil
}

func (m *Mirror) cacheFor(host string) (*hostCache, error) {
	key := sanitizeHost(host)
	if c, ok := m.caches[key]; ok {
		return c, nil
	}
	c, err := openHostCache(filepath.Join(m.cfg.CacheDir, "image_mirror_map_"+key+".csv"))
	if err != nil {
		return nil, err
	}
	m.caches[key] = c
	return c, nil
}

var contentTypeExtensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/jpg":  ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

var knownExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".webp": true,
}

// extensionFor picks a file extension from the Content-Type, falling
// back to the URL path, then to .jpg.
func extensionFor(contentType, sourceURL string) string {
	if ext, ok := contentTypeExtensions[strings.ToLower(contentType)]; ok {
		return ext
	}
	if u, err := url.Parse(sourceURL); err == nil {
		if ext := strings.ToLower(path.Ext(u.Path)); knownExtensions[ext] {
			if ext == ".jpeg" {
				return ".jpg"
			}
			return ext
		}
	}
	return ".jpg"
}

var slugRe = regexp.MustCompile(`[^a-z0-9]+`)

func slug(s string) string {
	return strings.Trim(slugRe.ReplaceAllString(strings.ToLower(s), "-"), "-")
}

func sanitizeHost(host string) string {
	return strings.Trim(slugRe.ReplaceAllString(strings.ToLower(host), "_"), "_")
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Host
}

// hostCache is the on-disk map of source URL to destination URL for
// one destination host.
type hostCache struct {
	path    string
	entries map[string]cacheEntry
}

type cacheEntry struct {
	destination string
	hash        string
	size        int64
}

var cacheColumns = []string{"source_url", "destination_url", "content_hash", "byte_size"}

func openHostCache(path string) (*hostCache, error) {
	c := &hostCache{path: path, entries: make(map[string]cacheEntry)}

	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return c, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open cache %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	first := true
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			continue
		}
		if first {
			first = false
			continue
		}
		if len(row) < 2 || row[0] == "" {
			continue
		}
		entry := cacheEntry{destination: row[1]}
		if len(row) > 2 {
			entry.hash = row[2]
		}
		if len(row) > 3 {
			entry.size, _ = strconv.ParseInt(row[3], 10, 64)
		}
		c.entries[row[0]] = entry
	}
	return c, nil
}

func (c *hostCache) lookup(sourceURL string) (cacheEntry, bool) {
	e, ok := c.entries[sourceURL]
	return e, ok
}

// drop removes a stale entry from memory; the file row is left behind
// and superseded by the re-uploaded row appended later.
func (c *hostCache) drop(sourceURL string) {
	delete(c.entries, sourceURL)
}

func (c *hostCache) store(sourceURL string, entry cacheEntry) error {
	c.entries[sourceURL] = entry

	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}
	f, err := os.OpenFile(c.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open cache %s: %w", c.path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat cache %s: %w", c.path, err)
	}

	w := csv.NewWriter(f)
	if info.Size() == 0 {
		if err := w.Write(cacheColumns); err != nil {
			return fmt.Errorf("write cache header: %w", err)
		}
	}
	row := []string{sourceURL, entry.destination, entry.hash, strconv.FormatInt(entry.size, 10)}
	if err := w.Write(row); err != nil {
		return fmt.Errorf("write cache row: %w", err)
	}
	w.Flush()
	return w.Error()
}
