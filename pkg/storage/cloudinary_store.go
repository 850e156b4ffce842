package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"strings"
	"time"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"

	"studyhelper/pkg/domain"
)

const (
	cloudinaryDeliveryBase = "https://res.cloudinary.com"
	cloudinaryRawResource  = "raw"
)

// CloudinaryOptions configures CloudinaryStore.
type CloudinaryOptions struct {
	CloudName string
	APIKey    string
	APISecret string
	// URL is a cloudinary:// URL used instead of the three fields above.
	URL    string
	Folder string
	// ChunkSize switches uploads larger than it to chunked uploads.
	ChunkSize  int64
	HTTPClient *http.Client
}

// CloudinaryStore keeps PDFs as Cloudinary raw assets keyed by public ID.
type CloudinaryStore struct {
	cld        *cloudinary.Cloudinary
	cloudName  string
	chunkSize  int64
	folder     string
	httpClient *http.Client
}

// NewCloudinaryStore builds a Cloudinary client from credentials or a URL.
func NewCloudinaryStore(opts CloudinaryOptions) (*CloudinaryStore, error) {
	var (
		cld *cloudinary.Cloudinary
		err error
	)
	if raw := strings.TrimSpace(opts.URL); raw != "" {
		cld, err = cloudinary.NewFromURL(raw)
	} else {
		if strings.TrimSpace(opts.CloudName) == "" || strings.TrimSpace(opts.APIKey) == "" || strings.TrimSpace(opts.APISecret) == "" {
			return nil, errors.New("cloudinary cloud name, api key and api secret are required")
		}
		cld, err = cloudinary.NewFromParams(opts.CloudName, opts.APIKey, opts.APISecret)
	}
	if err != nil {
		return nil, fmt.Errorf("init cloudinary: %w", err)
	}
	// Upload carries its own copy of the configuration.
	if opts.ChunkSize > 0 {
		cld.Config.API.ChunkSize = opts.ChunkSize
		cld.Upload.Config.API.ChunkSize = opts.ChunkSize
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 2 * time.Minute}
	}
	return &CloudinaryStore{
		cld:        cld,
		cloudName:  cld.Config.Cloud.CloudName,
		chunkSize:  cld.Upload.Config.API.ChunkSize,
		folder:     strings.Trim(strings.TrimSpace(opts.Folder), "/"),
		httpClient: client,
	}, nil
}

func (c *CloudinaryStore) Provider() domain.StorageProvider { return domain.ProviderCloudinary }

// Put uploads r as a raw asset. The returned key is the Cloudinary public ID.
// Files over the chunk size go up as a chunked upload.
func (c *CloudinaryStore) Put(ctx context.Context, key string, r io.Reader, size int64, _ string) (Object, error) {
	publicID := c.publicID(key)
	body, cleanup, err := c.uploadBody(r, size)
	if err != nil {
		return Object{}, err
	}
	defer cleanup()
	res, err := c.cld.Upload.Upload(ctx, body, uploader.UploadParams{
		PublicID:     publicID,
		ResourceType: cloudinaryRawResource,
	})
	if err != nil {
		return Object{}, fmt.Errorf("cloudinary upload: %w", err)
	}
	if res.Error.Message != "" {
		return Object{}, fmt.Errorf("cloudinary upload: %s", res.Error.Message)
	}
	if res.PublicID != "" {
		publicID = res.PublicID
	}
	obj := Object{Provider: domain.ProviderCloudinary, Key: publicID, URL: res.SecureURL, Size: size}
	if res.Bytes > 0 {
		obj.Size = int64(res.Bytes)
	}
	if obj.URL == "" {
		obj.URL = c.deliveryURL(publicID)
	}
	return obj, nil
}

// uploadBody hands small known-size bodies to the SDK as is. Anything else is
// spooled to a temp file, since the SDK only chunks sized readers.
func (c *CloudinaryStore) uploadBody(r io.Reader, size int64) (io.Reader, func(), error) {
	if size >= 0 && size <= c.chunkSize {
		return r, func() {}, nil
	}
	f, err := os.CreateTemp("", "cloudinary-upload-*")
	if err != nil {
		return nil, nil, fmt.Errorf("cloudinary spool: %w", err)
	}
	cleanup := func() {
		_ = f.Close()
		_ = os.Remove(f.Name())
	}
	n, err := io.Copy(f, r)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("cloudinary spool: %w", err)
	}
	return io.NewSectionReader(f, 0, n), cleanup, nil
}

// Open downloads the asset through its public delivery URL.
func (c *CloudinaryStore) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.deliveryURL(key), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("cloudinary download: %w", err)
	}
	switch {
	case resp.StatusCode == http.StatusNotFound:
		resp.Body.Close()
		return nil, ErrNotFound
	case resp.StatusCode != http.StatusOK:
		resp.Body.Close()
		return nil, fmt.Errorf("cloudinary download: status %d", resp.StatusCode)
	}
	return resp.Body, nil
}

// URL returns the public delivery URL; Cloudinary raw uploads do not expire.
func (c *CloudinaryStore) URL(_ context.Context, key string, _ time.Duration) (string, error) {
	return c.deliveryURL(key), nil
}

// Delete destroys the asset; a missing asset is not an error.
func (c *CloudinaryStore) Delete(ctx context.Context, key string) error {
	res, err := c.cld.Upload.Destroy(ctx, uploader.DestroyParams{
		PublicID:     key,
		ResourceType: cloudinaryRawResource,
	})
	if err != nil {
		return fmt.Errorf("cloudinary destroy: %w", err)
	}
	if res.Error.Message != "" {
		return fmt.Errorf("cloudinary destroy: %s", res.Error.Message)
	}
	return nil
}

func (c *CloudinaryStore) publicID(key string) string {
	key = strings.Trim(strings.TrimSpace(key), "/")
	if c.folder == "" {
		return key
	}
	return path.Join(c.folder, key)
}

func (c *CloudinaryStore) deliveryURL(publicID string) string {
	segments := strings.Split(strings.Trim(publicID, "/"), "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return fmt.Sprintf("%s/%s/%s/upload/%s", cloudinaryDeliveryBase, url.PathEscape(c.cloudName), cloudinaryRawResource, strings.Join(segments, "/"))
}
