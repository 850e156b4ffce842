package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"studyhelper/pkg/domain"
)

// DriveOptions configures DriveStore. CredentialsJSON wins over
// CredentialsFile; with neither, application default credentials are used.
type DriveOptions struct {
	CredentialsJSON string
	CredentialsFile string
	FolderID        string
	// ShareWithLink grants anyone-with-the-link read access after upload.
	ShareWithLink bool
	// Endpoint overrides the API endpoint (tests).
	Endpoint   string
	HTTPClient *http.Client
}

// DriveStore keeps PDFs in Google Drive. Keys are Drive file IDs.
type DriveStore struct {
	svc           *drive.Service
	folderID      string
	shareWithLink bool
}

// NewDriveStore creates a Drive v3 client.
func NewDriveStore(ctx context.Context, opts DriveOptions) (*DriveStore, error) {
	var clientOptions []option.ClientOption
	switch {
	case opts.HTTPClient != nil:
		clientOptions = append(clientOptions, option.WithHTTPClient(opts.HTTPClient))
	case strings.TrimSpace(opts.CredentialsJSON) != "":
		clientOptions = append(clientOptions, option.WithCredentialsJSON([]byte(opts.CredentialsJSON)))
	case strings.TrimSpace(opts.CredentialsFile) != "":
		clientOptions = append(clientOptions, option.WithCredentialsFile(opts.CredentialsFile))
	}
	if endpoint := strings.TrimSpace(opts.Endpoint); endpoint != "" {
		clientOptions = append(clientOptions, option.WithEndpoint(endpoint))
	}
	if opts.HTTPClient == nil {
		clientOptions = append(clientOptions, option.WithScopes(drive.DriveFileScope))
	}
	svc, err := drive.NewService(ctx, clientOptions...)
	if err != nil {
		return nil, fmt.Errorf("init drive client: %w", err)
	}
	return &DriveStore{
		svc:           svc,
		folderID:      strings.TrimSpace(opts.FolderID),
		shareWithLink: opts.ShareWithLink,
	}, nil
}

func (d *DriveStore) Provider() domain.StorageProvider { return domain.ProviderDrive }

// Put uploads r as a new Drive file named after the last key segment. The
// returned key is the Drive file ID.
func (d *DriveStore) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) (Object, error) {
	meta := &drive.File{
		Name:     path.Base(strings.TrimSpace(key)),
		MimeType: contentType,
	}
	if d.folderID != "" {
		meta.Parents = []string{d.folderID}
	}
	created, err := d.svc.Files.Create(meta).
		Media(r, googleapi.ContentType(contentType)).
		Fields("id", "size", "webViewLink").
		SupportsAllDrives(true).
		Context(ctx).
		Do()
	if err != nil {
		return Object{}, fmt.Errorf("drive upload: %w", err)
	}
	if d.shareWithLink {
		_, err := d.svc.Permissions.Create(created.Id, &drive.Permission{Type: "anyone", Role: "reader"}).
			SupportsAllDrives(true).
			Context(ctx).
			Do()
		if err != nil {
			_ = d.Delete(context.WithoutCancel(ctx), created.Id)
			return Object{}, fmt.Errorf("drive share: %w", err)
		}
	}
	obj := Object{Provider: domain.ProviderDrive, Key: created.Id, URL: created.WebViewLink, Size: size}
	if created.Size > 0 {
		obj.Size = created.Size
	}
	return obj, nil
}

// Open downloads file content.
func (d *DriveStore) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	resp, err := d.svc.Files.Get(key).SupportsAllDrives(true).Context(ctx).Download()
	if err != nil {
		if isDriveNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("drive download: %w", err)
	}
	return resp.Body, nil
}

// URL is always empty: Drive content is proxied through the API so private
// files work without sharing.
func (d *DriveStore) URL(context.Context, string, time.Duration) (string, error) {
	return "", nil
}

// Delete removes the file; a missing file is not an error.
func (d *DriveStore) Delete(ctx context.Context, key string) error {
	err := d.svc.Files.Delete(key).SupportsAllDrives(true).Context(ctx).Do()
	if err != nil && !isDriveNotFound(err) {
		return fmt.Errorf("drive delete: %w", err)
	}
	return nil
}

func isDriveNotFound(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound
}
