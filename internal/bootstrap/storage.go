package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"studyhelper/pkg/domain"
	"studyhelper/pkg/storage"
)

// StorageConfig lists the object storage backends. Each backend is enabled
// when its required settings are present.
type StorageConfig struct {
	DefaultStorage string `yaml:"defaultStorage"`
	LocalDir       string `yaml:"localStorageDir"`

	MinioEndpoint  string `yaml:"minioEndpoint"`
	MinioAccessKey string `yaml:"minioAccessKey"`
	MinioSecretKey string `yaml:"minioSecretKey"`
	MinioBucket    string `yaml:"minioBucket"`
	MinioUseSSL    bool   `yaml:"minioUseSSL"`

	CloudinaryURL       string `yaml:"cloudinaryURL"`
	CloudinaryCloudName string `yaml:"cloudinaryCloudName"`
	CloudinaryAPIKey    string `yaml:"cloudinaryAPIKey"`
	CloudinaryAPISecret string `yaml:"cloudinaryAPISecret"`
	CloudinaryFolder    string `yaml:"cloudinaryFolder"`
	CloudinaryChunkSize int64  `yaml:"cloudinaryChunkSize"`

	DriveCredentialsFile string `yaml:"driveCredentialsFile"`
	DriveCredentialsJSON string `yaml:"driveCredentialsJSON"`
	DriveFolderID        string `yaml:"driveFolderID"`
	DriveShareWithLink   bool   `yaml:"driveShareWithLink"`
}

func (c *StorageConfig) ApplyEnv() {
	envString("DEFAULT_STORAGE", &c.DefaultStorage)
	envString("LOCAL_STORAGE_DIR", &c.LocalDir)
	envString("MINIO_ENDPOINT", &c.MinioEndpoint)
	envString("MINIO_ACCESS_KEY", &c.MinioAccessKey)
	envString("MINIO_SECRET_KEY", &c.MinioSecretKey)
	envString("MINIO_BUCKET", &c.MinioBucket)
	envBool("MINIO_USE_SSL", &c.MinioUseSSL)
	envString("CLOUDINARY_URL", &c.CloudinaryURL)
	envString("CLOUDINARY_CLOUD_NAME", &c.CloudinaryCloudName)
	envString("CLOUDINARY_API_KEY", &c.CloudinaryAPIKey)
	envString("CLOUDINARY_API_SECRET", &c.CloudinaryAPISecret)
	envString("CLOUDINARY_FOLDER", &c.CloudinaryFolder)
	envInt64("CLOUDINARY_CHUNK_SIZE", &c.CloudinaryChunkSize)
	envString("GOOGLE_DRIVE_CREDENTIALS_FILE", &c.DriveCredentialsFile)
	envString("GOOGLE_DRIVE_CREDENTIALS_JSON", &c.DriveCredentialsJSON)
	envString("GOOGLE_DRIVE_FOLDER_ID", &c.DriveFolderID)
	envBool("GOOGLE_DRIVE_SHARE_WITH_LINK", &c.DriveShareWithLink)
}

func (c StorageConfig) minioEnabled() bool {
	return strings.TrimSpace(c.MinioEndpoint) != "" && strings.TrimSpace(c.MinioBucket) != ""
}

func (c StorageConfig) cloudinaryEnabled() bool {
	return strings.TrimSpace(c.CloudinaryURL) != "" || strings.TrimSpace(c.CloudinaryCloudName) != ""
}

func (c StorageConfig) driveEnabled() bool {
	return strings.TrimSpace(c.DriveCredentialsFile) != "" || strings.TrimSpace(c.DriveCredentialsJSON) != ""
}

func (c StorageConfig) Validate() error {
	if strings.TrimSpace(c.LocalDir) == "" && !c.minioEnabled() && !c.cloudinaryEnabled() && !c.driveEnabled() {
		return errors.New("config: at least one storage backend is required (localStorageDir, minio*, cloudinary*, drive*)")
	}
	if raw := strings.TrimSpace(c.DefaultStorage); raw != "" {
		if _, ok := domain.ParseStorageProvider(strings.ToLower(raw)); !ok {
			return fmt.Errorf("config: unknown defaultStorage %q", raw)
		}
	}
	return nil
}

// OpenStorage builds a registry with every configured backend.
func OpenStorage(ctx context.Context, c StorageConfig) (*storage.Registry, error) {
	preferred, _ := domain.ParseStorageProvider(strings.ToLower(strings.TrimSpace(c.DefaultStorage)))
	registry := storage.NewRegistry(preferred)

	if dir := strings.TrimSpace(c.LocalDir); dir != "" {
		fs, err := storage.NewFileStore(dir)
		if err != nil {
			return nil, err
		}
		registry.Register(fs)
	}
	if c.minioEnabled() {
		ms, err := storage.NewMinioStore(c.MinioEndpoint, c.MinioAccessKey, c.MinioSecretKey, c.MinioBucket, c.MinioUseSSL)
		if err != nil {
			return nil, err
		}
		registry.Register(ms)
	}
	if c.cloudinaryEnabled() {
		cs, err := storage.NewCloudinaryStore(storage.CloudinaryOptions{
			URL:       c.CloudinaryURL,
			CloudName: c.CloudinaryCloudName,
			APIKey:    c.CloudinaryAPIKey,
			APISecret: c.CloudinaryAPISecret,
			Folder:    c.CloudinaryFolder,
			ChunkSize: c.CloudinaryChunkSize,
		})
		if err != nil {
			return nil, err
		}
		registry.Register(cs)
	}
	if c.driveEnabled() {
		ds, err := storage.NewDriveStore(ctx, storage.DriveOptions{
			CredentialsFile: c.DriveCredentialsFile,
			CredentialsJSON: c.DriveCredentialsJSON,
			FolderID:        c.DriveFolderID,
			ShareWithLink:   c.DriveShareWithLink,
		})
		if err != nil {
			return nil, err
		}
		registry.Register(ds)
	}
	if len(registry.Providers()) == 0 {
		return nil, storage.ErrProviderNotConfigured
	}
	slog.Info("object storage ready", "providers", registry.Providers(), "preferred", preferred)
	return registry, nil
}
