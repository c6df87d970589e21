package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/Veraticus/trial-balance-export/internal/common"
	"github.com/Veraticus/trial-balance-export/internal/service"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const uploadFields = "id, name, mimeType, fileExtension, webViewLink"

// DriveUploader creates files in a Drive folder, including shared drives.
type DriveUploader struct {
	service *drive.Service
	logger  *slog.Logger
	config  DriveConfig
}

// NewDriveUploader creates a Drive uploader authenticated from config.
func NewDriveUploader(ctx context.Context, config DriveConfig, logger *slog.Logger) (*DriveUploader, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	srv, err := createDriveService(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create drive service: %w", err)
	}
	return NewDriveUploaderWithService(srv, config, logger), nil
}

// NewDriveUploaderWithService wraps an existing Drive service.
func NewDriveUploaderWithService(srv *drive.Service, config DriveConfig, logger *slog.Logger) *DriveUploader {
	if logger == nil {
		logger = slog.Default()
	}
	return &DriveUploader{
		service: srv,
		config:  config,
		logger:  logger.With("component", "drive"),
	}
}

// createDriveService creates a Google Drive API service.
func createDriveService(ctx context.Context, config DriveConfig) (*drive.Service, error) {
	var tokenSource oauth2.TokenSource

	if config.ServiceAccountPath != "" || config.ServiceAccountJSON != "" {
		jsonKey := []byte(config.ServiceAccountJSON)
		if config.ServiceAccountPath != "" {
			var err error
			jsonKey, err = os.ReadFile(config.ServiceAccountPath)
			if err != nil {
				return nil, fmt.Errorf("unable to read service account key file: %w", err)
			}
		}

		jwtConfig, err := google.JWTConfigFromJSON(jsonKey, drive.DriveFileScope)
		if err != nil {
			return nil, fmt.Errorf("unable to parse service account key: %w", err)
		}
		tokenSource = jwtConfig.TokenSource(ctx)
	} else {
		client := &oauth2.Config{
			ClientID:     config.ClientID,
			ClientSecret: config.ClientSecret,
			Endpoint:     google.Endpoint,
			Scopes:       []string{drive.DriveFileScope},
		}
		token := &oauth2.Token{
			RefreshToken: config.RefreshToken,
			TokenType:    "Bearer",
		}
		tokenSource = client.TokenSource(ctx, token)
	}

	httpClient := oauth2.NewClient(ctx, tokenSource)
	srv, err := drive.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("unable to create drive service: %w", err)
	}
	return srv, nil
}

// Upload implements service.Uploader.
func (u *DriveUploader) Upload(ctx context.Context, file service.UploadFile) (*service.UploadedFile, error) {
	meta := &drive.File{
		Name:    file.Name,
		Parents: []string{u.config.ParentID},
	}

	var created *drive.File
	err := common.WithRetry(ctx, func() error {
		f, err := u.service.Files.Create(meta).
			Media(bytes.NewReader(file.Data), googleapi.ContentType(file.MIMEType)).
			SupportsAllDrives(true).
			Fields(uploadFields).
			Context(ctx).
			Do()
		if err != nil {
			return classifyDriveError(err)
		}
		created = f
		return nil
	}, u.config.Retry)
	if err != nil {
		return nil, fmt.Errorf("failed to upload %s: %w", file.Name, err)
	}

	u.logger.Info("uploaded file",
		"name", created.Name,
		"id", created.Id,
		"bytes", len(file.Data))

	return &service.UploadedFile{
		ID:       created.Id,
		Name:     created.Name,
		MIMEType: created.MimeType,
		Link:     created.WebViewLink,
	}, nil
}

func classifyDriveError(err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return common.ClassifyStatus(apiErr.Code, err)
	}
	return common.Transient(err)
}
