// Package archive copies written workbooks to an Azure Blob Storage container.
package archive

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"

	"github.com/uoloki/microsoft-dataextract/config"
	"github.com/uoloki/microsoft-dataextract/domain"
)

// Credential holding the storage account key.
const AccountKey = "AZURE_STORAGE_ACCOUNT_KEY"

type uploader interface {
	UploadFile(ctx context.Context, container string, blob string, file *os.File, o *azblob.UploadFileOptions) (azblob.UploadFileResponse, error)
}

type Archive struct {
	client    uploader
	container string
	prefix    string
	now       func() time.Time
	log       *slog.Logger
}

// New creates a shared key blob client for the configured storage account.
func New(cfg config.Archive, credentials *config.Credentials, log *slog.Logger) (*Archive, error) {
	if cfg.Account == "" || cfg.Container == "" {
		return nil, domain.ErrConfiguration("archive: account and container are required")
	}

	if err := credentials.Require("archive", AccountKey); err != nil {
		return nil, err
	}

	credential, err := azblob.NewSharedKeyCredential(cfg.Account, credentials.Get(AccountKey))
	if err != nil {
		return nil, domain.ErrConfiguration("archive: invalid storage account key (%w)", err)
	}

	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = fmt.Sprintf("https://%s.blob.core.windows.net/", cfg.Account)
	}

	client, err := azblob.NewClientWithSharedKeyCredential(endpoint, credential, nil)
	if err != nil {
		return nil, domain.ErrConfiguration("archive: unable to create blob client (%w)", err)
	}

	return newArchive(client, cfg, log), nil
}

func newArchive(client uploader, cfg config.Archive, log *slog.Logger) *Archive {
	return &Archive{
		client:    client,
		container: cfg.Container,
		prefix:    cfg.Prefix,
		now:       time.Now,
		log:       log.With("archive", cfg.Container),
	}
}

// Upload copies a local file to <prefix>/<yyyy-mm-dd>/<file name>.
func (a *Archive) Upload(ctx context.Context, file string) error {
	f, err := os.Open(file)
	if err != nil {
		return domain.ErrIOFailure("unable to open '%s' for archiving (%w)", file, err)
	}

	defer f.Close()

	blob := BlobName(a.prefix, a.now(), file)

	if _, err := a.client.UploadFile(ctx, a.container, blob, f, nil); err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}

		var rsp *azcore.ResponseError
		if errors.As(err, &rsp) {
			return domain.ErrIOFailure("error archiving '%s' to %s/%s (HTTP %d %s)", file, a.container, blob, rsp.StatusCode, rsp.ErrorCode)
		}

		return domain.ErrIOFailure("error archiving '%s' to %s/%s (%w)", file, a.container, blob, err)
	}

	a.log.Info("archived", "file", file, "blob", blob)

	return nil
}

// BlobName returns the blob path for a file archived at the given time. Blob names always
// use forward slashes.
func BlobName(prefix string, t time.Time, file string) string {
	prefix = strings.Trim(prefix, "/")
	date := t.Format("2006-01-02")

	if prefix == "" {
		return path.Join(date, filepath.Base(file))
	}

	return path.Join(prefix, date, filepath.Base(file))
}
