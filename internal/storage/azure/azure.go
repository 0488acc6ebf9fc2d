// Package azure stores reference photos in Azure Blob Storage and signs
// read-only SAS URLs for the image acquirer.
package azure

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/sas"

	"github.com/kozaktomas/faceverify/internal/config"
	"github.com/kozaktomas/faceverify/internal/logging"
	"github.com/kozaktomas/faceverify/internal/storage"
)

// Store is an azblob-backed storage.Store.
type Store struct {
	client     *azblob.Client
	credential *azblob.SharedKeyCredential
	serviceURL string
	container  string
	rootPath   string
}

var _ storage.Store = (*Store)(nil)

// New creates a store for cfg. serviceURL overrides the public endpoint,
// e.g. for Azurite; leave it empty in production.
func New(cfg config.StorageConfig, serviceURL string) (*Store, error) {
	az := cfg.Azure
	if az.AccountName == "" || az.AccountKey == "" || az.ContainerName == "" {
		return nil, errors.New("azure storage requires account name, account key and container name")
	}

	credential, err := azblob.NewSharedKeyCredential(az.AccountName, az.AccountKey)
	if err != nil {
		return nil, fmt.Errorf("azure shared key credential: %w", err)
	}

	if serviceURL == "" {
		serviceURL = fmt.Sprintf("https://%s.blob.core.windows.net/", az.AccountName)
	}
	client, err := azblob.NewClientWithSharedKeyCredential(serviceURL, credential, nil)
	if err != nil {
		return nil, fmt.Errorf("azure blob client: %w", err)
	}

	return &Store{
		client:     client,
		credential: credential,
		serviceURL: strings.TrimSuffix(serviceURL, "/"),
		container:  az.ContainerName,
		rootPath:   cfg.RootPath,
	}, nil
}

func (s *Store) Put(ctx context.Context, folder, name, contentType string, data []byte) (string, error) {
	key := storage.BuildKey(s.rootPath, folder, name, contentType)
	_, err := s.client.UploadBuffer(ctx, s.container, key, data, &azblob.UploadBufferOptions{
		HTTPHeaders: &blob.HTTPHeaders{BlobContentType: &contentType},
	})
	if err != nil {
		logging.Ctx(ctx).Error().Err(err).Str("key", key).Msg("blob upload failed")
		return "", fmt.Errorf("upload blob %s: %w", key, err)
	}
	return key, nil
}

// SignedURL signs a read-only HTTPS SAS URL valid for expiry.
func (s *Store) SignedURL(_ context.Context, key string, expiry time.Duration) (string, error) {
	now := time.Now().UTC()
	params, err := sas.BlobSignatureValues{
		Protocol:      sas.ProtocolHTTPS,
		StartTime:     now.Add(-5 * time.Minute),
		ExpiryTime:    now.Add(expiry),
		Permissions:   (&sas.BlobPermissions{Read: true}).String(),
		ContainerName: s.container,
		BlobName:      key,
	}.SignWithSharedKey(s.credential)
	if err != nil {
		return "", fmt.Errorf("sign blob URL: %w", err)
	}
	return fmt.Sprintf("%s?%s", s.blobURL(key), params.Encode()), nil
}

func (s *Store) Open(ctx context.Context, key string) ([]byte, error) {
	resp, err := s.client.DownloadStream(ctx, s.container, key, nil)
	if err != nil {
		return nil, mapError(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read blob %s: %w", key, err)
	}
	return data, nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteBlob(ctx, s.container, key, nil)
	if err != nil {
		return mapError(err)
	}
	return nil
}

func (s *Store) blobURL(key string) string {
	segments := strings.Split(key, "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return fmt.Sprintf("%s/%s/%s", s.serviceURL, s.container, strings.Join(segments, "/"))
}

func mapError(err error) error {
	if bloberror.HasCode(err, bloberror.BlobNotFound, bloberror.ContainerNotFound) {
		return storage.ErrNotFound
	}
	return err
}
