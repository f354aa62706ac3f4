package egress

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"

	"github.com/parkerlabs/dilemma/internal/study"
)

// BlobUploader is the subset of the Azure Blob client the target needs.
type BlobUploader interface {
	UploadBuffer(ctx context.Context, containerName, blobName string, buffer []byte, o *azblob.UploadBufferOptions) (azblob.UploadBufferResponse, error)
}

// BlobDeliverer uploads the payload JSON to an Azure Blob container.
// Credentials come from the default chain (environment, workload identity,
// managed identity, az login).
type BlobDeliverer struct {
	client    BlobUploader
	container string
}

// NewBlobDeliverer creates a deliverer for the configured blob target.
func NewBlobDeliverer(target *study.BlobTarget) (*BlobDeliverer, error) {
	cred, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		return nil, fmt.Errorf("resolving azure credentials: %w", err)
	}
	// A short retry window: the upload runs while the participant waits,
	// so failing over to the local backup beats retrying for minutes.
	opts := &azblob.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries: 2,
				TryTimeout: 20 * time.Second,
			},
		},
	}
	client, err := azblob.NewClient(target.AccountURL, cred, opts)
	if err != nil {
		return nil, fmt.Errorf("creating blob client for %s: %w", target.AccountURL, err)
	}
	return &BlobDeliverer{client: client, container: target.Container}, nil
}

// Name implements Deliverer.
func (d *BlobDeliverer) Name() string { return "blob" }

// Deliver implements Deliverer.
func (d *BlobDeliverer) Deliver(ctx context.Context, p *Payload) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encoding payload: %w", err)
	}

	name := FileStem(p.Meta, p.ParticipantID) + ".json"
	if _, err := d.client.UploadBuffer(ctx, d.container, name, data, nil); err != nil {
		return fmt.Errorf("uploading %s to container %s: %w", name, d.container, err)
	}
	return nil
}
