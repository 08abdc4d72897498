// Package s3 implements the document tier on S3-compatible object storage.
// Payloads live under documents/{company}/{document}.json; orphan markers are
// separate objects under orphans/, so marking never touches the payload.
package s3

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/sokograph/backend/internal/util"
	"github.com/sokograph/backend/pkg/common"
	"github.com/sokograph/backend/pkg/persist"
)

// NewClient builds an S3 client from the AWS_* environment. Path-style
// addressing is enabled for MinIO-compatible endpoints.
func NewClient(ctx context.Context) (*s3.Client, error) {
	region := util.GetEnv("AWS_REGION")
	endpoint := util.GetEnv("AWS_ENDPOINT")
	accessKey := util.GetEnv("AWS_ACCESS_KEY")
	secretKey := util.GetEnv("AWS_SECRET_KEY")

	cfg, err := config.LoadDefaultConfig(
		ctx,
		config.WithRegion(region),
		config.WithBaseEndpoint(endpoint),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			accessKey,
			secretKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load S3 config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.UsePathStyle = true
	})
	return client, nil
}

// DocumentStore implements persist.DocumentStore on a single bucket.
type DocumentStore struct {
	client *s3.Client
	bucket string
}

func NewDocumentStore(client *s3.Client, bucket string) *DocumentStore {
	return &DocumentStore{client: client, bucket: bucket}
}

func documentKey(companyID, documentID string) string {
	return fmt.Sprintf("documents/%s/%s.json", companyID, documentID)
}

func orphanKey(companyID, documentID string) string {
	return fmt.Sprintf("orphans/%s/%s", companyID, documentID)
}

// PutDocument stores the full payload as JSON.
func (d *DocumentStore) PutDocument(ctx context.Context, rec common.DocumentRecord) error {
	if rec.CompanyID == "" || rec.DocumentID == "" {
		return fmt.Errorf("document record requires company and document ids")
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal document record: %w", err)
	}
	_, err = d.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(d.bucket),
		Key:         aws.String(documentKey(rec.CompanyID, rec.DocumentID)),
		Body:        bytes.NewReader(payload),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("failed to put document record: %w", err)
	}
	return nil
}

// GetDocument reads a payload back, re-validating the company scope baked
// into the key against the payload itself.
func (d *DocumentStore) GetDocument(ctx context.Context, companyID, documentID string) (common.DocumentRecord, error) {
	result, err := d.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(d.bucket),
		Key:    aws.String(documentKey(companyID, documentID)),
	})
	if err != nil {
		if isNotFound(err) {
			return common.DocumentRecord{}, persist.ErrNotFound
		}
		return common.DocumentRecord{}, fmt.Errorf("failed to get document record: %w", err)
	}
	defer result.Body.Close()

	payload, err := io.ReadAll(result.Body)
	if err != nil {
		return common.DocumentRecord{}, fmt.Errorf("failed to read document record: %w", err)
	}
	var rec common.DocumentRecord
	if err := json.Unmarshal(payload, &rec); err != nil {
		return common.DocumentRecord{}, fmt.Errorf("failed to unmarshal document record: %w", err)
	}
	if rec.CompanyID != companyID {
		return common.DocumentRecord{}, persist.ErrCompanyScope
	}
	return rec, nil
}

// DeleteDocument removes a payload. Used only by the reconciliation sweep
// for orphans past retention.
func (d *DocumentStore) DeleteDocument(ctx context.Context, companyID, documentID string) error {
	_, err := d.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(d.bucket),
		Key:    aws.String(documentKey(companyID, documentID)),
	})
	if err != nil {
		return fmt.Errorf("failed to delete document record: %w", err)
	}
	return nil
}

// MarkOrphaned writes an orphan marker object next to, never over, the
// payload.
func (d *DocumentStore) MarkOrphaned(ctx context.Context, companyID, documentID string, at time.Time) error {
	_, err := d.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(d.bucket),
		Key:         aws.String(orphanKey(companyID, documentID)),
		Body:        strings.NewReader(at.UTC().Format(time.RFC3339)),
		ContentType: aws.String("text/plain"),
	})
	if err != nil {
		return fmt.Errorf("failed to mark document orphaned: %w", err)
	}
	return nil
}

// ClearOrphan removes the marker. Clearing a marker that is already gone is
// not an error, which keeps the sweep idempotent.
func (d *DocumentStore) ClearOrphan(ctx context.Context, companyID, documentID string) error {
	_, err := d.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(d.bucket),
		Key:    aws.String(orphanKey(companyID, documentID)),
	})
	if err != nil {
		return fmt.Errorf("failed to clear orphan marker: %w", err)
	}
	return nil
}

// ListOrphans pages through the orphan marker prefix. The marker object's
// LastModified is the orphaning time.
func (d *DocumentStore) ListOrphans(ctx context.Context) ([]persist.OrphanRef, error) {
	var orphans []persist.OrphanRef
	listInput := &s3.ListObjectsV2Input{
		Bucket: aws.String(d.bucket),
		Prefix: aws.String("orphans/"),
	}

	for {
		listOutput, err := d.client.ListObjectsV2(ctx, listInput)
		if err != nil {
			return nil, fmt.Errorf("failed to list orphan markers: %w", err)
		}

		for _, obj := range listOutput.Contents {
			if obj.Key == nil {
				continue
			}
			parts := strings.Split(strings.TrimPrefix(*obj.Key, "orphans/"), "/")
			if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
				continue
			}
			ref := persist.OrphanRef{CompanyID: parts[0], DocumentID: parts[1]}
			if obj.LastModified != nil {
				ref.OrphanedAt = *obj.LastModified
			}
			orphans = append(orphans, ref)
		}

		if listOutput.IsTruncated != nil && *listOutput.IsTruncated {
			listInput.ContinuationToken = listOutput.NextContinuationToken
		} else {
			break
		}
	}

	return orphans, nil
}

func isNotFound(err error) bool {
	var noKey *types.NoSuchKey
	if errors.As(err, &noKey) {
		return true
	}
	var notFound *types.NotFound
	return errors.As(err, &notFound)
}
