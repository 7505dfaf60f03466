package s3archive

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/neomorfeo/tenantbill/internal/domain"
)

// Compile-time check: Archive implements domain.InvoiceArchive.
var _ domain.InvoiceArchive = (*Archive)(nil)

// ObjectPutter is the subset of *s3.Client the archive uses.
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Config selects the bucket and how to reach it.
type Config struct {
	Bucket string
	Prefix string
	Region string
	// Endpoint and UsePathStyle target S3-compatible stores such as MinIO.
	Endpoint     string
	UsePathStyle bool
	// AccessKey and SecretKey are optional; the default credential chain is used otherwise.
	AccessKey string
	SecretKey string
}

// Archive stores invoice attachments under <prefix>/<tenant>/<run-date>/<file>.
type Archive struct {
	client ObjectPutter
	bucket string
	prefix string
}

// New loads the AWS configuration and creates an archive.
func New(ctx context.Context, cfg Config) (*Archive, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("archive bucket is required")
	}

	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsConfig, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}

	client := s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	return NewWithClient(client, cfg.Bucket, cfg.Prefix), nil
}

// NewWithClient creates an archive over an existing client.
func NewWithClient(client ObjectPutter, bucket, prefix string) *Archive {
	return &Archive{
		client: client,
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
	}
}

// Key returns the object key for a document.
func (a *Archive) Key(doc domain.InvoiceDocument) string {
	return path.Join(a.prefix, doc.TenantID, doc.RunDate.String(), doc.Attachment.Name)
}

// Store uploads the document's attachment.
func (a *Archive) Store(ctx context.Context, doc domain.InvoiceDocument) error {
	if len(doc.Attachment.Data) == 0 {
		return errors.New("invoice has no attachment")
	}

	sum := sha256.Sum256(doc.Attachment.Data)
	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(a.Key(doc)),
		Body:        bytes.NewReader(doc.Attachment.Data),
		ContentType: aws.String(doc.Attachment.MIME),
		Metadata: map[string]string{
			"checksum-sha256": hex.EncodeToString(sum[:]),
			"tenant-id":       doc.TenantID,
			"company-key":     doc.CompanyKey,
			"total":           fmt.Sprintf("%.2f", doc.Total),
			"currency":        doc.Currency,
		},
	})
	if err != nil {
		return fmt.Errorf("uploading invoice to s3: %w", err)
	}
	return nil
}
