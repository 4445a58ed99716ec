// Package s3 provides a remote backend on S3-compatible object storage.
//
// Committed documents live under <prefix>docs/. A transaction is a marker
// object at <prefix>txn/<id>/open with staged writes under put/ and del/
// beside it. Commit copies staged writes into place and removes the
// transaction's objects; it is not atomic across documents.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strings"
	"sync/atomic"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"

	"github.com/gezibash/docio/internal/settings"
	docerrors "github.com/gezibash/docio/pkg/errors"
	"github.com/gezibash/docio/pkg/format"
	"github.com/gezibash/docio/pkg/remote"
)

const (
	KeyBucket          = "bucket"
	KeyRegion          = "region"
	KeyEndpoint        = "endpoint"
	KeyPrefix          = "prefix"
	KeyAccessKeyID     = "access_key_id"
	KeySecretAccessKey = "secret_access_key"
	KeyForcePathStyle  = "force_path_style"

	metaFormat = "format"
)

func init() {
	remote.Register("s3", NewFactory, Defaults)
}

// Defaults returns the default configuration for the S3 backend.
func Defaults() map[string]string {
	return map[string]string{
		KeyRegion:          "us-east-1",
		KeyEndpoint:        "",
		KeyPrefix:          "",
		KeyAccessKeyID:     "",
		KeySecretAccessKey: "",
		KeyForcePathStyle:  "false",
	}
}

// NewFactory creates a new S3 backend from a configuration map.
func NewFactory(ctx context.Context, config map[string]string) (remote.Operations, error) {
	cfg := settings.Settings(config)

	bucket, err := cfg.Required("s3", KeyBucket)
	if err != nil {
		return nil, err
	}

	region := cfg.String(KeyRegion, "us-east-1")
	endpoint := cfg.String(KeyEndpoint, "")
	prefix := cfg.String(KeyPrefix, "")
	accessKeyID := cfg.String(KeyAccessKeyID, "")
	secretAccessKey := cfg.String(KeySecretAccessKey, "")

	forcePathStyle, err := cfg.Bool(KeyForcePathStyle, false)
	if err != nil {
		var cfgErr *settings.ConfigError
		if errors.As(err, &cfgErr) {
			return nil, cfgErr.WithBackend("s3")
		}
		return nil, err
	}

	var opts []func(*awsconfig.LoadOptions) error
	opts = append(opts, awsconfig.WithRegion(region))

	if accessKeyID != "" && secretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKeyID, secretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, settings.NewConfigErrorWithCause("s3", "", "failed to load AWS config", err)
	}

	s3Opts := []func(*s3.Options){
		func(o *s3.Options) {
			// S3-compatible stores often reject the SDK's default trailing checksums.
			o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
			o.ResponseChecksumValidation = aws.ResponseChecksumValidationWhenRequired
		},
	}
	if endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(endpoint)
		})
	}
	if forcePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}

	client := s3.NewFromConfig(awsCfg, s3Opts...)

	// Fail fast: verify bucket access.
	_, err = client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(bucket),
	})
	if err != nil {
		return nil, settings.NewConfigErrorWithCause("s3", KeyBucket, "bucket not accessible", err)
	}

	slog.Info("s3 backend initialized", "bucket", bucket, "region", region, "prefix", prefix)

	return NewWithClient(client, bucket, prefix), nil
}

// Backend is an S3 implementation of remote.Operations.
type Backend struct {
	client *s3.Client
	bucket string
	prefix string
	closed atomic.Bool
}

// NewWithClient creates a backend on an existing S3 client.
func NewWithClient(client *s3.Client, bucket, prefix string) *Backend {
	return &Backend{client: client, bucket: bucket, prefix: prefix}
}

func escape(uri string) string { return url.PathEscape(uri) }

func (b *Backend) docKey(uri string) string { return b.prefix + "docs/" + escape(uri) }
func (b *Backend) txnPrefix(id string) string {
	return b.prefix + "txn/" + escape(id) + "/"
}
func (b *Backend) txnMarker(id string) string { return b.txnPrefix(id) + "open" }
func (b *Backend) stagedPut(id, uri string) string {
	return b.txnPrefix(id) + "put/" + escape(uri)
}
func (b *Backend) stagedDel(id, uri string) string {
	return b.txnPrefix(id) + "del/" + escape(uri)
}

// GetDocument reads a document, overlaying the named transaction's staged
// writes.
func (b *Backend) GetDocument(ctx context.Context, req remote.Request) (*remote.Document, error) {
	if err := b.check(req.URI); err != nil {
		return nil, err
	}

	if req.Transaction != "" {
		if err := b.requireOpen(ctx, req.Transaction); err != nil {
			return nil, err
		}
		doc, err := b.getObject(ctx, req.URI, b.stagedPut(req.Transaction, req.URI))
		if err == nil {
			return doc, nil
		}
		if !errors.Is(err, docerrors.ErrNotFound) {
			return nil, err
		}
		deleted, err := b.exists(ctx, b.stagedDel(req.Transaction, req.URI))
		if err != nil {
			return nil, err
		}
		if deleted {
			return nil, remote.DocumentNotFound(req.URI)
		}
	}

	return b.getObject(ctx, req.URI, b.docKey(req.URI))
}

// PutDocument writes a document, or stages the write in the named
// transaction.
func (b *Backend) PutDocument(ctx context.Context, req remote.Request, body io.Reader) error {
	if err := b.check(req.URI); err != nil {
		return err
	}

	var content []byte
	if body != nil {
		var err error
		if content, err = io.ReadAll(body); err != nil {
			return docerrors.NewIOError("read document body", err)
		}
	}

	if req.Transaction == "" {
		return b.putObject(ctx, b.docKey(req.URI), req.Format.String(), remote.ResolveMimetype(req), content)
	}

	if err := b.requireOpen(ctx, req.Transaction); err != nil {
		return err
	}
	if err := b.putObject(ctx, b.stagedPut(req.Transaction, req.URI), req.Format.String(), remote.ResolveMimetype(req), content); err != nil {
		return err
	}
	return b.deleteObject(ctx, b.stagedDel(req.Transaction, req.URI))
}

// DeleteDocument removes a document, or stages the removal in the named
// transaction.
func (b *Backend) DeleteDocument(ctx context.Context, req remote.Request) error {
	if err := b.check(req.URI); err != nil {
		return err
	}

	if req.Transaction == "" {
		ok, err := b.exists(ctx, b.docKey(req.URI))
		if err != nil {
			return err
		}
		if !ok {
			return remote.DocumentNotFound(req.URI)
		}
		return b.deleteObject(ctx, b.docKey(req.URI))
	}

	doc, err := b.GetDocument(ctx, req)
	if err != nil {
		return err
	}
	_ = doc.Body.Close()

	if err := b.putObject(ctx, b.stagedDel(req.Transaction, req.URI), "", "", nil); err != nil {
		return err
	}
	return b.deleteObject(ctx, b.stagedPut(req.Transaction, req.URI))
}

// OpenTransaction writes a new transaction marker.
func (b *Backend) OpenTransaction(ctx context.Context) (string, error) {
	if b.closed.Load() {
		return "", docerrors.ErrClosed
	}

	id := uuid.NewString()
	if err := b.putObject(ctx, b.txnMarker(id), "", "", nil); err != nil {
		return "", err
	}
	return id, nil
}

// CommitTransaction copies staged writes into place and then removes the
// transaction.
func (b *Backend) CommitTransaction(ctx context.Context, id string) error {
	if b.closed.Load() {
		return docerrors.ErrClosed
	}
	if err := b.requireOpen(ctx, id); err != nil {
		return err
	}

	keys, err := b.list(ctx, b.txnPrefix(id))
	if err != nil {
		return err
	}

	putPrefix := b.txnPrefix(id) + "put/"
	delPrefix := b.txnPrefix(id) + "del/"
	for _, key := range keys {
		switch {
		case strings.HasPrefix(key, putPrefix):
			uri, err := url.PathUnescape(strings.TrimPrefix(key, putPrefix))
			if err != nil {
				return fmt.Errorf("s3 commit %s: %w", id, err)
			}
			if err := b.publish(ctx, key, uri); err != nil {
				return fmt.Errorf("s3 commit %s: %w", id, err)
			}
		case strings.HasPrefix(key, delPrefix):
			uri, err := url.PathUnescape(strings.TrimPrefix(key, delPrefix))
			if err != nil {
				return fmt.Errorf("s3 commit %s: %w", id, err)
			}
			if err := b.deleteObject(ctx, b.docKey(uri)); err != nil {
				return fmt.Errorf("s3 commit %s: %w", id, err)
			}
		}
	}

	return b.discard(ctx, id, keys)
}

// RollbackTransaction removes the transaction and its staged writes.
func (b *Backend) RollbackTransaction(ctx context.Context, id string) error {
	if b.closed.Load() {
		return docerrors.ErrClosed
	}
	if err := b.requireOpen(ctx, id); err != nil {
		return err
	}

	keys, err := b.list(ctx, b.txnPrefix(id))
	if err != nil {
		return err
	}
	return b.discard(ctx, id, keys)
}

// Close is a no-op; the S3 SDK client needs no cleanup.
func (b *Backend) Close() error {
	b.closed.Store(true)
	return nil
}

func (b *Backend) check(uri string) error {
	if b.closed.Load() {
		return docerrors.ErrClosed
	}
	return remote.ValidateURI(uri)
}

func (b *Backend) requireOpen(ctx context.Context, id string) error {
	ok, err := b.exists(ctx, b.txnMarker(id))
	if err != nil {
		return err
	}
	if !ok {
		return remote.TransactionNotFound(id)
	}
	return nil
}

// publish copies a staged object to its committed key.
func (b *Backend) publish(ctx context.Context, stagedKey, uri string) error {
	doc, err := b.getObject(ctx, uri, stagedKey)
	if err != nil {
		return err
	}
	defer doc.Body.Close()

	content, err := io.ReadAll(doc.Body)
	if err != nil {
		return err
	}
	return b.putObject(ctx, b.docKey(uri), doc.Format.String(), doc.Mimetype, content)
}

// discard deletes the transaction's objects, marker last.
func (b *Backend) discard(ctx context.Context, id string, keys []string) error {
	marker := b.txnMarker(id)
	for _, key := range keys {
		if key == marker {
			continue
		}
		if err := b.deleteObject(ctx, key); err != nil {
			return err
		}
	}
	return b.deleteObject(ctx, marker)
}

func (b *Backend) getObject(ctx context.Context, uri, key string) (*remote.Document, error) {
	out, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, remote.DocumentNotFound(uri)
		}
		return nil, fmt.Errorf("s3 get: %w", err)
	}

	f, _ := format.Parse(out.Metadata[metaFormat])
	return &remote.Document{
		URI:      uri,
		Format:   f,
		Mimetype: aws.ToString(out.ContentType),
		Body:     out.Body,
	}, nil
}

func (b *Backend) putObject(ctx context.Context, key, formatName, mimetype string, content []byte) error {
	in := &s3.PutObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(content),
	}
	if formatName != "" {
		in.Metadata = map[string]string{metaFormat: formatName}
	}
	if mimetype != "" {
		in.ContentType = aws.String(mimetype)
	}

	if _, err := b.client.PutObject(ctx, in); err != nil {
		return fmt.Errorf("s3 put: %w", err)
	}
	return nil
}

func (b *Backend) exists(ctx context.Context, key string) (bool, error) {
	_, err := b.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("s3 head: %w", err)
	}
	return true, nil
}

// deleteObject removes key. S3 delete is already idempotent.
func (b *Backend) deleteObject(ctx context.Context, key string) error {
	_, err := b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("s3 delete: %w", err)
	}
	return nil
}

func (b *Backend) list(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	paginator := s3.NewListObjectsV2Paginator(b.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(b.bucket),
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("s3 list: %w", err)
		}
		for _, obj := range page.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
	}
	return keys, nil
}

func isNotFound(err error) bool {
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return true
	}
	var notFound *types.NotFound
	if errors.As(err, &notFound) {
		return true
	}
	// HeadObject returns a generic error with status 404.
	var respErr interface{ HTTPStatusCode() int }
	if errors.As(err, &respErr) && respErr.HTTPStatusCode() == 404 {
		return true
	}
	return false
}
