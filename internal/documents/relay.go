// Package documents stores claim attachments in an S3 bucket and resolves
// stored references back to fetchable locations.
package documents

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/oklog/ulid/v2"

	"github.com/Dan9191/claims-service/internal/utils"
)

// ErrDocumentNotFound is returned when a key does not resolve to an object
var ErrDocumentNotFound = errors.New("document not found")

// StorageError reports a bucket or transport failure
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// Metadata describes an upload
type Metadata struct {
	Filename    string
	ContentType string
	OwnerID     string
}

// Reference is what a claim records about its stored document
type Reference struct {
	Key         string
	URL         string
	Name        string
	ContentType string
	Size        int64
}

// Locator is a fetchable address for a stored document
type Locator struct {
	URL       string
	ExpiresAt time.Time
}

// Object is an open document stream
type Object struct {
	Body        io.ReadCloser
	ContentType string
	Name        string
	Size        int64
}

// StoredObject is a bucket listing entry
type StoredObject struct {
	Key          string
	LastModified time.Time
}

type objectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	CreateBucket(ctx context.Context, params *s3.CreateBucketInput, optFns ...func(*s3.Options)) (*s3.CreateBucketOutput, error)
}

// Presigner defines the interface for presigning S3 requests
type Presigner interface {
	PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// Options configure a Relay
type Options struct {
	Bucket        string
	Region        string
	PublicBaseURL string
	PresignTTL    time.Duration
}

// Relay uploads and resolves claim documents
type Relay struct {
	api       objectAPI
	presigner Presigner
	opts      Options
}

// NewRelay builds a relay over an S3 client
func NewRelay(client *s3.Client, opts Options) *Relay {
	return newRelay(client, s3.NewPresignClient(client), opts)
}

func newRelay(api objectAPI, presigner Presigner, opts Options) *Relay {
	if opts.PresignTTL <= 0 {
		opts.PresignTTL = 15 * time.Minute
	}
	opts.PublicBaseURL = strings.TrimRight(opts.PublicBaseURL, "/")
	return &Relay{api: api, presigner: presigner, opts: opts}
}

// ObjectKey builds the key for a new upload: claims/<owner>/<ulid>/<name>
func ObjectKey(ownerID, filename string) string {
	return "claims/" + ownerID + "/" + ulid.Make().String() + "/" + utils.SanitizeFilename(filename)
}

// Store uploads content under a fresh key and returns its reference
func (r *Relay) Store(ctx context.Context, content []byte, meta Metadata) (*Reference, error) {
	key := ObjectKey(meta.OwnerID, meta.Filename)
	contentType := utils.DetectContentType(meta.ContentType, meta.Filename, content)

	_, err := r.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(r.opts.Bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(content),
		ContentLength: aws.Int64(int64(len(content))),
		ContentType:   aws.String(contentType),
		Metadata: map[string]string{
			"original-name": url.QueryEscape(meta.Filename),
			"owner-id":      meta.OwnerID,
			"sha256":        utils.ContentDigest(content),
		},
	})
	if err != nil {
		return nil, &StorageError{Op: "put", Err: err}
	}

	return &Reference{
		Key:         key,
		URL:         r.PublicURL(key),
		Name:        meta.Filename,
		ContentType: contentType,
		Size:        int64(len(content)),
	}, nil
}

// PublicURL returns the unauthenticated address of key
func (r *Relay) PublicURL(key string) string {
	if r.opts.PublicBaseURL != "" {
		return r.opts.PublicBaseURL + "/" + escapeKey(key)
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", r.opts.Bucket, r.opts.Region, escapeKey(key))
}

// Resolve checks key exists and returns a fetchable locator. Without a public
// base URL the locator is a presigned GET.
func (r *Relay) Resolve(ctx context.Context, key string) (*Locator, error) {
	if _, err := r.head(ctx, key); err != nil {
		return nil, err
	}

	if r.opts.PublicBaseURL != "" {
		return &Locator{URL: r.PublicURL(key)}, nil
	}

	req, err := r.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(r.opts.Bucket),
		Key:    aws.String(key),
	}, func(o *s3.PresignOptions) { o.Expires = r.opts.PresignTTL })
	if err != nil {
		return nil, &StorageError{Op: "presign", Err: err}
	}
	return &Locator{URL: req.URL, ExpiresAt: time.Now().Add(r.opts.PresignTTL)}, nil
}

// Open streams the object at key. The caller closes Body.
func (r *Relay) Open(ctx context.Context, key string) (*Object, error) {
	out, err := r.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(r.opts.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, classify("get", err)
	}

	name := key[strings.LastIndex(key, "/")+1:]
	if original, ok := out.Metadata["original-name"]; ok {
		if unescaped, err := url.QueryUnescape(original); err == nil && unescaped != "" {
			name = unescaped
		}
	}

	return &Object{
		Body:        out.Body,
		ContentType: aws.ToString(out.ContentType),
		Name:        name,
		Size:        aws.ToInt64(out.ContentLength),
	}, nil
}

// Delete removes the object at key
func (r *Relay) Delete(ctx context.Context, key string) error {
	_, err := r.api.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(r.opts.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return &StorageError{Op: "delete", Err: err}
	}
	return nil
}

// List returns every object under prefix
func (r *Relay) List(ctx context.Context, prefix string) ([]StoredObject, error) {
	var objects []StoredObject
	p := s3.NewListObjectsV2Paginator(r.api, &s3.ListObjectsV2Input{
		Bucket: aws.String(r.opts.Bucket),
		Prefix: aws.String(prefix),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, &StorageError{Op: "list", Err: err}
		}
		for _, o := range page.Contents {
			objects = append(objects, StoredObject{
				Key:          aws.ToString(o.Key),
				LastModified: aws.ToTime(o.LastModified),
			})
		}
	}
	return objects, nil
}

// EnsureBucket creates the bucket when it does not exist
func (r *Relay) EnsureBucket(ctx context.Context) error {
	_, err := r.api.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(r.opts.Bucket)})
	if err == nil {
		return nil
	}
	if !isNotFound(err) {
		return &StorageError{Op: "head bucket", Err: err}
	}

	in := &s3.CreateBucketInput{Bucket: aws.String(r.opts.Bucket)}
	if r.opts.Region != "" && r.opts.Region != "us-east-1" {
		in.CreateBucketConfiguration = &types.CreateBucketConfiguration{
			LocationConstraint: types.BucketLocationConstraint(r.opts.Region),
		}
	}
	if _, err := r.api.CreateBucket(ctx, in); err != nil {
		var owned *types.BucketAlreadyOwnedByYou
		if errors.As(err, &owned) {
			return nil
		}
		return &StorageError{Op: "create bucket", Err: err}
	}
	return nil
}

func (r *Relay) head(ctx context.Context, key string) (*s3.HeadObjectOutput, error) {
	out, err := r.api.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(r.opts.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, classify("head", err)
	}
	return out, nil
}

func classify(op string, err error) error {
	if isNotFound(err) {
		return ErrDocumentNotFound
	}
	return &StorageError{Op: op, Err: err}
}

func isNotFound(err error) bool {
	var noKey *types.NoSuchKey
	var notFound *types.NotFound
	if errors.As(err, &noKey) || errors.As(err, &notFound) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey":
			return true
		}
	}
	return false
}

func escapeKey(key string) string {
	parts := strings.Split(key, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}
