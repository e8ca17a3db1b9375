package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3API is the subset of the S3 client the filesystem uses
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3Options holds S3 connection settings
type S3Options struct {
	Region     string
	Bucket     string
	AccessKey  string
	SecretKey  string
	Endpoint   string
	DisableSSL bool
	Prefix     string
}

// S3Filesystem stores files as objects. Directories become key prefixes.
type S3Filesystem struct {
	client  S3API
	bucket  string
	prefix  string
	baseURL string
}

// NewS3Filesystem creates an S3-backed filesystem
func NewS3Filesystem(ctx context.Context, opts S3Options) (*S3Filesystem, error) {
	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(opts.Region),
	}
	if opts.AccessKey != "" && opts.SecretKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, ""),
		))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
		if opts.DisableSSL {
			o.EndpointOptions.DisableHTTPS = true
		}
	})

	return NewS3FilesystemWithClient(client, opts), nil
}

// NewS3FilesystemWithClient creates an S3-backed filesystem over an existing client
func NewS3FilesystemWithClient(client S3API, opts S3Options) *S3Filesystem {
	baseURL := fmt.Sprintf("https://%s.s3.%s.amazonaws.com", opts.Bucket, opts.Region)
	if opts.Endpoint != "" {
		baseURL = strings.TrimRight(opts.Endpoint, "/") + "/" + opts.Bucket
	}

	return &S3Filesystem{
		client:  client,
		bucket:  opts.Bucket,
		prefix:  strings.Trim(opts.Prefix, "/"),
		baseURL: baseURL,
	}
}

// WriteFile implements Filesystem
func (f *S3Filesystem) WriteFile(ctx context.Context, opts WriteFileOptions) (string, error) {
	key, err := f.key(opts.Path, opts.Directory)
	if err != nil {
		return "", err
	}

	data, err := DecodeData(opts.Data)
	if err != nil {
		return "", err
	}

	// Object stores have no directories, so Recursive has nothing to create.
	_, err = f.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(f.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(http.DetectContentType(data)),
	})
	if err != nil {
		return "", fmt.Errorf("failed to put object: %w", err)
	}

	return f.baseURL + "/" + key, nil
}

// ReadFile implements Filesystem
func (f *S3Filesystem) ReadFile(ctx context.Context, p string, dir Directory) (string, error) {
	key, err := f.key(p, dir)
	if err != nil {
		return "", err
	}

	out, err := f.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(f.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("failed to get object: %w", err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read object: %w", err)
	}

	return EncodeData(data), nil
}

// DeleteFile implements Filesystem
func (f *S3Filesystem) DeleteFile(ctx context.Context, p string, dir Directory) error {
	key, err := f.key(p, dir)
	if err != nil {
		return err
	}

	// DeleteObject succeeds for missing keys; check first so deletes fail like on disk
	_, err = f.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(f.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to head object: %w", err)
	}

	_, err = f.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(f.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete object: %w", err)
	}
	return nil
}

// key maps a path inside a directory to an object key. With DirectoryNone the
// path is a full key (or an object URL) and must stay under the configured prefix.
func (f *S3Filesystem) key(p string, dir Directory) (string, error) {
	if dir == DirectoryNone {
		p = strings.TrimPrefix(p, f.baseURL+"/")
	}

	clean := path.Clean(p)
	if p == "" || clean == "." || clean == ".." || strings.HasPrefix(clean, "../") || strings.HasPrefix(clean, "/") {
		return "", ErrInvalidPath
	}

	switch dir {
	case DirectoryNone:
		if f.prefix != "" && !strings.HasPrefix(clean, f.prefix+"/") {
			return "", ErrInvalidPath
		}
		return clean, nil
	case DirectoryExternal, DirectoryData, DirectoryCache:
		base := strings.ToLower(string(dir))
		if f.prefix != "" {
			base = f.prefix + "/" + base
		}
		return base + "/" + clean, nil
	default:
		return "", ErrNoDirectory
	}
}

func isNotFound(err error) bool {
	var noSuchKey *types.NoSuchKey
	var notFound *types.NotFound
	return errors.As(err, &noSuchKey) || errors.As(err, &notFound)
}
