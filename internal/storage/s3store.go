package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"go.uber.org/zap"

	"clouddrive/internal/config"
	"clouddrive/internal/domain"
)

const (
	defaultTimeout = 30 * time.Second
	partSize       = 5 * 1024 * 1024 // минимальный размер части multipart загрузки
)

// S3Store - блобы в S3-совместимом бакете
type S3Store struct {
	client *s3.Client
	bucket string
	prefix string
	logger *zap.Logger
}

// NewS3Store создаёт клиента и проверяет доступ к бакету
func NewS3Store(ctx context.Context, cfg config.S3Config, logger *zap.Logger) (*S3Store, error) {
	if cfg.AccessKeyID == "" || cfg.SecretAccessKey == "" || cfg.Bucket == "" {
		return nil, fmt.Errorf("missing required configuration: accessKeyID, secretAccessKey, and bucket are required")
	}

	creds := aws.NewCredentialsCache(credentials.NewStaticCredentialsProvider(
		cfg.AccessKeyID,
		cfg.SecretAccessKey,
		"",
	))

	opts := s3.Options{
		Region:           cfg.Region,
		Credentials:      creds,
		RetryMode:        aws.RetryModeAdaptive,
		RetryMaxAttempts: 3,
	}
	// Для MinIO и других S3-совместимых хранилищ
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
		opts.UsePathStyle = true
	}

	store := &S3Store{
		client: s3.New(opts),
		bucket: cfg.Bucket,
		prefix: cleanDir(cfg.Prefix),
		logger: logger.Named("s3store"),
	}

	headCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	if _, err := store.client.HeadBucket(headCtx, &s3.HeadBucketInput{
		Bucket: aws.String(cfg.Bucket),
	}); err != nil {
		return nil, fmt.Errorf("unable to access bucket %s: %w", cfg.Bucket, err)
	}

	return store, nil
}

// Write загружает поток одним PutObject, а потоки больше partSize - по частям
func (s *S3Store) Write(ctx context.Context, r io.Reader, suggestedName string) (*Object, error) {
	name := generateStorageName(suggestedName)
	key := s.key(name)

	first, err := readPart(r)
	if err != nil {
		return nil, &domain.StorageError{Op: "write", Name: name, Err: err}
	}

	if len(first) < partSize {
		if _, err := s.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
			Body:   bytes.NewReader(first),
		}); err != nil {
			return nil, &domain.StorageError{Op: "write", Name: name, Err: err}
		}
		return &Object{Name: name, Size: int64(len(first))}, nil
	}

	size, err := s.writeMultipart(ctx, key, first, r)
	if err != nil {
		return nil, &domain.StorageError{Op: "write", Name: name, Err: err}
	}

	s.logger.Debug("multipart upload completed", zap.String("key", key), zap.Int64("size", size))
	return &Object{Name: name, Size: size}, nil
}

func (s *S3Store) writeMultipart(ctx context.Context, key string, first []byte, r io.Reader) (int64, error) {
	created, err := s.client.CreateMultipartUpload(ctx, &s3.CreateMultipartUploadInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return 0, fmt.Errorf("failed to create multipart upload: %w", err)
	}
	uploadID := created.UploadId

	abort := func(cause error) (int64, error) {
		// Отмена в отдельном контексте: исходный мог быть отменён
		abortCtx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
		defer cancel()

		if _, err := s.client.AbortMultipartUpload(abortCtx, &s3.AbortMultipartUploadInput{
			Bucket:   aws.String(s.bucket),
			Key:      aws.String(key),
			UploadId: uploadID,
		}); err != nil {
			s.logger.Warn("failed to abort multipart upload", zap.String("key", key), zap.Error(err))
		}
		return 0, cause
	}

	var (
		parts []types.CompletedPart
		size  int64
		chunk = first
	)
	for number := int32(1); len(chunk) > 0; number++ {
		result, err := s.client.UploadPart(ctx, &s3.UploadPartInput{
			Bucket:     aws.String(s.bucket),
			Key:        aws.String(key),
			PartNumber: aws.Int32(number),
			UploadId:   uploadID,
			Body:       bytes.NewReader(chunk),
		})
		if err != nil {
			return abort(fmt.Errorf("failed to upload part %d: %w", number, err))
		}

		parts = append(parts, types.CompletedPart{
			ETag:       result.ETag,
			PartNumber: aws.Int32(number),
		})
		size += int64(len(chunk))

		if chunk, err = readPart(r); err != nil {
			return abort(err)
		}
	}

	if _, err := s.client.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:          aws.String(s.bucket),
		Key:             aws.String(key),
		UploadId:        uploadID,
		MultipartUpload: &types.CompletedMultipartUpload{Parts: parts},
	}); err != nil {
		return abort(fmt.Errorf("failed to complete multipart upload: %w", err))
	}

	return size, nil
}

func (s *S3Store) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	if err := validateName("open", name); err != nil {
		return nil, err
	}

	result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(name)),
	})
	if err != nil {
		return nil, &domain.StorageError{Op: "open", Name: name, Err: notFoundAware(err)}
	}
	return result.Body, nil
}

// Delete проверяет существование объекта перед удалением, отсутствующий объект не ошибка
func (s *S3Store) Delete(ctx context.Context, name string) error {
	exists, err := s.Exists(ctx, name)
	if err != nil {
		return err
	}
	if !exists {
		s.logger.Info("blob already missing", zap.String("name", name))
		return nil
	}

	if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(name)),
	}); err != nil {
		return &domain.StorageError{Op: "delete", Name: name, Err: err}
	}
	return nil
}

func (s *S3Store) Exists(ctx context.Context, name string) (bool, error) {
	if err := validateName("stat", name); err != nil {
		return false, err
	}

	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(name)),
	})
	if isNoSuchKey(err) {
		return false, nil
	}
	if err != nil {
		return false, &domain.StorageError{Op: "stat", Name: name, Err: err}
	}
	return true, nil
}

// EnsureDir создаёт пустой объект-маркер "dir/", как это делают консоли S3
func (s *S3Store) EnsureDir(ctx context.Context, dir string) error {
	rel := cleanDir(dir)
	if rel == "" {
		return nil
	}

	if _, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(rel) + "/"),
		Body:   bytes.NewReader(nil),
	}); err != nil {
		return &domain.StorageError{Op: "mkdir", Name: rel, Err: err}
	}
	return nil
}

func (s *S3Store) key(name string) string {
	if s.prefix == "" {
		return name
	}
	return path.Join(s.prefix, name)
}

// readPart читает до partSize байт. Пустой результат означает конец потока.
func readPart(r io.Reader) ([]byte, error) {
	buf := make([]byte, partSize)
	n, err := io.ReadFull(r, buf)
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return buf[:n], nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return buf[:n], nil
}

func isNoSuchKey(err error) bool {
	if err == nil {
		return false
	}
	var nsk *types.NoSuchKey
	var nf *types.NotFound
	return errors.As(err, &nsk) || errors.As(err, &nf)
}

// notFoundAware приводит отсутствие ключа к os.ErrNotExist, как у локального хранилища
func notFoundAware(err error) error {
	if isNoSuchKey(err) {
		return fmt.Errorf("%w: %v", os.ErrNotExist, err)
	}
	return err
}
