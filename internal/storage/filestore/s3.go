package filestore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3Config — параметры S3-совместимого хранилища артефактов.
type S3Config struct {
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
	// Endpoint — для S3-совместимых сервисов (MinIO и т.п.), опционально
	Endpoint string
}

// S3Store — артефакты в бакете S3. Ключи совпадают с LocalStore.
type S3Store struct {
	client   *s3.Client
	bucket   string
	endpoint string
	logger   *slog.Logger
}

var _ Store = (*S3Store)(nil)

// NewS3Store создаёт клиент S3 и проверяет бакет, создавая его при отсутствии.
func NewS3Store(ctx context.Context, cfg S3Config, logger *slog.Logger) (*S3Store, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("ошибка загрузки конфигурации AWS: %w", err)
	}

	var client *s3.Client
	if cfg.Endpoint != "" {
		client = s3.NewFromConfig(awsCfg, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		})
	} else {
		client = s3.NewFromConfig(awsCfg)
	}

	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = fmt.Sprintf("https://s3.%s.amazonaws.com", cfg.Region)
	}

	store := &S3Store{
		client:   client,
		bucket:   cfg.Bucket,
		endpoint: strings.TrimSuffix(endpoint, "/"),
		logger:   logger.With(slog.String("component", "s3store")),
	}

	if err := store.ensureBucket(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

// ensureBucket проверяет наличие бакета и создаёт его при необходимости.
func (s *S3Store) ensureBucket(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)})
	if err == nil {
		return nil
	}

	_, err = s.client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(s.bucket)})
	if err != nil {
		return fmt.Errorf("бакет %q отсутствует и не может быть создан: %w", s.bucket, err)
	}
	s.logger.Info("Создан бакет S3", slog.String("bucket", s.bucket))
	return nil
}

// Endpoint возвращает базовый URL сервиса S3 (для мониторинга зависимостей).
func (s *S3Store) Endpoint() string {
	return s.endpoint
}

// Write буферизует данные, считает SHA-256 и загружает объект.
// Объект появляется в бакете целиком или не появляется вовсе.
func (s *S3Store) Write(ctx context.Context, area, ext string, r io.Reader) (*SaveResult, error) {
	key, err := newKey(area, ext)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	hasher := sha256.New()
	size, err := io.Copy(&buf, io.TeeReader(r, hasher))
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения данных: %w", err)
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(buf.Bytes()),
		ContentLength: aws.Int64(size),
	})
	if err != nil {
		return nil, fmt.Errorf("ошибка загрузки %s в S3: %w", key, err)
	}

	return &SaveResult{
		Key:      key,
		Size:     size,
		Checksum: hex.EncodeToString(hasher.Sum(nil)),
	}, nil
}

// Open возвращает тело объекта. Вызывающий код обязан закрыть ReadCloser.
func (s *S3Store) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	if err := checkKey(key); err != nil {
		return nil, err
	}
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: %s", ErrFileNotFound, key)
		}
		return nil, fmt.Errorf("ошибка чтения %s из S3: %w", key, err)
	}
	return out.Body, nil
}

// Delete удаляет объект. S3 не возвращает ошибку для отсутствующего ключа.
func (s *S3Store) Delete(ctx context.Context, key string) error {
	if err := checkKey(key); err != nil {
		return err
	}
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("ошибка удаления %s из S3: %w", key, err)
	}
	return nil
}

// Exists проверяет наличие объекта через HEAD.
func (s *S3Store) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.head(ctx, key)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, ErrFileNotFound) {
		return false, nil
	}
	return false, err
}

// Size возвращает размер объекта.
func (s *S3Store) Size(ctx context.Context, key string) (int64, error) {
	out, err := s.head(ctx, key)
	if err != nil {
		return 0, err
	}
	return aws.ToInt64(out.ContentLength), nil
}

// List возвращает объекты области постранично.
func (s *S3Store) List(ctx context.Context, area string) ([]ObjectInfo, error) {
	if !validArea(area) {
		return nil, fmt.Errorf("%w: область %q", ErrInvalidKey, area)
	}

	var result []ObjectInfo
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(area + "/"),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("ошибка обхода %s в S3: %w", area, err)
		}
		for _, obj := range page.Contents {
			result = append(result, ObjectInfo{
				Key:     aws.ToString(obj.Key),
				Size:    aws.ToInt64(obj.Size),
				ModTime: aws.ToTime(obj.LastModified),
			})
		}
	}
	return result, nil
}

func (s *S3Store) head(ctx context.Context, key string) (*s3.HeadObjectOutput, error) {
	if err := checkKey(key); err != nil {
		return nil, err
	}
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: %s", ErrFileNotFound, key)
		}
		return nil, fmt.Errorf("ошибка HEAD %s в S3: %w", key, err)
	}
	return out, nil
}

// isNotFound распознаёт ответы S3 об отсутствии объекта.
func isNotFound(err error) bool {
	var nsk *types.NoSuchKey
	var nf *types.NotFound
	return errors.As(err, &nsk) || errors.As(err, &nf)
}
