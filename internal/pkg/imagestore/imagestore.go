package imagestore

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"

	"papastore/internal/config"
	"papastore/internal/pkg/metrics"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/disintegration/imaging"
	"github.com/google/uuid"
)

// 所有商品图统一成 1000x1000 的 JPEG 再落对象存储，前端按固定尺寸展示。
const (
	targetSize  = 1000
	jpegQuality = 85
)

// ObjectPutter 是上传用到的 S3 能力子集，测试里用假实现替换。
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Store 把图片压成统一规格后写入 R2（S3 兼容）并返回公开 URL。
type Store struct {
	client        ObjectPutter
	bucket        string
	publicBaseURL string
	logger        *slog.Logger
}

// NewS3Client 按存储配置构造 S3 客户端。R2 走自定义 endpoint + path style。
func NewS3Client(ctx context.Context, cfg config.StorageConfig) (*s3.Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = true
	})
	return client, nil
}

func New(client ObjectPutter, cfg config.StorageConfig, logger *slog.Logger) *Store {
	return &Store{
		client:        client,
		bucket:        cfg.Bucket,
		publicBaseURL: cfg.PublicBaseURL,
		logger:        logger,
	}
}

// Upload 压缩并上传一张图片，返回公开访问 URL。
//
// 对象名用 UUID，folder 非空时作为 key 前缀。
func (s *Store) Upload(ctx context.Context, data []byte, folder string) (string, error) {
	optimized, err := s.optimize(data)
	if err != nil {
		metrics.ImageUploadsTotal.WithLabelValues("decode_error").Inc()
		return "", fmt.Errorf("optimize image: %w", err)
	}

	filename := uuid.NewString() + ".jpg"
	key := filename
	if folder != "" {
		key = folder + "/" + filename
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(optimized),
		ContentType: aws.String("image/jpeg"),
	})
	if err != nil {
		metrics.ImageUploadsTotal.WithLabelValues("upload_error").Inc()
		return "", fmt.Errorf("put object %s: %w", key, err)
	}
	metrics.ImageUploadsTotal.WithLabelValues("ok").Inc()

	publicURL := s.publicBaseURL + "/" + key
	s.logger.Info("image uploaded",
		slog.String("key", key),
		slog.Int("original_bytes", len(data)),
		slog.Int("optimized_bytes", len(optimized)))
	return publicURL, nil
}

// optimize 解码任意格式，强制缩放到 targetSize 的正方形并转 JPEG。
func (s *Store) optimize(data []byte) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}

	resized := imaging.Resize(img, targetSize, targetSize, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, resized, imaging.JPEG, imaging.JPEGQuality(jpegQuality)); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}
