package store

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3Store 遠端成品儲存。支援 MinIO：
// AWS_ENDPOINT_URL_S3 指定端點，AWS_S3_FORCE_PATH_STYLE=true 走路徑式
type S3Store struct {
	client *s3.Client
	bucket string
	prefix string
}

// NewS3Store 創建 S3 儲存
func NewS3Store(ctx context.Context, bucket, prefix string) (*S3Store, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, err
	}
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if ep := os.Getenv("AWS_ENDPOINT_URL_S3"); ep != "" {
			o.BaseEndpoint = aws.String(ep)
		}
		if strings.EqualFold(os.Getenv("AWS_S3_FORCE_PATH_STYLE"), "true") {
			o.UsePathStyle = true
		}
	})
	return &S3Store{client: client, bucket: bucket, prefix: strings.Trim(prefix, "/")}, nil
}

func (s *S3Store) objectKey(path string) string {
	if s.prefix == "" {
		return path
	}
	return s.prefix + "/" + path
}

// Write 寫入成品
func (s *S3Store) Write(ctx context.Context, key ArtifactKey, data []byte) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(key.Path())),
		Body:   bytes.NewReader(data),
	})
	return err
}

// Read 讀取成品
func (s *S3Store) Read(ctx context.Context, key ArtifactKey) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(key.Path())),
	})
	if err != nil {
		var notFound *types.NoSuchKey
		if errors.As(err, &notFound) {
			return nil, ErrArtifactNotFound
		}
		return nil, err
	}
	defer out.Body.Close()
	return io.ReadAll(out.Body)
}

// List 列出任務的所有成品鍵
func (s *S3Store) List(ctx context.Context, threadID, taskID string) ([]ArtifactKey, error) {
	prefix := s.objectKey(threadID + "/" + taskID + "/")
	var keys []ArtifactKey

	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, obj := range page.Contents {
			path := strings.TrimPrefix(aws.ToString(obj.Key), s.prefix+"/")
			if s.prefix == "" {
				path = aws.ToString(obj.Key)
			}
			key, err := ParseArtifactPath(path)
			if err != nil {
				continue
			}
			keys = append(keys, key)
		}
	}
	return keys, nil
}

// DeleteTask 刪除任務的所有成品
func (s *S3Store) DeleteTask(ctx context.Context, threadID, taskID string) error {
	keys, err := s.List(ctx, threadID, taskID)
	if err != nil {
		return err
	}
	for _, key := range keys {
		_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(s.objectKey(key.Path())),
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// Close 遠端客戶端無需釋放
func (s *S3Store) Close() error {
	return nil
}
