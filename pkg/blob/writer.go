package blob

import (
	"bytes"
	"context"
	"fmt"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// multipartThreshold is also the S3 minimum part size.
const multipartThreshold = 5 * 1024 * 1024

type objectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Writer uploads objects under a key prefix.
type Writer struct {
	api      objectAPI
	uploader *manager.Uploader
	bucket   string
	prefix   string
}

func NewWriter(c *Client, prefix string) *Writer {
	return &Writer{
		api: c.s3,
		uploader: manager.NewUploader(c.s3, func(u *manager.Uploader) {
			u.PartSize = multipartThreshold
		}),
		bucket: c.bucket,
		prefix: prefix,
	}
}

// Put stores body at prefix/key and returns its s3:// URI. Bodies above the
// multipart threshold go through the upload manager.
func (w *Writer) Put(ctx context.Context, key, contentType string, body []byte) (string, error) {
	full := w.ObjectKey(key)
	in := &s3.PutObjectInput{
		Bucket:      aws.String(w.bucket),
		Key:         aws.String(full),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
	}
	var err error
	if len(body) > multipartThreshold && w.uploader != nil {
		_, err = w.uploader.Upload(ctx, in)
	} else {
		_, err = w.api.PutObject(ctx, in)
	}
	if err != nil {
		return "", fmt.Errorf("blob: put %s: %w", full, err)
	}
	return "s3://" + w.bucket + "/" + full, nil
}

func (w *Writer) ObjectKey(key string) string {
	if w.prefix == "" {
		return key
	}
	return path.Join(w.prefix, key)
}
