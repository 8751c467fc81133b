package storage

import (
	"context"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newOfflineStore() *S3ReceiptStore {
	client := s3.New(s3.Options{
		Region:       "us-east-1",
		Credentials:  credentials.NewStaticCredentialsProvider("AKIDEXAMPLE", "secret", ""),
		BaseEndpoint: aws.String("http://localhost:9000"),
		UsePathStyle: true,
	})
	return &S3ReceiptStore{
		client:    client,
		presigner: s3.NewPresignClient(client),
		bucket:    "receipts",
	}
}

func TestGeneratePresignedURL(t *testing.T) {
	store := newOfflineStore()

	signed, err := store.GeneratePresignedURL(context.Background(), "user-1/receipts/tx-1/abc_display.jpg", 15*time.Minute)
	require.NoError(t, err)

	u, err := url.Parse(signed)
	require.NoError(t, err)
	assert.Equal(t, "localhost:9000", u.Host)
	assert.True(t, strings.HasPrefix(u.Path, "/receipts/user-1/receipts/tx-1/"), u.Path)
	assert.Equal(t, "900", u.Query().Get("X-Amz-Expires"))
	assert.NotEmpty(t, u.Query().Get("X-Amz-Signature"))
}
