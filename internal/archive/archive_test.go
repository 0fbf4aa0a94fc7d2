package archive

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePutter struct {
	bucket, object, contentType string
	body                        []byte
	err                         error
}

func (f *fakePutter) PutObject(_ context.Context, bucket, object string, r io.Reader, _ int64, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	f.bucket, f.object, f.contentType = bucket, object, opts.ContentType
	f.body, _ = io.ReadAll(r)
	return minio.UploadInfo{Bucket: bucket, Key: object}, f.err
}

func TestMinioArchiver_Store(t *testing.T) {
	fake := &fakePutter{}
	a := &MinioArchiver{client: fake, bucket: "outreach-uploads"}

	require.NoError(t, a.Store(context.Background(), UploadKey("run-1"), "text/csv", []byte("Email\na@b.c\n")))
	assert.Equal(t, "outreach-uploads", fake.bucket)
	assert.Equal(t, "uploads/run-1.csv", fake.object)
	assert.Equal(t, "text/csv", fake.contentType)
	assert.Equal(t, "Email\na@b.c\n", string(fake.body))

	fake.err = errors.New("access denied")
	assert.Error(t, a.Store(context.Background(), "k", "text/csv", nil))
}
