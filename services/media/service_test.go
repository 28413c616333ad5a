package media

import (
	"bytes"
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"sponsorportal/pkg/config"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type storeFake struct {
	puts    map[string][]byte
	removed []string
	err     error
}

func (f *storeFake) PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	if f.err != nil {
		return minio.UploadInfo{}, f.err
	}
	b, _ := io.ReadAll(reader)
	f.puts[objectName] = b
	return minio.UploadInfo{Bucket: bucketName, Key: objectName, Size: objectSize}, nil
}

func (f *storeFake) RemoveObject(ctx context.Context, bucketName, objectName string, opts minio.RemoveObjectOptions) error {
	f.removed = append(f.removed, objectName)
	return f.err
}

// fileHeader builds a real multipart.FileHeader by parsing a multipart request.
func fileHeader(t *testing.T, name, contentType string, content []byte) *multipart.FileHeader {
	t.Helper()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="image"; filename="`+name+`"`)
	h.Set("Content-Type", contentType)
	part, err := w.CreatePart(h)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	require.NoError(t, req.ParseMultipartForm(32<<20))
	return req.MultipartForm.File["image"][0]
}

func newTestService(store objectStore) *Service {
	cfg := &config.Config{}
	cfg.Minio.Endpoint = "minio:9000"
	cfg.Minio.BucketName = "portal"
	svc := newService(store, cfg)
	svc.now = func() time.Time { return time.UnixMilli(1710000000123) }
	return svc
}

func TestUpload(t *testing.T) {
	store := &storeFake{puts: map[string][]byte{}}
	svc := newTestService(store)

	obj, err := svc.Upload(context.Background(), "user-1", "feed", fileHeader(t, "my photo.png", "image/png", []byte("png-bytes")))
	require.NoError(t, err)
	require.Equal(t, "feed/user-1_1710000000123_my_photo.png", obj.Key)
	require.Equal(t, "http://minio:9000/portal/feed/user-1_1710000000123_my_photo.png", obj.URL)
	require.Equal(t, []byte("png-bytes"), store.puts[obj.Key])
}

func TestUploadRejectsNonImage(t *testing.T) {
	store := &storeFake{puts: map[string][]byte{}}
	svc := newTestService(store)

	_, err := svc.Upload(context.Background(), "user-1", "feed", fileHeader(t, "notes.txt", "text/plain", []byte("hello")))
	require.ErrorIs(t, err, ErrNotImage)
	require.Empty(t, store.puts)
}

func TestUploadRejectsLargeFiles(t *testing.T) {
	store := &storeFake{puts: map[string][]byte{}}
	svc := newTestService(store)

	_, err := svc.Upload(context.Background(), "user-1", "feed", fileHeader(t, "big.jpg", "image/jpeg", make([]byte, MaxImageSize+1)))
	require.ErrorIs(t, err, ErrTooLarge)
	require.Empty(t, store.puts)
}

func TestKeyStripsDirectories(t *testing.T) {
	svc := newTestService(&storeFake{})
	require.Equal(t, "diary-images/u_1710000000123_evil.png", svc.Key("u", "/diary-images/", "../../evil.png"))
}

func TestDelete(t *testing.T) {
	store := &storeFake{}
	svc := newTestService(store)

	require.NoError(t, svc.Delete(context.Background(), "feed/a.png"))
	require.Equal(t, []string{"feed/a.png"}, store.removed)

	store.err = errors.New("unreachable")
	require.Error(t, svc.Delete(context.Background(), "feed/b.png"))
}
