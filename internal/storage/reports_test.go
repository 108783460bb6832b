package storage

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oryonaisystem-create/smartbar-system-sub000/internal/config"
	"github.com/oryonaisystem-create/smartbar-system-sub000/internal/shifts"
)

type fakeObjects struct {
	objects map[string][]byte
	types   map[string]string
	err     error
}

func newFakeObjects() *fakeObjects {
	return &fakeObjects{objects: map[string][]byte{}, types: map[string]string{}}
}

func (f *fakeObjects) UploadFile(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	if f.err != nil {
		return f.err
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	if int64(len(b)) != size {
		return errors.New("size mismatch")
	}
	f.objects[key] = b
	f.types[key] = contentType
	return nil
}

func (f *fakeObjects) GetPresignedURL(ctx context.Context, key string, expires time.Duration) (string, error) {
	if _, ok := f.objects[key]; !ok {
		return "", errors.New("object not found")
	}
	return "https://minio.local/" + key + "?X-Amz-Expires=" + expires.String(), nil
}

func TestReportArchive_ArchiveAndURL(t *testing.T) {
	objects := newFakeObjects()
	a := NewReportArchive(objects)
	closedAt := time.Date(2026, 10, 14, 23, 5, 0, 0, time.UTC)

	err := a.ArchiveClose(context.Background(), shifts.ClosingReport{Event: "cashier_closed", SessionID: "s-1", ClosedAt: closedAt, Difference: -4000})
	require.NoError(t, err)

	key := "reports/2026/10/14/s-1.json"
	require.Contains(t, objects.objects, key)
	require.Equal(t, "application/json", objects.types[key])
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(objects.objects[key], &body))
	require.Equal(t, -40.0, body["difference"])

	url, err := a.ReportURL(context.Background(), &shifts.Shift{ID: "s-1", ClosedAt: &closedAt}, time.Minute)
	require.NoError(t, err)
	require.Contains(t, url, key)

	_, err = a.ReportURL(context.Background(), &shifts.Shift{ID: "s-2"}, time.Minute)
	require.ErrorIs(t, err, shifts.ErrNotFound)
}

func TestReportArchive_UploadError(t *testing.T) {
	objects := newFakeObjects()
	objects.err = errors.New("bucket unreachable")
	err := NewReportArchive(objects).ArchiveClose(context.Background(), shifts.ClosingReport{SessionID: "s-1"})
	require.ErrorContains(t, err, "bucket unreachable")
}

func TestFromConfig(t *testing.T) {
	require.Nil(t, FromConfig(config.MinIOConfig{}))
	c := FromConfig(config.MinIOConfig{Endpoint: "minio:9000", AccessKey: "a", SecretKey: "s"})
	require.Equal(t, "smartbar-reports", c.Bucket)
	require.Equal(t, "minio:9000", c.Endpoint)
}
