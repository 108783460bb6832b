package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/oryonaisystem-create/smartbar-system-sub000/internal/shifts"
)

// ObjectStore is the subset of MinIOStorage the report archive needs.
type ObjectStore interface {
	UploadFile(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error
	GetPresignedURL(ctx context.Context, key string, expires time.Duration) (string, error)
}

// ReportArchive stores shift closing reports as JSON objects.
type ReportArchive struct {
	objects ObjectStore
}

func NewReportArchive(o ObjectStore) *ReportArchive {
	return &ReportArchive{objects: o}
}

// ReportKey is the object key of a shift's closing report.
func ReportKey(shiftID string, closedAt time.Time) string {
	return fmt.Sprintf("reports/%s/%s.json", closedAt.UTC().Format("2006/01/02"), shiftID)
}

func (a *ReportArchive) ArchiveClose(ctx context.Context, r shifts.ClosingReport) error {
	b, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal closing report: %w", err)
	}
	key := ReportKey(r.SessionID, r.ClosedAt)
	if err := a.objects.UploadFile(ctx, key, bytes.NewReader(b), int64(len(b)), "application/json"); err != nil {
		return fmt.Errorf("upload %s: %w", key, err)
	}
	return nil
}

// ReportURL returns a temporary download link for the closing report of s.
func (a *ReportArchive) ReportURL(ctx context.Context, s *shifts.Shift, expires time.Duration) (string, error) {
	if s == nil || s.ClosedAt == nil {
		return "", shifts.ErrNotFound
	}
	return a.objects.GetPresignedURL(ctx, ReportKey(s.ID, *s.ClosedAt), expires)
}
