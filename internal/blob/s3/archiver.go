package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/seafarergames/tradewinds/internal/domain"
)

// multipartThreshold is the payload size above which the archiver switches
// from a single PutObject to a multipart upload.
const multipartThreshold = 8 * 1024 * 1024

// CycleArchive implements domain.CycleArchiver by serializing a completed
// revenue cycle, including its full RevenueSource and expense audit detail,
// and uploading it to object storage. The bounded in-memory cycle history
// stays small; cold storage keeps everything.
type CycleArchive struct {
	writer domain.BlobWriter
}

var _ domain.CycleArchiver = (*CycleArchive)(nil)

// NewCycleArchive creates a CycleArchive using the given writer.
func NewCycleArchive(writer domain.BlobWriter) *CycleArchive {
	return &CycleArchive{writer: writer}
}

// ArchiveCycle uploads the cycle to cycles/YYYY/MM/<cycle-id>.json,
// partitioned by the cycle's end time.
func (a *CycleArchive) ArchiveCycle(ctx context.Context, cycle domain.RevenueCycle) error {
	payload, err := json.Marshal(cycle)
	if err != nil {
		return fmt.Errorf("s3blob: marshal cycle %s: %w", cycle.ID, err)
	}

	path := cyclePath(cycle)
	if len(payload) > multipartThreshold {
		if err := a.writer.PutMultipart(ctx, path, bytes.NewReader(payload), 0); err != nil {
			return fmt.Errorf("s3blob: archive cycle %s: %w", cycle.ID, err)
		}
		return nil
	}

	if err := a.writer.Put(ctx, path, bytes.NewReader(payload), "application/json"); err != nil {
		return fmt.Errorf("s3blob: archive cycle %s: %w", cycle.ID, err)
	}
	return nil
}

// cyclePath builds the object key for a cycle, partitioned by year/month of
// the cycle end.
//
//	cycles/2026/03/6df1c2ee-... .json
func cyclePath(cycle domain.RevenueCycle) string {
	return fmt.Sprintf("cycles/%s/%s.json", cycle.EndTime.Format("2006/01"), cycle.ID)
}
