package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tidwall/sjson"

	"github.com/sgracers-leaderboard/internal/domain"
	"github.com/sgracers-leaderboard/internal/store"
)

// storedRecord is a PB record together with the raw document it came from.
type storedRecord struct {
	record  domain.PlayerRecord
	raw     []byte
	version string
	exists  bool
}

// readRecord loads a player's PB document. A missing document yields a new
// record with exists unset.
func (s *LeaderboardService) readRecord(ctx context.Context, platformID, platform string) (*storedRecord, error) {
	start := time.Now()
	doc, err := s.store.Get(ctx, domain.RecordKey(platformID))
	s.metrics.ObserveStore("get", start)
	if store.IsNotFound(err) {
		return &storedRecord{record: domain.NewPlayerRecord(platformID, platform)}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading record %s: %w", platformID, err)
	}

	raw := store.StripBOM(doc.Content)
	var rec domain.PlayerRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("%w: decoding record %s: %v", domain.ErrInternalError, platformID, err)
	}
	if rec.PlatformID == "" {
		rec.PlatformID = platformID
	}
	return &storedRecord{record: rec, raw: raw, version: doc.Version, exists: true}, nil
}

// encode renders the record. Existing documents are patched in place so
// fields this service does not know about survive.
func (r *storedRecord) encode() ([]byte, error) {
	if !r.exists {
		return encodeDocument(r.record)
	}

	table, err := json.Marshal(r.record.BestTimes)
	if err != nil {
		return nil, err
	}
	out, err := sjson.SetRawBytes(r.raw, "bestTimes", table)
	if err != nil {
		return nil, fmt.Errorf("patching bestTimes: %w", err)
	}
	if out, err = sjson.SetBytes(out, "displayName", r.record.DisplayName); err != nil {
		return nil, fmt.Errorf("patching displayName: %w", err)
	}

	var buf bytes.Buffer
	if err := json.Indent(&buf, out, "", "  "); err != nil {
		return nil, fmt.Errorf("formatting record: %w", err)
	}
	return buf.Bytes(), nil
}

// write returns the store write replacing this record.
func (r *storedRecord) write() (store.Write, error) {
	content, err := r.encode()
	if err != nil {
		return store.Write{}, err
	}
	return store.Write{
		Key:             domain.RecordKey(r.record.PlatformID),
		Content:         content,
		ExpectedVersion: r.version,
	}, nil
}

// loadRecords reads every PB record in key order. Documents that fail to
// parse are logged and skipped.
func (s *LeaderboardService) loadRecords(ctx context.Context) ([]domain.PlayerRecord, error) {
	start := time.Now()
	docs, err := store.ListDocuments(ctx, s.store, domain.RecordPrefix)
	s.metrics.ObserveStore("list", start)
	if err != nil {
		return nil, fmt.Errorf("loading records: %w", err)
	}

	records := make([]domain.PlayerRecord, 0, len(docs))
	for _, doc := range docs {
		if doc.Key == domain.IdentityMapKey {
			continue
		}
		var rec domain.PlayerRecord
		if err := json.Unmarshal(store.StripBOM(doc.Content), &rec); err != nil {
			s.logger.Warn("skipping unreadable record", "key", doc.Key, "error", err)
			continue
		}
		if rec.PlatformID == "" {
			rec.PlatformID = strings.TrimSuffix(strings.TrimPrefix(doc.Key, domain.RecordPrefix), ".json")
		}
		records = append(records, rec)
	}
	return records, nil
}

// OrderResult reports a record reordering pass.
type OrderResult struct {
	Records   int    `json:"records"`
	Changed   int    `json:"changed"`
	CommitURL string `json:"commitUrl,omitempty"`
}

// OrderRecords rewrites every PB record whose best times are not in
// canonical map and difficulty order. Times are left untouched.
func (s *LeaderboardService) OrderRecords(ctx context.Context) (*OrderResult, error) {
	result := &OrderResult{}
	info, err := s.commitWithRetry(ctx, "ordering records", func(ctx context.Context) (string, []store.Write, error) {
		docs, err := store.ListDocuments(ctx, s.store, domain.RecordPrefix)
		if err != nil {
			return "", nil, fmt.Errorf("loading records: %w", err)
		}

		result.Records = 0
		var writes []store.Write
		for _, doc := range docs {
			if doc.Key == domain.IdentityMapKey {
				continue
			}
			raw := store.StripBOM(doc.Content)
			var rec domain.PlayerRecord
			if err := json.Unmarshal(raw, &rec); err != nil {
				s.logger.Warn("skipping unreadable record", "key", doc.Key, "error", err)
				continue
			}
			result.Records++

			rec.BestTimes = domain.OrderBestTimes(rec.BestTimes)
			sr := &storedRecord{record: rec, raw: raw, version: doc.Version, exists: true}
			content, err := sr.encode()
			if err != nil {
				return "", nil, fmt.Errorf("encoding %s: %w", doc.Key, err)
			}
			if compact(string(raw)) == compact(string(content)) {
				continue
			}
			writes = append(writes, store.Write{Key: doc.Key, Content: content, ExpectedVersion: doc.Version})
		}
		result.Changed = len(writes)
		if len(writes) == 0 {
			return "", nil, errNoChanges
		}
		return fmt.Sprintf("Ordered best times in %d record(s)", len(writes)), writes, nil
	})
	if errors.Is(err, errNoChanges) {
		return result, nil
	}
	if err != nil {
		return nil, err
	}
	result.CommitURL = info.URL
	s.logger.Info("records ordered", "records", result.Records, "changed", result.Changed)
	return result, nil
}
