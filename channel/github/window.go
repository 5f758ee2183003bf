package github

import (
	"time"

	"go.uber.org/zap"

	"github.com/teranos/sentinel/channel"
	"github.com/teranos/sentinel/logger"
)

// filterWindow dates each record from its raw timestamp and keeps those with
// since <= timestamp <= until. The provider filters "since" server-side on
// some listings only (and by update time), so both bounds are re-applied
// here. Records whose timestamp does not parse are dropped with a warning.
func filterWindow(items []stamped, req channel.FetchRequest, log *zap.SugaredLogger) []channel.RawRecord {
	out := make([]channel.RawRecord, 0, len(items))
	for _, it := range items {
		ts, err := time.Parse(time.RFC3339, it.raw)
		if err != nil {
			log.Warnw("Dropping record with unparsable timestamp",
				logger.FieldKind, it.record.Kind,
				"timestamp", it.raw,
				logger.FieldError, err)
			continue
		}
		if !req.InWindow(ts) {
			continue
		}
		rec := it.record
		rec.Timestamp = ts
		out = append(out, rec)
	}
	return out
}
