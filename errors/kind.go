package errors

// Kind is the taxonomy class of an error, used as a log field and metric label.
type Kind string

const (
	KindNone            Kind = ""
	KindConfig          Kind = "config"
	KindInvalidRequest  Kind = "invalid_request"
	KindChannelNotFound Kind = "channel_not_found"
	KindThrottled       Kind = "throttled"
	KindPermanent       Kind = "permanent"
	KindTransient       Kind = "transient"
	KindExport          Kind = "export"
	KindSummarize       Kind = "summarize"
	KindNotify          Kind = "notify"
	KindUnknown         Kind = "unknown"
)

// Order matters: a throttled fetch wrapped by an export step still reports
// as throttled, since the fetch is where it originated.
var kindOrder = []struct {
	sentinel error
	kind     Kind
}{
	{ErrConfig, KindConfig},
	{ErrInvalidRequest, KindInvalidRequest},
	{ErrChannelNotFound, KindChannelNotFound},
	{ErrThrottled, KindThrottled},
	{ErrPermanentFailure, KindPermanent},
	{ErrTransient, KindTransient},
	{ErrExport, KindExport},
	{ErrSummarize, KindSummarize},
	{ErrNotify, KindNotify},
}

// KindOf classifies err against the taxonomy sentinels.
func KindOf(err error) Kind {
	if err == nil {
		return KindNone
	}
	for _, k := range kindOrder {
		if Is(err, k.sentinel) {
			return k.kind
		}
	}
	return KindUnknown
}
