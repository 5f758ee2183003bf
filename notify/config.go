package notify

import (
	"go.uber.org/zap"

	"github.com/teranos/sentinel/am"
	"github.com/teranos/sentinel/internal/httpclient"
	"github.com/teranos/sentinel/logger"
)

// FromConfig assembles the configured targets. The returned closer releases
// broker connections and is safe to call when nothing was opened.
func FromConfig(cfg am.NotifyConfig, client httpclient.Doer, log *zap.SugaredLogger) (*Multi, func(), error) {
	log = logger.OrNop(log)
	var targets []Notifier
	closer := func() {}

	if cfg.Log {
		targets = append(targets, NewLogNotifier(log))
	}
	if cfg.WebhookURL != "" {
		targets = append(targets, NewWebhookNotifier(cfg.WebhookURL, client))
	}
	if cfg.NATSURL != "" {
		n, err := NewNATSNotifier(cfg.NATSURL, cfg.NATSSubject)
		if err != nil {
			return nil, closer, err
		}
		targets = append(targets, n)
		closer = n.Close
	}

	return NewMulti(log, targets...), closer, nil
}
