package channel

import (
	"context"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/teranos/sentinel/errors"
	"github.com/teranos/sentinel/logger"
)

// deferredEntry is a constructor waiting for first use
type deferredEntry struct {
	typ     string
	factory Factory
	config  map[string]string
}

// Registry owns named channel instances and deferred constructors.
//
// Lookup resolves eager instances first; a deferred entry is constructed on
// first Get and the instance cached under the same name, so every later Get
// returns the identical value. Registering under an existing name replaces
// whatever was there, in either store.
type Registry struct {
	mu        sync.Mutex
	instances map[string]Channel
	deferred  map[string]deferredEntry
	logger    *zap.SugaredLogger
}

// NewRegistry creates an empty channel registry
func NewRegistry(log *zap.SugaredLogger) *Registry {
	return &Registry{
		instances: make(map[string]Channel),
		deferred:  make(map[string]deferredEntry),
		logger:    logger.OrNop(log),
	}
}

// RegisterInstance stores ch under its descriptor name, replacing any
// previous eager or deferred registration.
func (r *Registry) RegisterInstance(ch Channel) {
	name := ch.Descriptor().Name

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.instances[name]; exists {
		r.logger.Infow("Replacing channel instance", logger.FieldChannel, name)
	}
	delete(r.deferred, name)
	r.instances[name] = ch
}

// RegisterDeferred stores a constructor and its config. Nothing is built
// until the first Get.
func (r *Registry) RegisterDeferred(name, typ string, factory Factory, config map[string]string) {
	cfg := make(map[string]string, len(config))
	for k, v := range config {
		cfg[k] = v
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.instances, name)
	r.deferred[name] = deferredEntry{typ: typ, factory: factory, config: cfg}
}

// Get returns the channel registered under name. A deferred entry is
// constructed exactly once. Unknown names return false and change nothing.
func (r *Registry) Get(name string) (Channel, bool) {
	ch, err := r.Resolve(name)
	if err != nil {
		if !errors.IsChannelNotFound(err) {
			r.logger.Errorw("Deferred channel construction failed",
				logger.FieldChannel, name,
				logger.FieldError, err)
		}
		return nil, false
	}
	return ch, true
}

// Resolve is Get with the reason for a miss: ChannelNotFound, or the
// factory's error. A failed construction is not cached; the deferred entry
// stays so a corrected environment can build it later.
func (r *Registry) Resolve(name string) (Channel, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if ch, ok := r.instances[name]; ok {
		return ch, nil
	}

	entry, ok := r.deferred[name]
	if !ok {
		return nil, errors.NewChannelNotFound(name)
	}

	ch, err := entry.factory(name, entry.config)
	if err != nil {
		return nil, errors.Wrapf(err, "construct channel %s", name)
	}

	delete(r.deferred, name)
	r.instances[name] = ch
	r.logger.Debugw("Constructed deferred channel", logger.FieldChannel, name)
	return ch, nil
}

// List returns the sorted, de-duplicated union of eager and deferred names.
func (r *Registry) List() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	seen := make(map[string]struct{}, len(r.instances)+len(r.deferred))
	for name := range r.instances {
		seen[name] = struct{}{}
	}
	for name := range r.deferred {
		seen[name] = struct{}{}
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Status describes a registration without constructing deferred entries.
type Status struct {
	Descriptor
	Deferred bool `json:"deferred"`
}

// Statuses returns one Status per registered name, sorted by name.
func (r *Registry) Statuses() []Status {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Status, 0, len(r.instances)+len(r.deferred))
	for _, ch := range r.instances {
		out = append(out, Status{Descriptor: ch.Descriptor()})
	}
	for name, entry := range r.deferred {
		out = append(out, Status{
			Descriptor: Descriptor{Name: name, Type: entry.typ, Config: RedactConfig(entry.config)},
			Deferred:   true,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Remove drops name from both stores. It reports whether anything was removed.
func (r *Registry) Remove(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, eager := r.instances[name]
	_, lazy := r.deferred[name]
	delete(r.instances, name)
	delete(r.deferred, name)
	return eager || lazy
}

// Fetch resolves name and fetches from it.
func (r *Registry) Fetch(ctx context.Context, name string, req FetchRequest) ([]RawRecord, error) {
	ch, err := r.Resolve(name)
	if err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return ch.Fetch(ctx, req)
}

// Export resolves name and exports records. When records is nil the channel
// is fetched first with opts.Request. An empty non-nil slice exports nothing.
func (r *Registry) Export(ctx context.Context, name string, records []RawRecord, opts ExportOptions) (ExportArtifact, error) {
	ch, err := r.Resolve(name)
	if err != nil {
		return ExportArtifact{}, err
	}
	if records == nil {
		if err := opts.Request.Validate(); err != nil {
			return ExportArtifact{}, err
		}
		records, err = ch.Fetch(ctx, opts.Request)
		if err != nil {
			return ExportArtifact{}, err
		}
	}
	return ch.Export(records, opts)
}
