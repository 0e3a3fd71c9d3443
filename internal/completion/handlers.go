package completion

import (
	"sync"

	"github.com/go-viper/mapstructure/v2"

	"github.com/Iron-Ham/runctl/internal/run"
)

// HandlerFunc receives a finished run's full stdout. A returned error is
// logged by the dispatcher and goes nowhere else.
type HandlerFunc func(stdout string) error

// HandlerRegistry maps correlation keys to single-use handlers. It lives
// only as long as the process. Safe for concurrent use.
type HandlerRegistry struct {
	mu       sync.Mutex
	handlers map[string]HandlerFunc
}

// NewHandlerRegistry creates an empty registry.
func NewHandlerRegistry() *HandlerRegistry {
	return &HandlerRegistry{handlers: make(map[string]HandlerFunc)}
}

// Register stores fn under key, replacing any handler not yet taken.
func (h *HandlerRegistry) Register(key string, fn HandlerFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handlers[key] = fn
}

// Take removes and returns the handler for key. A second Take for the same
// key finds nothing.
func (h *HandlerRegistry) Take(key string) (HandlerFunc, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	fn, ok := h.handlers[key]
	if ok {
		delete(h.handlers, key)
	}
	return fn, ok
}

// Len returns the number of handlers waiting.
func (h *HandlerRegistry) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.handlers)
}

// payloadHints are the Meta.Payload keys the dispatcher understands. A nil
// pointer means the key was absent or null.
type payloadHints struct {
	ProjectID *string `mapstructure:"projectId"`
	RequestID *string `mapstructure:"requestId"`
	RepoPath  *string `mapstructure:"repoPath"`
}

// decodeHints reads payload hints, converting numbers and booleans to
// strings. Undecodable values are treated as absent.
func decodeHints(payload map[string]any) payloadHints {
	var hints payloadHints
	if len(payload) == 0 {
		return hints
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &hints,
	})
	if err != nil {
		return payloadHints{}
	}
	if err := dec.Decode(payload); err != nil {
		return payloadHints{}
	}
	return hints
}

// Key is the handler correlation key for a run:
// onComplete + ":" + (projectId, else requestId, else runID).
// It returns "" when meta carries no OnComplete tag.
func Key(meta *run.Meta, runID string) string {
	if meta == nil || meta.OnComplete == "" {
		return ""
	}
	hints := decodeHints(meta.Payload)
	id := runID
	switch {
	case hints.ProjectID != nil:
		id = *hints.ProjectID
	case hints.RequestID != nil:
		id = *hints.RequestID
	}
	return meta.OnComplete + ":" + id
}

// RootHint returns payload.repoPath, if set.
func RootHint(meta *run.Meta) string {
	if meta == nil {
		return ""
	}
	if hints := decodeHints(meta.Payload); hints.RepoPath != nil {
		return *hints.RepoPath
	}
	return ""
}
