// Package registry maps event types to handlers. Handler modules add
// themselves with a Register call from main, so the processor never needs
// to know which types exist.
package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/alfredjeanlab/menujobs/internal/model"
)

// Handler processes one event. It must be idempotent: delivery is
// at-least-once and the same event may be handled more than once.
type Handler func(ctx context.Context, resourceID string, payload model.Payload) error

// Decoder builds the payload a handler receives from the stored JSON.
type Decoder func(raw []byte) (model.Payload, error)

type entry struct {
	handler Handler
	decode  Decoder // nil means model.DecodePayload
}

// Registry is a concurrency-safe table of event type -> handler.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]entry
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{handlers: make(map[string]entry)}
}

// Register associates h with eventType. Payloads are decoded with
// model.DecodePayload, so eventType must be one of the types it knows;
// events of any other type fail permanently at dispatch. Use
// RegisterWithDecoder for those. Registering a type twice is a programming
// error and panics, as http.ServeMux does.
func (r *Registry) Register(eventType string, h Handler) {
	r.add(eventType, entry{handler: h})
}

// RegisterWithDecoder associates h with eventType and decodes its payloads
// with decode instead of model.DecodePayload.
func (r *Registry) RegisterWithDecoder(eventType string, decode Decoder, h Handler) {
	if decode == nil {
		panic("registry: nil decoder for " + eventType)
	}
	r.add(eventType, entry{handler: h, decode: decode})
}

func (r *Registry) add(eventType string, e entry) {
	if eventType == "" {
		panic("registry: empty event type")
	}
	if e.handler == nil {
		panic("registry: nil handler for " + eventType)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.handlers[eventType]; dup {
		panic("registry: multiple registrations for " + eventType)
	}
	r.handlers[eventType] = e
}

// Lookup returns the handler for eventType.
func (r *Registry) Lookup(eventType string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.handlers[eventType]
	return e.handler, ok
}

// Types returns all registered event types, sorted.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.handlers))
	for t := range r.handlers {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// Dispatch decodes raw into the payload type for eventType and runs the
// registered handler. handled is false, with a nil error, when no handler is
// registered. A payload that cannot be decoded is a permanent failure.
func (r *Registry) Dispatch(ctx context.Context, eventType, resourceID string, raw []byte) (handled bool, err error) {
	r.mu.RLock()
	e, ok := r.handlers[eventType]
	r.mu.RUnlock()
	if !ok {
		return false, nil
	}

	var payload model.Payload
	if e.decode != nil {
		payload, err = e.decode(raw)
		if err != nil {
			err = fmt.Errorf("decode %s payload: %w", eventType, err)
		}
	} else {
		payload, err = model.DecodePayload(eventType, raw)
	}
	if err != nil {
		return true, Permanent(err)
	}
	return true, e.handler(ctx, resourceID, payload)
}

// JSON returns a Decoder that unmarshals into a fresh *T.
func JSON[T any, PT interface {
	*T
	model.Payload
}]() Decoder {
	return func(raw []byte) (model.Payload, error) {
		if len(raw) == 0 {
			return nil, errors.New("empty")
		}
		p := PT(new(T))
		if err := json.Unmarshal(raw, p); err != nil {
			return nil, err
		}
		return p, nil
	}
}

// Typed adapts a handler over one concrete payload type. A payload of any
// other type is rejected as a permanent failure.
func Typed[P model.Payload](fn func(ctx context.Context, resourceID string, payload P) error) Handler {
	return func(ctx context.Context, resourceID string, payload model.Payload) error {
		p, ok := payload.(P)
		if !ok {
			return Permanent(fmt.Errorf("unexpected payload type %T", payload))
		}
		return fn(ctx, resourceID, p)
	}
}

// permanentError marks a failure that retrying cannot fix.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return "permanent: " + e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent wraps err so the processor dead-letters the event without
// further retries. Permanent(nil) returns nil.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	if IsPermanent(err) {
		return err
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err, or any error it wraps, was marked with
// Permanent.
func IsPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}
