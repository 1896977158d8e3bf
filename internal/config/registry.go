package config

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/MrWong99/parley/internal/quota"
	"github.com/MrWong99/parley/pkg/provider/llm"
	"github.com/MrWong99/parley/pkg/provider/stt"
	"github.com/MrWong99/parley/pkg/provider/tts"
	"github.com/MrWong99/parley/pkg/provider/vad"
)

// ErrProviderNotRegistered is returned by Create* methods when no factory has
// been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// QuotaFactory opens a quota store. The returned release func closes any
// connections and is never nil on success.
type QuotaFactory func(ctx context.Context, cfg QuotaConfig) (quota.Store, func(), error)

// Registry maps provider names to their constructor functions for each
// provider type. It is safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	stt   map[string]func(ProviderEntry) (stt.Provider, error)
	llm   map[string]func(ProviderEntry) (llm.Provider, error)
	tts   map[string]func(ProviderEntry) (tts.Provider, error)
	vad   map[string]func(ProviderEntry) (vad.Engine, error)
	quota map[QuotaBackend]QuotaFactory
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		stt:   make(map[string]func(ProviderEntry) (stt.Provider, error)),
		llm:   make(map[string]func(ProviderEntry) (llm.Provider, error)),
		tts:   make(map[string]func(ProviderEntry) (tts.Provider, error)),
		vad:   make(map[string]func(ProviderEntry) (vad.Engine, error)),
		quota: make(map[QuotaBackend]QuotaFactory),
	}
}

// RegisterSTT registers an STT provider factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterSTT(name string, factory func(ProviderEntry) (stt.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stt[name] = factory
}

// RegisterLLM registers an LLM provider factory under name.
func (r *Registry) RegisterLLM(name string, factory func(ProviderEntry) (llm.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.llm[name] = factory
}

// RegisterTTS registers a TTS provider factory under name.
func (r *Registry) RegisterTTS(name string, factory func(ProviderEntry) (tts.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tts[name] = factory
}

// RegisterVAD registers a VAD engine factory under name.
func (r *Registry) RegisterVAD(name string, factory func(ProviderEntry) (vad.Engine, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.vad[name] = factory
}

// RegisterQuota registers a quota store factory for backend.
func (r *Registry) RegisterQuota(backend QuotaBackend, factory QuotaFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.quota[backend] = factory
}

// CreateSTT instantiates an STT provider using the factory registered under entry.Name.
// Returns [ErrProviderNotRegistered] if no factory has been registered for that name.
func (r *Registry) CreateSTT(entry ProviderEntry) (stt.Provider, error) {
	r.mu.RLock()
	factory, ok := r.stt[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: stt/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateLLM instantiates an LLM provider using the factory registered under entry.Name.
func (r *Registry) CreateLLM(entry ProviderEntry) (llm.Provider, error) {
	r.mu.RLock()
	factory, ok := r.llm[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: llm/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateTTS instantiates a TTS provider using the factory registered under entry.Name.
func (r *Registry) CreateTTS(entry ProviderEntry) (tts.Provider, error) {
	r.mu.RLock()
	factory, ok := r.tts[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: tts/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateVAD instantiates a VAD engine using the factory registered under entry.Name.
func (r *Registry) CreateVAD(entry ProviderEntry) (vad.Engine, error) {
	r.mu.RLock()
	factory, ok := r.vad[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: vad/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateQuota opens the quota store for cfg.Backend.
func (r *Registry) CreateQuota(ctx context.Context, cfg QuotaConfig) (quota.Store, func(), error) {
	r.mu.RLock()
	factory, ok := r.quota[cfg.Backend]
	r.mu.RUnlock()
	if !ok {
		return nil, nil, fmt.Errorf("%w: quota/%q", ErrProviderNotRegistered, cfg.Backend)
	}
	return factory(ctx, cfg)
}
