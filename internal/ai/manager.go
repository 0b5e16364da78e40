package ai

import (
	"context"
	"fmt"
	"strings"
	"time"
)

type ManagerConfig struct {
	Timeout       int
	MaxInputChars int
}

// Manager is the boundary to the external model services: one generator group
// for text generation and one embedder group for vectorization. It only adds
// per-call timeouts and input hygiene; retry policy belongs to the caller.
type Manager struct {
	generator IGenerator
	embedder  IEmbedder
	cfg       ManagerConfig
}

func NewManager(generator IGenerator, embedder IEmbedder, cfg ManagerConfig) *Manager {
	return &Manager{
		generator: generator,
		embedder:  embedder,
		cfg:       cfg,
	}
}

func (m *Manager) Embed(ctx context.Context, text string, taskType string) ([]float32, error) {
	if m.embedder == nil {
		return nil, fmt.Errorf("embedder not configured")
	}
	if m.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(m.cfg.Timeout)*time.Second)
		defer cancel()
	}
	return m.embedder.Embed(ctx, text, taskType)
}

func (m *Manager) Generate(ctx context.Context, prompt string) (string, error) {
	if m.generator == nil {
		return "", fmt.Errorf("generator not configured")
	}
	if max := m.cfg.MaxInputChars; max > 0 && len(prompt) > max {
		return "", fmt.Errorf("prompt exceeds %d chars", max)
	}
	if m.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(m.cfg.Timeout)*time.Second)
		defer cancel()
	}
	resp, err := m.generator.Generate(ctx, prompt)
	if err != nil {
		return "", err
	}
	text := strings.TrimSpace(resp)
	if text == "" {
		return "", fmt.Errorf("empty ai response")
	}
	return text, nil
}

func (m *Manager) EmbeddingModelName() string {
	if m.embedder == nil {
		return ""
	}
	return m.embedder.ModelName()
}

func (m *Manager) MaxInputChars() int {
	return m.cfg.MaxInputChars
}
