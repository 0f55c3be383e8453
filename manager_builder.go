package detailsmatter

import (
	"go.uber.org/zap"
)

// ManagerOption configures the Manager.
type ManagerOption func(*Manager)

// WithLogger sets a structured logger for the manager.
func WithLogger(logger *zap.Logger) ManagerOption {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger.Named("manager")
		}
	}
}

// WithDefaultModel sets the default model used when the request has none.
func WithDefaultModel(model Model) ManagerOption {
	return func(m *Manager) {
		m.defaultModel = model
	}
}

// WithTokenEstimator replaces the estimator used for rate limiting.
func WithTokenEstimator(est TokenEstimator) ManagerOption {
	return func(m *Manager) {
		m.tokenEstimator = est
	}
}

// NewManager creates a Manager serving the models of defaultProvider.
//
// Example:
//
//	gen, err := gemini.NewWithAPIKey(ctx, apiKey)
//	if err != nil {
//	    return err
//	}
//	manager := detailsmatter.NewManager(gen,
//	    detailsmatter.WithLogger(logger),
//	    detailsmatter.WithDefaultModel(detailsmatter.ModelNanoBanana1),
//	)
func NewManager(defaultProvider ImageProvider, opts ...ManagerOption) *Manager {
	m := New()
	if defaultProvider != nil {
		m.RegisterProvider(defaultProvider)
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}
