package orch

import (
	"fmt"

	"github.com/dkeye/voicenet/internal/core"
	"github.com/dkeye/voicenet/internal/domain"
)

// FactoryFunc adapts a function to core.TransportFactory.
type FactoryFunc func(backend domain.Backend) (core.Transport, error)

func (f FactoryFunc) NewTransport(backend domain.Backend) (core.Transport, error) {
	return f(backend)
}

// Backends builds transports from one constructor per backend. A backend
// without a constructor is reported as not configured.
type Backends map[domain.Backend]func() core.Transport

func (b Backends) NewTransport(backend domain.Backend) (core.Transport, error) {
	ctor, ok := b[backend]
	if !ok || ctor == nil {
		return nil, domain.WrapError(domain.CodeBackendNotConfigured, "transport", fmt.Errorf("no %q backend", backend))
	}
	return ctor(), nil
}
