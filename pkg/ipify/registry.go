package ipify

import (
	"github.com/pkg/errors"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Registry collects the fx options a host application composes into its
// container. It is a plain value; nothing is registered globally.
type Registry struct {
	options []fx.Option
}

func NewRegistry(opts ...fx.Option) *Registry {
	return &Registry{options: opts}
}

func (r *Registry) Register(opts ...fx.Option) *Registry {
	r.options = append(r.options, opts...)
	return r
}

func (r *Registry) Options() fx.Option {
	return fx.Options(r.options...)
}

// ServiceFactory builds a fresh Service on every call.
type ServiceFactory func() (Service, error)

func NewServiceFactory(settings *Settings, clients HTTPClientFactory, logger *zap.Logger) ServiceFactory {
	return func() (Service, error) {
		return NewService(clients, logger, settings)
	}
}

// AddAddressService registers the settings, an HTTP client factory and the
// address service. The host must provide a *zap.Logger.
func AddAddressService(r *Registry, settings *Settings) (*Registry, error) {
	if r == nil {
		return nil, errors.Wrap(ErrInvalidArgument, "registry cannot be nil")
	}
	if settings == nil {
		settings = DefaultSettings()
	}

	return r.Register(
		fx.Supply(settings),
		fx.Provide(
			fx.Annotate(NewDefaultHTTPClientFactory, fx.As(new(HTTPClientFactory))),
			NewServiceFactory,
			func(factory ServiceFactory) (Service, error) {
				return factory()
			},
		),
	), nil
}
