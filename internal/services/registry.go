package services

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/insightd/internal/config"
	"github.com/fyrsmithlabs/insightd/internal/engine"
	"github.com/fyrsmithlabs/insightd/internal/store"
	"github.com/fyrsmithlabs/insightd/internal/traits"
)

// Registry provides access to the application's services.
type Registry interface {
	Engine() *engine.Service
	Store() store.Store
	Norms() *traits.NormTable

	// Close releases every owned resource, store last.
	Close() error
}

// registry is the concrete implementation of Registry.
type registry struct {
	engine *engine.Service
	store  store.Store
	norms  *traits.NormTable
}

// Options overrides individual components during construction. Zero-value
// fields are built from configuration.
type Options struct {
	// NormsPath, when set, loads population norms from a JSON file merged
	// over the built-in rows.
	NormsPath string

	// Publisher overrides the outbound event publisher. When nil and
	// events are enabled in config, a NATS publisher is connected.
	Publisher engine.Publisher
}

// NewRegistry builds the full service graph from configuration.
func NewRegistry(cfg *config.Config, logger *zap.Logger, opts Options) (Registry, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	norms, err := loadNorms(opts.NormsPath)
	if err != nil {
		return nil, err
	}

	st, err := openStore(cfg, logger)
	if err != nil {
		return nil, err
	}

	publisher := opts.Publisher
	if publisher == nil && cfg.Events.Enabled {
		publisher, err = engine.NewNATSPublisher(cfg.Events.URL, logger)
		if err != nil {
			_ = st.Close()
			return nil, err
		}
	}

	var engineOpts []engine.Option
	if publisher != nil {
		engineOpts = append(engineOpts, engine.WithPublisher(publisher))
	}
	eng, err := engine.NewService(st, norms, cfg.Engine, logger, engineOpts...)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	return &registry{
		engine: eng,
		store:  st,
		norms:  norms,
	}, nil
}

func loadNorms(path string) (*traits.NormTable, error) {
	if path != "" {
		norms, err := traits.LoadNormsFile(path)
		if err != nil {
			return nil, fmt.Errorf("loading norms: %w", err)
		}
		return norms, nil
	}
	return traits.BuiltinNormTable()
}

func openStore(cfg *config.Config, logger *zap.Logger) (store.Store, error) {
	switch cfg.Storage.Driver {
	case "sqlite":
		return store.OpenSQLite(cfg.Storage.Path, logger)
	default:
		return store.NewMemoryStore(), nil
	}
}

func (r *registry) Engine() *engine.Service { return r.engine }
func (r *registry) Store() store.Store      { return r.store }
func (r *registry) Norms() *traits.NormTable {
	return r.norms
}

func (r *registry) Close() error {
	r.engine.Close()
	return r.store.Close()
}
