package factory

import (
	"fmt"
	"sort"
	"sync"

	"nettop/internal/config"
	"nettop/internal/model"

	"github.com/sirupsen/logrus"
)

// WriterFactory builds a report writer from its exporter definition.
type WriterFactory func(def config.ExporterDef, log logrus.FieldLogger) (model.Writer, error)

var (
	mu       sync.RWMutex
	registry = make(map[string]WriterFactory)
)

// RegisterWriter registers an exporter type with its factory function.
func RegisterWriter(name string, factory WriterFactory) {
	mu.Lock()
	defer mu.Unlock()
	if _, exists := registry[name]; exists {
		panic(fmt.Sprintf("writer type '%s' already registered", name))
	}
	registry[name] = factory
}

// Types lists the registered exporter types.
func Types() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Create builds a writer for every enabled exporter in cfg. If one fails, the writers already
// built are closed.
func Create(cfg *config.Config, log logrus.FieldLogger) ([]model.Writer, error) {
	var writers []model.Writer

	for _, def := range cfg.Exporters {
		if !def.Enabled {
			continue
		}
		log.WithField("type", def.Type).Info("Creating exporter")

		mu.RLock()
		factory, ok := registry[def.Type]
		mu.RUnlock()

		var (
			w   model.Writer
			err error
		)
		if !ok {
			err = fmt.Errorf("%w: unknown exporter type: '%s'", config.ErrConfig, def.Type)
		} else if w, err = factory(def, log); err != nil {
			err = fmt.Errorf("error creating exporter type '%s': %w", def.Type, err)
		}
		if err != nil {
			for _, built := range writers {
				built.Close()
			}
			return nil, err
		}
		writers = append(writers, w)
	}

	return writers, nil
}
