package factory

import (
	"errors"
	"fmt"

	"ConnSpectra/internal/config"
	"ConnSpectra/internal/model"

	log "github.com/sirupsen/logrus"
)

// ErrUnknownWriter is returned when a configured writer type has no registered factory.
var ErrUnknownWriter = errors.New("unknown writer type")

// WriterFactory builds a writer from its definition. The full config is passed for
// writers that need shared settings such as the attack window.
type WriterFactory func(def config.WriterDef, cfg *config.Config) (model.Writer, error)

// registry holds the mapping of writer types to their factory functions.
var registry = make(map[string]WriterFactory)

// RegisterWriter registers a new writer type with its factory function.
func RegisterWriter(name string, factory WriterFactory) {
	if _, exists := registry[name]; exists {
		panic(fmt.Sprintf("writer type '%s' already registered", name))
	}
	registry[name] = factory
}

// Registered reports whether a factory exists for the writer type.
func Registered(name string) bool {
	_, ok := registry[name]
	return ok
}

// CreateWriters builds every enabled writer in the config. On failure, writers that
// were already created are closed.
func CreateWriters(cfg *config.Config) ([]model.Writer, error) {
	var writers []model.Writer

	for _, def := range cfg.Writers {
		if !def.Enabled {
			continue
		}
		log.Printf("Creating writer of type: '%s'", def.Type)

		factory, ok := registry[def.Type]
		if !ok {
			closeAll(writers)
			return nil, fmt.Errorf("%w: '%s'", ErrUnknownWriter, def.Type)
		}

		w, err := factory(def, cfg)
		if err != nil {
			closeAll(writers)
			return nil, fmt.Errorf("error creating writer type '%s': %w", def.Type, err)
		}
		writers = append(writers, w)
	}

	return writers, nil
}

func closeAll(writers []model.Writer) {
	for _, w := range writers {
		if err := w.Close(); err != nil {
			log.Printf("Error closing writer '%s': %v", w.Type(), err)
		}
	}
}
