// Package lifetime holds the writers that persist connection lifetime reports.
package lifetime

import (
	"fmt"

	"ConnSpectra/internal/analysis"
	"ConnSpectra/internal/config"
	"ConnSpectra/internal/factory"
	"ConnSpectra/internal/model"
)

func init() {
	factory.RegisterWriter("csv", func(def config.WriterDef, cfg *config.Config) (model.Writer, error) {
		return NewCSVWriter(def.CSV.RootPath)
	})
	factory.RegisterWriter("gob", func(def config.WriterDef, cfg *config.Config) (model.Writer, error) {
		return NewGobWriter(def.Gob.RootPath)
	})
	factory.RegisterWriter("series", func(def config.WriterDef, cfg *config.Config) (model.Writer, error) {
		window := analysis.Window{Begin: cfg.Analysis.AttackBegin, Finish: cfg.Analysis.AttackFinish}
		return NewSeriesWriter(def.Series.RootPath, window)
	})
	factory.RegisterWriter("clickhouse", func(def config.WriterDef, cfg *config.Config) (model.Writer, error) {
		return NewClickHouseWriter(def.ClickHouse)
	})
}

func requireRoot(kind, rootPath string) error {
	if rootPath == "" {
		return fmt.Errorf("%s writer requires a root_path", kind)
	}
	return nil
}
