package app

import (
	"github.com/specialistvlad/flowbridge/internal/mapping"
	"github.com/specialistvlad/flowbridge/internal/registry"
	"github.com/specialistvlad/flowbridge/modules/csv_reader"
	"github.com/specialistvlad/flowbridge/modules/data_mapper"
	"github.com/specialistvlad/flowbridge/modules/db_connection"
	"github.com/specialistvlad/flowbridge/modules/db_writer"
	"github.com/specialistvlad/flowbridge/modules/env_vars"
	"github.com/specialistvlad/flowbridge/modules/hcl_script"
	"github.com/specialistvlad/flowbridge/modules/js_script"
	"github.com/specialistvlad/flowbridge/modules/print"
	"github.com/specialistvlad/flowbridge/modules/sql_query"
	"github.com/specialistvlad/flowbridge/modules/subflow"
)

// coreModules is the definitive list of all modules that are compiled into
// the flowbridge binary. Modules holding process-wide resources receive
// them here.
func coreModules(catalog *mapping.Catalog) []registry.Module {
	return []registry.Module{
		&csv_reader.Module{},
		&env_vars.Module{},
		&db_connection.Module{},
		&sql_query.Module{},
		&db_writer.Module{},
		&js_script.Module{},
		&hcl_script.Module{},
		&data_mapper.Module{Catalog: catalog},
		&subflow.Module{},
		&print.Module{},
	}
}
