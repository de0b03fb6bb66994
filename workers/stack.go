package workers

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/meltanolabs/meltano-ui/config"
	"github.com/meltanolabs/meltano-ui/supervisor"
)

// Registration names of the stack workers.
const (
	WorkerCompiler    supervisor.WorkerName = "meltano-compiler"
	WorkerAirflow     supervisor.WorkerName = "airflow"
	WorkerDbtDocs     supervisor.WorkerName = "dbt-docs"
	WorkerUIAvailable supervisor.WorkerName = "ui-available"
	WorkerAPI         supervisor.WorkerName = "api-server"
)

// NamedWorker pairs a worker with its registration name.
type NamedWorker struct {
	Name   supervisor.WorkerName
	Worker supervisor.Worker
}

// BuildStack turns a resolved StackPlan into the ordered worker set.
// The order is the startup order; the api server goes last.
func BuildStack(logger *logrus.Entry, project *config.Project, plan config.StackPlan,
	cfg config.UIConfig, states StatesFunc) []NamedWorker {

	compiler := NewCompilerWorker(logger, project)
	set := []NamedWorker{{Name: WorkerCompiler, Worker: compiler}}

	if plan.Airflow {
		set = append(set, NamedWorker{Name: WorkerAirflow, Worker: NewAirflowWorker(logger, project)})
	}

	if plan.DbtDocsLoader != "" {
		dbt := NewDbtWorker(logger, project, plan.DbtDocsLoader, compiler.Subscribe())
		set = append(set, NamedWorker{Name: WorkerDbtDocs, Worker: dbt})
	} else {
		logger.Infof("No loader enabled for dbt docs generation, set the %s variable to enable one.",
			config.EnvDbtDocsLoader)
	}

	probeURL := fmt.Sprintf("http://localhost:%d", cfg.BindPort)
	set = append(set, NamedWorker{Name: WorkerUIAvailable, Worker: NewUIAvailableWorker(logger, probeURL)})

	apiCfg := cfg
	apiCfg.Reload = plan.Reload
	set = append(set, NamedWorker{Name: WorkerAPI, Worker: NewAPIWorker(logger, project, apiCfg, states)})

	return set
}
