package config

import "strings"

// Environment variables consumed when resolving the worker set.
const (
	EnvDisableAirflow = "MELTANO_DISABLE_AIRFLOW"
	EnvDbtDocsLoader  = "MELTANO_DBT_DOCS_LOADER"
	EnvUIEnv          = "MELTANO_UI_ENV"
)

// DefaultDbtDocsLoader is used when MELTANO_DBT_DOCS_LOADER is unset.
// Not every loader supports dbt, so only a known-good one is enabled
// by default; setting the variable to an empty string disables docs
// generation entirely.
const DefaultDbtDocsLoader = "target-postgres"

// DevelopmentEnv is the MELTANO_UI_ENV value that turns on reload mode.
const DevelopmentEnv = "development"

// StackPlan is the desired worker set: an explicit value resolved from
// flags and environment before any worker is constructed.
type StackPlan struct {
	// Airflow includes the orchestrator scheduler/webserver pair.
	Airflow bool
	// DbtDocsLoader names the loader that dbt docs are generated for;
	// empty omits the docs worker.
	DbtDocsLoader string
	// Reload makes the API server pick up configuration changes.
	Reload bool
}

// ResolvePlan computes the StackPlan. `lookup` abstracts os.LookupEnv
// so the combinations stay testable.
func ResolvePlan(lookup func(string) (string, bool), reloadFlag bool) StackPlan {
	loader := DefaultDbtDocsLoader
	if v, ok := lookup(EnvDbtDocsLoader); ok {
		loader = v
	}

	disableAirflow, _ := lookup(EnvDisableAirflow)
	uiEnv, _ := lookup(EnvUIEnv)

	return StackPlan{
		Airflow:       !Truthy(disableAirflow),
		DbtDocsLoader: loader,
		Reload:        reloadFlag || uiEnv == DevelopmentEnv,
	}
}

// Truthy reports whether `value` reads as an affirmative toggle.
func Truthy(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "t", "true", "y", "yes", "on":
		return true
	}
	return false
}
