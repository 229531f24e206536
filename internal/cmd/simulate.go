package cmd

import (
	"github.com/felixgeelhaar/phaseflow/internal/domain"
	"github.com/felixgeelhaar/phaseflow/internal/worker"
)

// registerSimulated installs a worker per role that reports a passing
// response, so a template can be walked end to end without real workers.
func registerSimulated(workers *worker.Registry) error {
	for _, role := range domain.WorkerRoles {
		if err := workers.Register(role, worker.NewScripted(simulatedResponse(role))); err != nil {
			return err
		}
	}
	return nil
}

func simulatedResponse(role domain.WorkerRole) *worker.Response {
	switch {
	case role.ProducesContent():
		return worker.Structured(worker.Report{
			Completed:       true,
			ReadinessReport: "simulated: inputs reviewed",
			FilesTouched:    []string{"simulated/" + string(role) + ".txt"},
			Notes:           "simulated run",
		})
	case role == domain.RoleTester:
		return worker.Structured(worker.Report{
			Completed:   true,
			TestPlan:    "simulated: no tests executed",
			TestResults: &worker.TestResults{Passed: 1},
			Notes:       "simulated run",
		})
	default:
		return worker.Structured(worker.Report{Completed: true, Notes: "simulated run"})
	}
}
