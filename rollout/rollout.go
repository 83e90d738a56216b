// Package rollout implements the Rollout Controller: a small state
// machine that pushes a collector configuration to the orchestrator,
// triggers a rolling restart by annotating the workload's pod template,
// and blocks until the workload reports ready.
//
// The Orchestrator interface is deliberately left without a concrete
// implementation: only its shape (push/patch/read) is defined here,
// grounded in original_source/rlagente/manager.py's update_configmap /
// rolling_update_deployment / wait_for_rollout_ready. No concrete
// Kubernetes client is wired against it in this repository.
package rollout

import (
	"context"
	"fmt"
	"time"

	log "github.com/cihub/seelog"
)

// State is one of the Rollout Controller's state-machine states.
type State int

const (
	Idle State = iota
	ConfigPushed
	Rolling
	Ready
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "IDLE"
	case ConfigPushed:
		return "CONFIG_PUSHED"
	case Rolling:
		return "ROLLING"
	case Ready:
		return "READY"
	case Failed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// OrchestratorError wraps any failure from the orchestrator collaborator.
// Local policy: bubble up, abort the trial.
type OrchestratorError struct {
	Op  string
	Err error
}

func (e *OrchestratorError) Error() string {
	return fmt.Sprintf("rollout: orchestrator %s failed: %v", e.Op, e.Err)
}

func (e *OrchestratorError) Unwrap() error { return e.Err }

// Orchestrator is the collaborator interface: upsert a named config
// object, patch a workload's pod-template annotations, and read a
// workload's desired/available replica counts.
type Orchestrator interface {
	// UpsertConfig creates or replaces the named configuration object's
	// document content.
	UpsertConfig(ctx context.Context, name, document string) error

	// PatchWorkloadAnnotation stamps the workload's pod template with a
	// `config-hash` annotation set to identifier, which the orchestrator
	// interprets as a spec change and uses to trigger a rolling restart.
	PatchWorkloadAnnotation(ctx context.Context, workload, identifier string) error

	// ReadReplicas returns the workload's desired and available replica
	// counts.
	ReadReplicas(ctx context.Context, workload string) (desired, available int, err error)
}

// Controller drives one episode's actuation: push config, patch the
// workload, and wait for the rollout to become ready. At most one episode
// actuates the shared collector configuration at a time.
type Controller struct {
	orch         Orchestrator
	configName   string
	workloadName string
	pollInterval time.Duration

	state State
}

// New constructs a rollout Controller. pollInterval defaults to 2 seconds
// if zero.
func New(orch Orchestrator, configName, workloadName string, pollInterval time.Duration) *Controller {
	if pollInterval == 0 {
		pollInterval = 2 * time.Second
	}
	return &Controller{orch: orch, configName: configName, workloadName: workloadName, pollInterval: pollInterval, state: Idle}
}

// State returns the controller's current state-machine state.
func (c *Controller) State() State { return c.state }

// Rollout drives the full IDLE -> CONFIG_PUSHED -> ROLLING -> READY -> IDLE
// cycle for one episode's configuration document and identifier. It blocks
// until the orchestrator reports the workload ready; there is no
// wall-clock timeout here, only ctx cancellation (the CLI's own lifecycle)
// or whatever ceiling the caller enforces externally.
func (c *Controller) Rollout(ctx context.Context, document, identifier string) error {
	log.Infof("rollout: pushing config %s for experiment %s", c.configName, identifier)
	if err := c.orch.UpsertConfig(ctx, c.configName, document); err != nil {
		c.state = Failed
		return &OrchestratorError{Op: "push_config", Err: err}
	}
	c.state = ConfigPushed

	if err := c.orch.PatchWorkloadAnnotation(ctx, c.workloadName, identifier); err != nil {
		c.state = Failed
		return &OrchestratorError{Op: "patch_workload", Err: err}
	}
	c.state = Rolling

	if err := c.waitReady(ctx); err != nil {
		c.state = Failed
		return err
	}
	c.state = Ready
	c.state = Idle
	return nil
}

// waitReady polls the workload status every pollInterval until
// available >= desired. It returns early on context cancellation, which
// the loop otherwise never imposes on its own.
func (c *Controller) waitReady(ctx context.Context) error {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		desired, available, err := c.orch.ReadReplicas(ctx, c.workloadName)
		if err != nil {
			return &OrchestratorError{Op: "read_replicas", Err: err}
		}
		if available >= desired {
			log.Infof("rollout: %s ready (%d/%d)", c.workloadName, available, desired)
			return nil
		}
		log.Debugf("rollout: waiting for %s (%d/%d)", c.workloadName, available, desired)

		select {
		case <-ctx.Done():
			return &OrchestratorError{Op: "wait_ready", Err: ctx.Err()}
		case <-ticker.C:
		}
	}
}
