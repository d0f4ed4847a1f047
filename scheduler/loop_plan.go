package scheduler

import (
	"context"
	"encoding/json"

	"github.com/nats-io/nats.go"

	"github.com/creastat/orchestrator/internal/telemetry"
	"github.com/creastat/orchestrator/wire"
)

// marshalParams encodes a node's merged+projected parameter map as the
// single JSON object payload.params expects on the wire.
func marshalParams(params map[string]json.RawMessage) (json.RawMessage, error) {
	return json.Marshal(params)
}

// handlePlan implements Loop B (spec.md §4.2): on `pipeline.plan`, compute
// the run's next frontier (every currently eligible node, when no parent
// hint is given, or a specific node's eligible children) and dispatch one
// `pipeline.node.exec` per eligible node. Separated out from Loop A so a
// Run already registered can be re-planned repeatedly without re-querying
// the database, unlike the teacher's single-shot handler.
func (s *Scheduler) handlePlan(ctx context.Context) nats.MsgHandler {
	return func(msg *nats.Msg) {
		plan, err := decodeMsg[wire.PlanMsg](msg.Data)
		if err != nil {
			s.logger.Error("failed to deserialize pipeline.plan payload", telemetry.Err(err))
			return
		}
		logger := s.logger.WithModule("scheduler.plan")

		run, ok := s.registry.Get(plan.PipelineExecID)
		if !ok {
			logger.Error("no run registered for pipeline_exec_id", telemetry.String("pipeline_exec_id", plan.PipelineExecID.String()))
			return
		}

		frontier := run.NextFrontier(plan.ParentNodeExecID)
		if len(frontier) == 0 {
			if run.IsFinished() {
				s.finishRun(ctx, plan.PipelineExecID, true)
			}
			return
		}

		for _, payload := range frontier {
			if err := transitionNodeExec(ctx, s.db, payload.NodeExecID, wire.StatusRunning); err != nil {
				logger.Error("failed to transition node exec to running", telemetry.Err(err), telemetry.String("node_exec_id", payload.NodeExecID.String()))
				continue
			}

			params, err := marshalParams(payload.Params)
			if err != nil {
				logger.Error("failed to marshal node params", telemetry.Err(err))
				continue
			}

			s.publish("pipeline.node.exec", wire.NodeExecMsg{
				PipelineExecID:     payload.RunID,
				PipelineNodeExecID: payload.NodeExecID,
				ContainerType:      payload.Container,
				Path:               payload.ArtifactPath,
				Params:             params,
				NetworkAccess:      payload.NetworkAccess,
			})
		}
	}
}
