package scheduler

import (
	"context"

	"github.com/nats-io/nats.go"

	"github.com/creastat/orchestrator/internal/telemetry"
	"github.com/creastat/orchestrator/wire"
)

// handleComplete implements Loop C (spec.md §4.2): on `pipeline.node.result`,
// apply the outcome to the Run — record the result and re-publish
// `pipeline.plan` scoped to that node on success, or on failure transition
// the whole pipeline_exec straight to failed (no downstream execution
// attempted — any node failure is irrecoverable for the run, not just that
// node's descendants).
func (s *Scheduler) handleComplete(ctx context.Context) nats.MsgHandler {
	return func(msg *nats.Msg) {
		result, err := decodeMsg[wire.NodeResultMsg](msg.Data)
		if err != nil {
			s.logger.Error("failed to deserialize pipeline.node.result payload", telemetry.Err(err))
			return
		}
		logger := s.logger.WithModule("scheduler.complete")

		run, ok := s.registry.Get(result.PipelineExecID)
		if !ok {
			logger.Error("no run registered for pipeline_exec_id", telemetry.String("pipeline_exec_id", result.PipelineExecID.String()))
			return
		}

		if !result.Outcome.Ok() {
			if err := storeNodeExecResult(ctx, s.db, result.PipelineNodeExecID, wire.StatusFailed, nil); err != nil {
				logger.Error("failed to persist failed node exec", telemetry.Err(err))
			}
			logger.Warn("node exec failed, halting its descendants",
				telemetry.String("node_exec_id", result.PipelineNodeExecID.String()),
				telemetry.String("reason", result.Outcome.Failure))
			s.finishRun(ctx, result.PipelineExecID, false)
			return
		}

		if err := storeNodeExecResult(ctx, s.db, result.PipelineNodeExecID, wire.StatusCompleted, result.Outcome.Success); err != nil {
			logger.Error("failed to persist completed node exec", telemetry.Err(err))
			return
		}

		run.RecordResult(result.PipelineNodeExecID, result.Outcome.Success)

		if run.IsFinished() {
			s.finishRun(ctx, result.PipelineExecID, true)
			return
		}

		nodeExecID := result.PipelineNodeExecID
		s.publish("pipeline.plan", wire.PlanMsg{
			PipelineExecID:   result.PipelineExecID,
			ParentNodeExecID: &nodeExecID,
		})
	}
}
