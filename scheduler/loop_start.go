package scheduler

import (
	"context"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/creastat/orchestrator/internal/telemetry"
	"github.com/creastat/orchestrator/runstate"
	"github.com/creastat/orchestrator/wire"
)

// handleStart implements Loop A (spec.md §4.2): on `pipeline.exec`, load the
// pipeline's static graph, validate it, reject the trigger outright when the
// pipeline's trigger anchor disallows manual execution (SPEC_FULL.md §11),
// bulk-insert a pipeline_node_exec row per node, build the Run, and hand off
// to Loop B by publishing `pipeline.plan` with no parent hint (i.e. "compute
// the initial frontier"). Grounded on original_source/scheduler/src/main.rs's
// single combined handler, split at the point the teacher's own comment
// marks a seam: after the RETURNING insert, before next_nodes_to_execute.
func (s *Scheduler) handleStart(ctx context.Context) nats.MsgHandler {
	return func(msg *nats.Msg) {
		trigger, err := decodeMsg[wire.PipelineExecMsg](msg.Data)
		if err != nil {
			s.logger.Error("failed to deserialize pipeline.exec payload", telemetry.Err(err))
			return
		}
		logger := s.logger.WithModule("scheduler.start")

		graph, err := loadPipelineGraph(ctx, s.db, trigger.PipelineID)
		if err != nil {
			logger.Error("failed to load pipeline graph", telemetry.Err(err), telemetry.String("pipeline_id", trigger.PipelineID.String()))
			return
		}
		if err := graph.Validate(); err != nil {
			logger.Error("pipeline graph failed validation", telemetry.Err(err), telemetry.String("pipeline_id", trigger.PipelineID.String()))
			_ = transitionPipelineExec(ctx, s.db, trigger.PipelineExecID, wire.StatusFailed)
			return
		}

		if triggerCfg, ok := graph.TriggerConfig(); ok && !triggerCfg.AllowManualExecution {
			logger.Warn("dropping pipeline.exec: trigger config disallows manual execution",
				telemetry.String("pipeline_id", trigger.PipelineID.String()),
				telemetry.String("pipeline_exec_id", trigger.PipelineExecID.String()))
			return
		}

		nodeIDs := make([]uuid.UUID, 0, graph.Len())
		for _, n := range graph.Nodes() {
			nodeIDs = append(nodeIDs, n.ID)
		}

		nodeToExec, err := insertNodeExecs(ctx, s.db, trigger.PipelineExecID, nodeIDs)
		if err != nil {
			logger.Error("failed to insert pipeline_node_exec rows", telemetry.Err(err))
			return
		}

		basePayloads := make(map[uuid.UUID]*runstate.NodeExecPayload, len(nodeIDs))
		for _, n := range graph.Nodes() {
			execID, ok := nodeToExec[n.ID]
			if !ok {
				logger.Error("missing inserted node exec id", telemetry.String("node_id", n.ID.String()))
				return
			}
			artifactPath := n.Publisher + "@" + n.Identifier + ":" + n.Version
			userParams := trigger.Params[n.ID]
			basePayloads[n.ID] = runstate.NewNodeExecPayload(
				trigger.PipelineExecID, n.ID, execID, n.Container, artifactPath,
				mergeParams(n.Config, userParams), n.Config.NetworkAccess,
			)
		}

		run := runstate.New(graph, nodeToExec, basePayloads)
		s.registry.Store(trigger.PipelineExecID, run)

		if err := transitionPipelineExec(ctx, s.db, trigger.PipelineExecID, wire.StatusRunning); err != nil {
			logger.Error("failed to transition pipeline_exec to running", telemetry.Err(err))
		}

		if run.IsFinished() {
			logger.Debug("pipeline run has no eligible nodes at start", telemetry.String("pipeline_exec_id", trigger.PipelineExecID.String()))
			s.finishRun(ctx, trigger.PipelineExecID, true)
			return
		}

		s.publish("pipeline.plan", wire.PlanMsg{PipelineExecID: trigger.PipelineExecID})
	}
}
