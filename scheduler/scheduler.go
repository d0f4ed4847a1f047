// Package scheduler implements the three independent loops of spec.md §4.2
// (Start, Plan, Complete) coordinated through the message bus and a shared,
// mutex-guarded Run registry — the Go rendering of the teacher's
// subscribe-then-spawn pattern in original_source/scheduler/src/main.rs,
// generalized from one combined handler into three cooperating loops per
// spec.md's redesign.
package scheduler

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"golang.org/x/sync/errgroup"

	"github.com/creastat/orchestrator/internal/telemetry"
	"github.com/creastat/orchestrator/runstate"
	"github.com/creastat/orchestrator/wire"
)

// Scheduler owns the three subscription loops and the in-flight Run
// registry. One process runs exactly one Scheduler (spec.md §3).
type Scheduler struct {
	db     *sql.DB
	nc     *nats.Conn
	logger telemetry.Logger

	registry *runstate.Registry
}

// New builds a Scheduler over an already-connected database handle and NATS
// connection.
func New(db *sql.DB, nc *nats.Conn, logger telemetry.Logger) *Scheduler {
	return &Scheduler{
		db:       db,
		nc:       nc,
		logger:   logger.WithModule("scheduler"),
		registry: runstate.NewRegistry(),
	}
}

// schedulerQueueGroup is the NATS queue group every scheduler replica
// subscribes under, so a `pipeline.*` message is delivered to exactly one
// scheduler process — spec.md §6: "The pipeline.* stream uses work-queue
// retention (each message delivered to one consumer)."
const schedulerQueueGroup = "scheduler"

// Run subscribes all three loops and blocks until ctx is cancelled; an error
// subscribing any loop is returned immediately, mirroring the teacher's
// tokio::spawn-then-ctrl_c shutdown shape with golang.org/x/sync/errgroup
// in place of manual task bookkeeping.
func (s *Scheduler) Run(ctx context.Context) error {
	group, ctx := errgroup.WithContext(ctx)

	startSub, err := s.nc.QueueSubscribe("pipeline.exec", schedulerQueueGroup, s.handleStart(ctx))
	if err != nil {
		return fmt.Errorf("subscribe pipeline.exec: %w", err)
	}
	planSub, err := s.nc.QueueSubscribe("pipeline.plan", schedulerQueueGroup, s.handlePlan(ctx))
	if err != nil {
		return fmt.Errorf("subscribe pipeline.plan: %w", err)
	}
	completeSub, err := s.nc.QueueSubscribe("pipeline.node.result", schedulerQueueGroup, s.handleComplete(ctx))
	if err != nil {
		return fmt.Errorf("subscribe pipeline.node.result: %w", err)
	}

	group.Go(func() error {
		<-ctx.Done()
		_ = startSub.Unsubscribe()
		_ = planSub.Unsubscribe()
		_ = completeSub.Unsubscribe()
		return ctx.Err()
	})

	s.logger.Info("scheduler loops subscribed")
	return group.Wait()
}

func decodeMsg[T any](data []byte) (T, error) {
	var v T
	err := json.Unmarshal(data, &v)
	return v, err
}

func (s *Scheduler) publish(subject string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		s.logger.Error("failed to serialize message", telemetry.String("subject", subject), telemetry.Err(err))
		return
	}
	if err := s.nc.Publish(subject, data); err != nil {
		s.logger.Error("failed to publish message", telemetry.String("subject", subject), telemetry.Err(err))
		return
	}
	s.logger.Debug("published message", telemetry.String("subject", subject))
}

// uuidPtr is a small helper for building PlanMsg.ParentNodeExecID literals.
func uuidPtr(id uuid.UUID) *uuid.UUID { return &id }

// finishRun transitions a pipeline_exec to its terminal status and drops the
// in-memory Run — it is no longer needed once the run reaches a terminal
// status (spec.md §3: RunState is "destroyed when the run enters a terminal
// status or its process exits").
func (s *Scheduler) finishRun(ctx context.Context, pipelineExecID uuid.UUID, success bool) {
	status := wire.StatusCompleted
	if !success {
		status = wire.StatusFailed
	}
	if err := transitionPipelineExec(ctx, s.db, pipelineExecID, status); err != nil {
		s.logger.Error("failed to transition pipeline_exec to terminal status", telemetry.Err(err), telemetry.String("pipeline_exec_id", pipelineExecID.String()))
	}
	s.registry.Delete(pipelineExecID)
	s.logger.Info("pipeline run reached terminal status", telemetry.String("pipeline_exec_id", pipelineExecID.String()), telemetry.Bool("success", success))
}
