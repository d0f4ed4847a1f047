// Package worker implements the sandboxed execution engine of spec.md §4.3:
// consume one `pipeline.node.exec` payload, fetch its module artifact from
// object storage, execute it in a fresh WebAssembly sandbox, and publish one
// `pipeline.node.result`. Grounded on original_source/worker/src/main.rs's
// subscribe-fetch-instantiate-invoke-publish shape, with wasmtime's
// `Engine`/`Linker`/`Store` replaced by wazero's `Runtime`/`ModuleConfig`
// per SPEC_FULL.md's domain-stack mapping.
package worker

import (
	"context"
	"encoding/json"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/creastat/orchestrator/internal/telemetry"
	"github.com/creastat/orchestrator/wire"
)

// Worker consumes `pipeline.node.exec` messages and produces
// `pipeline.node.result` messages.
type Worker struct {
	nc     *nats.Conn
	s3     *s3.Client
	logger telemetry.Logger
}

// New builds a Worker over an already-connected NATS connection and S3
// client.
func New(nc *nats.Conn, s3Client *s3.Client, logger telemetry.Logger) *Worker {
	return &Worker{nc: nc, s3: s3Client, logger: logger.WithModule("worker")}
}

// workerQueueGroup is the NATS queue group every worker replica subscribes
// under, so a given `pipeline.node.exec` message is delivered to exactly
// one worker process — spec.md §6's work-queue retention, essential here
// since the worker is explicitly designed to be horizontally scaled (§2):
// without a queue group, N workers would each execute and report the same
// node, violating the at-most-one-success-per-node property (§8 property 2).
const workerQueueGroup = "workers"

// Run subscribes to `pipeline.node.exec` and blocks until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	sub, err := w.nc.QueueSubscribe("pipeline.node.exec", workerQueueGroup, w.handle(ctx))
	if err != nil {
		return err
	}
	w.logger.Info("worker subscribed to pipeline.node.exec")
	<-ctx.Done()
	return sub.Unsubscribe()
}

func (w *Worker) handle(ctx context.Context) nats.MsgHandler {
	return func(msg *nats.Msg) {
		var job wire.NodeExecMsg
		if err := json.Unmarshal(msg.Data, &job); err != nil {
			w.logger.Error("failed to deserialize pipeline.node.exec payload", telemetry.Err(err))
			return
		}

		logger := w.logger.WithModule("worker.exec")
		logger.Debug("received node exec job",
			telemetry.String("pipeline_node_exec_id", job.PipelineNodeExecID.String()),
			telemetry.String("path", job.Path))

		outcome := w.execute(ctx, job)

		w.publishResult(job.PipelineExecID, job.PipelineNodeExecID, outcome)
	}
}

func (w *Worker) publishResult(pipelineExecID, nodeExecID uuid.UUID, outcome wire.Outcome) {
	data, err := json.Marshal(wire.NodeResultMsg{
		PipelineExecID:     pipelineExecID,
		PipelineNodeExecID: nodeExecID,
		Outcome:            outcome,
	})
	if err != nil {
		w.logger.Error("failed to serialize pipeline.node.result payload", telemetry.Err(err))
		return
	}
	if err := w.nc.Publish("pipeline.node.result", data); err != nil {
		w.logger.Error("failed to publish pipeline.node.result", telemetry.Err(err))
		return
	}
	w.logger.Debug("published node result", telemetry.String("pipeline_node_exec_id", nodeExecID.String()))
}

// execute runs the full fetch-sandbox-invoke pipeline for one job, never
// returning an error directly — every failure mode becomes a Failure
// outcome, per spec.md §4.3 and §7 ("module errors ... surfaced as
// Failure(reason) via pipeline.node.result; they do not propagate as
// exceptions").
func (w *Worker) execute(ctx context.Context, job wire.NodeExecMsg) wire.Outcome {
	ref, err := parseArtifactPath(job.Path, string(job.ContainerType))
	if err != nil {
		return wire.NewFailure(err.Error())
	}

	moduleBytes, err := fetchArtifact(ctx, w.s3, ref)
	if err != nil {
		return wire.NewFailure(err.Error())
	}

	result, err := runSandbox(ctx, moduleBytes, job.Params, job.NetworkAccess)
	if err != nil {
		return wire.NewFailure(err.Error())
	}

	return wire.NewSuccess(result)
}
