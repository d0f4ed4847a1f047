package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/experimental/sock"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
)

// runSandbox instantiates a fresh WebAssembly engine for moduleBytes,
// writes params as a null-terminated UTF-8 byte sequence into guest memory,
// invokes the exported `run(u32) -> u32` entry point, and parses the
// null-terminated result back out — spec.md §4.3 steps 3-7. No sandbox
// state is reused across calls: a new wazero.Runtime is built and closed
// per invocation (spec.md §5 "No sandbox is reused across messages").
//
// networkAccess gates whether the guest gets any socket capability at all
// (spec.md §4.3 step 3: "network access permitted iff the node declares
// it"). Standard wasi_snapshot_preview1 exposes no socket syscalls, so the
// default (networkAccess=false) is already a hard no-network sandbox; when
// true, experimental/sock's pre-opened-listener extension is installed into
// ctx before instantiation, the only socket capability wazero exposes to a
// WASI guest.
func runSandbox(ctx context.Context, moduleBytes []byte, params json.RawMessage, networkAccess bool) (json.RawMessage, error) {
	if networkAccess {
		ctx = sock.WithConfig(ctx, sock.NewConfig())
	}

	runtime := wazero.NewRuntime(ctx)
	defer runtime.Close(ctx)

	if _, err := wasi_snapshot_preview1.Instantiate(ctx, runtime); err != nil {
		return nil, fmt.Errorf("instantiate wasi: %w", err)
	}

	compiled, err := runtime.CompileModule(ctx, moduleBytes)
	if err != nil {
		return nil, fmt.Errorf("compile module: %w", err)
	}

	config := wazero.NewModuleConfig().
		WithStdout(os.Stdout).
		WithStderr(os.Stderr).
		WithStdin(os.Stdin)

	mod, err := runtime.InstantiateModule(ctx, compiled, config)
	if err != nil {
		return nil, fmt.Errorf("instantiate module: %w", err)
	}
	defer mod.Close(ctx)

	memory := mod.Memory()
	if memory == nil {
		return nil, fmt.Errorf("module exports no linear memory")
	}

	inputBytes := append(append([]byte{}, params...), 0)
	offset, err := growAndWrite(memory, inputBytes)
	if err != nil {
		return nil, fmt.Errorf("write params to guest memory: %w", err)
	}

	runFn := mod.ExportedFunction("run")
	if runFn == nil {
		return nil, fmt.Errorf("module does not export run(u32) -> u32")
	}

	results, err := runFn.Call(ctx, uint64(offset))
	if err != nil {
		return nil, fmt.Errorf("invoke run: %w", err)
	}
	if len(results) != 1 {
		return nil, fmt.Errorf("run returned %d values, want 1", len(results))
	}
	resultOffset := uint32(results[0])
	if resultOffset == 0 {
		return nil, fmt.Errorf("run returned a null result pointer")
	}

	resultBytes, err := readUntilZero(memory, resultOffset)
	if err != nil {
		return nil, fmt.Errorf("read result from guest memory: %w", err)
	}

	var value json.RawMessage
	if err := json.Unmarshal(resultBytes, &value); err != nil {
		return nil, fmt.Errorf("parse result as json: %w", err)
	}
	return value, nil
}

// growAndWrite grows memory enough to hold data beyond its current size and
// writes data at that offset, returning the offset written to.
func growAndWrite(memory api.Memory, data []byte) (uint32, error) {
	offset := memory.Size()
	const pageSize = 65536
	needed := (uint32(len(data)) + pageSize - 1) / pageSize
	if needed > 0 {
		if _, ok := memory.Grow(needed); !ok {
			return 0, fmt.Errorf("failed to grow guest memory by %d pages", needed)
		}
	}
	if !memory.Write(offset, data) {
		return 0, fmt.Errorf("failed to write %d bytes at offset %d", len(data), offset)
	}
	return offset, nil
}

// readUntilZero reads bytes from memory starting at offset until the first
// zero terminator (spec.md §4.3 step 7).
func readUntilZero(memory api.Memory, offset uint32) ([]byte, error) {
	size := memory.Size()
	if offset >= size {
		return nil, fmt.Errorf("result offset %d out of bounds (memory size %d)", offset, size)
	}
	chunk, ok := memory.Read(offset, size-offset)
	if !ok {
		return nil, fmt.Errorf("failed to read guest memory at offset %d", offset)
	}
	if idx := bytes.IndexByte(chunk, 0); idx >= 0 {
		return chunk[:idx], nil
	}
	return chunk, nil
}
