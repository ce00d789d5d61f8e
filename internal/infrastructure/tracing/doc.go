/*
Package tracing provides lightweight spans for pipeline phases and
collective RPCs.

Every run gets a trace ID; each orchestrator phase is a span under it. The
gRPC interceptors carry the trace across ranks in the x-trace-id and
x-span-id metadata keys, so the coordinator's log shows worker calls under
the same trace.

# Usage

	tracer := tracing.New("pixmesh", logger)
	defer tracer.Close()

	span, ctx := tracer.StartSpan(ctx, "scatter")
	defer func() {
		span.Finish()
		tracer.Submit(span)
	}()

Finished spans are buffered (1000) and logged asynchronously at debug
level, or at warn level when they carry an error.
*/
package tracing
