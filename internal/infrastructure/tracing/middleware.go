package tracing

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
)

// GRPCUnaryInterceptor creates a gRPC unary interceptor that continues the
// caller's trace
func GRPCUnaryInterceptor(tracer *Tracer) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req any,
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (any, error) {
		if md, ok := metadata.FromIncomingContext(ctx); ok {
			if vals := md.Get(traceHeader); len(vals) > 0 && vals[0] != "" {
				ctx = context.WithValue(ctx, traceIDKey, TraceID(vals[0]))
			}
			if vals := md.Get(spanHeader); len(vals) > 0 && vals[0] != "" {
				ctx = context.WithValue(ctx, spanIDKey, SpanID(vals[0]))
			}
		}

		span, ctx := tracer.StartSpan(ctx, info.FullMethod)
		span.SetTag("rpc.system", "grpc")
		span.SetTag("span.kind", "server")

		resp, err := handler(ctx, req)
		if err != nil {
			span.SetError(err)
		}

		span.Finish()
		tracer.Submit(span)

		return resp, err
	}
}

// GRPCClientInterceptor creates a gRPC client interceptor for trace propagation
func GRPCClientInterceptor(tracer *Tracer) grpc.UnaryClientInterceptor {
	return func(
		ctx context.Context,
		method string,
		req, reply any,
		cc *grpc.ClientConn,
		invoker grpc.UnaryInvoker,
		opts ...grpc.CallOption,
	) error {
		span, ctx := tracer.StartSpan(ctx, method)
		span.SetTag("rpc.system", "grpc")
		span.SetTag("span.kind", "client")

		ctx = metadata.AppendToOutgoingContext(ctx,
			traceHeader, string(span.TraceID),
			spanHeader, string(span.SpanID),
		)

		err := invoker(ctx, method, req, reply, cc, opts...)
		if err != nil {
			span.SetError(err)
		}

		span.Finish()
		tracer.Submit(span)

		return err
	}
}
