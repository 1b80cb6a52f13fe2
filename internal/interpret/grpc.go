package interpret

// #region imports
import (
	"context"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/danielpatrickdp/dpd-weights/internal/weights"
)

// #endregion

// #region service-desc

const interpretMethod = "/dpd.v1.Interpreter/Interpret"

// InterpreterServer is the server side of the dpd.v1.Interpreter service.
// The request is the update encoded by ResultStruct; the response is the
// narrative text.
type InterpreterServer interface {
	Interpret(ctx context.Context, req *structpb.Struct) (*wrapperspb.StringValue, error)
}

var interpreterServiceDesc = grpc.ServiceDesc{
	ServiceName: "dpd.v1.Interpreter",
	HandlerType: (*InterpreterServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Interpret", Handler: interpretHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "dpd/v1/interpreter.proto",
}

func interpretHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(InterpreterServer).Interpret(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: interpretMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(InterpreterServer).Interpret(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// RegisterInterpreterServer registers srv on s.
func RegisterInterpreterServer(s grpc.ServiceRegistrar, srv InterpreterServer) {
	s.RegisterService(&interpreterServiceDesc, srv)
}

// #endregion

// #region client

// GRPCInterpreter delegates interpretation to a remote dpd.v1.Interpreter.
type GRPCInterpreter struct {
	conn *grpc.ClientConn
	cc   grpc.ClientConnInterface
}

// DialGRPC connects to addr. Without options the connection is insecure.
func DialGRPC(addr string, opts ...grpc.DialOption) (*GRPCInterpreter, error) {
	if len(opts) == 0 {
		opts = []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}
	}
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("grpc dial %s: %w", addr, err)
	}
	return &GRPCInterpreter{conn: conn, cc: conn}, nil
}

// NewGRPCInterpreterWithConn uses an existing connection, which Close leaves open.
func NewGRPCInterpreterWithConn(cc grpc.ClientConnInterface) *GRPCInterpreter {
	return &GRPCInterpreter{cc: cc}
}

func (g *GRPCInterpreter) Interpret(ctx context.Context, result weights.UpdateResult) (string, error) {
	req, err := ResultStruct(result)
	if err != nil {
		return "", err
	}
	out := new(wrapperspb.StringValue)
	if err := g.cc.Invoke(ctx, interpretMethod, req, out); err != nil {
		return "", fmt.Errorf("interpret rpc: %w", err)
	}
	if out.GetValue() == "" {
		return "", ErrEmptyResponse
	}
	return out.GetValue(), nil
}

func (g *GRPCInterpreter) Close() error {
	if g.conn == nil {
		return nil
	}
	return g.conn.Close()
}

// #endregion

// #region server

// LocalServer exposes a local Interpreter over gRPC.
type LocalServer struct {
	inner Interpreter
}

// NewLocalServer wraps inner as an InterpreterServer.
func NewLocalServer(inner Interpreter) *LocalServer {
	return &LocalServer{inner: inner}
}

func (s *LocalServer) Interpret(ctx context.Context, req *structpb.Struct) (*wrapperspb.StringValue, error) {
	result, err := ResultFromStruct(req)
	if err != nil {
		return nil, err
	}
	text, err := s.inner.Interpret(ctx, result)
	if err != nil {
		return nil, err
	}
	return wrapperspb.String(text), nil
}

// #endregion

// #region encoding

func weightsMap(w weights.Weights) map[string]any {
	m := map[string]any{
		"empathy":            w.Empathy,
		"coherence":          w.Coherence,
		"dissonance":         w.Dissonance,
		"version":            float64(w.Version),
		"convergence_metric": w.ConvergenceMetric,
	}
	if !w.Timestamp.IsZero() {
		m["timestamp"] = w.Timestamp.UTC().Format(time.RFC3339Nano)
	}
	return m
}

func scoresMap(sc weights.Scores) map[string]any {
	m := map[string]any{
		"empathy":    sc.Empathy,
		"coherence":  sc.Coherence,
		"dissonance": sc.Dissonance,
	}
	if !sc.Timestamp.IsZero() {
		m["timestamp"] = sc.Timestamp.UTC().Format(time.RFC3339Nano)
	}
	return m
}

// ResultStruct encodes an update for the wire. The rendered prompt is
// included so a server can hand it straight to a model.
func ResultStruct(result weights.UpdateResult) (*structpb.Struct, error) {
	adjustments := make([]any, len(result.Adjustments))
	for i, a := range result.Adjustments {
		adjustments[i] = a
	}
	s, err := structpb.NewStruct(map[string]any{
		"previous": weightsMap(result.Previous),
		"new":      weightsMap(result.New),
		"scores":   scoresMap(result.Scores),
		"delta": map[string]any{
			"empathy":    result.Delta.Empathy,
			"coherence":  result.Delta.Coherence,
			"dissonance": result.Delta.Dissonance,
		},
		"update_magnitude":   result.UpdateMagnitude,
		"convergence_metric": result.ConvergenceMetric,
		"adjustments":        adjustments,
		"prompt":             Prompt(result),
	})
	if err != nil {
		return nil, fmt.Errorf("encode update: %w", err)
	}
	return s, nil
}

// ResultFromStruct decodes a request built by ResultStruct.
func ResultFromStruct(s *structpb.Struct) (weights.UpdateResult, error) {
	if s == nil {
		return weights.UpdateResult{}, fmt.Errorf("decode update: empty request")
	}
	m := s.AsMap()

	num := func(src map[string]any, key string) float64 {
		v, _ := src[key].(float64)
		return v
	}
	sub := func(key string) map[string]any {
		v, _ := m[key].(map[string]any)
		return v
	}
	toWeights := func(src map[string]any) weights.Weights {
		w := weights.Weights{
			Empathy:           num(src, "empathy"),
			Coherence:         num(src, "coherence"),
			Dissonance:        num(src, "dissonance"),
			Version:           int64(num(src, "version")),
			ConvergenceMetric: num(src, "convergence_metric"),
		}
		if ts, ok := src["timestamp"].(string); ok {
			w.Timestamp, _ = time.Parse(time.RFC3339Nano, ts)
		}
		return w
	}

	if sub("new") == nil {
		return weights.UpdateResult{}, fmt.Errorf("decode update: missing new weights")
	}

	scores, delta := sub("scores"), sub("delta")
	result := weights.UpdateResult{
		Previous: toWeights(sub("previous")),
		New:      toWeights(sub("new")),
		Scores: weights.Scores{
			Empathy:    num(scores, "empathy"),
			Coherence:  num(scores, "coherence"),
			Dissonance: num(scores, "dissonance"),
		},
		Delta: weights.Delta{
			Empathy:    num(delta, "empathy"),
			Coherence:  num(delta, "coherence"),
			Dissonance: num(delta, "dissonance"),
		},
		UpdateMagnitude:   num(m, "update_magnitude"),
		ConvergenceMetric: num(m, "convergence_metric"),
	}
	if ts, ok := scores["timestamp"].(string); ok {
		result.Scores.Timestamp, _ = time.Parse(time.RFC3339Nano, ts)
	}
	if adj, ok := m["adjustments"].([]any); ok {
		for _, a := range adj {
			if text, ok := a.(string); ok {
				result.Adjustments = append(result.Adjustments, text)
			}
		}
	}
	return result, nil
}

// #endregion
