package prover

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/dmitrijs2005/emailproof/internal/auth"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	proverServiceName = "prover.v1.ProverService"
	proveMethod       = "/" + proverServiceName + "/Prove"
	authorizationKey  = "authorization"
)

// ProverServer is the server side of prover.v1.ProverService. Witness and
// proof travel as google.protobuf.Struct with the same fields as the HTTP
// JSON bodies.
type ProverServer interface {
	Prove(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

func proveHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ProverServer).Prove(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: proveMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(ProverServer).Prove(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

var proverServiceDesc = grpc.ServiceDesc{
	ServiceName: proverServiceName,
	HandlerType: (*ProverServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Prove", Handler: proveHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "prover/v1/prover.proto",
}

func RegisterProverServer(s grpc.ServiceRegistrar, srv ProverServer) {
	s.RegisterService(&proverServiceDesc, srv)
}

// GRPCBackend calls a remote ProverService.
type GRPCBackend struct {
	conn    *grpc.ClientConn
	tokenID string
	secret  []byte
}

// NewGRPCBackend connects to target (host:port). Extra dial options are
// appended after the defaults (insecure transport, bearer token interceptor).
func NewGRPCBackend(target, tokenID, secret string, opts ...grpc.DialOption) (*GRPCBackend, error) {
	b := &GRPCBackend{tokenID: tokenID, secret: []byte(secret)}

	opts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithChainUnaryInterceptor(b.tokenInterceptor),
	}, opts...)

	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, err
	}
	b.conn = conn
	return b, nil
}

func (*GRPCBackend) Name() string { return "grpc" }

func (b *GRPCBackend) Close() error { return b.conn.Close() }

func (b *GRPCBackend) tokenInterceptor(
	ctx context.Context,
	method string,
	req, reply interface{},
	cc *grpc.ClientConn,
	invoker grpc.UnaryInvoker,
	opts ...grpc.CallOption,
) error {
	if len(b.secret) > 0 {
		token, err := auth.GenerateToken(b.tokenID, b.secret, tokenValidity)
		if err != nil {
			return err
		}
		ctx = metadata.AppendToOutgoingContext(ctx, authorizationKey, "Bearer "+token)
	}
	return invoker(ctx, method, req, reply, cc, opts...)
}

func (b *GRPCBackend) Prove(ctx context.Context, w *Witness) (*Proof, error) {
	data, err := w.wireJSON()
	if err != nil {
		return nil, rejected(b.Name(), "encode witness", err)
	}
	in := new(structpb.Struct)
	if err := protojson.Unmarshal(data, in); err != nil {
		return nil, rejected(b.Name(), "encode witness", err)
	}

	out := new(structpb.Struct)
	if err := b.conn.Invoke(ctx, proveMethod, in, out); err != nil {
		switch status.Code(err) {
		case codes.InvalidArgument, codes.FailedPrecondition, codes.Unauthenticated, codes.PermissionDenied:
			return nil, rejected(b.Name(), status.Convert(err).Message(), nil)
		default:
			return nil, unavailable(b.Name(), status.Code(err).String(), err)
		}
	}

	raw, err := protojson.Marshal(out)
	if err != nil {
		return nil, unavailable(b.Name(), "decode response", err)
	}
	var wp wireProof
	if err := json.Unmarshal(raw, &wp); err != nil {
		return nil, unavailable(b.Name(), "decode response", err)
	}
	return wp.proof(), nil
}

type backendServer struct {
	backend Backend
}

// NewProverServer exposes a Backend as a ProverService.
func NewProverServer(b Backend) ProverServer { return &backendServer{backend: b} }

func (s *backendServer) Prove(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	raw, err := protojson.Marshal(in)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	var ww wireWitness
	if err := json.Unmarshal(raw, &ww); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	w, err := witnessFromWire(&ww)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	p, err := s.backend.Prove(ctx, w)
	if err != nil {
		var pe *Error
		if errors.As(err, &pe) && pe.Kind == WitnessRejected {
			return nil, status.Error(codes.FailedPrecondition, err.Error())
		}
		return nil, status.Error(codes.Unavailable, err.Error())
	}

	data, err := json.Marshal(toWireProof(p))
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	out := new(structpb.Struct)
	if err := protojson.Unmarshal(data, out); err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

// TokenInterceptor rejects calls without a valid bearer token signed with
// secret.
func TokenInterceptor(secret []byte) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		var token string
		if md, ok := metadata.FromIncomingContext(ctx); ok {
			if values := md.Get(authorizationKey); len(values) > 0 {
				token = strings.TrimPrefix(values[0], "Bearer ")
			}
		}
		if token == "" {
			return nil, status.Error(codes.Unauthenticated, "missing token")
		}
		if _, err := auth.ParseToken(token, secret); err != nil {
			return nil, status.Error(codes.Unauthenticated, err.Error())
		}
		return handler(ctx, req)
	}
}
