package prover

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"
)

func startBufServer(t *testing.T, srv ProverServer, opts ...grpc.ServerOption) *bufconn.Listener {
	t.Helper()

	lis := bufconn.Listen(1 << 20)
	s := grpc.NewServer(opts...)
	RegisterProverServer(s, srv)

	go func() { _ = s.Serve(lis) }()
	t.Cleanup(s.Stop)
	return lis
}

func dialBuf(t *testing.T, lis *bufconn.Listener, secret string) *GRPCBackend {
	t.Helper()

	b, err := NewGRPCBackend("passthrough:///bufnet", "token-id", secret,
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}))
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func TestGRPCBackend_RoundTrip(t *testing.T) {
	f := newFixture(t)
	dev := NewDevBackend()
	lis := startBufServer(t, NewProverServer(dev), grpc.UnaryInterceptor(TokenInterceptor([]byte("s3cret"))))

	got, err := dialBuf(t, lis, "s3cret").Prove(context.Background(), f.witness(t))
	require.NoError(t, err)

	want, err := dev.Prove(context.Background(), f.witness(t))
	require.NoError(t, err)
	assert.True(t, want.Equal(got))
}

func TestGRPCBackend_Unauthenticated(t *testing.T) {
	f := newFixture(t)
	lis := startBufServer(t, NewProverServer(NewDevBackend()), grpc.UnaryInterceptor(TokenInterceptor([]byte("s3cret"))))

	_, err := dialBuf(t, lis, "").Prove(context.Background(), f.witness(t))
	assert.ErrorIs(t, err, ErrWitnessRejected)

	_, err = dialBuf(t, lis, "wrong").Prove(context.Background(), f.witness(t))
	assert.ErrorIs(t, err, ErrWitnessRejected)
}

type statusServer struct{ code codes.Code }

func (s statusServer) Prove(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, status.Error(s.code, "scripted")
}

func TestGRPCBackend_StatusClassification(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		code codes.Code
		want error
	}{
		{codes.InvalidArgument, ErrWitnessRejected},
		{codes.FailedPrecondition, ErrWitnessRejected},
		{codes.Unavailable, ErrBackendUnavailable},
		{codes.ResourceExhausted, ErrBackendUnavailable},
		{codes.Internal, ErrBackendUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.code.String(), func(t *testing.T) {
			lis := startBufServer(t, statusServer{code: tt.code})
			_, err := dialBuf(t, lis, "").Prove(context.Background(), f.witness(t))
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestProverServer_RejectsBadWitness(t *testing.T) {
	in, err := structpb.NewStruct(map[string]any{"template_id": "nope"})
	require.NoError(t, err)

	_, err = NewProverServer(NewDevBackend()).Prove(context.Background(), in)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}
