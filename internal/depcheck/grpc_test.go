package depcheck

import (
	"context"
	"errors"
	"net"
	"testing"

	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

type fakeHealthClient struct {
	status healthpb.HealthCheckResponse_ServingStatus
	err    error
	got    string
}

func (f *fakeHealthClient) Check(_ context.Context, in *healthpb.HealthCheckRequest, _ ...grpc.CallOption) (*healthpb.HealthCheckResponse, error) {
	f.got = in.GetService()
	if f.err != nil {
		return nil, f.err
	}
	return &healthpb.HealthCheckResponse{Status: f.status}, nil
}

func TestGRPCClient(t *testing.T) {
	tests := []struct {
		name string
		fake *fakeHealthClient
		up   bool
	}{
		{"serving", &fakeHealthClient{status: healthpb.HealthCheckResponse_SERVING}, true},
		{"not serving", &fakeHealthClient{status: healthpb.HealthCheckResponse_NOT_SERVING}, false},
		{"unknown", &fakeHealthClient{status: healthpb.HealthCheckResponse_UNKNOWN}, false},
		{"rpc error", &fakeHealthClient{err: errors.New("unavailable")}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := GRPCClient(tt.fake, "orders.v1").Check(context.Background())
			if (err == nil) != tt.up {
				t.Fatalf("err = %v, want up=%v", err, tt.up)
			}
			if tt.fake.got != "orders.v1" {
				t.Fatalf("service = %q, want orders.v1", tt.fake.got)
			}
		})
	}
}

func TestGRPCClient_Nil(t *testing.T) {
	if err := GRPCClient(nil, "").Check(context.Background()); err == nil {
		t.Fatal("nil client reported up")
	}
}

func TestGRPC_AgainstHealthServer(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := grpc.NewServer()
	hs := grpchealth.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	go func() { _ = srv.Serve(ln) }()
	t.Cleanup(srv.Stop)

	probe, conn, err := GRPC(ln.Addr().String(), "")
	if err != nil {
		t.Fatalf("GRPC: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	if err := probe.Check(context.Background()); err != nil {
		t.Fatalf("serving server: %v", err)
	}

	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	if err := probe.Check(context.Background()); err == nil {
		t.Fatal("NOT_SERVING server reported up")
	}
}
