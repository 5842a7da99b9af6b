package depcheck

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/keithlinneman/linnemanlabs-monitoring/internal/health"
	"github.com/keithlinneman/linnemanlabs-monitoring/internal/xerrors"
)

// GRPCHealthClient is the Check half of grpc_health_v1.HealthClient.
type GRPCHealthClient interface {
	Check(ctx context.Context, in *healthpb.HealthCheckRequest, opts ...grpc.CallOption) (*healthpb.HealthCheckResponse, error)
}

// GRPCClient asks client whether service is SERVING. An empty service asks
// about the server as a whole.
func GRPCClient(client GRPCHealthClient, service string) health.CheckFunc {
	return func(ctx context.Context) error {
		if client == nil {
			return xerrors.New("grpc health client is not configured")
		}
		resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: service})
		if err != nil {
			return xerrors.Wrap(err, "grpc health check")
		}
		if s := resp.GetStatus(); s != healthpb.HealthCheckResponse_SERVING {
			return xerrors.Newf("grpc service %q is %s", service, s)
		}
		return nil
	}
}

// GRPC returns a probe for target and the connection backing it. The
// connection is lazy: it dials on the first Check and is reused after that.
// Callers close it on shutdown. Without opts the connection is plaintext.
func GRPC(target, service string, opts ...grpc.DialOption) (health.CheckFunc, *grpc.ClientConn, error) {
	if len(opts) == 0 {
		opts = []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}
	}
	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, nil, xerrors.Wrapf(err, "grpc client for %s", target)
	}
	return GRPCClient(healthpb.NewHealthClient(conn), service), conn, nil
}
