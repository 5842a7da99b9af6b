package main

import (
	"context"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/ssm"

	"github.com/keithlinneman/linnemanlabs-monitoring/internal/cfg"
	"github.com/keithlinneman/linnemanlabs-monitoring/internal/depcheck"
	"github.com/keithlinneman/linnemanlabs-monitoring/internal/health"
	"github.com/keithlinneman/linnemanlabs-monitoring/internal/xerrors"
)

// awsLoader is swapped in tests so no credentials chain is touched.
var awsLoader = func(ctx context.Context) (aws.Config, error) {
	return config.LoadDefaultConfig(ctx)
}

// dependencies turns the -check-* flags into Gather dependencies. The
// returned close func releases gRPC connections and is never nil.
func dependencies(ctx context.Context, conf cfg.App, client *http.Client) ([]health.Dependency, func(), error) {
	var (
		deps    []health.Dependency
		closers []func()
	)
	closeAll := func() {
		for _, c := range closers {
			c()
		}
	}
	noncritical := conf.NonCritical()
	add := func(name string, p health.Probe) {
		deps = append(deps, health.Dependency{
			Name:        name,
			NonCritical: noncritical[name],
			Timeout:     conf.CheckTimeout,
			Probe:       p,
		})
	}

	if conf.CheckS3Bucket != "" || conf.CheckSSMParam != "" || conf.CheckKMSKey != "" {
		awsCfg, err := awsLoader(ctx)
		if err != nil {
			return nil, closeAll, xerrors.Wrap(err, "load aws config")
		}
		if conf.CheckS3Bucket != "" {
			add("s3", depcheck.S3Bucket(s3.NewFromConfig(awsCfg), conf.CheckS3Bucket))
		}
		if conf.CheckSSMParam != "" {
			add("ssm", depcheck.SSMParameter(ssm.NewFromConfig(awsCfg), conf.CheckSSMParam))
		}
		if conf.CheckKMSKey != "" {
			add("kms", depcheck.KMSKey(kms.NewFromConfig(awsCfg), conf.CheckKMSKey))
		}
	}

	httpTargets, err := cfg.ParseTargets(conf.CheckHTTP)
	if err != nil {
		return nil, closeAll, xerrors.Wrap(err, "check-http")
	}
	for _, t := range httpTargets {
		add(t.Name, depcheck.HTTP(client, t.Addr))
	}

	grpcTargets, err := cfg.ParseTargets(conf.CheckGRPC)
	if err != nil {
		return nil, closeAll, xerrors.Wrap(err, "check-grpc")
	}
	for _, t := range grpcTargets {
		probe, conn, err := depcheck.GRPC(t.Addr, "")
		if err != nil {
			closeAll()
			return nil, func() {}, xerrors.Wrapf(err, "grpc dependency %s", t.Name)
		}
		closers = append(closers, func() { _ = conn.Close() })
		add(t.Name, probe)
	}

	tcpTargets, err := cfg.ParseTargets(conf.CheckTCP)
	if err != nil {
		closeAll()
		return nil, func() {}, xerrors.Wrap(err, "check-tcp")
	}
	for _, t := range tcpTargets {
		add(t.Name, depcheck.TCP(t.Addr))
	}

	return deps, closeAll, nil
}
