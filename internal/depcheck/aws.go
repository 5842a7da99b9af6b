package depcheck

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	kmstypes "github.com/aws/aws-sdk-go-v2/service/kms/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/ssm"

	"github.com/keithlinneman/linnemanlabs-monitoring/internal/health"
	"github.com/keithlinneman/linnemanlabs-monitoring/internal/xerrors"
)

// Narrow slices of the AWS clients, so probes can be tested without
// credentials. *s3.Client, *ssm.Client and *kms.Client satisfy them.
type (
	S3HeadBucketAPI interface {
		HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	}
	SSMGetParameterAPI interface {
		GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
	}
	KMSDescribeKeyAPI interface {
		DescribeKey(ctx context.Context, params *kms.DescribeKeyInput, optFns ...func(*kms.Options)) (*kms.DescribeKeyOutput, error)
	}
)

// S3Bucket is up when the bucket exists and the caller may access it.
func S3Bucket(client S3HeadBucketAPI, bucket string) health.CheckFunc {
	return func(ctx context.Context) error {
		if client == nil {
			return xerrors.New("s3 client is not configured")
		}
		if _, err := client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(bucket)}); err != nil {
			return xerrors.Wrapf(err, "s3 head bucket %s", bucket)
		}
		return nil
	}
}

// SSMParameter is up when the parameter can be read. The value itself is
// not decrypted or kept.
func SSMParameter(client SSMGetParameterAPI, name string) health.CheckFunc {
	return func(ctx context.Context) error {
		if client == nil {
			return xerrors.New("ssm client is not configured")
		}
		out, err := client.GetParameter(ctx, &ssm.GetParameterInput{
			Name:           aws.String(name),
			WithDecryption: aws.Bool(false),
		})
		if err != nil {
			return xerrors.Wrapf(err, "ssm get parameter %s", name)
		}
		if out == nil || out.Parameter == nil {
			return xerrors.Newf("ssm parameter %s: empty response", name)
		}
		return nil
	}
}

// KMSKey is up when the key exists and is Enabled.
func KMSKey(client KMSDescribeKeyAPI, keyID string) health.CheckFunc {
	return func(ctx context.Context) error {
		if client == nil {
			return xerrors.New("kms client is not configured")
		}
		out, err := client.DescribeKey(ctx, &kms.DescribeKeyInput{KeyId: aws.String(keyID)})
		if err != nil {
			return xerrors.Wrapf(err, "kms describe key %s", keyID)
		}
		if out == nil || out.KeyMetadata == nil {
			return xerrors.Newf("kms key %s: empty response", keyID)
		}
		if st := out.KeyMetadata.KeyState; st != kmstypes.KeyStateEnabled {
			return xerrors.Newf("kms key %s is %s", keyID, st)
		}
		return nil
	}
}
