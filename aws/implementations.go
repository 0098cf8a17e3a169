package aws

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/sts"
)

// SSMClientImpl wraps the AWS SDK SSM client.
type SSMClientImpl struct {
	client *ssm.Client
}

// NewSSMClient creates a new SSM client wrapper.
func NewSSMClient(client *ssm.Client) *SSMClientImpl {
	return &SSMClientImpl{client: client}
}

func (s *SSMClientImpl) GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error) {
	return s.client.GetParameter(ctx, params, optFns...)
}

func (s *SSMClientImpl) GetParametersByPath(ctx context.Context, params *ssm.GetParametersByPathInput, optFns ...func(*ssm.Options)) (*ssm.GetParametersByPathOutput, error) {
	return s.client.GetParametersByPath(ctx, params, optFns...)
}

// S3ClientImpl wraps the AWS SDK S3 client.
type S3ClientImpl struct {
	client *s3.Client
}

// NewS3Client creates a new S3 client wrapper.
func NewS3Client(client *s3.Client) *S3ClientImpl {
	return &S3ClientImpl{client: client}
}

func (s *S3ClientImpl) GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	return s.client.GetObject(ctx, params, optFns...)
}

func (s *S3ClientImpl) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	return s.client.PutObject(ctx, params, optFns...)
}

func (s *S3ClientImpl) HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	return s.client.HeadObject(ctx, params, optFns...)
}

// IAMClientImpl wraps the AWS SDK IAM client.
type IAMClientImpl struct {
	client *iam.Client
}

// NewIAMClient creates a new IAM client wrapper.
func NewIAMClient(client *iam.Client) *IAMClientImpl {
	return &IAMClientImpl{client: client}
}

func (i *IAMClientImpl) SimulatePrincipalPolicy(ctx context.Context, params *iam.SimulatePrincipalPolicyInput, optFns ...func(*iam.Options)) (*iam.SimulatePrincipalPolicyOutput, error) {
	return i.client.SimulatePrincipalPolicy(ctx, params, optFns...)
}

// STSClientImpl wraps the AWS SDK STS client.
type STSClientImpl struct {
	client *sts.Client
}

// NewSTSClient creates a new STS client wrapper.
func NewSTSClient(client *sts.Client) *STSClientImpl {
	return &STSClientImpl{client: client}
}

func (s *STSClientImpl) GetCallerIdentity(ctx context.Context, params *sts.GetCallerIdentityInput, optFns ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error) {
	return s.client.GetCallerIdentity(ctx, params, optFns...)
}

// Compile-time checks that implementations satisfy interfaces
var (
	_ SSMClient = (*SSMClientImpl)(nil)
	_ SSMClient = (*ssm.Client)(nil)
	_ S3Client  = (*S3ClientImpl)(nil)
	_ S3Client  = (*s3.Client)(nil)
	_ IAMClient = (*IAMClientImpl)(nil)
	_ IAMClient = (*iam.Client)(nil)
	_ STSClient = (*STSClientImpl)(nil)
	_ STSClient = (*sts.Client)(nil)
)
