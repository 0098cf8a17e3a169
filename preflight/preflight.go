// Package preflight verifies that the caller's IAM principal holds the
// permissions a run needs before the discovery stage spends minutes fanning
// out over SSM. A failed simulation surfaces as one error naming every
// denied action instead of hundreds of AccessDenied retries later.
package preflight

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/aws/aws-sdk-go-v2/service/iam/types"
	"github.com/aws/aws-sdk-go-v2/service/sts"

	"github.com/jxman/aws-ssm-data-fetcher/aws"
)

// DefaultActions are the API actions a full fetch-to-report run needs.
func DefaultActions() []string {
	return []string{
		"ssm:GetParameter",
		"ssm:GetParametersByPath",
		"s3:GetObject",
		"s3:PutObject",
	}
}

// Checker simulates IAM policies for the current caller.
type Checker struct {
	iam    aws.IAMClient
	sts    aws.STSClient
	logger *slog.Logger
}

// NewChecker creates a new Checker instance. A nil logger falls back to
// slog.Default().
func NewChecker(iamClient aws.IAMClient, stsClient aws.STSClient, logger *slog.Logger) *Checker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Checker{iam: iamClient, sts: stsClient, logger: logger}
}

// Check resolves the caller identity and simulates the given actions against
// its policies. Empty actions default to DefaultActions. The returned error
// lists every action that did not evaluate to allowed.
func (c *Checker) Check(ctx context.Context, actions []string) error {
	if len(actions) == 0 {
		actions = DefaultActions()
	}

	identity, err := c.sts.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return fmt.Errorf("resolve caller identity: %w", err)
	}
	if identity.Arn == nil {
		return fmt.Errorf("caller identity has no ARN")
	}

	principal, err := policySourceArn(*identity.Arn)
	if err != nil {
		return err
	}
	c.logger.Info("simulating permissions", "principal", principal, "actions", len(actions))

	denied, err := c.simulate(ctx, principal, actions)
	if err != nil {
		return fmt.Errorf("simulate policy for %s: %w", principal, err)
	}
	if len(denied) > 0 {
		return fmt.Errorf("missing permissions: %s", strings.Join(denied, ", "))
	}
	return nil
}

// policySourceArn converts an assumed-role session ARN into the role ARN
// the policy simulator accepts. Other principals pass through unchanged.
func policySourceArn(arn string) (string, error) {
	parts := strings.Split(arn, ":")
	if len(parts) != 6 {
		return "", fmt.Errorf("unexpected caller ARN: %s", arn)
	}
	resource := parts[5]
	if parts[2] == "sts" && strings.HasPrefix(resource, "assumed-role/") {
		segments := strings.Split(resource, "/")
		if len(segments) < 2 || segments[1] == "" {
			return "", fmt.Errorf("unexpected assumed-role ARN: %s", arn)
		}
		return fmt.Sprintf("arn:%s:iam::%s:role/%s", parts[1], parts[4], segments[1]), nil
	}
	return arn, nil
}

func (c *Checker) simulate(ctx context.Context, principal string, actions []string) ([]string, error) {
	var denied []string
	input := &iam.SimulatePrincipalPolicyInput{
		PolicySourceArn: &principal,
		ActionNames:     actions,
	}
	for {
		resp, err := c.iam.SimulatePrincipalPolicy(ctx, input)
		if err != nil {
			return nil, err
		}
		for _, result := range resp.EvaluationResults {
			if result.EvalDecision == types.PolicyEvaluationDecisionTypeAllowed {
				continue
			}
			action := ""
			if result.EvalActionName != nil {
				action = *result.EvalActionName
			}
			c.logger.Warn("action denied in simulation", "action", action, "decision", string(result.EvalDecision))
			denied = append(denied, action)
		}
		if !resp.IsTruncated || resp.Marker == nil {
			break
		}
		input.Marker = resp.Marker
	}
	return denied, nil
}
