// Package mock provides in-memory AWS clients for integration tests. The
// mocks implement the same narrow interfaces the production code consumes,
// so whole pipeline runs can execute without network access.
package mock

import (
	"context"
	"strconv"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/aws/smithy-go"
)

const (
	regionsPath  = "/aws/service/global-infrastructure/regions"
	servicesPath = "/aws/service/global-infrastructure/services"
)

// Region describes one region served by the mock parameter tree.
type Region struct {
	Code      string
	Name      string
	Partition string
	Services  []string
}

// Service describes one service served by the mock parameter tree. NoMetadata
// leaves the longName parameter out, the shape a freshly launched service has
// before its metadata lands in the tree.
type Service struct {
	Code       string
	Name       string
	NoMetadata bool
}

// SSMClient is an in-memory mock of the SSM parameter tree. Children maps a
// path to the full names of its direct children for GetParametersByPath;
// Values maps leaf parameter names to their values for GetParameter.
type SSMClient struct {
	mu       sync.Mutex
	Children map[string][]string
	Values   map[string]string

	// PageSize splits listings into pages; zero serves each listing whole.
	PageSize int
	// ThrottleCalls fails the first N GetParametersByPath calls with a
	// throttling error so retry handling gets exercised.
	ThrottleCalls int

	// Calls counts every API call received.
	Calls int
}

// NewSSMClient creates an empty mock SSM client.
func NewSSMClient() *SSMClient {
	return &SSMClient{
		Children: make(map[string][]string),
		Values:   make(map[string]string),
	}
}

// SeedGlobalInfrastructure populates the tree the way the public
// global-infrastructure namespace lays it out: regions and services are
// enumerable children, longName and partition are leaves beneath them, and
// each region's service list hangs under its own services subtree.
func (m *SSMClient) SeedGlobalInfrastructure(regions []Region, services []Service) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, r := range regions {
		m.Children[regionsPath] = append(m.Children[regionsPath], regionsPath+"/"+r.Code)
		m.Values[regionsPath+"/"+r.Code+"/longName"] = r.Name
		m.Values[regionsPath+"/"+r.Code+"/partition"] = r.Partition
		listPath := regionsPath + "/" + r.Code + "/services"
		for _, svc := range r.Services {
			m.Children[listPath] = append(m.Children[listPath], listPath+"/"+svc)
		}
	}
	for _, s := range services {
		m.Children[servicesPath] = append(m.Children[servicesPath], servicesPath+"/"+s.Code)
		if !s.NoMetadata {
			m.Values[servicesPath+"/"+s.Code+"/longName"] = s.Name
		}
	}
}

// GetParametersByPath lists the direct children of a path, paging when
// PageSize is set. Unknown paths return an empty page, matching real SSM.
func (m *SSMClient) GetParametersByPath(ctx context.Context, params *ssm.GetParametersByPathInput, optFns ...func(*ssm.Options)) (*ssm.GetParametersByPathOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Calls++
	if m.ThrottleCalls > 0 {
		m.ThrottleCalls--
		return nil, &smithy.GenericAPIError{Code: "ThrottlingException", Message: "Rate exceeded"}
	}

	children := m.Children[*params.Path]
	start := 0
	if params.NextToken != nil {
		n, err := strconv.Atoi(*params.NextToken)
		if err != nil {
			return nil, &smithy.GenericAPIError{Code: "InvalidNextToken", Message: "invalid pagination token"}
		}
		start = n
	}
	end := len(children)
	if m.PageSize > 0 && start+m.PageSize < end {
		end = start + m.PageSize
	}

	out := &ssm.GetParametersByPathOutput{}
	for _, name := range children[start:end] {
		n := name
		v := m.valueFor(n)
		out.Parameters = append(out.Parameters, types.Parameter{Name: &n, Value: &v})
	}
	if end < len(children) {
		token := strconv.Itoa(end)
		out.NextToken = &token
	}
	return out, nil
}

// GetParameter resolves a single leaf. Absent names return ParameterNotFound
// like real SSM does.
func (m *SSMClient) GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Calls++
	value, ok := m.Values[*params.Name]
	if !ok {
		return nil, &types.ParameterNotFound{}
	}
	return &ssm.GetParameterOutput{
		Parameter: &types.Parameter{Name: params.Name, Value: &value},
	}, nil
}

// valueFor returns the stored value of a parameter, falling back to its last
// path segment the way the real tree stores entity codes as values.
func (m *SSMClient) valueFor(name string) string {
	if v, ok := m.Values[name]; ok {
		return v
	}
	idx := strings.LastIndexByte(name, '/')
	return name[idx+1:]
}
