// Package tests holds container backed fixtures shared by the integration suites.
package tests

import (
	"context"
	"testing"

	"github.com/pitabwire/util"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/network"

	"github.com/pitabwire/linguist/data"
)

// TestResource is a dependency started inside a container for the duration of a suite.
type TestResource interface {
	Name() string
	Setup(ctx context.Context, ntwk *testcontainers.DockerNetwork) error
	GetDS() data.DSN
	Cleanup(ctx context.Context)
}

// BaseTestSuite starts every resource returned by InitResourceFunc on a shared network.
// Suites are skipped in short mode or when no container provider is reachable.
type BaseTestSuite struct {
	suite.Suite
	Network   *testcontainers.DockerNetwork
	resources []TestResource

	InitResourceFunc func(ctx context.Context) []TestResource
}

func (s *BaseTestSuite) SetupSuite() {
	t := s.T()
	if testing.Short() {
		t.Skip("skipping container backed suite in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := t.Context()
	log := util.Log(ctx)

	require.NotNil(t, s.InitResourceFunc, "InitResourceFunc is required")

	net, err := network.New(ctx)
	require.NoError(t, err, "could not create network")
	s.Network = net

	s.resources = s.InitResourceFunc(ctx)
	for _, res := range s.resources {
		log.WithField("image", res.Name()).Info("setting up container")
		err = res.Setup(ctx, net)
		require.NoError(t, err, "could not setup resource %s", res.Name())
	}
}

// Resources returns the started resources in declaration order.
func (s *BaseTestSuite) Resources() []TestResource {
	return s.resources
}

func (s *BaseTestSuite) TearDownSuite() {
	ctx := context.Background()
	for _, res := range s.resources {
		res.Cleanup(ctx)
	}

	if s.Network != nil {
		err := s.Network.Remove(ctx)
		require.NoError(s.T(), err, "could not remove network")
	}
}
