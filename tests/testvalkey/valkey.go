package testvalkey

import (
	"context"
	"fmt"

	"github.com/pitabwire/util"
	"github.com/testcontainers/testcontainers-go"
	tcValKey "github.com/testcontainers/testcontainers-go/modules/valkey"
	"github.com/testcontainers/testcontainers-go/network"

	"github.com/pitabwire/linguist/data"
	"github.com/pitabwire/linguist/tests"
)

const ValKeyImage = "docker.io/valkey/valkey:latest"

type valKeyResource struct {
	image     string
	conn      data.DSN
	container *tcValKey.ValkeyContainer
}

func New() tests.TestResource {
	return &valKeyResource{image: ValKeyImage}
}

func (d *valKeyResource) Name() string {
	return d.image
}

func (d *valKeyResource) Setup(ctx context.Context, ntwk *testcontainers.DockerNetwork) error {
	var customizers []testcontainers.ContainerCustomizer
	if ntwk != nil {
		customizers = append(customizers, network.WithNetwork([]string{"valkey", "cache-valkey"}, ntwk))
	}

	valkeyContainer, err := tcValKey.Run(ctx, d.image, customizers...)
	if err != nil {
		return fmt.Errorf("failed to start valkey container: %w", err)
	}
	d.container = valkeyContainer

	// ConnectionString reports a redis:// uri, valid for both cache drivers.
	conn, err := valkeyContainer.ConnectionString(ctx)
	if err != nil {
		return fmt.Errorf("failed to get connection string for valkey container: %w", err)
	}
	d.conn = data.DSN(conn)
	return nil
}

func (d *valKeyResource) GetDS() data.DSN {
	return d.conn
}

func (d *valKeyResource) Cleanup(ctx context.Context) {
	if d.container == nil {
		return
	}
	if err := testcontainers.TerminateContainer(d.container); err != nil {
		util.Log(ctx).WithError(err).Warn("failed to terminate valkey container")
	}
}
