package testpostgres

import (
	"context"
	"fmt"
	"time"

	"github.com/pitabwire/util"
	"github.com/testcontainers/testcontainers-go"
	tcPostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/network"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/pitabwire/linguist/data"
	"github.com/pitabwire/linguist/tests"
)

const (
	PostgresqlDBImage = "postgres:17"

	DBUser = "linguist"
	DBPass = "s3cr3t"
	DBName = "linguist"

	startupTimeout = 60 * time.Second
)

type postgresResource struct {
	image     string
	conn      data.DSN
	container *tcPostgres.PostgresContainer
}

// New returns a postgres resource using the default image.
func New() tests.TestResource {
	return NewWithImage(PostgresqlDBImage)
}

func NewWithImage(image string) tests.TestResource {
	return &postgresResource{image: image}
}

func (d *postgresResource) Name() string {
	return d.image
}

func (d *postgresResource) Setup(ctx context.Context, ntwk *testcontainers.DockerNetwork) error {
	customizers := []testcontainers.ContainerCustomizer{
		tcPostgres.WithDatabase(DBName),
		tcPostgres.WithUsername(DBUser),
		tcPostgres.WithPassword(DBPass),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(startupTimeout),
		),
	}
	if ntwk != nil {
		customizers = append(customizers, network.WithNetwork([]string{"postgres"}, ntwk))
	}

	pgContainer, err := tcPostgres.Run(ctx, d.image, customizers...)
	if err != nil {
		return fmt.Errorf("failed to start postgres container: %w", err)
	}
	d.container = pgContainer

	conn, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		return fmt.Errorf("failed to get postgres connection string: %w", err)
	}
	d.conn = data.DSN(conn)
	return nil
}

func (d *postgresResource) GetDS() data.DSN {
	return d.conn
}

func (d *postgresResource) Cleanup(ctx context.Context) {
	if d.container == nil {
		return
	}
	if err := testcontainers.TerminateContainer(d.container); err != nil {
		util.Log(ctx).WithError(err).Warn("failed to terminate postgres container")
	}
}
