package tcpostgres

import (
	"context"
	"fmt"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const defaultImage = "postgres:17-alpine"

// PostgresContainer is a started postgres container with the credentials
// it was created with.
type PostgresContainer struct {
	testcontainers.Container
	user     string
	password string
	dbName   string
}

type (
	containerSetup struct {
		req      testcontainers.ContainerRequest
		user     string
		password string
		dbName   string
	}
	PostgresContainerOption func(s *containerSetup)
)

func WithImage(image string) PostgresContainerOption {
	return func(s *containerSetup) {
		s.req.Image = image
	}
}

func WithWaitStrategy(strategies ...wait.Strategy) PostgresContainerOption {
	return func(s *containerSetup) {
		s.req.WaitingFor = wait.ForAll(strategies...).WithDeadline(1 * time.Minute)
	}
}

func WithPort(port string) PostgresContainerOption {
	return func(s *containerSetup) {
		s.req.ExposedPorts = append(s.req.ExposedPorts, port)
	}
}

// WithName names the container. Named containers are reused between test runs.
func WithName(containerName string) PostgresContainerOption {
	return func(s *containerSetup) {
		s.req.Name = containerName
	}
}

func WithInitialDatabase(user, password, dbName string) PostgresContainerOption {
	return func(s *containerSetup) {
		s.user, s.password, s.dbName = user, password, dbName
		s.req.Env["POSTGRES_USER"] = user
		s.req.Env["POSTGRES_PASSWORD"] = password
		s.req.Env["POSTGRES_DB"] = dbName
	}
}

// SetupPostgres starts the container, fsync is disabled for speed
func SetupPostgres(ctx context.Context, opts ...PostgresContainerOption) (
	*PostgresContainer, error,
) {
	s := &containerSetup{
		req: testcontainers.ContainerRequest{
			Image:        defaultImage,
			Env:          map[string]string{},
			ExposedPorts: []string{},
			Cmd:          []string{"postgres", "-c", "fsync=off"},
		},
		user:     "postgres",
		password: "postgres",
		dbName:   "postgres",
	}
	for _, opt := range opts {
		opt(s)
	}

	container, err := testcontainers.GenericContainer(
		ctx,
		testcontainers.GenericContainerRequest{
			ContainerRequest: s.req,
			Started:          true,
			Reuse:            s.req.Name != "",
		})
	if err != nil {
		return nil, err
	}
	return &PostgresContainer{
		Container: container,
		user:      s.user,
		password:  s.password,
		dbName:    s.dbName,
	}, nil
}

// ConnectionURL returns the url of the database on the mapped port
func (c *PostgresContainer) ConnectionURL(ctx context.Context, port nat.Port) (string, error) {
	mapped, err := c.MappedPort(ctx, port)
	if err != nil {
		return "", err
	}
	host, err := c.Host(ctx)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("postgresql://%s:%s@%s:%s/%s?sslmode=disable",
		c.user, c.password, host, mapped.Port(), c.dbName), nil
}
