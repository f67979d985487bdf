//go:build integration

package testutil

import (
	"context"
	"fmt"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// Container wraps a running testcontainers container and its address.
type Container struct {
	Container testcontainers.Container
	Addr      string
}

// Terminate stops and removes the container.
func (c *Container) Terminate() {
	_ = c.Container.Terminate(context.Background())
}

// StartRedis starts a throwaway Redis and returns a connected client.
func StartRedis(ctx context.Context) (*Container, *redis.Client, error) {
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("start redis container: %w", err)
	}
	addr, err := mappedAddr(ctx, container, "6379")
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, nil, err
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = container.Terminate(ctx)
		return nil, nil, fmt.Errorf("ping redis: %w", err)
	}
	return &Container{Container: container, Addr: addr}, client, nil
}

// StartPostgres starts a throwaway Postgres and returns its DSN.
func StartPostgres(ctx context.Context) (*Container, string, error) {
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "pairwise",
				"POSTGRES_PASSWORD": "pairwise",
				"POSTGRES_DB":       "pairwise",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		return nil, "", fmt.Errorf("start postgres container: %w", err)
	}
	addr, err := mappedAddr(ctx, container, "5432")
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, "", err
	}
	dsn := fmt.Sprintf("postgres://pairwise:pairwise@%s/pairwise?sslmode=disable", addr)
	return &Container{Container: container, Addr: addr}, dsn, nil
}

func mappedAddr(ctx context.Context, container testcontainers.Container, port string) (string, error) {
	host, err := container.Host(ctx)
	if err != nil {
		return "", fmt.Errorf("container host: %w", err)
	}
	mapped, err := container.MappedPort(ctx, nat.Port(port))
	if err != nil {
		return "", fmt.Errorf("container port: %w", err)
	}
	return fmt.Sprintf("%s:%s", host, mapped.Port()), nil
}
