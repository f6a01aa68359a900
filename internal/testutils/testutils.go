//go:build integration

package testutils

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"gocloud.dev/blob"
)

const (
	minioUser     = "minioadmin"
	minioPassword = "minioadmin"
)

// Env is a running container and the host:port of its exposed service.
type Env struct {
	Container testcontainers.Container
	Addr      string
}

// Close terminates the container.
func (e *Env) Close(ctx context.Context) error {
	if e.Container == nil {
		return nil
	}
	return e.Container.Terminate(ctx)
}

// MinioEnv is an S3 compatible store with one bucket already created.
type MinioEnv struct {
	Env
	// BucketURL opens the bucket through gocloud's s3blob driver.
	BucketURL string
}

// OpenBucket opens the test bucket.
func (e *MinioEnv) OpenBucket(ctx context.Context) (*blob.Bucket, error) {
	return blob.OpenBucket(ctx, e.BucketURL)
}

// RedisEnv is a disposable redis server.
type RedisEnv struct {
	Env
}

func start(t *testing.T, ctx context.Context, req testcontainers.ContainerRequest, port string) Env {
	t.Helper()

	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("start %s: %v", req.Image, err)
	}
	if port == "" {
		return Env{Container: c}
	}

	host, err := c.Host(ctx)
	if err != nil {
		t.Fatalf("container host: %v", err)
	}
	mapped, err := c.MappedPort(ctx, port)
	if err != nil {
		t.Fatalf("container port %s: %v", port, err)
	}
	return Env{Container: c, Addr: fmt.Sprintf("%s:%s", host, mapped.Port())}
}

// StartMinioContainer starts minio, creates bucketName with a one-shot mc
// container on a private network, and points the AWS environment at it.
func StartMinioContainer(t *testing.T, ctx context.Context, bucketName string) *MinioEnv {
	t.Helper()

	netName := fmt.Sprintf("ferry-minio-%d", time.Now().UnixNano())
	network, err := testcontainers.GenericNetwork(ctx, testcontainers.GenericNetworkRequest{
		NetworkRequest: testcontainers.NetworkRequest{Name: netName},
	})
	if err != nil {
		t.Fatalf("create network: %v", err)
	}
	t.Cleanup(func() { network.Remove(ctx) })

	env := start(t, ctx, testcontainers.ContainerRequest{
		Image:          "minio/minio:latest",
		ExposedPorts:   []string{"9000/tcp"},
		Networks:       []string{netName},
		NetworkAliases: map[string][]string{netName: {"minio"}},
		Env: map[string]string{
			"MINIO_ROOT_USER":     minioUser,
			"MINIO_ROOT_PASSWORD": minioPassword,
		},
		Cmd:        []string{"server", "/data"},
		WaitingFor: wait.ForHTTP("/minio/health/ready").WithPort("9000"),
	}, "9000")

	mc := start(t, ctx, testcontainers.ContainerRequest{
		Image:      "minio/mc:latest",
		Networks:   []string{netName},
		Entrypoint: []string{"/bin/sh", "-c"},
		Cmd: []string{fmt.Sprintf(
			"mc alias set local http://minio:9000 %s %s && mc mb local/%s",
			minioUser, minioPassword, bucketName,
		)},
		WaitingFor: wait.ForExit(),
	}, "")
	defer mc.Close(ctx)

	t.Setenv("AWS_ACCESS_KEY_ID", minioUser)
	t.Setenv("AWS_SECRET_ACCESS_KEY", minioPassword)

	return &MinioEnv{
		Env: env,
		BucketURL: fmt.Sprintf("s3://%s?endpoint=http://%s&use_path_style=true&disable_https=true&region=us-east-1",
			bucketName, env.Addr),
	}
}

// StartRedisContainer starts a redis server for journal tests.
func StartRedisContainer(t *testing.T, ctx context.Context) *RedisEnv {
	t.Helper()

	env := start(t, ctx, testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}, "6379")
	return &RedisEnv{Env: env}
}
