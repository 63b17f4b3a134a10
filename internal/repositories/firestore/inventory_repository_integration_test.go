//go:build integration

package firestore

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os/exec"
	"strings"
	"testing"
	"time"

	pconfig "github.com/glowmane/api/internal/platform/config"
	pfirestore "github.com/glowmane/api/internal/platform/firestore"
	"github.com/glowmane/api/internal/repositories"
)

func TestInventoryRepositoryIntegration(t *testing.T) {
	if _, err := exec.LookPath("docker"); err != nil {
		t.Skip("docker not available: " + err.Error())
	}

	ensureDockerDaemon(t)

	port := freePort(t)
	endpoint := fmt.Sprintf("127.0.0.1:%d", port)
	containerID := startFirestoreEmulator(t, port)
	t.Cleanup(func() { stopContainer(containerID) })

	waitForEndpoint(t, endpoint, 30*time.Second)

	cfg := pconfig.FirestoreConfig{
		ProjectID:    "inventory-test",
		EmulatorHost: endpoint,
	}

	provider := pfirestore.NewProvider(cfg)
	t.Cleanup(func() {
		_ = provider.Close(context.Background())
	})

	repo, err := NewInventoryRepository(provider)
	if err != nil {
		t.Fatalf("new inventory repository: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	now := time.Now().UTC().Truncate(time.Second)

	level, err := repo.Adjust(ctx, "SKU-001", 5, now)
	if err != nil {
		t.Fatalf("adjust create: %v", err)
	}
	if level.Available != 5 {
		t.Fatalf("expected available=5 after create, got %d", level.Available)
	}

	level, err = repo.Adjust(ctx, "SKU-001", -3, now.Add(time.Second))
	if err != nil {
		t.Fatalf("adjust decrement: %v", err)
	}
	if level.Available != 2 {
		t.Fatalf("expected available=2 after decrement, got %d", level.Available)
	}

	var invErr *repositories.InventoryError

	_, err = repo.Adjust(ctx, "SKU-001", -5, now.Add(2*time.Second))
	if err == nil {
		t.Fatalf("expected insufficient stock error")
	}
	if !errors.As(err, &invErr) || invErr.Code != repositories.InventoryErrorInsufficientStock {
		t.Fatalf("expected insufficient stock code, got %v", err)
	}

	invErr = nil
	_, err = repo.Adjust(ctx, "SKU-MISSING", -1, now)
	if err == nil {
		t.Fatalf("expected stock not found error")
	}
	if !errors.As(err, &invErr) || invErr.Code != repositories.InventoryErrorStockNotFound {
		t.Fatalf("expected stock not found code, got %v", err)
	}

	levels, err := repo.GetLevels(ctx, []string{"SKU-001", "SKU-MISSING"})
	if err != nil {
		t.Fatalf("get levels: %v", err)
	}
	if len(levels) != 1 {
		t.Fatalf("expected 1 tracked sku, got %d", len(levels))
	}
	if got := levels["SKU-001"].Available; got != 2 {
		t.Fatalf("expected available=2 from get levels, got %d", got)
	}
}

func freePort(t *testing.T) int {
	t.Helper()
	addr, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("unable to allocate port: %v", err)
	}
	defer addr.Close()
	return addr.Addr().(*net.TCPAddr).Port
}

func startFirestoreEmulator(t *testing.T, port int) string {
	t.Helper()
	args := []string{
		"run", "-d", "--rm",
		"-p", fmt.Sprintf("%d:8080", port),
		firestoreEmulatorImage,
		"gcloud", "beta", "emulators", "firestore", "start",
		"--host-port=0.0.0.0:8080",
		"--quiet",
	}

	cmd := exec.Command("docker", args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("failed to start firestore emulator: %v - %s", err, string(out))
	}
	id := strings.TrimSpace(string(out))
	if id == "" {
		t.Fatalf("docker returned empty container id")
	}
	if len(id) > 12 {
		id = id[:12]
	}
	return id
}

func ensureDockerDaemon(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	cmd := exec.CommandContext(ctx, "docker", "info")
	if err := cmd.Run(); err != nil {
		t.Fatalf("docker daemon not available: %v", err)
	}
}

func stopContainer(id string) {
	if id == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	cmd := exec.CommandContext(ctx, "docker", "stop", id)
	_ = cmd.Run()
}

func waitForEndpoint(t *testing.T, endpoint string, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("tcp", endpoint, 500*time.Millisecond)
		if err == nil {
			conn.Close()
			return
		}
		time.Sleep(200 * time.Millisecond)
	}
	t.Fatalf("firestore emulator at %s did not become ready within %s", endpoint, timeout)
}

const firestoreEmulatorImage = "gcr.io/google.com/cloudsdktool/cloud-sdk:emulators"
