package e2e

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"testing"
	"time"
)

var appURL string

func TestMain(m *testing.M) {
	os.Exit(runTestMain(m))
}

func runTestMain(m *testing.M) int {
	workDir, err := os.MkdirTemp("", "finboard-e2e")
	if err != nil {
		fmt.Printf("Failed to create work dir: %v\n", err)
		return 1
	}
	defer os.RemoveAll(workDir)

	binary := filepath.Join(workDir, "finboard")
	if err := buildServer(binary); err != nil {
		fmt.Println(err)
		return 1
	}

	port := os.Getenv("E2E_PORT")
	if port == "" {
		port = "8081"
	}
	appURL = "http://localhost:" + port

	server := exec.Command(binary)
	server.Env = append(os.Environ(),
		"PORT="+port,
		"DB_PATH="+filepath.Join(workDir, "finboard.db"),
		"SITE_CONFIG="+filepath.Join(workDir, "site.toml"),
		"JWT_SECRET=e2e-secret",
		"SUSPENSE_WAIT=1s",
		"ADMIN_USER=testuser",
		"ADMIN_PASSWORD=testpass123",
	)
	server.Stdout = os.Stdout
	server.Stderr = os.Stderr
	if err := server.Start(); err != nil {
		fmt.Printf("Failed to start server: %v\n", err)
		return 1
	}
	defer stopServer(server)

	if err := waitReady(appURL+"/healthz", 5*time.Second); err != nil {
		fmt.Println(err)
		return 1
	}
	return m.Run()
}

// buildServer compiles cmd/server whether the tests run from e2e/ or the
// module root.
func buildServer(out string) error {
	pkg := "../cmd/server"
	if _, err := os.Stat(pkg); errors.Is(err, os.ErrNotExist) {
		pkg = "./cmd/server"
		if _, err := os.Stat(pkg); err != nil {
			return errors.New("could not find cmd/server to build")
		}
	}
	output, err := exec.Command("go", "build", "-o", out, pkg).CombinedOutput()
	if err != nil {
		return fmt.Errorf("failed to build app: %v\n%s", err, output)
	}
	return nil
}

func waitReady(url string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		resp, err := http.Get(url)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
		time.Sleep(100 * time.Millisecond)
	}
	return fmt.Errorf("server not ready at %s after %s", url, timeout)
}

// stopServer asks for a graceful shutdown and kills the process if it does
// not exit in time.
func stopServer(cmd *exec.Cmd) {
	_ = cmd.Process.Signal(syscall.SIGTERM)
	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		if err := cmd.Process.Kill(); err != nil {
			fmt.Printf("Failed to kill server: %v\n", err)
		}
	}
}
