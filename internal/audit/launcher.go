package audit

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// ChromeLauncher starts a dedicated headless browser process per audit,
// with an ephemeral remote-debugging port and a throwaway profile
// directory.
type ChromeLauncher struct {
	Path string // browser binary, e.g. "chromium" or "google-chrome"
}

type chromeBrowser struct {
	cmd     *exec.Cmd
	port    int
	dataDir string
}

func (b *chromeBrowser) Port() int { return b.port }

func (b *chromeBrowser) Close(ctx context.Context) error {
	defer os.RemoveAll(b.dataDir)
	if b.cmd.Process == nil {
		return nil
	}
	if err := b.cmd.Process.Kill(); err != nil {
		return fmt.Errorf("kill browser: %w", err)
	}
	done := make(chan error, 1)
	go func() { done <- b.cmd.Wait() }()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Launch starts the browser and waits for its debugging endpoint to come
// up. Any failure here (binary missing, port conflict, resource
// exhaustion) is reported to the caller, which wraps it as a launch error.
func (l *ChromeLauncher) Launch(ctx context.Context) (Browser, error) {
	port, err := freePort()
	if err != nil {
		return nil, fmt.Errorf("allocate debug port: %w", err)
	}
	dataDir := filepath.Join(os.TempDir(), "lumen-chrome-"+uuid.NewString())

	cmd := exec.Command(l.Path,
		"--headless",
		"--no-sandbox",
		"--disable-gpu",
		fmt.Sprintf("--remote-debugging-port=%d", port),
		"--user-data-dir="+dataDir,
	)
	if err := cmd.Start(); err != nil {
		os.RemoveAll(dataDir)
		return nil, fmt.Errorf("start %s: %w", l.Path, err)
	}

	b := &chromeBrowser{cmd: cmd, port: port, dataDir: dataDir}
	if err := waitForDebugger(ctx, port); err != nil {
		closeCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = b.Close(closeCtx)
		return nil, fmt.Errorf("browser did not become ready: %w", err)
	}
	return b, nil
}

func freePort() (int, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port, nil
}

func waitForDebugger(ctx context.Context, port int) error {
	url := fmt.Sprintf("http://127.0.0.1:%d/json/version", port)
	client := &http.Client{Timeout: time.Second}
	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		resp, err := client.Do(req)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(100 * time.Millisecond):
		}
	}
}
