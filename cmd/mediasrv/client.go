package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"os"
	"os/exec"
	"syscall"
	"time"

	"mediasrv/internal/api"
	"mediasrv/internal/config"
)

const (
	serverProbeTimeout = 500 * time.Millisecond
	serverStartTimeout = 3 * time.Second
	serverStopTimeout  = 5 * time.Second
	serverPollInterval = 100 * time.Millisecond
)

// withClient runs fn against cfg.APIURL, starting a throwaway local server
// for the duration of fn when nothing answers there.
func withClient(ctx context.Context, cfg *config.Config, fn func(*api.Client) error) error {
	client := api.NewClient(cfg.APIURL)
	if reachable(ctx, client) {
		return fn(client)
	}
	if !isLoopbackURL(cfg.APIURL) {
		return fmt.Errorf("no mediasrv server at %s", cfg.APIURL)
	}

	local, err := startLocalServer(ctx, cfg, client)
	if err != nil {
		return err
	}
	defer local.stop()
	return fn(client)
}

func reachable(ctx context.Context, client *api.Client) bool {
	ctx, cancel := context.WithTimeout(ctx, serverProbeTimeout)
	defer cancel()
	return client.Ping(ctx) == nil
}

// isLoopbackURL reports whether raw points at this machine, the only place
// a server can be started on the user's behalf.
func isLoopbackURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	host := u.Hostname()
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// localServer is a `mediasrv srv` child process.
type localServer struct {
	cmd  *exec.Cmd
	done chan struct{}
}

func startLocalServer(ctx context.Context, cfg *config.Config, client *api.Client) (*localServer, error) {
	exe, err := os.Executable()
	if err != nil {
		return nil, err
	}
	cmd := exec.Command(exe, "srv")
	cmd.Env = append(os.Environ(),
		"MEDIASRV_DB="+cfg.DBPath,
		"MEDIASRV_API_URL="+cfg.APIURL,
	)
	cmd.Stdout = io.Discard
	cmd.Stderr = io.Discard
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start local server: %w", err)
	}

	s := &localServer{cmd: cmd, done: make(chan struct{})}
	go func() {
		_ = cmd.Wait()
		close(s.done)
	}()

	startCtx, cancel := context.WithTimeout(ctx, serverStartTimeout)
	defer cancel()
	if err := s.waitReady(startCtx, client); err != nil {
		_ = cmd.Process.Kill()
		<-s.done
		return nil, err
	}
	return s, nil
}

func (s *localServer) waitReady(ctx context.Context, client *api.Client) error {
	ticker := time.NewTicker(serverPollInterval)
	defer ticker.Stop()
	for {
		err := client.Ping(ctx)
		if err == nil {
			return nil
		}
		if !isConnRefused(err) && ctx.Err() == nil {
			// Something else owns the port.
			return err
		}
		select {
		case <-s.done:
			return errors.New("local server exited during startup")
		case <-ctx.Done():
			return errors.New("server did not start in time")
		case <-ticker.C:
		}
	}
}

// stop interrupts the server so pending view counts drain, then kills it
// if it does not exit in time.
func (s *localServer) stop() {
	if err := s.cmd.Process.Signal(os.Interrupt); err != nil {
		_ = s.cmd.Process.Kill()
	}
	select {
	case <-s.done:
	case <-time.After(serverStopTimeout):
		_ = s.cmd.Process.Kill()
		<-s.done
	}
}

func isConnRefused(err error) bool {
	if errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "dial"
}
