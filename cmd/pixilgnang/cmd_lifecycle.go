package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(stopCmd, restartCmd, statusCmd)
}

var errNotRunning = errors.New("no running daemon")

func pidFile(dataDir string) string {
	return filepath.Join(dataDir, "pixilgnang.pid")
}

func writePIDFile(dataDir string) (string, error) {
	path := pidFile(dataDir)
	if err := os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())+"\n"), 0644); err != nil {
		return "", fmt.Errorf("write PID file: %w", err)
	}
	return path, nil
}

// runningDaemon returns the daemon process named by the PID file after
// probing it with signal 0.
func runningDaemon() (*os.Process, error) {
	cfg := loadConfig()
	data, err := os.ReadFile(pidFile(cfg.DataDir))
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w (PID file not found)", errNotRunning)
	}
	if err != nil {
		return nil, fmt.Errorf("read PID file: %w", err)
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return nil, fmt.Errorf("invalid PID file content: %w", err)
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return nil, fmt.Errorf("find process %d: %w", pid, err)
	}
	if err := proc.Signal(syscall.Signal(0)); err != nil {
		return nil, fmt.Errorf("%w (process %d not found)", errNotRunning, pid)
	}
	return proc, nil
}

func signalDaemon(sig syscall.Signal, what string) error {
	proc, err := runningDaemon()
	if err != nil {
		return err
	}
	if err := proc.Signal(sig); err != nil {
		return fmt.Errorf("send %s: %w", sig, err)
	}
	fmt.Fprintf(os.Stdout, "Sent %s to daemon (PID %d) %s.\n", sig, proc.Pid, what)
	return nil
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running bot",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return signalDaemon(syscall.SIGTERM, "to stop")
	},
}

var restartCmd = &cobra.Command{
	Use:   "restart",
	Short: "Restart the running bot, picking up config changes",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return signalDaemon(syscall.SIGHUP, "to restart")
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Report whether the bot is running",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		proc, err := runningDaemon()
		if errors.Is(err, errNotRunning) {
			fmt.Fprintln(os.Stdout, "Not running.")
			return nil
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "Running (PID %d).\n", proc.Pid)
		return nil
	},
}
