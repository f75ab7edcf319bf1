package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/kardianos/service"

	"aiclock/core"
	"aiclock/shutdown"
)

// serviceStopTimeout covers the shutdown manager's own 60s budget.
const serviceStopTimeout = 70 * time.Second

// Program implements service.Interface. Start runs the clock in a
// goroutine; Stop asks its shutdown manager to stop and waits.
type Program struct {
	mu            sync.Mutex
	manager       *shutdown.Manager
	stopRequested bool

	exit     chan struct{}
	exitCode int
}

// Start is called when the service is started.
func (p *Program) Start(s service.Service) error {
	p.exit = make(chan struct{})
	go p.run()
	return nil
}

func (p *Program) run() {
	defer close(p.exit)
	p.exitCode = run(runOptions{onManager: p.setManager})
}

func (p *Program) setManager(m *shutdown.Manager) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.manager = m
	if p.stopRequested {
		m.Trigger("service stop")
	}
}

// Stop is called when the service is stopped.
func (p *Program) Stop(s service.Service) error {
	p.mu.Lock()
	p.stopRequested = true
	if p.manager != nil {
		p.manager.Trigger("service stop")
	}
	p.mu.Unlock()

	if p.exit == nil {
		return nil
	}
	select {
	case <-p.exit:
	case <-time.After(serviceStopTimeout):
		return fmt.Errorf("timeout waiting for service to stop")
	}
	if p.exitCode != core.ExitCodeSuccess && !core.IsSignalExit(p.exitCode) {
		return fmt.Errorf("clock exited with code %d (%s)", p.exitCode, core.ExitCodeName(p.exitCode))
	}
	return nil
}

// ServiceConfig returns the service definition. The service runs from the
// executable's directory so relative config paths resolve the same way as
// an interactive run from there.
func ServiceConfig() *service.Config {
	cfg := &service.Config{
		Name:        serviceName(),
		DisplayName: "AI Clock",
		Description: "Analog clock with AI-generated backgrounds conditioned on the hand pose",
		Option: service.KeyValue{
			"StartType": "automatic",
			"Restart":   "on-failure",
		},
	}
	if exe, err := os.Executable(); err == nil {
		cfg.WorkingDirectory = filepath.Dir(exe)
	}
	return cfg
}

// serviceName reads system.service_name from the config files, falling
// back to the default when they cannot be resolved.
func serviceName() string {
	cfg, err := core.LoadConfig(
		core.GetEnvOrDefault("CLOCK_CONFIG", core.DefaultConfigPath),
		core.GetEnvOrDefault("CLOCK_DYNAMIC_SETTINGS", core.DefaultDynamicSettingsPath),
	)
	if err != nil || cfg.System.ServiceName == "" {
		return core.DefaultConfig().System.ServiceName
	}
	return cfg.System.ServiceName
}

func newService() (service.Service, error) {
	s, err := service.New(&Program{}, ServiceConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create service: %w", err)
	}
	return s, nil
}

// RunAsService runs the clock under the service manager. It returns false
// when the process was started interactively.
func RunAsService() (bool, error) {
	if service.Interactive() {
		return false, nil
	}

	s, err := newService()
	if err != nil {
		return false, err
	}
	if err := s.Run(); err != nil {
		return true, fmt.Errorf("service run failed: %w", err)
	}
	return true, nil
}

// controlService runs one of service.ControlAction (install, uninstall,
// start, stop, restart).
func controlService(action string) error {
	s, err := newService()
	if err != nil {
		return err
	}
	if err := service.Control(s, action); err != nil {
		return fmt.Errorf("failed to %s service: %w", action, err)
	}
	fmt.Printf("Service %s: ok\n", action)
	return nil
}

// ServiceStatus returns the current status of the installed service.
func ServiceStatus() (service.Status, error) {
	s, err := newService()
	if err != nil {
		return service.StatusUnknown, err
	}
	status, err := s.Status()
	if err != nil {
		return service.StatusUnknown, fmt.Errorf("failed to get service status: %w", err)
	}
	return status, nil
}

// PrintServiceUsage prints the help/usage information for service commands.
func PrintServiceUsage() {
	fmt.Println("AI Clock Service Management")
	fmt.Println()
	fmt.Println("Usage: aiclock <command>")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  install    Install the clock as a system service")
	fmt.Println("  uninstall  Remove the system service (alias: remove)")
	fmt.Println("  start      Start the service")
	fmt.Println("  stop       Stop the service")
	fmt.Println("  restart    Restart the service (stop then start)")
	fmt.Println("  status     Show the current service status")
	fmt.Println("  help       Show this help message")
	fmt.Println()
	fmt.Println("Run without arguments to start the clock in the foreground.")
}

// HandleServiceCommand handles service-related command-line arguments.
// Returns true if a service command was handled, false otherwise.
func HandleServiceCommand(args []string) bool {
	if len(args) < 2 {
		return false
	}

	switch args[1] {
	case "install", "uninstall", "start", "stop", "restart":
		exitOnError(controlService(args[1]))
	case "remove":
		exitOnError(controlService("uninstall"))
	case "status":
		status, err := ServiceStatus()
		exitOnError(err)
		switch status {
		case service.StatusRunning:
			fmt.Println("Service is running")
		case service.StatusStopped:
			fmt.Println("Service is stopped")
		default:
			fmt.Println("Service status unknown")
		}
	case "help", "-h", "--help", "-help":
		PrintServiceUsage()
	default:
		return false
	}
	return true
}

func exitOnError(err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(core.ExitCodeError)
	}
}
