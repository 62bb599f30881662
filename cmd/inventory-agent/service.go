package main

import (
	"fmt"

	"github.com/kardianos/service"
	"github.com/stone-age-io/inventory-agent/internal/agent"
)

// program adapts the agent to the OS service manager. In a terminal,
// service.Run calls Start, waits for SIGINT/SIGTERM, then calls Stop.
type program struct {
	configPath string
	agent      *agent.Agent
}

func (p *program) Start(s service.Service) error {
	a, err := agent.New(p.configPath, version)
	if err != nil {
		return err
	}
	if err := a.Start(); err != nil {
		a.Shutdown()
		return err
	}
	p.agent = a
	return nil
}

func (p *program) Stop(s service.Service) error {
	if p.agent == nil {
		return nil
	}
	return p.agent.Shutdown()
}

func serviceConfig(configPath string) *service.Config {
	return &service.Config{
		Name:        serviceName,
		DisplayName: "Inventory Agent",
		Description: "Reports host identity, addresses and virtualization capabilities to the inventory server.",
		Arguments:   []string{"run", "--config", configPath},
		Dependencies: []string{
			"After=network-online.target",
			"Wants=network-online.target",
		},
	}
}

func newService(configPath string) (service.Service, error) {
	s, err := service.New(&program{configPath: configPath}, serviceConfig(configPath))
	if err != nil {
		return nil, fmt.Errorf("failed to create service: %w", err)
	}
	return s, nil
}
