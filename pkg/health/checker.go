// Package health provides health check functionality for slices.
package health

import (
	"context"
	"fmt"
	"time"

	"github.com/weft-testbed/weft/pkg/topology"
)

// Status represents the health status of a component
type Status string

const (
	StatusOK       Status = "ok"
	StatusWarning  Status = "warning"
	StatusCritical Status = "critical"
	StatusUnknown  Status = "unknown"
)

// Result represents the result of a health check
type Result struct {
	Check     string        `json:"check"`
	Status    Status        `json:"status"`
	Message   string        `json:"message"`
	Details   interface{}   `json:"details,omitempty"`
	Duration  time.Duration `json:"duration"`
	Timestamp time.Time     `json:"timestamp"`
}

// Report contains all health check results for a slice
type Report struct {
	Slice     string        `json:"slice"`
	Timestamp time.Time     `json:"timestamp"`
	Overall   Status        `json:"overall"`
	Results   []Result      `json:"results"`
	Duration  time.Duration `json:"duration"`
}

// Check defines the interface for health checks
type Check interface {
	Name() string
	Run(ctx context.Context, s *topology.Slice) Result
}

// Prober reaches a node over its management path. *bastion.Channel
// satisfies this.
type Prober interface {
	Probe(ctx context.Context, node *topology.Node) error
}

// Checker runs health checks on a slice
type Checker struct {
	checks []Check
}

// NewChecker creates a new health checker with default checks
func NewChecker() *Checker {
	return &Checker{
		checks: []Check{
			&ReservationCheck{},
			&AddressCheck{},
			&LeaseCheck{},
		},
	}
}

// NewCheckerWithProbe creates a health checker that also verifies SSH
// reachability through the given prober
func NewCheckerWithProbe(p Prober) *Checker {
	c := NewChecker()
	c.AddCheck(&SSHCheck{Prober: p})
	return c
}

// AddCheck registers an additional health check
func (c *Checker) AddCheck(check Check) {
	c.checks = append(c.checks, check)
}

// ListChecks returns the names of all registered checks
func (c *Checker) ListChecks() []string {
	names := make([]string, 0, len(c.checks))
	for _, check := range c.checks {
		names = append(names, check.Name())
	}
	return names
}

// Run executes all health checks and returns a report
func (c *Checker) Run(ctx context.Context, s *topology.Slice) (*Report, error) {
	if s.ID() == "" {
		return nil, fmt.Errorf("slice not submitted")
	}

	start := time.Now()
	report := &Report{
		Slice:     s.Name(),
		Timestamp: start,
		Results:   make([]Result, 0, len(c.checks)),
		Overall:   StatusOK,
	}

	for _, check := range c.checks {
		result := check.Run(ctx, s)
		report.Results = append(report.Results, result)

		// Update overall status (worst wins)
		if result.Status == StatusCritical {
			report.Overall = StatusCritical
		} else if result.Status == StatusWarning && report.Overall != StatusCritical {
			report.Overall = StatusWarning
		} else if result.Status == StatusUnknown && report.Overall == StatusOK {
			report.Overall = StatusUnknown
		}
	}

	report.Duration = time.Since(start)
	return report, nil
}

// RunCheck runs a specific health check by name
func (c *Checker) RunCheck(ctx context.Context, s *topology.Slice, name string) (*Result, error) {
	for _, check := range c.checks {
		if check.Name() == name {
			result := check.Run(ctx, s)
			return &result, nil
		}
	}
	return nil, fmt.Errorf("health check '%s' not found", name)
}

// ReservationCheck verifies node reservation states
type ReservationCheck struct{}

// Name returns the check name
func (c *ReservationCheck) Name() string {
	return "reservations"
}

// Run executes the reservation health check
func (c *ReservationCheck) Run(ctx context.Context, s *topology.Slice) Result {
	start := time.Now()
	result := Result{
		Check:     c.Name(),
		Timestamp: start,
	}

	nodes := s.Nodes()
	var ready, pending, failed int
	var firstFailure string
	for _, n := range nodes {
		switch {
		case n.State() == topology.StateFailed:
			failed++
			if firstFailure == "" {
				firstFailure = n.Name()
				if msg := n.LastError(); msg != "" {
					firstFailure += ": " + msg
				}
			}
		case n.State().Ready():
			ready++
		default:
			pending++
		}
	}

	result.Duration = time.Since(start)
	result.Details = map[string]int{
		"total":   len(nodes),
		"ready":   ready,
		"pending": pending,
		"failed":  failed,
	}

	switch {
	case failed > 0:
		result.Status = StatusCritical
		result.Message = fmt.Sprintf("%d of %d reservations failed (%s)", failed, len(nodes), firstFailure)
	case pending > 0:
		result.Status = StatusWarning
		result.Message = fmt.Sprintf("%d of %d reservations still pending", pending, len(nodes))
	default:
		result.Status = StatusOK
		result.Message = fmt.Sprintf("All %d reservations active", len(nodes))
	}

	return result
}

// AddressCheck verifies nodes have management addresses
type AddressCheck struct{}

// Name returns the check name
func (c *AddressCheck) Name() string {
	return "addresses"
}

// Run executes the management address health check
func (c *AddressCheck) Run(ctx context.Context, s *topology.Slice) Result {
	start := time.Now()
	result := Result{
		Check:     c.Name(),
		Timestamp: start,
	}

	nodes := s.Nodes()
	var missing int
	for _, n := range nodes {
		if n.ManagementIP() == "" {
			missing++
		}
	}

	result.Duration = time.Since(start)
	result.Details = map[string]int{
		"total":   len(nodes),
		"missing": missing,
	}

	switch {
	case missing == 0:
		result.Status = StatusOK
		result.Message = fmt.Sprintf("All %d nodes have management addresses", len(nodes))
	case missing < len(nodes):
		result.Status = StatusWarning
		result.Message = fmt.Sprintf("%d of %d nodes missing management addresses", missing, len(nodes))
	default:
		result.Status = StatusCritical
		result.Message = "No node has a management address yet"
	}

	return result
}

// LeaseCheck verifies the slice lease has not expired
type LeaseCheck struct{}

// Name returns the check name
func (c *LeaseCheck) Name() string {
	return "lease"
}

// Run executes the lease health check
func (c *LeaseCheck) Run(ctx context.Context, s *topology.Slice) Result {
	start := time.Now()
	result := Result{
		Check:     c.Name(),
		Timestamp: start,
	}

	_, end := s.Lease()
	result.Duration = time.Since(start)

	if end.IsZero() {
		result.Status = StatusUnknown
		result.Message = "No lease recorded"
		return result
	}

	remaining := time.Until(end)
	result.Details = map[string]string{
		"end": end.Format(time.RFC3339),
	}

	switch {
	case remaining <= 0:
		result.Status = StatusCritical
		result.Message = fmt.Sprintf("Lease expired %s ago", (-remaining).Round(time.Minute))
	case remaining < 24*time.Hour:
		result.Status = StatusWarning
		result.Message = fmt.Sprintf("Lease expires in %s", remaining.Round(time.Minute))
	default:
		result.Status = StatusOK
		result.Message = fmt.Sprintf("Lease valid until %s", end.Format(time.RFC3339))
	}

	return result
}

// SSHCheck verifies SSH reachability of slice nodes
type SSHCheck struct {
	Prober Prober
}

// Name returns the check name
func (c *SSHCheck) Name() string {
	return "ssh"
}

// Run executes the SSH reachability check
func (c *SSHCheck) Run(ctx context.Context, s *topology.Slice) Result {
	start := time.Now()
	result := Result{
		Check:     c.Name(),
		Timestamp: start,
	}

	if c.Prober == nil {
		result.Status = StatusUnknown
		result.Message = "No execution channel configured"
		result.Duration = time.Since(start)
		return result
	}

	nodes := s.Nodes()
	var unreachable int
	for _, n := range nodes {
		if n.ManagementIP() == "" {
			unreachable++
			continue
		}
		if err := c.Prober.Probe(ctx, n); err != nil {
			unreachable++
		}
	}

	result.Duration = time.Since(start)
	result.Details = map[string]int{
		"total":       len(nodes),
		"unreachable": unreachable,
	}

	switch {
	case unreachable == 0:
		result.Status = StatusOK
		result.Message = fmt.Sprintf("All %d nodes reachable", len(nodes))
	case unreachable < len(nodes):
		result.Status = StatusWarning
		result.Message = fmt.Sprintf("%d of %d nodes unreachable", unreachable, len(nodes))
	default:
		result.Status = StatusCritical
		result.Message = fmt.Sprintf("All %d nodes unreachable", len(nodes))
	}

	return result
}
