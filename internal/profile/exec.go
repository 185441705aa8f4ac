/*
PURPOSE:
  Profile engine backed by an external program, typically a small refl1d
  script that builds the sample and prints Experiment.magnetic_profile().

REQUIREMENTS:
  User-specified:
  - Hand the current model to the simulator, read the depth profile back.

  Implementation-discovered:
  - One process per call keeps draws independent across workers.
  - A hung simulator must not stall the run: every call has a deadline.

ARCHITECTURE INTEGRATION:
  - Called by: internal/engine.Run
  - Configured by: engine.command / engine.timeout

ERROR HANDLING:
  - Non-zero exit, timeout and invalid JSON are returned with the
    simulator's stderr attached.

IMPLEMENTATION RULES:
  - Request: JSON on stdin (see execRequest). Response: JSON Profile on stdout.

USAGE:
  e := profile.ExecEngine{Command: []string{"python", "profile.py"}, Timeout: 30 * time.Second}

RELATED FILES:
  - internal/profile/profile.go
  - internal/model/script.go
*/

package profile

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/daryltucker/reflstats/internal/model"
)

// ExecEngine runs Command once per profile.
type ExecEngine struct {
	Command []string
	Timeout time.Duration
}

type execLayer struct {
	Name           string  `json:"name"`
	Thickness      float64 `json:"thickness"`
	Interface      float64 `json:"interface"`
	Rho            float64 `json:"rho"`
	IRho           float64 `json:"irho"`
	Magnetic       bool    `json:"magnetic"`
	RhoM           float64 `json:"rhoM,omitempty"`
	ThetaM         float64 `json:"thetaM,omitempty"`
	InterfaceAbove float64 `json:"interface_above,omitempty"`
	InterfaceBelow float64 `json:"interface_below,omitempty"`
	DeadAbove      float64 `json:"dead_above,omitempty"`
	DeadBelow      float64 `json:"dead_below,omitempty"`
}

type execRequest struct {
	Name   string             `json:"name"`
	Probe  map[string]float64 `json:"probe"`
	Layers []execLayer        `json:"layers"`
	Script string             `json:"script"`
}

func newExecRequest(m *model.Model) execRequest {
	req := execRequest{
		Name:   m.Name,
		Probe:  make(map[string]float64, len(m.Probe)),
		Script: m.Script(),
	}
	for k, v := range m.Probe {
		req.Probe[string(k)] = v
	}
	for _, l := range m.Layers() {
		req.Layers = append(req.Layers, execLayer{
			Name:           l.Name,
			Thickness:      l.Thickness,
			Interface:      l.Interface,
			Rho:            l.Rho,
			IRho:           l.IRho,
			Magnetic:       l.Magnetic,
			RhoM:           l.RhoM,
			ThetaM:         l.ThetaM,
			InterfaceAbove: l.InterfaceAbove,
			InterfaceBelow: l.InterfaceBelow,
			DeadAbove:      l.DeadAbove,
			DeadBelow:      l.DeadBelow,
		})
	}
	return req
}

// Profile implements Engine.
func (e ExecEngine) Profile(ctx context.Context, m *model.Model) (Profile, error) {
	if len(e.Command) == 0 {
		return Profile{}, errors.New("exec engine: no command configured")
	}
	payload, err := json.Marshal(newExecRequest(m))
	if err != nil {
		return Profile{}, fmt.Errorf("exec engine: encode model %s: %w", m.Name, err)
	}

	if e.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, e.Command[0], e.Command[1:]...)
	cmd.Stdin = bytes.NewReader(payload)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return Profile{}, fmt.Errorf("exec engine: model %s timed out after %s", m.Name, e.Timeout)
		}
		return Profile{}, fmt.Errorf("exec engine: model %s: %w (stderr: %s)", m.Name, err, strings.TrimSpace(stderr.String()))
	}

	var p Profile
	if err := json.Unmarshal(stdout.Bytes(), &p); err != nil {
		return Profile{}, fmt.Errorf("exec engine: model %s returned invalid JSON: %w", m.Name, err)
	}
	if err := p.Validate(); err != nil {
		return Profile{}, fmt.Errorf("exec engine: model %s: %w", m.Name, err)
	}
	return p, nil
}
