// Package intake screens command lines from network clients before they are
// staged on the physics loop.
package intake

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// RejectForbidden is the reject reason reported for commands the policy
// refuses.
const RejectForbidden = "forbidden"

var ErrForbidden = errors.New("command_forbidden")

// Submitter stages a command line and waits for its result.
type Submitter interface {
	Submit(ctx context.Context, source, line string) (string, error)
}

// Policy lists command prefixes remote clients may not run. Each entry is a
// space-separated keyword sequence matched case-insensitively.
type Policy struct {
	Deny []string
}

// DefaultPolicy keeps file access and process control local.
func DefaultPolicy() Policy {
	return Policy{Deny: []string{"script", "quit", "exit", "energy log"}}
}

// Check returns ErrForbidden when line starts with a denied prefix. The
// optional graphics/world group prefix is ignored.
func (p Policy) Check(line string) error {
	fields := strings.Fields(strings.ToLower(line))
	if len(fields) > 0 && (fields[0] == "graphics" || fields[0] == "world") {
		fields = fields[1:]
	}
	for _, deny := range p.Deny {
		prefix := strings.Fields(strings.ToLower(deny))
		if len(prefix) == 0 || len(prefix) > len(fields) {
			continue
		}
		match := true
		for i, word := range prefix {
			if fields[i] != word {
				match = false
				break
			}
		}
		if match {
			return fmt.Errorf("%s %q: %w", RejectForbidden, deny, ErrForbidden)
		}
	}
	return nil
}

type gate struct {
	next   Submitter
	policy Policy
}

// Gate wraps next so lines refused by policy never reach the queue.
func Gate(next Submitter, policy Policy) Submitter {
	if next == nil {
		return nil
	}
	return &gate{next: next, policy: policy}
}

func (g *gate) Submit(ctx context.Context, source, line string) (string, error) {
	if err := g.policy.Check(line); err != nil {
		return "", err
	}
	return g.next.Submit(ctx, source, line)
}
