// Package launch provides the injectable remote-process-launch
// capability the controller uses to start a storage node's process.
// Production launches over SSH, the way the original implementation
// shelled out to `ssh ... java -jar KVServer.jar ...`; tests inject an
// in-process stub, per spec.md §9 "Remote-launch hook".
package launch

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/abdulrahman86/ecs/internal/node"
)

// Launcher starts a storage node's process on its target host.
type Launcher interface {
	Launch(ctx context.Context, n *node.Node) error
}

// SSHConfig configures the SSH-based launcher.
type SSHConfig struct {
	// Command is the remote command template, with %NAME%, %HOST%,
	// %PORT% substituted; it is run on the node's host as
	// `ssh <host> nohup <Command>` through a local sh -c.
	Command string
}

// SSH launches a node's process over SSH, redirecting remote output to
// files so the SSH channel does not block waiting on further output —
// the same shape as the original's nohup-and-redirect invocation.
type SSH struct {
	cfg SSHConfig
}

// NewSSH returns an SSH-based Launcher using cfg.Command as the remote
// command template.
func NewSSH(cfg SSHConfig) *SSH {
	return &SSH{cfg: cfg}
}

func (s *SSH) Launch(ctx context.Context, n *node.Node) error {
	remoteCmd := substitute(s.cfg.Command, n)
	sshCmd := fmt.Sprintf(
		"ssh -o StrictHostKeyChecking=no -n %s nohup %s > ./logs/%s.out.log 2> ./logs/%s.err.log &",
		n.Host, remoteCmd, n.Name, n.Name,
	)
	cmd := exec.CommandContext(ctx, "sh", "-c", sshCmd)
	return cmd.Run()
}

func substitute(template string, n *node.Node) string {
	out := strings.ReplaceAll(template, "%NAME%", n.Name)
	out = strings.ReplaceAll(out, "%HOST%", n.Host)
	out = strings.ReplaceAll(out, "%PORT%", fmt.Sprintf("%d", n.Port))
	return out
}

// InProcess is a test/demo Launcher that never shells out: it calls
// OnLaunch (if set) for each node asked to launch, so tests can start a
// fake node that acks admin commands without spawning a real process.
type InProcess struct {
	OnLaunch func(n *node.Node) error
}

func (s *InProcess) Launch(ctx context.Context, n *node.Node) error {
	if s.OnLaunch == nil {
		return nil
	}
	return s.OnLaunch(n)
}
