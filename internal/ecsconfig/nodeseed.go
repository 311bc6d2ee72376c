// Package ecsconfig parses the node-seed config file: ASCII text, one
// node per line, fields "name host port" separated by a single space.
// Duplicate names are logged and skipped; malformed lines are fatal.
package ecsconfig

import (
	"bufio"
	"io"
	"os"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/abdulrahman86/ecs/internal/ecserrors"
	"github.com/abdulrahman86/ecs/internal/node"
)

// LoadNodeSeedFile reads path and returns the distinct nodes it
// describes, in file order. A line with other than 3 space-separated
// tokens returns a ConfigFormatError immediately; a duplicate name is
// logged via logger and skipped.
func LoadNodeSeedFile(path string, logger *zap.Logger) ([]*node.Node, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ParseNodeSeed(f, logger)
}

// ParseNodeSeed is LoadNodeSeedFile given an already-open reader.
func ParseNodeSeed(r io.Reader, logger *zap.Logger) ([]*node.Node, error) {
	var nodes []*node.Node
	seen := make(map[string]bool)

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			return nil, ecserrors.ConfigFormatError(line, 0)
		}

		tokens := strings.Split(line, " ")
		if len(tokens) != 3 {
			return nil, ecserrors.ConfigFormatError(line, len(tokens))
		}

		name, host, portStr := tokens[0], tokens[1], tokens[2]
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return nil, (&ecserrors.ECSError{
				Code:    ecserrors.CodeConfigFormat,
				Message: "port is not an integer: " + portStr,
				Cause:   err,
			}).WithDetail("line", line)
		}

		if seen[name] {
			if logger != nil {
				logger.Warn("duplicate node name in seed config, skipping",
					zap.String("name", name), zap.String("line", line))
			}
			continue
		}
		seen[name] = true
		nodes = append(nodes, node.New(name, host, port))
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return nodes, nil
}
