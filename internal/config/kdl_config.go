package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	kdl "github.com/sblinch/kdl-go"
	"github.com/sblinch/kdl-go/document"
)

// configFileName is the name source-fast looks for in a project root.
const configFileName = ".source_fast.kdl"

// LoadKDL parses configFileName under root, if present. It returns (nil, nil)
// when no config file exists, signalling the caller should fall back to
// Default.
func LoadKDL(root string) (*Config, error) {
	path := filepath.Join(root, configFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	doc, err := kdl.Parse(strings.NewReader(string(data)))
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", configFileName, err)
	}

	cfg := Default(root)
	parseDocument(doc, cfg)
	return cfg, nil
}

func parseDocument(doc *document.Document, cfg *Config) {
	for _, node := range doc.Nodes {
		switch nodeName(node) {
		case "project":
			for _, cn := range node.Children {
				switch nodeName(cn) {
				case "name":
					assignSimpleString(cn, &cfg.Project.Name)
				case "root":
					assignSimpleString(cn, &cfg.Project.Root)
				}
			}
		case "index":
			parseIndexSection(node, cfg)
		case "performance":
			parsePerformanceSection(node, cfg)
		case "include":
			cfg.Include = append(cfg.Include, collectStringArgs(node)...)
		case "exclude":
			cfg.Exclude = collectStringArgs(node)
		}
	}
}

func parseIndexSection(node *document.Node, cfg *Config) {
	for _, cn := range node.Children {
		switch nodeName(cn) {
		case "max-file-size":
			if s, ok := firstStringArg(cn); ok {
				if v, ok := parseSize(s); ok {
					cfg.Index.MaxFileSize = v
				}
			}
		case "probe-size":
			if s, ok := firstStringArg(cn); ok {
				if v, ok := parseSize(s); ok {
					cfg.Index.ProbeSize = v
				}
			}
		case "follow-symlinks":
			if b, ok := firstBoolArg(cn); ok {
				cfg.Index.FollowSymlinks = b
			}
		case "respect-gitignore":
			if b, ok := firstBoolArg(cn); ok {
				cfg.Index.RespectGitignore = b
			}
		case "watch-mode":
			if b, ok := firstBoolArg(cn); ok {
				cfg.Index.WatchMode = b
			}
		case "watch-debounce-ms":
			if v, ok := firstIntArg(cn); ok {
				cfg.Index.WatchDebounceMs = v
			}
		}
	}
}

func parsePerformanceSection(node *document.Node, cfg *Config) {
	for _, cn := range node.Children {
		switch nodeName(cn) {
		case "workers":
			if v, ok := firstIntArg(cn); ok {
				cfg.Performance.Workers = v
			}
		case "max-open-files":
			if v, ok := firstIntArg(cn); ok {
				cfg.Performance.MaxOpenFiles = v
			}
		case "lock-timeout-ms":
			if v, ok := firstIntArg(cn); ok {
				cfg.Performance.LockTimeoutMs = v
			}
		}
	}
}

// nodeName returns the node's bare identifier, or "" for a nameless node.
func nodeName(n *document.Node) string {
	if n == nil || n.Name == nil {
		return ""
	}
	return n.Name.NodeNameString()
}

func firstStringArg(n *document.Node) (string, bool) {
	if len(n.Arguments) == 0 {
		return "", false
	}
	if s, ok := n.Arguments[0].Value.(string); ok {
		return s, true
	}
	return "", false
}

func firstIntArg(n *document.Node) (int, bool) {
	if len(n.Arguments) == 0 {
		return 0, false
	}
	switch v := n.Arguments[0].Value.(type) {
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}

func firstBoolArg(n *document.Node) (bool, bool) {
	if len(n.Arguments) == 0 {
		return false, false
	}
	if b, ok := n.Arguments[0].Value.(bool); ok {
		return b, true
	}
	return false, false
}

// parseSize handles byte counts and suffixed sizes like "4mb" / "8kb" / "1gb",
// case-insensitively.
func parseSize(s string) (int64, bool) {
	s = strings.TrimSpace(s)
	upper := strings.ToUpper(s)

	var multiplier int64 = 1
	var numPart string
	switch {
	case strings.HasSuffix(upper, "GB"):
		multiplier = 1024 * 1024 * 1024
		numPart = s[:len(s)-2]
	case strings.HasSuffix(upper, "MB"):
		multiplier = 1024 * 1024
		numPart = s[:len(s)-2]
	case strings.HasSuffix(upper, "KB"):
		multiplier = 1024
		numPart = s[:len(s)-2]
	default:
		numPart = s
	}

	n, err := strconv.ParseInt(numPart, 10, 64)
	if err != nil {
		return 0, false
	}
	return n * multiplier, true
}

// collectStringArgs reads a list either from a node's inline arguments
// (exclude "a/**" "b/**") or from child nodes whose own name is the value
// (exclude { "a/**" "b/**" }).
func collectStringArgs(n *document.Node) []string {
	if n == nil {
		return nil
	}
	out := make([]string, 0, len(n.Arguments))
	for _, a := range n.Arguments {
		if s, ok := a.Value.(string); ok {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		for _, child := range n.Children {
			if s, ok := firstStringArg(child); ok {
				out = append(out, s)
			} else if child.Name != nil {
				if s, ok := child.Name.Value.(string); ok {
					out = append(out, s)
				}
			}
		}
	}
	return out
}

func assignSimpleString(n *document.Node, dst *string) {
	if s, ok := firstStringArg(n); ok {
		*dst = s
	}
}
