// Command openapi-compat fails when a revised swagger.yaml would break existing
// feed clients: removed routes or response codes, new required parameters, or a
// missing route the web client depends on.
package main

import (
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

var methods = []string{"get", "put", "post", "delete", "patch"}

// clientRoutes are the operations the web feed calls.
var clientRoutes = []string{
	"GET /posts",
	"POST /posts",
	"GET /posts/{id}",
	"PUT /posts/{id}",
	"DELETE /posts/{id}",
	"POST /posts/{id}/like",
	"POST /posts/{id}/repost",
	"POST /posts/{id}/comment",
	"POST /posts/{id}/view",
	"POST /posts/{id}/report",
	"GET /search",
	"GET /reports/me",
}

type parameter struct {
	Name     string `yaml:"name"`
	In       string `yaml:"in"`
	Required bool   `yaml:"required"`
}

type operation struct {
	Parameters []parameter           `yaml:"parameters"`
	Responses  map[string]yaml.Node `yaml:"responses"`
}

type document struct {
	Paths map[string]map[string]yaml.Node `yaml:"paths"`
}

// contract is the comparable view of a document: "METHOD /path" to its operation.
type contract map[string]operation

func main() {
	basePath := flag.String("base", "", "base swagger.yaml")
	revisionPath := flag.String("revision", "", "revised swagger.yaml")
	flag.Parse()

	if strings.TrimSpace(*revisionPath) == "" {
		fmt.Fprintln(os.Stderr, "usage: openapi-compat -revision <path> [-base <path>]")
		os.Exit(2)
	}

	revision, err := load(*revisionPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load revision: %v\n", err)
		os.Exit(1)
	}

	issues := missingClientRoutes(revision)
	if *basePath != "" {
		base, err := load(*basePath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to load base: %v\n", err)
			os.Exit(1)
		}
		issues = append(issues, compare(base, revision)...)
	}

	if len(issues) > 0 {
		fmt.Fprintln(os.Stderr, "compatibility check failed:")
		for _, issue := range issues {
			fmt.Fprintf(os.Stderr, "- %s\n", issue)
		}
		os.Exit(1)
	}
	fmt.Println("openapi compatibility check passed")
}

func load(path string) (contract, error) {
	// #nosec G304: path comes from CLI flags in a dev tool
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return parse(raw)
}

func parse(raw []byte) (contract, error) {
	var doc document
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	if doc.Paths == nil {
		return nil, fmt.Errorf("missing top-level paths field")
	}

	out := make(contract)
	for path, ops := range doc.Paths {
		for _, m := range methods {
			node, ok := ops[m]
			if !ok {
				continue
			}
			var op operation
			if err := node.Decode(&op); err != nil {
				return nil, fmt.Errorf("%s %s: %w", strings.ToUpper(m), path, err)
			}
			out[strings.ToUpper(m)+" "+path] = op
		}
	}
	return out, nil
}

func missingClientRoutes(c contract) []string {
	var issues []string
	for _, route := range clientRoutes {
		if _, ok := c[route]; !ok {
			issues = append(issues, "missing client route: "+route)
		}
	}
	return issues
}

func compare(base, revision contract) []string {
	var issues []string

	for route, baseOp := range base {
		revOp, ok := revision[route]
		if !ok {
			issues = append(issues, "removed operation: "+route)
			continue
		}

		for code := range baseOp.Responses {
			if _, ok := revOp.Responses[code]; !ok {
				issues = append(issues, fmt.Sprintf("removed response code: %s -> %s", route, code))
			}
		}

		known := make(map[string]bool, len(baseOp.Parameters))
		for _, p := range baseOp.Parameters {
			known[p.In+":"+p.Name] = p.Required
		}
		for _, p := range revOp.Parameters {
			if !p.Required {
				continue
			}
			if wasRequired, existed := known[p.In+":"+p.Name]; !existed || !wasRequired {
				issues = append(issues, fmt.Sprintf("new required %s parameter: %s -> %s", p.In, route, p.Name))
			}
		}
	}

	sort.Strings(issues)
	return issues
}
