package main

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

type openAPIDoc struct {
	Paths      map[string]pathItem `yaml:"paths"`
	Components struct {
		Schemas       map[string]schema    `yaml:"schemas"`
		Parameters    map[string]parameter `yaml:"parameters"`
		Responses     map[string]response  `yaml:"responses"`
		RequestBodies map[string]yaml.Node `yaml:"requestBodies"`
	} `yaml:"components"`
	root yaml.Node
}

type schema struct {
	Type       string            `yaml:"type"`
	Ref        string            `yaml:"$ref"`
	Properties map[string]schema `yaml:"properties"`
	Required   []string          `yaml:"required"`
	Items      *schema           `yaml:"items"`
}

type pathItem struct {
	Parameters []parameter `yaml:"parameters"`
	Get        *operation  `yaml:"get"`
	Put        *operation  `yaml:"put"`
	Post       *operation  `yaml:"post"`
	Delete     *operation  `yaml:"delete"`
	Patch      *operation  `yaml:"patch"`
}

type operation struct {
	Parameters []parameter         `yaml:"parameters"`
	Responses  map[string]response `yaml:"responses"`
}

type parameter struct {
	Ref      string `yaml:"$ref"`
	Name     string `yaml:"name"`
	In       string `yaml:"in"`
	Required bool   `yaml:"required"`
}

type response struct {
	Ref     string `yaml:"$ref"`
	Content map[string]struct {
		Schema schema `yaml:"schema"`
	} `yaml:"content"`
}

var pathParamPattern = regexp.MustCompile(`\{([^}/]+)\}`)

func main() {
	if len(os.Args) != 2 {
		fmt.Fprintf(os.Stderr, "usage: %s <openapi.yaml>\n", os.Args[0])
		os.Exit(2)
	}
	doc, err := loadDoc(os.Args[1])
	if err != nil {
		exitErr(err)
	}
	if problems := check(doc); len(problems) > 0 {
		for _, p := range problems {
			fmt.Fprintln(os.Stderr, p.Error())
		}
		os.Exit(1)
	}
	fmt.Println("OpenAPI consistency check passed.")
}

func loadDoc(path string) (openAPIDoc, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return openAPIDoc{}, fmt.Errorf("read %s: %w", path, err)
	}
	return parseDoc(raw)
}

func parseDoc(raw []byte) (openAPIDoc, error) {
	var doc openAPIDoc
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return doc, fmt.Errorf("parse: %w", err)
	}
	if err := yaml.Unmarshal(raw, &doc.root); err != nil {
		return doc, fmt.Errorf("parse: %w", err)
	}
	return doc, nil
}

// check returns every problem found, ordered by path.
func check(doc openAPIDoc) []error {
	var problems []error
	errSchema, err := getSchema(doc, "ErrorResponse")
	if err != nil {
		problems = append(problems, err)
	} else if err := validateErrorResponse(errSchema); err != nil {
		problems = append(problems, err)
	}
	problems = append(problems, checkRefs(doc)...)

	paths := make([]string, 0, len(doc.Paths))
	for p := range doc.Paths {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	for _, p := range paths {
		problems = append(problems, checkPath(doc, p, doc.Paths[p])...)
	}
	return problems
}

func getSchema(doc openAPIDoc, name string) (schema, error) {
	if doc.Components.Schemas == nil {
		return schema{}, errors.New("components.schemas missing")
	}
	s, ok := doc.Components.Schemas[name]
	if !ok {
		return schema{}, fmt.Errorf("schema %q missing", name)
	}
	return s, nil
}

// validateErrorResponse pins the error envelope written by the api server.
func validateErrorResponse(s schema) error {
	if s.Type != "object" {
		return errors.New("ErrorResponse must be object")
	}
	required := makeSet(s.Required)
	for _, field := range []string{"success", "error", "code"} {
		if !required[field] {
			return fmt.Errorf("ErrorResponse.required must include %q", field)
		}
	}
	for field, want := range map[string]string{
		"success":   "boolean",
		"error":     "string",
		"code":      "string",
		"requestId": "string",
	} {
		prop, ok := s.Properties[field]
		if !ok || prop.Type != want {
			return fmt.Errorf("ErrorResponse.%s must be %s", field, want)
		}
	}
	return nil
}

func checkPath(doc openAPIDoc, path string, item pathItem) []error {
	var problems []error
	ops := map[string]*operation{
		"get":    item.Get,
		"put":    item.Put,
		"post":   item.Post,
		"delete": item.Delete,
		"patch":  item.Patch,
	}
	methods := make([]string, 0, len(ops))
	for m, op := range ops {
		if op != nil {
			methods = append(methods, m)
		}
	}
	sort.Strings(methods)
	if len(methods) == 0 {
		return []error{fmt.Errorf("%s: no operations", path)}
	}
	placeholders := pathParamPattern.FindAllStringSubmatch(path, -1)
	for _, m := range methods {
		op := ops[m]
		declared := make(map[string]bool)
		for _, p := range append(append([]parameter(nil), item.Parameters...), op.Parameters...) {
			p = resolveParameter(doc, p)
			if p.In == "path" && p.Required {
				declared[p.Name] = true
			}
		}
		for _, ph := range placeholders {
			if !declared[ph[1]] {
				problems = append(problems, fmt.Errorf("%s %s: path parameter %q not declared as required", strings.ToUpper(m), path, ph[1]))
			}
		}
		if path != "/healthz" && !hasErrorResponse(op) {
			problems = append(problems, fmt.Errorf("%s %s: no default or 4xx response", strings.ToUpper(m), path))
		}
	}
	return problems
}

func hasErrorResponse(op *operation) bool {
	for code := range op.Responses {
		if code == "default" || strings.HasPrefix(code, "4") {
			return true
		}
	}
	return false
}

func resolveParameter(doc openAPIDoc, p parameter) parameter {
	const prefix = "#/components/parameters/"
	if !strings.HasPrefix(p.Ref, prefix) {
		return p
	}
	if resolved, ok := doc.Components.Parameters[strings.TrimPrefix(p.Ref, prefix)]; ok {
		return resolved
	}
	return p
}

// checkRefs reports every local $ref that does not resolve to a component.
func checkRefs(doc openAPIDoc) []error {
	var refs []string
	collectRefs(&doc.root, &refs)
	var problems []error
	seen := make(map[string]bool)
	for _, ref := range refs {
		if seen[ref] {
			continue
		}
		seen[ref] = true
		if !refResolves(doc, ref) {
			problems = append(problems, fmt.Errorf("unresolved $ref %q", ref))
		}
	}
	return problems
}

func collectRefs(n *yaml.Node, out *[]string) {
	if n == nil {
		return
	}
	if n.Kind == yaml.MappingNode {
		for i := 0; i+1 < len(n.Content); i += 2 {
			if n.Content[i].Value == "$ref" && n.Content[i+1].Kind == yaml.ScalarNode {
				*out = append(*out, n.Content[i+1].Value)
			}
		}
	}
	for _, c := range n.Content {
		collectRefs(c, out)
	}
}

func refResolves(doc openAPIDoc, ref string) bool {
	parts := strings.Split(strings.TrimPrefix(ref, "#/"), "/")
	if !strings.HasPrefix(ref, "#/") || len(parts) != 3 || parts[0] != "components" {
		return false
	}
	name := parts[2]
	switch parts[1] {
	case "schemas":
		_, ok := doc.Components.Schemas[name]
		return ok
	case "parameters":
		_, ok := doc.Components.Parameters[name]
		return ok
	case "responses":
		_, ok := doc.Components.Responses[name]
		return ok
	case "requestBodies":
		_, ok := doc.Components.RequestBodies[name]
		return ok
	}
	return false
}

func makeSet(items []string) map[string]bool {
	out := make(map[string]bool, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		out[item] = true
	}
	return out
}

func exitErr(err error) {
	fmt.Fprintln(os.Stderr, err.Error())
	os.Exit(1)
}
