package main

import (
	"fmt"
	"os"
	"strings"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/reflect/protoregistry"
	"google.golang.org/protobuf/types/descriptorpb"

	federation "github.com/hanpama/gqlcore/internal/federation"
	grpcresolver "github.com/hanpama/gqlcore/internal/grpcresolver"
	language "github.com/hanpama/gqlcore/internal/language"
	schema "github.com/hanpama/gqlcore/internal/schema"
)

// loadSchema reads and registers the SDL files. With fed, the schema is
// extended into a federation subgraph.
func loadSchema(files []string, fed bool) (*schema.Schema, error) {
	if len(files) == 0 {
		return nil, fmt.Errorf("-schema is required")
	}
	sources := make([]*language.Source, 0, len(files))
	for _, f := range files {
		b, err := os.ReadFile(f)
		if err != nil {
			return nil, err
		}
		sources = append(sources, &language.Source{Name: f, Input: string(b)})
	}
	if !fed {
		return schema.BuildFromSources(sources)
	}
	types, directives := federation.Directives()
	base, err := schema.BuildFromSources(sources, schema.WithDefinitions(types, directives))
	if err != nil {
		return nil, err
	}
	return federation.Extend(base)
}

// loadDescriptors reads a binary FileDescriptorSet.
func loadDescriptors(path string) (*protoregistry.Files, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var set descriptorpb.FileDescriptorSet
	if err := proto.Unmarshal(b, &set); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return protodesc.NewFiles(&set)
}

func findMethod(files *protoregistry.Files, name string) (protoreflect.MethodDescriptor, error) {
	if files == nil {
		return nil, fmt.Errorf("method %s: -proto.descriptors is required", name)
	}
	d, err := files.FindDescriptorByName(protoreflect.FullName(strings.Replace(name, "/", ".", 1)))
	if err != nil {
		return nil, fmt.Errorf("method %s: %w", name, err)
	}
	md, ok := d.(protoreflect.MethodDescriptor)
	if !ok {
		return nil, fmt.Errorf("%s is not a method", name)
	}
	return md, nil
}

// fieldBinding is a parsed -bind value:
//
//	Type.field=pkg.Service/Method[,requestField:parentField...]
type fieldBinding struct {
	typeName string
	field    string
	method   string
	sources  map[string]string
}

func parseFieldBinding(v string) (fieldBinding, error) {
	target, rest, ok := strings.Cut(v, "=")
	typeName, field, ok2 := strings.Cut(target, ".")
	if !ok || !ok2 || typeName == "" || field == "" {
		return fieldBinding{}, fmt.Errorf("invalid binding %q, want Type.field=pkg.Service/Method", v)
	}
	parts := strings.Split(rest, ",")
	b := fieldBinding{typeName: typeName, field: field, method: parts[0]}
	if !strings.Contains(b.method, "/") {
		return fieldBinding{}, fmt.Errorf("invalid binding %q: method must be pkg.Service/Method", v)
	}
	for _, p := range parts[1:] {
		req, parent, ok := strings.Cut(p, ":")
		if !ok || req == "" || parent == "" {
			return fieldBinding{}, fmt.Errorf("invalid binding %q: source mapping %q, want requestField:parentField", v, p)
		}
		if b.sources == nil {
			b.sources = map[string]string{}
		}
		b.sources[req] = parent
	}
	return b, nil
}

// bind attaches gRPC-backed resolvers to sch.
func bind(sch *schema.Schema, files *protoregistry.Files, t grpcresolver.Transport, fields, references []string) error {
	for _, v := range fields {
		b, err := parseFieldBinding(v)
		if err != nil {
			return err
		}
		md, err := findMethod(files, b.method)
		if err != nil {
			return err
		}
		var opts []grpcresolver.Option
		for req, parent := range b.sources {
			opts = append(opts, grpcresolver.WithSourceField(req, parent))
		}
		if err := sch.SetResolver(b.typeName, b.field, grpcresolver.Field(md, t, opts...)); err != nil {
			return err
		}
	}
	for _, v := range references {
		typeName, method, ok := strings.Cut(v, "=")
		if !ok || typeName == "" {
			return fmt.Errorf("invalid reference binding %q, want Type=pkg.Service/Method", v)
		}
		md, err := findMethod(files, method)
		if err != nil {
			return err
		}
		if err := sch.SetReferenceResolver(typeName, grpcresolver.Reference(md, t)); err != nil {
			return err
		}
	}
	for _, name := range sch.TypeNames() {
		if typ := sch.Types[name]; typ.IsAbstract() && typ.ResolveType == nil && len(fields) > 0 {
			if err := sch.SetTypeResolver(name, grpcresolver.TypeResolver("Source")); err != nil {
				return err
			}
		}
	}
	return nil
}
