package main

import (
	"bytes"
	"flag"
	"fmt"
	"log"
	"os"
)

const rootUsage = `gqlcore: GraphQL server and schema tools

USAGE:
  gqlcore <command> [flags]

COMMANDS:
  serve            Run the HTTP/WebSocket GraphQL server
  print-schema     Print the registered schema as SDL
  check            Register the schema and validate query files against it
  help             Show help for any command
`

const serveUsage = `serve FLAGS:
  -schema <file>                        GraphQL SDL file. Repeatable; at least one required
  -federation                           Serve the schema as a federation subgraph
  -graphql.introspection <bool>         Enable introspection (default: true)
  -proto.descriptors <file>             FileDescriptorSet (protoc --descriptor_set_out) for -bind
  -bind <Type.field=pkg.Svc/Method>     Resolve a field with a gRPC method. Repeatable. Append
                                        ",requestField:parentField" to copy parent fields
  -bind.reference <Type=pkg.Svc/Method> Resolve federation references with a gRPC method. Repeatable
  -limits.tokens N                      Max tokens per document (default: 15000)
  -limits.depth N                       Max nesting while parsing (default: 100)
  -limits.complexity N                  Max operation complexity, 0 disables (default: 0)
  -limits.query-depth N                 Max selection depth, 0 disables (default: 0)
  -limits.concurrency N                 Max resolver calls in flight, 0 is unbounded (default: 0)
  -server.addr <addr>                   HTTP listen address (default: :8080)
  -server.path <path>                   GraphQL endpoint path (default: /graphql)
  -server.pretty                        Pretty-print JSON responses
  -server.timeout <duration>            Per-request timeout (default: 10s)
  -server.metadata-header <name>        Forward HTTP header to gRPC metadata. Repeatable
  -server.cors-origin <origin>          Allowed CORS origin. Repeatable
  -server.graphiql <bool>               Serve GraphiQL to browsers (default: true)
  -server.websocket <bool>              Accept graphql-transport-ws subscriptions (default: true)
  -server.keepalive <duration>          WebSocket ping interval (default: 30s)
  -transport.backend <Svc=host:port>    Map gRPC service to endpoint. Repeatable
  -transport.max-conns-per-endpoint N   Max connections per endpoint (default: 2)
  -transport.rpc-timeout <duration>     RPC timeout (default: 3s)
  -otel.endpoint <addr>                 OTLP collector endpoint
  -otel.service <name>                  OpenTelemetry service name (default: gqlcore)
  -metrics.path <path>                  Prometheus endpoint path, empty disables (default: /metrics)
  -log.v N                              Log verbosity (default: 0)
`

const printSchemaUsage = `print-schema FLAGS:
  -schema <file>   GraphQL SDL file. Repeatable; at least one required
  -federation      Print the subgraph schema including federation fields
  -out <file>      Write SDL to file (default: stdout)
`

const checkUsage = `check FLAGS:
  -schema <file>   GraphQL SDL file. Repeatable; at least one required
  -federation      Check the schema as a federation subgraph
  -query <file>    Query document to validate. Repeatable
  (Exits non-zero on registry or validation errors)
`

func main() {
	if err := run(os.Args[1:]); err != nil {
		log.Fatal(err)
	}
}

func run(args []string) error {
	global := flag.NewFlagSet("gqlcore", flag.ContinueOnError)
	global.SetOutput(new(bytes.Buffer))
	if err := global.Parse(args); err != nil {
		fmt.Fprint(os.Stderr, rootUsage)
		return err
	}
	remaining := global.Args()
	if len(remaining) == 0 {
		fmt.Fprint(os.Stderr, rootUsage)
		return fmt.Errorf("missing command")
	}

	cmd := remaining[0]
	cmdArgs := remaining[1:]
	switch cmd {
	case "serve":
		return cmdServe(cmdArgs)
	case "print-schema":
		return cmdPrintSchema(cmdArgs)
	case "check":
		return cmdCheck(cmdArgs)
	case "help":
		return cmdHelp(cmdArgs)
	default:
		fmt.Fprint(os.Stderr, rootUsage)
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func cmdHelp(args []string) error {
	if len(args) == 0 {
		fmt.Print(rootUsage)
		return nil
	}
	switch args[0] {
	case "serve":
		fmt.Print(serveUsage)
	case "print-schema":
		fmt.Print(printSchemaUsage)
	case "check":
		fmt.Print(checkUsage)
	default:
		return fmt.Errorf("unknown help topic %q", args[0])
	}
	return nil
}

type stringListFlag []string

func (s *stringListFlag) String() string { return "" }

func (s *stringListFlag) Set(v string) error {
	*s = append(*s, v)
	return nil
}
