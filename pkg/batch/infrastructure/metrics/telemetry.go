package metrics

import (
	"fmt"
	"sort"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/resource"

	config "github.com/tigerroll/carbonlake/pkg/batch/core/config"
)

// instrumentationName identifies the tracer and meter created by this package.
const instrumentationName = "github.com/tigerroll/carbonlake"

func newResource(cfg config.TelemetryConfig) *resource.Resource {
	name := cfg.ServiceName
	if name == "" {
		name = "carbonlake"
	}
	return resource.NewSchemaless(attribute.String("service.name", name))
}

// hasScheme reports whether endpoint is a URL rather than a bare host:port.
func hasScheme(endpoint string) bool {
	return strings.Contains(endpoint, "://")
}

func validateProtocol(protocol string) (string, error) {
	switch p := strings.ToLower(protocol); p {
	case "", "http":
		return "http", nil
	case "grpc":
		return "grpc", nil
	default:
		return "", fmt.Errorf("unsupported OTLP protocol: %s (expected http or grpc)", protocol)
	}
}

// toAttributes converts loosely typed event attributes, sorted by key.
func toAttributes(values map[string]interface{}) []attribute.KeyValue {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	attrs := make([]attribute.KeyValue, 0, len(keys))
	for _, k := range keys {
		switch v := values[k].(type) {
		case string:
			attrs = append(attrs, attribute.String(k, v))
		case int:
			attrs = append(attrs, attribute.Int(k, v))
		case int64:
			attrs = append(attrs, attribute.Int64(k, v))
		case float64:
			attrs = append(attrs, attribute.Float64(k, v))
		case bool:
			attrs = append(attrs, attribute.Bool(k, v))
		case []string:
			attrs = append(attrs, attribute.StringSlice(k, v))
		default:
			attrs = append(attrs, attribute.String(k, fmt.Sprint(v)))
		}
	}
	return attrs
}
