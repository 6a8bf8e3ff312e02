package tracing

import (
	"context"
	"fmt"
	"io"

	"github.com/opentracing/opentracing-go"
	jCfg "github.com/uber/jaeger-client-go/config"
	"github.com/uber/jaeger-lib/metrics"
)

var (
	serviceName = "default"
)

func SetServiceName(newName string) string {
	oldName := serviceName
	serviceName = newName

	return oldName
}

type Config struct {
	Host string
	Port int
}

// InitTracer ставит глобальный jaeger-трейсер. Пока он не вызван,
// opentracing отдаёт NoopTracer и StartSpan ничего не стоит.
func InitTracer(conf Config) (opentracing.Tracer, io.Closer, error) {
	cfg := &jCfg.Configuration{
		ServiceName: serviceName,
		Sampler: &jCfg.SamplerConfig{
			Type:  "const",
			Param: 1,
		},
		Reporter: &jCfg.ReporterConfig{
			LogSpans:           false,
			LocalAgentHostPort: fmt.Sprintf("%s:%d", conf.Host, conf.Port),
		},
	}

	tracer, closer, err := cfg.NewTracer(
		jCfg.Metrics(metrics.NullFactory),
	)
	if err != nil {
		return nil, nil, err
	}

	opentracing.SetGlobalTracer(tracer)
	return tracer, closer, nil
}

// StartSpan — span от глобального трейсера с тегами.
func StartSpan(ctx context.Context, op string, tags map[string]interface{}) (opentracing.Span, context.Context) {
	span, ctx := opentracing.StartSpanFromContext(ctx, op)
	for k, v := range tags {
		span.SetTag(k, v)
	}
	return span, ctx
}
