package config

import (
	"github.com/vyvo/modelpack/pkg/builder"
)

// PipelineOptions converts the pipeline settings into orchestrator options.
func (c PipelineConfig) PipelineOptions() ([]builder.Option, error) {
	opts, err := pipelineOptions(c.BuildTool, c.BaseImage, c.ServiceMode, c.DiscoveryPolicy, c.DiscoveryCommand)
	if err != nil {
		return nil, err
	}
	return append(opts, builder.WithRuntimeTool(c.RuntimeTool)), nil
}

// PipelineOptions converts the service settings into the orchestrator
// options shared by every build.
func (c ServiceConfig) PipelineOptions() ([]builder.Option, error) {
	return pipelineOptions(c.BuildTool, c.BaseImage, c.ServiceMode, c.DiscoveryPolicy, c.DiscoveryCommand)
}

func pipelineOptions(buildTool, baseImage, serviceMode, discoveryPolicy string, discoveryCmd []string) ([]builder.Option, error) {
	mode, err := builder.ParseServiceMode(serviceMode)
	if err != nil {
		return nil, err
	}
	policy, err := builder.ParseDiscoveryPolicy(discoveryPolicy)
	if err != nil {
		return nil, err
	}
	return []builder.Option{
		builder.WithBuildTool(buildTool),
		builder.WithBaseImage(baseImage),
		builder.WithServiceMode(mode),
		builder.WithDiscovery(policy, discoveryCmd),
	}, nil
}
