package rssm

type jsSchemaConfig struct {
	cache    ProgramCache
	registry *FunctionRegistry
}

// JSSchemaOption configures the JS schema.
type JSSchemaOption func(*jsSchemaConfig)

// JSWithProgramCache applies a ProgramCache to the JS schema.
func JSWithProgramCache(cache ProgramCache) JSSchemaOption {
	return func(cfg *jsSchemaConfig) {
		cfg.cache = cache
	}
}

// JSWithFunctions applies a FunctionRegistry to the JS schema.
func JSWithFunctions(registry *FunctionRegistry) JSSchemaOption {
	return func(cfg *jsSchemaConfig) {
		if registry == nil {
			return
		}
		cfg.registry = registry.Clone()
	}
}

func applyJSSchemaOptions(opts []JSSchemaOption) jsSchemaConfig {
	cfg := jsSchemaConfig{}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return cfg
}
