package config

const (
	defaultDataDir              = "~/.local/share/xaio"
	defaultLogDir               = "~/.local/share/xaio/logs"
	defaultLogFormat            = "console"
	defaultLogLevel             = "info"
	defaultBatchSize            = 10
	defaultMaxAttempts          = 3
	defaultRetryCoolDownSeconds = 300
	defaultItemLeaseTTLSeconds  = 600
	defaultSweepLeaseTTLSeconds = 3600
	defaultAIBaseURL            = "https://api.openai.com/v1"
	defaultAIModel              = "gpt-4o-mini"
	defaultMetaPromptSet        = "xaio-meta-v1"
	defaultClaimsPromptSet      = "xaio-claims-v1"
	defaultPublishPostStatus    = "draft"
	defaultServiceTimeout       = 120
	defaultIntakeWorksheet      = "queue"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
		},
		Pipeline: Pipeline{
			BatchSize:            defaultBatchSize,
			MaxAttempts:          defaultMaxAttempts,
			RetryCoolDownSeconds: defaultRetryCoolDownSeconds,
			ItemLeaseTTLSeconds:  defaultItemLeaseTTLSeconds,
			SweepLeaseTTLSeconds: defaultSweepLeaseTTLSeconds,
		},
		Intake: Intake{
			Worksheet: defaultIntakeWorksheet,
			Columns: ColumnMap{
				URL:       "B",
				Status:    "Q",
				PublishID: "V",
				Error:     "W",
			},
		},
		Fetch: Fetch{
			TimeoutSeconds: defaultServiceTimeout,
		},
		AI: AI{
			BaseURL:         defaultAIBaseURL,
			Model:           defaultAIModel,
			MetaPromptSet:   defaultMetaPromptSet,
			ClaimsPromptSet: defaultClaimsPromptSet,
			TimeoutSeconds:  defaultServiceTimeout,
		},
		Publish: Publish{
			PostStatus:     defaultPublishPostStatus,
			TimeoutSeconds: defaultServiceTimeout,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
