package flags

import (
	"github.com/n1hub/deepmine-engine/internal/logger"
	"github.com/n1hub/deepmine-engine/internal/utils"
)

const (
	LinkSuggester = "ff.link.suggester"
	AudioIngest   = "ff.audio.ingest"
	EvalDashboard = "ff.eval.dashboard"
	PublicMarket  = "ff.public.market"
)

// FeatureFlags is an env-loaded flag map; flags do not change after startup.
type FeatureFlags struct {
	flags map[string]bool
}

func Load(log *logger.Logger) *FeatureFlags {
	return &FeatureFlags{
		flags: map[string]bool{
			LinkSuggester: utils.GetEnvAsBool("FF_LINK_SUGGESTER", true, log),
			AudioIngest:   utils.GetEnvAsBool("FF_AUDIO_INGEST", false, log),
			EvalDashboard: utils.GetEnvAsBool("FF_EVAL_DASHBOARD", true, log),
			PublicMarket:  utils.GetEnvAsBool("FF_PUBLIC_MARKET", false, log),
		},
	}
}

func (f *FeatureFlags) Enabled(name string) bool {
	if f == nil {
		return false
	}
	return f.flags[name]
}

func (f *FeatureFlags) All() map[string]bool {
	out := make(map[string]bool, len(f.flags))
	for k, v := range f.flags {
		out[k] = v
	}
	return out
}
