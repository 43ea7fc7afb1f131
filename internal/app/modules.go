package app

import (
	"github.com/specialistvlad/backplane/internal/feature"
	"github.com/specialistvlad/backplane/modules/health"
	"github.com/specialistvlad/backplane/modules/healthcheck/discoverycheck"
)

// coreFeatures are added when NewApp is given no features.
func coreFeatures() []feature.Feature {
	return []feature.Feature{
		health.New(),
		discoverycheck.New(),
	}
}
