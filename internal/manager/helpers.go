package manager

import (
	"ttsd/pkg/types"
)

// Helper: find model in registry by id.
func findModel(reg []types.Model, id string) (types.Model, bool) {
	for _, mdl := range reg {
		if mdl.ID == id {
			return mdl, true
		}
	}
	return types.Model{}, false
}

// Helper: pick the model initialize loads. The configured default wins, then
// the first registry entry.
func pickDefaultModel(reg []types.Model, want string) (types.Model, error) {
	if want != "" {
		if mdl, ok := findModel(reg, want); ok {
			return mdl, nil
		}
		return types.Model{}, ErrModelNotFound(want)
	}
	if len(reg) == 0 {
		return types.Model{}, ErrModelNotFound("(registry empty)")
	}
	return reg[0], nil
}

func artifactOf(mdl types.Model) Artifact { return Artifact{ID: mdl.ID, Path: mdl.Path} }
