package taxonomy

import "fmt"

// Validate checks the referential rules of a taxonomy batch before it is
// loaded: technique tactic references must exist, and every sub-technique
// must point at an existing top-level parent. Depth is capped at two levels,
// so a valid batch cannot contain parent cycles.
func Validate(tactics []*Tactic, techniques []*Technique) error {
	tacticSet := make(map[TacticID]bool, len(tactics))
	for _, t := range tactics {
		tacticSet[t.TacticID] = true
	}
	byID := make(map[TechniqueID]*Technique, len(techniques))
	for _, t := range techniques {
		byID[t.TechniqueID] = t
	}

	for _, t := range techniques {
		for _, tac := range t.TacticIDs {
			if !tacticSet[tac] {
				return fmt.Errorf("technique %s references unknown tactic %s", t.TechniqueID, tac)
			}
		}
		if t.IsSubTechnique {
			if t.ParentTechniqueID == "" {
				return fmt.Errorf("sub-technique %s has no parent", t.TechniqueID)
			}
			parent, ok := byID[t.ParentTechniqueID]
			if !ok {
				return fmt.Errorf("sub-technique %s references unknown parent %s", t.TechniqueID, t.ParentTechniqueID)
			}
			if parent.IsSubTechnique {
				return fmt.Errorf("sub-technique %s has sub-technique parent %s", t.TechniqueID, t.ParentTechniqueID)
			}
		} else if t.ParentTechniqueID != "" {
			return fmt.Errorf("top-level technique %s must not set a parent", t.TechniqueID)
		}
	}
	return nil
}
