package exec

import "github.com/kartikbazzad/bundoc-core/storageengine"

// Projection narrows each child member's document down to Fields
// (inclusion projection); an empty Fields leaves the document
// untouched (spec.md §9 Projection stage).
type Projection struct {
	child  Stage
	ws     *WorkingSet
	fields []string
}

// NewProjection wraps child, keeping only fields (plus "_id", which is
// always included unless explicitly excluded by a "-_id" entry anywhere
// in fields).
func NewProjection(ws *WorkingSet, child Stage, fields []string) *Projection {
	return &Projection{child: child, ws: ws, fields: fields}
}

func (p *Projection) Work() (WorkingSetID, StageState, error) {
	childID, state, err := p.child.Work()
	if state != StateAdvanced || len(p.fields) == 0 {
		return childID, state, err
	}

	member := p.ws.Get(childID)
	if member == nil || member.Doc == nil {
		return childID, state, err
	}

	excludeID := false
	keep := make(map[string]struct{}, len(p.fields))
	for _, f := range p.fields {
		if f == "-_id" {
			excludeID = true
			continue
		}
		keep[f] = struct{}{}
	}

	projected := storageengine.Document{}
	for k, v := range member.Doc {
		if k == "_id" {
			if !excludeID {
				projected[k] = v
			}
			continue
		}
		if _, ok := keep[k]; ok {
			projected[k] = v
		}
	}
	member.Doc = projected
	return childID, StateAdvanced, nil
}

func (p *Projection) SaveState()                  { p.child.SaveState() }
func (p *Projection) RestoreState() (bool, error) { return p.child.RestoreState() }
func (p *Projection) Children() []Stage           { return []Stage{p.child} }
