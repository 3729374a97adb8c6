package structured

import (
	"fmt"
	"strings"
)

// Explain renders the relation and its lineage, one line per relation,
// each source indented under the relation built from it:
//
//	PROJECT [STREAM DERIVED] key=COL0 schema=[COL0 BIGINT, KSQL_COL_1 INTEGER]
//	  FILTER [STREAM DERIVED] key=- schema=[...]
//	    TEST2 [STREAM SOURCE] key=- schema=[...]
func (r *Relation) Explain() string {
	var b strings.Builder
	r.explain(&b, 0)
	return b.String()
}

func (r *Relation) explain(b *strings.Builder, depth int) {
	key := "-"
	if r.keyField != nil {
		key = r.keyField.Name
	}
	fmt.Fprintf(b, "%s%s [%s %s] key=%s schema=%s\n",
		strings.Repeat("  ", depth), r.name, r.kind, r.typ, key, r.schema)
	for _, src := range r.sources {
		src.explain(b, depth+1)
	}
}

// Explain renders the grouped relation above its source's lineage.
func (g *GroupedRelation) Explain() string {
	var b strings.Builder
	fmt.Fprintf(&b, "GROUP BY [%s GROUPED] key=%s schema=%s\n", g.kind, g.keyField.Name, g.schema)
	g.source.explain(&b, 1)
	return b.String()
}
