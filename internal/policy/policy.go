package policy

import (
	"strings"

	"github.com/guillermoBallester/rowtrail/internal/core/domain"
)

// Policy holds operator-controlled audit configuration loaded from a YAML
// file: which tables are audited, and column-level masking applied to
// captured row images before they reach a sink.
//
//	tables:
//	  include: [public.users, public.orders]   # empty means all tables
//	  exclude: [public.schema_migrations]
//	columns:
//	  public.users:
//	    password: redact
//	    email: hash
type Policy struct {
	Tables  TableRules                            `yaml:"tables"`
	Columns map[string]map[string]domain.MaskType `yaml:"columns"`
}

// TableRules select which tables are audited. Exclude wins over include;
// an empty include list means every table is audited.
type TableRules struct {
	Include []string `yaml:"include"`
	Exclude []string `yaml:"exclude"`
}

// ShouldAudit reports whether mutations on schema.table produce audit
// records. Matching is case-insensitive; an unqualified schema defaults
// to "public".
func (p *Policy) ShouldAudit(schema, table string) bool {
	if p == nil {
		return true
	}
	key := qualifiedKey(schema, table)
	for _, ex := range p.Tables.Exclude {
		if strings.ToLower(ex) == key {
			return false
		}
	}
	if len(p.Tables.Include) == 0 {
		return true
	}
	for _, in := range p.Tables.Include {
		if strings.ToLower(in) == key {
			return true
		}
	}
	return false
}

// MaskImage applies the table's column masks to a captured image in place.
func (p *Policy) MaskImage(schema, table string, img domain.Snapshot) {
	if p == nil || len(p.Columns) == 0 {
		return
	}
	masks := p.Columns[qualifiedKey(schema, table)]
	if masks == nil {
		// Tolerate keys written exactly as they appear in the file.
		for key, m := range p.Columns {
			if strings.ToLower(key) == qualifiedKey(schema, table) {
				masks = m
				break
			}
		}
	}
	domain.MaskSnapshot(img, masks)
}

func qualifiedKey(schema, table string) string {
	if schema == "" {
		schema = "public"
	}
	return strings.ToLower(schema + "." + table)
}
