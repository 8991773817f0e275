// Package schema holds the static description of each logical container and
// renders it as prompt text for query generation.
package schema

// PartitionKey describes how a container routes documents to physical partitions.
type PartitionKey struct {
	Kind        string // "hierarchical" or "single"
	Paths       []string
	Description string
}

type Range struct {
	Min float64
	Max float64
}

type Field struct {
	Name        string
	Type        string
	Description string
	Required    bool
	ValidValues []string
	Range       *Range
	Format      string
	Example     string
	Note        string
}

type QueryExample struct {
	Description string
	Queries     []string
}

type TimeExample struct {
	Phrase string
	Value  string
}

type BusinessContext struct {
	CommonQueries   []string
	TimePeriodsNote string
	TimeExamples    []TimeExample
}

// Descriptor is the full schema of one logical container.
type Descriptor struct {
	Name            string
	Description     string
	PartitionKey    PartitionKey
	Fields          []Field
	QueryExamples   []QueryExample
	BusinessContext BusinessContext
}

func (d Descriptor) clone() Descriptor {
	out := d
	out.PartitionKey.Paths = append([]string(nil), d.PartitionKey.Paths...)
	out.Fields = make([]Field, len(d.Fields))
	for i, f := range d.Fields {
		f.ValidValues = append([]string(nil), f.ValidValues...)
		if f.Range != nil {
			r := *f.Range
			f.Range = &r
		}
		out.Fields[i] = f
	}
	out.QueryExamples = make([]QueryExample, len(d.QueryExamples))
	for i, q := range d.QueryExamples {
		q.Queries = append([]string(nil), q.Queries...)
		out.QueryExamples[i] = q
	}
	out.BusinessContext.CommonQueries = append([]string(nil), d.BusinessContext.CommonQueries...)
	out.BusinessContext.TimeExamples = append([]TimeExample(nil), d.BusinessContext.TimeExamples...)
	return out
}
