package schema

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

var ErrSchemaNotFound = errors.New("schema not found")

// Catalog is immutable after construction and safe for concurrent use.
type Catalog struct {
	descriptors map[string]Descriptor
}

func NewCatalog(descriptors ...Descriptor) *Catalog {
	c := &Catalog{descriptors: make(map[string]Descriptor, len(descriptors))}
	for _, d := range descriptors {
		c.descriptors[d.Name] = d.clone()
	}
	return c
}

// DefaultCatalog returns the catalog of containers the assistant can query.
func DefaultCatalog() *Catalog {
	return NewCatalog(GoldDescriptor())
}

func (c *Catalog) Containers() []string {
	names := make([]string, 0, len(c.descriptors))
	for name := range c.descriptors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (c *Catalog) Descriptor(container string) (Descriptor, error) {
	d, ok := c.descriptors[container]
	if !ok {
		return Descriptor{}, fmt.Errorf("%w: %s", ErrSchemaNotFound, container)
	}
	return d.clone(), nil
}

// Describe renders the container schema as markdown prompt text.
func (c *Catalog) Describe(container string) (string, error) {
	d, ok := c.descriptors[container]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrSchemaNotFound, container)
	}
	return render(d), nil
}

func render(d Descriptor) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("## Container: %s\n", d.Name))
	sb.WriteString(fmt.Sprintf("Description: %s\n\n", orNA(d.Description)))

	if len(d.PartitionKey.Paths) > 0 {
		sb.WriteString("### Partition Key (Important for Query Performance):\n")
		sb.WriteString(fmt.Sprintf("- Type: %s\n", orNA(d.PartitionKey.Kind)))
		sb.WriteString(fmt.Sprintf("- Fields: %s\n", strings.Join(d.PartitionKey.Paths, ", ")))
		sb.WriteString(fmt.Sprintf("- Description: %s\n\n", orNA(d.PartitionKey.Description)))
	}

	sb.WriteString("### Available Fields:\n")
	for _, f := range d.Fields {
		sb.WriteString(fmt.Sprintf("\n**%s**\n", f.Name))
		sb.WriteString(fmt.Sprintf("  - Type: %s\n", f.Type))
		sb.WriteString(fmt.Sprintf("  - Description: %s\n", orNA(f.Description)))
		if len(f.ValidValues) > 0 {
			sb.WriteString(fmt.Sprintf("  - Valid values: %s\n", strings.Join(f.ValidValues, ", ")))
		}
		if f.Format != "" {
			sb.WriteString(fmt.Sprintf("  - Format: %s\n", f.Format))
		}
		if f.Range != nil {
			sb.WriteString(fmt.Sprintf("  - Range: %s to %s\n", formatNumber(f.Range.Min), formatNumber(f.Range.Max)))
		}
		if f.Example != "" {
			sb.WriteString(fmt.Sprintf("  - Example: %s\n", f.Example))
		}
		if f.Note != "" {
			sb.WriteString(fmt.Sprintf("  - Note: %s\n", f.Note))
		}
	}

	if len(d.QueryExamples) > 0 {
		sb.WriteString("\n### Query Examples:\n")
		for i, ex := range d.QueryExamples {
			sb.WriteString(fmt.Sprintf("\n%d. %s\n", i+1, ex.Description))
			for _, q := range ex.Queries {
				sb.WriteString(fmt.Sprintf("   ```sql\n   %s\n   ```\n", q))
			}
		}
	}

	bc := d.BusinessContext
	if len(bc.CommonQueries) > 0 || bc.TimePeriodsNote != "" || len(bc.TimeExamples) > 0 {
		sb.WriteString("\n### Business Context:\n")
		if len(bc.CommonQueries) > 0 {
			sb.WriteString("\nCommon query types:\n")
			for _, q := range bc.CommonQueries {
				sb.WriteString(fmt.Sprintf("  - %s\n", q))
			}
		}
		if bc.TimePeriodsNote != "" || len(bc.TimeExamples) > 0 {
			sb.WriteString("\nTime Period Handling:\n")
			if bc.TimePeriodsNote != "" {
				sb.WriteString(fmt.Sprintf("  Note: %s\n", bc.TimePeriodsNote))
			}
			if len(bc.TimeExamples) > 0 {
				sb.WriteString("  Examples:\n")
				for _, ex := range bc.TimeExamples {
					sb.WriteString(fmt.Sprintf("    - %s: %s\n", ex.Phrase, ex.Value))
				}
			}
		}
	}

	return strings.TrimRight(sb.String(), "\n")
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}

func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
