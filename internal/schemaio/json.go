// Package schemaio loads a cube schema document (JSON or XML) and
// converts it to the internal/schema object model. Field names mirror
// the config document's own naming (snake_case json tags), distinct from
// the internal model's Go-idiomatic names.
package schemaio

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/tesseract-olap/tesseract/internal/schema"
	"github.com/tesseract-olap/tesseract/internal/schema/aggregator"
	"github.com/tesseract-olap/tesseract/internal/util"
)

type schemaDoc struct {
	Name             string               `json:"name"`
	SharedDimensions []sharedDimensionDoc `json:"shared_dimensions"`
	Cubes            []cubeDoc            `json:"cubes"`
	Annotations      map[string]string    `json:"annotations"`
}

type cubeDoc struct {
	Name             string            `json:"name"`
	Table            tableDoc          `json:"table"`
	Dimensions       []dimensionDoc    `json:"dimensions"`
	DimensionUsages  []dimensionUsageDoc `json:"dimension_usages"`
	Measures         []measureDoc      `json:"measures"`
	MinAuthLevel     int               `json:"min_auth_level"`
	CanAggregate     *bool             `json:"can_aggregate"`
	Annotations      map[string]string `json:"annotations"`
}

type dimensionDoc struct {
	Name        string            `json:"name"`
	ForeignKey  string            `json:"foreign_key"`
	Hierarchies []hierarchyDoc    `json:"hierarchies"`
	Type        string            `json:"type"` // "standard" | "geo" | "time", default standard
	Annotations map[string]string `json:"annotations"`
}

type sharedDimensionDoc struct {
	Name        string         `json:"name"`
	Hierarchies []hierarchyDoc `json:"hierarchies"`
	Type        string         `json:"type"`
}

type dimensionUsageDoc struct {
	Name       string `json:"name"`
	ForeignKey string `json:"foreign_key"`
}

type hierarchyDoc struct {
	Name          string            `json:"name"`
	Table         *tableDoc         `json:"table"`
	InlineTable   *inlineTableDoc   `json:"inline_table"`
	PrimaryKey    string            `json:"primary_key"`
	Levels        []levelDoc        `json:"levels"`
	DefaultMember string            `json:"default_member"`
	Annotations   map[string]string `json:"annotations"`
}

type levelDoc struct {
	Name        string            `json:"name"`
	KeyColumn   string            `json:"key_column"`
	NameColumn  string            `json:"name_column"`
	KeyType     string            `json:"key_type"` // "text" | "nontext", default nontext
	Properties  []propertyDoc     `json:"properties"`
	Annotations map[string]string `json:"annotations"`
}

type propertyDoc struct {
	Name        string            `json:"name"`
	Column      string            `json:"column"`
	CaptionSet  string            `json:"caption_set"`
	Annotations map[string]string `json:"annotations"`
}

type measureDoc struct {
	Name        string              `json:"name"`
	Column      string              `json:"column"`
	Aggregator  string              `json:"aggregator"`
	AggregatorArgs map[string]any   `json:"aggregator_args"`
	Annotations map[string]string   `json:"annotations"`
}

type tableDoc struct {
	Name       string `json:"name"`
	Schema     string `json:"schema"`
	PrimaryKey string `json:"primary_key"`
}

type inlineTableDoc struct {
	Alias   string              `json:"alias"`
	Columns []inlineColumnDoc   `json:"columns"`
	Rows    []map[string]string `json:"rows"`
}

type inlineColumnDoc struct {
	Name     string `json:"name"`
	KeyType  string `json:"key_type"`
	CastType string `json:"cast_type"`
}

// LoadJSON parses a JSON schema document from r into the internal model.
func LoadJSON(r io.Reader) (*schema.Schema, error) {
	var doc schemaDoc
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, util.NewSchemaError("parsing json schema", err)
	}
	return convert(doc)
}

func convert(doc schemaDoc) (*schema.Schema, error) {
	s := &schema.Schema{
		Name:        doc.Name,
		Annotations: schema.Annotations(doc.Annotations),
	}

	s.SharedDimensions = make(map[string]*schema.Dimension, len(doc.SharedDimensions))
	for _, d := range doc.SharedDimensions {
		dim, err := convertDimension(dimensionDoc{Name: d.Name, Hierarchies: d.Hierarchies, Type: d.Type}, true)
		if err != nil {
			return nil, err
		}
		s.SharedDimensions[d.Name] = dim
	}

	for _, c := range doc.Cubes {
		cube, err := convertCube(c, s.SharedDimensions)
		if err != nil {
			return nil, fmt.Errorf("cube %q: %w", c.Name, err)
		}
		s.Cubes = append(s.Cubes, cube)
	}

	return s, nil
}

func convertCube(c cubeDoc, sharedByName map[string]*schema.Dimension) (*schema.Cube, error) {
	cube := &schema.Cube{
		Name:         c.Name,
		Table:        schema.Table{Schema: c.Table.Schema, Name: c.Table.Name},
		MinAuthLevel: c.MinAuthLevel,
		CanAggregate: c.CanAggregate == nil || *c.CanAggregate,
		Annotations:  schema.Annotations(c.Annotations),
	}

	for _, d := range c.Dimensions {
		dim, err := convertDimension(d, false)
		if err != nil {
			return cube, err
		}
		cube.Dimensions = append(cube.Dimensions, dim)
	}

	for _, u := range c.DimensionUsages {
		shared, ok := sharedByName[u.Name]
		if !ok {
			return cube, util.NewSchemaError(fmt.Sprintf("dimension_usage references unknown shared dimension %q", u.Name), nil)
		}
		usage := *shared
		usage.ForeignKey = u.ForeignKey
		usage.IsShared = true
		usage.SourceName = u.Name
		cube.Dimensions = append(cube.Dimensions, &usage)
	}

	for _, m := range c.Measures {
		mea, err := convertMeasure(m)
		if err != nil {
			return cube, err
		}
		cube.Measures = append(cube.Measures, mea)
	}

	return cube, nil
}

func convertDimension(d dimensionDoc, isShared bool) (*schema.Dimension, error) {
	kind := schema.DimensionStandard
	switch d.Type {
	case "geo":
		kind = schema.DimensionGeo
	case "time":
		kind = schema.DimensionTime
	}

	dim := &schema.Dimension{
		Name:        d.Name,
		ForeignKey:  d.ForeignKey,
		IsShared:    isShared,
		Kind:        kind,
		Annotations: schema.Annotations(d.Annotations),
	}

	for _, h := range d.Hierarchies {
		hier, err := convertHierarchy(h)
		if err != nil {
			return dim, err
		}
		dim.Hierarchies = append(dim.Hierarchies, hier)
	}
	return dim, nil
}

func convertHierarchy(h hierarchyDoc) (*schema.Hierarchy, error) {
	hier := &schema.Hierarchy{
		Name:          h.Name,
		PrimaryKey:    h.PrimaryKey,
		DefaultMember: h.DefaultMember,
		Annotations:   schema.Annotations(h.Annotations),
	}
	if h.Table != nil {
		hier.Table = &schema.Table{Schema: h.Table.Schema, Name: h.Table.Name}
	}
	if h.InlineTable != nil {
		it, err := convertInlineTable(*h.InlineTable)
		if err != nil {
			return hier, err
		}
		hier.InlineTable = it
	}
	for _, l := range h.Levels {
		level, err := convertLevel(l)
		if err != nil {
			return hier, err
		}
		hier.Levels = append(hier.Levels, level)
	}
	return hier, nil
}

func convertLevel(l levelDoc) (*schema.Level, error) {
	keyType := schema.KeyTypeNonText
	if l.KeyType == "text" {
		keyType = schema.KeyTypeText
	}
	level := &schema.Level{
		Name:        l.Name,
		KeyColumn:   l.KeyColumn,
		NameColumn:  l.NameColumn,
		KeyType:     keyType,
		Annotations: schema.Annotations(l.Annotations),
	}
	for _, p := range l.Properties {
		level.Properties = append(level.Properties, &schema.Property{
			Name:        p.Name,
			Column:      p.Column,
			CaptionSet:  p.CaptionSet,
			Annotations: schema.Annotations(p.Annotations),
		})
	}
	return level, nil
}

func convertMeasure(m measureDoc) (*schema.Measure, error) {
	agg, err := convertAggregator(m.Aggregator, m.AggregatorArgs)
	if err != nil {
		return nil, fmt.Errorf("measure %q: %w", m.Name, err)
	}
	return &schema.Measure{
		Name:        m.Name,
		Column:      m.Column,
		Aggregator:  agg,
		Annotations: schema.Annotations(m.Annotations),
	}, nil
}

func convertAggregator(kind string, args map[string]any) (aggregator.Aggregator, error) {
	str := func(k string) string {
		v, _ := args[k].(string)
		return v
	}
	num := func(k string) float64 {
		v, _ := args[k].(float64)
		return v
	}
	strs := func(k string) []string {
		raw, _ := args[k].([]any)
		out := make([]string, len(raw))
		for i, v := range raw {
			out[i], _ = v.(string)
		}
		return out
	}

	switch kind {
	case "sum":
		return aggregator.Sum(), nil
	case "count":
		return aggregator.Count(), nil
	case "average":
		return aggregator.Average(), nil
	case "basic_grouped_median":
		return aggregator.BasicGroupedMedian(str("group_aggregator"), str("group_dimension")), nil
	case "weighted_sum":
		return aggregator.WeightedSum(str("weight_column")), nil
	case "weighted_average":
		return aggregator.WeightedAverage(str("weight_column")), nil
	case "moe":
		return aggregator.Moe(num("design_factor"), strs("secondary_columns")), nil
	case "weighted_average_moe":
		return aggregator.WeightedAverageMoe(num("design_factor"), str("primary_weight"), strs("secondary_weights")), nil
	case "custom":
		return aggregator.Custom(str("template")), nil
	default:
		return aggregator.Aggregator{}, util.NewSchemaError(fmt.Sprintf("unknown aggregator kind %q", kind), nil)
	}
}

func convertInlineTable(it inlineTableDoc) (*schema.InlineTable, error) {
	out := &schema.InlineTable{Alias: it.Alias, Rows: it.Rows}
	for _, c := range it.Columns {
		keyType := schema.KeyTypeNonText
		if c.KeyType == "text" {
			keyType = schema.KeyTypeText
		}
		out.Columns = append(out.Columns, schema.InlineColumn{Name: c.Name, KeyType: keyType, CastType: c.CastType})
	}
	return out, nil
}
