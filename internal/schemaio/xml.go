package schemaio

import (
	"encoding/xml"
	"io"

	"github.com/tesseract-olap/tesseract/internal/schema"
	"github.com/tesseract-olap/tesseract/internal/util"
)

// Mondrian-style XML schema documents. Only the element shapes that map
// onto the JSON document's fields are supported: annotations and
// aggregator-argument attributes beyond what json.go already
// handles carry over as an empty Annotations/AggregatorArgs map rather
// than erroring, since Mondrian's XML dialect has several annotation
// forms this doesn't attempt to reconcile.
type xmlSchema struct {
	XMLName          xml.Name       `xml:"Schema"`
	Name             string         `xml:"name,attr"`
	SharedDimensions []xmlDimension `xml:"Dimension"`
	Cubes            []xmlCube      `xml:"Cube"`
}

type xmlCube struct {
	Name            string             `xml:"name,attr"`
	Table           xmlTable           `xml:"Table"`
	Dimensions      []xmlDimension     `xml:"Dimension"`
	DimensionUsages []xmlDimensionUsage `xml:"DimensionUsage"`
	Measures        []xmlMeasure       `xml:"Measure"`
}

type xmlDimension struct {
	Name        string        `xml:"name,attr"`
	ForeignKey  string        `xml:"foreignKey,attr"`
	Type        string        `xml:"type,attr"`
	Hierarchies []xmlHierarchy `xml:"Hierarchy"`
}

type xmlDimensionUsage struct {
	Name       string `xml:"name,attr"`
	ForeignKey string `xml:"foreignKey,attr"`
}

type xmlHierarchy struct {
	Name       string    `xml:"name,attr"`
	Table      *xmlTable `xml:"Table"`
	PrimaryKey string    `xml:"primaryKey,attr"`
	Levels     []xmlLevel `xml:"Level"`
}

type xmlLevel struct {
	Name       string `xml:"name,attr"`
	KeyColumn  string `xml:"column,attr"`
	NameColumn string `xml:"nameColumn,attr"`
	KeyType    string `xml:"type,attr"`
}

type xmlTable struct {
	Name   string `xml:"name,attr"`
	Schema string `xml:"schema,attr"`
}

type xmlMeasure struct {
	Name       string `xml:"name,attr"`
	Column     string `xml:"column,attr"`
	Aggregator string `xml:"aggregator,attr"`
}

// LoadXML parses a Mondrian-style XML schema document from r into the
// internal model by bridging through the same conversion path LoadJSON
// uses, so the two formats stay in lockstep.
func LoadXML(r io.Reader) (*schema.Schema, error) {
	var doc xmlSchema
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, util.NewSchemaError("parsing xml schema", err)
	}
	return convert(xmlToJSONDoc(doc))
}

func xmlToJSONDoc(x xmlSchema) schemaDoc {
	out := schemaDoc{Name: x.Name}
	for _, d := range x.SharedDimensions {
		out.SharedDimensions = append(out.SharedDimensions, sharedDimensionDoc{
			Name:        d.Name,
			Hierarchies: xmlHierarchies(d.Hierarchies),
			Type:        d.Type,
		})
	}
	for _, c := range x.Cubes {
		cube := cubeDoc{
			Name:  c.Name,
			Table: tableDoc{Name: c.Table.Name, Schema: c.Table.Schema},
		}
		for _, d := range c.Dimensions {
			cube.Dimensions = append(cube.Dimensions, dimensionDoc{
				Name:        d.Name,
				ForeignKey:  d.ForeignKey,
				Type:        d.Type,
				Hierarchies: xmlHierarchies(d.Hierarchies),
			})
		}
		for _, u := range c.DimensionUsages {
			cube.DimensionUsages = append(cube.DimensionUsages, dimensionUsageDoc{Name: u.Name, ForeignKey: u.ForeignKey})
		}
		for _, m := range c.Measures {
			cube.Measures = append(cube.Measures, measureDoc{Name: m.Name, Column: m.Column, Aggregator: m.Aggregator})
		}
		out.Cubes = append(out.Cubes, cube)
	}
	return out
}

func xmlHierarchies(hs []xmlHierarchy) []hierarchyDoc {
	out := make([]hierarchyDoc, len(hs))
	for i, h := range hs {
		hd := hierarchyDoc{Name: h.Name, PrimaryKey: h.PrimaryKey}
		if h.Table != nil {
			hd.Table = &tableDoc{Name: h.Table.Name, Schema: h.Table.Schema}
		}
		for _, l := range h.Levels {
			hd.Levels = append(hd.Levels, levelDoc{
				Name:       l.Name,
				KeyColumn:  l.KeyColumn,
				NameColumn: l.NameColumn,
				KeyType:    l.KeyType,
			})
		}
		out[i] = hd
	}
	return out
}
