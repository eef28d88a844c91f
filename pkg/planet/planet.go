// Package planet defines the canonical Planet entity and normalizes remote
// detail documents into it.
package planet

import "time"

// Planet is the canonical stored entity. Every descriptive attribute is
// text; Name is the natural key.
type Planet struct {
	ID             int64     `json:"id"`
	Name           string    `json:"name"`
	RotationPeriod string    `json:"rotation_period"`
	OrbitalPeriod  string    `json:"orbital_period"`
	Diameter       string    `json:"diameter"`
	Climate        string    `json:"climate"`
	Gravity        string    `json:"gravity"`
	Terrain        string    `json:"terrain"`
	SurfaceWater   string    `json:"surface_water"`
	Population     string    `json:"population"`
	URL            string    `json:"url"`
	Created        time.Time `json:"created"`
	Updated        time.Time `json:"updated"`
}

// Field maps one text attribute between the remote property set, the
// store column and the Planet struct.
type Field struct {
	Column   string
	Property string
	Get      func(*Planet) string
	Set      func(*Planet, string)
}

// Fields lists every text attribute in column order. The store and the
// normalizer both iterate this table; nothing is copied by reflection.
var Fields = []Field{
	{"name", "name", func(p *Planet) string { return p.Name }, func(p *Planet, v string) { p.Name = v }},
	{"rotation_period", "rotation_period", func(p *Planet) string { return p.RotationPeriod }, func(p *Planet, v string) { p.RotationPeriod = v }},
	{"orbital_period", "orbital_period", func(p *Planet) string { return p.OrbitalPeriod }, func(p *Planet, v string) { p.OrbitalPeriod = v }},
	{"diameter", "diameter", func(p *Planet) string { return p.Diameter }, func(p *Planet, v string) { p.Diameter = v }},
	{"climate", "climate", func(p *Planet) string { return p.Climate }, func(p *Planet, v string) { p.Climate = v }},
	{"gravity", "gravity", func(p *Planet) string { return p.Gravity }, func(p *Planet, v string) { p.Gravity = v }},
	{"terrain", "terrain", func(p *Planet) string { return p.Terrain }, func(p *Planet, v string) { p.Terrain = v }},
	{"surface_water", "surface_water", func(p *Planet) string { return p.SurfaceWater }, func(p *Planet, v string) { p.SurfaceWater = v }},
	{"population", "population", func(p *Planet) string { return p.Population }, func(p *Planet, v string) { p.Population = v }},
	{"url", "url", func(p *Planet) string { return p.URL }, func(p *Planet, v string) { p.URL = v }},
}

// Columns returns the column names of Fields in order.
func Columns() []string {
	cols := make([]string, len(Fields))
	for i, f := range Fields {
		cols[i] = f.Column
	}
	return cols
}

// Values returns p's text attributes in Fields order.
func (p *Planet) Values() []string {
	vals := make([]string, len(Fields))
	for i, f := range Fields {
		vals[i] = f.Get(p)
	}
	return vals
}

// CopyFields overwrites every text attribute of p with the one from src.
// ID and timestamps are left untouched.
func (p *Planet) CopyFields(src *Planet) {
	for _, f := range Fields {
		f.Set(p, f.Get(src))
	}
}
