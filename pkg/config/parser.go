package config

import (
	"fmt"
	"os"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"

	"github.com/strato-labs/stratoctl/pkg/errors"
)

// Parser parses stack configuration documents.
type Parser struct {
	parser *hclparse.Parser
}

// NewParser creates a new parser.
func NewParser() *Parser {
	return &Parser{
		parser: hclparse.NewParser(),
	}
}

// Parse parses a document from the given file path.
func (p *Parser) Parse(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.ParseError(path, err)
	}
	return p.ParseBytes(data, path)
}

// ParseBytes parses a document from raw bytes.
func (p *Parser) ParseBytes(data []byte, filename string) (*Document, error) {
	file, diags := p.parser.ParseHCL(data, filename)
	if diags.HasErrors() {
		return nil, errors.ParseError(filename, fmt.Errorf("%s", diags.Error()))
	}

	doc := &Document{Path: filename}

	bodySchema := &hcl.BodySchema{
		Attributes: []hcl.AttributeSchema{
			{Name: "version"},
		},
		Blocks: []hcl.BlockHeaderSchema{
			{Type: "variable", LabelNames: []string{"name"}},
			{Type: "resource", LabelNames: []string{"type", "name"}},
			{Type: "data", LabelNames: []string{"type", "name"}},
		},
	}

	content, moreDiags := file.Body.Content(bodySchema)
	diags = append(diags, moreDiags...)
	if diags.HasErrors() {
		return nil, errors.ParseError(filename, fmt.Errorf("%s", diags.Error()))
	}

	if attr, ok := content.Attributes["version"]; ok {
		val, valDiags := attr.Expr.Value(nil)
		if !valDiags.HasErrors() && val.Type() == cty.String {
			doc.Version = val.AsString()
		}
	}

	for _, block := range content.Blocks.OfType("variable") {
		variable, err := p.parseVariable(block)
		if err != nil {
			return nil, err
		}
		doc.Variables = append(doc.Variables, variable)
	}

	for _, block := range content.Blocks.OfType("resource") {
		res, err := p.parseResource(block)
		if err != nil {
			return nil, err
		}
		doc.Resources = append(doc.Resources, res)
	}

	for _, block := range content.Blocks.OfType("data") {
		ds, err := p.parseDataSource(block)
		if err != nil {
			return nil, err
		}
		doc.DataSources = append(doc.DataSources, ds)
	}

	if err := checkUniqueNames(doc); err != nil {
		return nil, err
	}

	return doc, nil
}

func (p *Parser) parseVariable(block *hcl.Block) (*Variable, error) {
	varSchema := &hcl.BodySchema{
		Attributes: []hcl.AttributeSchema{
			{Name: "type"},
			{Name: "description"},
			{Name: "default"},
			{Name: "sensitive"},
		},
	}

	content, diags := block.Body.Content(varSchema)
	if diags.HasErrors() {
		return nil, errors.ParseError(block.DefRange.Filename, fmt.Errorf("%s", diags.Error()))
	}

	variable := &Variable{
		Name:      block.Labels[0],
		Type:      cty.DynamicPseudoType,
		DeclRange: block.DefRange,
	}

	if attr, ok := content.Attributes["type"]; ok {
		// Type is a constraint keyword (string, number, bool, list, map),
		// not an expression to evaluate.
		keyword := hcl.ExprAsKeyword(attr.Expr)
		ty, err := typeFromKeyword(keyword)
		if err != nil {
			return nil, errors.ParseError(block.DefRange.Filename,
				fmt.Errorf("variable %q: %w", variable.Name, err))
		}
		variable.Type = ty
	}

	if attr, ok := content.Attributes["description"]; ok {
		val, valDiags := attr.Expr.Value(nil)
		if !valDiags.HasErrors() && val.Type() == cty.String {
			variable.Description = val.AsString()
		}
	}

	if attr, ok := content.Attributes["sensitive"]; ok {
		val, valDiags := attr.Expr.Value(nil)
		if !valDiags.HasErrors() && val.Type() == cty.Bool {
			variable.Sensitive = val.True()
		}
	}

	if attr, ok := content.Attributes["default"]; ok {
		val, valDiags := attr.Expr.Value(nil)
		if valDiags.HasErrors() {
			return nil, errors.ParseError(block.DefRange.Filename,
				fmt.Errorf("variable %q: default must be a constant: %s", variable.Name, valDiags.Error()))
		}
		// A default whose type conflicts with the declared constraint is
		// rejected at parse time, before any planning.
		if variable.Type != cty.DynamicPseudoType {
			converted, err := convert.Convert(val, variable.Type)
			if err != nil {
				return nil, errors.TypeMismatchError("variable."+variable.Name, "default",
					variable.Type.FriendlyName(), err)
			}
			val = converted
		}
		variable.Default = val
		variable.hasDefault = true
	}

	return variable, nil
}

func (p *Parser) parseResource(block *hcl.Block) (*Resource, error) {
	res := &Resource{
		Type:      block.Labels[0],
		Name:      block.Labels[1],
		Attrs:     make(map[string]hcl.Expression),
		DeclRange: block.DefRange,
	}

	// Pull out the reserved parts; everything remaining is a resource attribute.
	partial := &hcl.BodySchema{
		Attributes: []hcl.AttributeSchema{
			{Name: "count"},
		},
		Blocks: []hcl.BlockHeaderSchema{
			{Type: "lifecycle"},
		},
	}

	content, remain, diags := block.Body.PartialContent(partial)
	if diags.HasErrors() {
		return nil, errors.ParseError(block.DefRange.Filename, fmt.Errorf("%s", diags.Error()))
	}

	if attr, ok := content.Attributes["count"]; ok {
		res.CountExpr = attr.Expr
	}

	for _, lcBlock := range content.Blocks.OfType("lifecycle") {
		ignores, err := p.parseLifecycle(lcBlock, res.Addr())
		if err != nil {
			return nil, err
		}
		res.IgnoreChanges = append(res.IgnoreChanges, ignores...)
	}

	attrs, attrDiags := remain.JustAttributes()
	if attrDiags.HasErrors() {
		return nil, errors.ParseError(block.DefRange.Filename, fmt.Errorf("%s", attrDiags.Error()))
	}
	for name, attr := range attrs {
		res.Attrs[name] = attr.Expr
	}

	return res, nil
}

func (p *Parser) parseLifecycle(block *hcl.Block, addr string) ([]string, error) {
	lcSchema := &hcl.BodySchema{
		Attributes: []hcl.AttributeSchema{
			{Name: "ignore_changes"},
		},
	}

	content, diags := block.Body.Content(lcSchema)
	if diags.HasErrors() {
		return nil, errors.ParseError(block.DefRange.Filename, fmt.Errorf("%s", diags.Error()))
	}

	attr, ok := content.Attributes["ignore_changes"]
	if !ok {
		return nil, nil
	}

	val, valDiags := attr.Expr.Value(nil)
	if valDiags.HasErrors() || !val.Type().IsTupleType() && !val.Type().IsListType() {
		return nil, errors.ParseError(block.DefRange.Filename,
			fmt.Errorf("%s: ignore_changes must be a list of attribute names", addr))
	}

	var names []string
	for it := val.ElementIterator(); it.Next(); {
		_, elem := it.Element()
		if elem.Type() != cty.String {
			return nil, errors.ParseError(block.DefRange.Filename,
				fmt.Errorf("%s: ignore_changes entries must be strings", addr))
		}
		names = append(names, elem.AsString())
	}
	return names, nil
}

func (p *Parser) parseDataSource(block *hcl.Block) (*DataSource, error) {
	ds := &DataSource{
		Type:      block.Labels[0],
		Name:      block.Labels[1],
		Attrs:     make(map[string]hcl.Expression),
		DeclRange: block.DefRange,
	}

	attrs, diags := block.Body.JustAttributes()
	if diags.HasErrors() {
		return nil, errors.ParseError(block.DefRange.Filename, fmt.Errorf("%s", diags.Error()))
	}
	for name, attr := range attrs {
		ds.Attrs[name] = attr.Expr
	}

	return ds, nil
}

// checkUniqueNames enforces that logical names are unique within their type.
func checkUniqueNames(doc *Document) error {
	seen := make(map[string]hcl.Range)

	for _, v := range doc.Variables {
		key := "variable." + v.Name
		if prev, ok := seen[key]; ok {
			return duplicateErr(doc.Path, key, prev, v.DeclRange)
		}
		seen[key] = v.DeclRange
	}
	for _, r := range doc.Resources {
		key := r.Addr()
		if prev, ok := seen[key]; ok {
			return duplicateErr(doc.Path, key, prev, r.DeclRange)
		}
		seen[key] = r.DeclRange
	}
	for _, d := range doc.DataSources {
		key := d.Addr()
		if prev, ok := seen[key]; ok {
			return duplicateErr(doc.Path, key, prev, d.DeclRange)
		}
		seen[key] = d.DeclRange
	}
	return nil
}

func duplicateErr(path, key string, first, second hcl.Range) error {
	return errors.ParseError(path,
		fmt.Errorf("duplicate declaration of %s (first at %s, again at %s)", key, first.String(), second.String()))
}

func typeFromKeyword(keyword string) (cty.Type, error) {
	switch keyword {
	case "string":
		return cty.String, nil
	case "number":
		return cty.Number, nil
	case "bool":
		return cty.Bool, nil
	case "list":
		return cty.List(cty.String), nil
	case "map":
		return cty.Map(cty.String), nil
	case "":
		return cty.DynamicPseudoType, fmt.Errorf("type must be a keyword (string, number, bool, list, map)")
	default:
		return cty.DynamicPseudoType, fmt.Errorf("unsupported type keyword %q", keyword)
	}
}
