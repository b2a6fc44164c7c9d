package language

import (
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/gqlerror"
)

type (
	Source                 = ast.Source
	QueryDocument          = ast.QueryDocument
	SchemaDocument         = ast.SchemaDocument
	SchemaDefinition       = ast.SchemaDefinition
	OperationDefinition    = ast.OperationDefinition
	OperationList          = ast.OperationList
	VariableDefinition     = ast.VariableDefinition
	VariableDefinitionList = ast.VariableDefinitionList
	SelectionSet           = ast.SelectionSet
	Selection              = ast.Selection
	Field                  = ast.Field
	InlineFragment         = ast.InlineFragment
	FragmentDefinition     = ast.FragmentDefinition
	FragmentDefinitionList = ast.FragmentDefinitionList
	FragmentSpread         = ast.FragmentSpread
	Directive              = ast.Directive
	DirectiveList          = ast.DirectiveList
	DirectiveDefinition    = ast.DirectiveDefinition
	DirectiveLocation      = ast.DirectiveLocation
	ArgumentList           = ast.ArgumentList
	Argument               = ast.Argument
	Value                  = ast.Value
	ChildValue             = ast.ChildValue
	FieldDefinition        = ast.FieldDefinition
	ArgumentDefinition     = ast.ArgumentDefinition
	EnumValueDefinition    = ast.EnumValueDefinition
	Type                   = ast.Type
	Definition             = ast.Definition
	DefinitionList         = ast.DefinitionList
	Position               = ast.Position
	Path                   = ast.Path
	PathElement            = ast.PathElement
	PathName               = ast.PathName
	PathIndex              = ast.PathIndex
)

type (
	Error     = gqlerror.Error
	ErrorList = gqlerror.List
	Location  = gqlerror.Location
)

type DefinitionKind = ast.DefinitionKind

type Operation = ast.Operation

type ValueKind = ast.ValueKind

const (
	Query        Operation = ast.Query
	Mutation     Operation = ast.Mutation
	Subscription Operation = ast.Subscription

	Object      DefinitionKind = ast.Object
	Interface   DefinitionKind = ast.Interface
	Union       DefinitionKind = ast.Union
	Scalar      DefinitionKind = ast.Scalar
	Enum        DefinitionKind = ast.Enum
	InputObject DefinitionKind = ast.InputObject

	Variable     ValueKind = ast.Variable
	IntValue     ValueKind = ast.IntValue
	FloatValue   ValueKind = ast.FloatValue
	StringValue  ValueKind = ast.StringValue
	BlockValue   ValueKind = ast.BlockValue
	BooleanValue ValueKind = ast.BooleanValue
	NullValue    ValueKind = ast.NullValue
	EnumValue    ValueKind = ast.EnumValue
	ListValue    ValueKind = ast.ListValue
	ObjectValue  ValueKind = ast.ObjectValue
)

// Executable directive locations.
const (
	LocationQuery              DirectiveLocation = ast.LocationQuery
	LocationMutation           DirectiveLocation = ast.LocationMutation
	LocationSubscription       DirectiveLocation = ast.LocationSubscription
	LocationField              DirectiveLocation = ast.LocationField
	LocationFragmentDefinition DirectiveLocation = ast.LocationFragmentDefinition
	LocationFragmentSpread     DirectiveLocation = ast.LocationFragmentSpread
	LocationInlineFragment     DirectiveLocation = ast.LocationInlineFragment
	LocationVariableDefinition DirectiveLocation = ast.LocationVariableDefinition
)

// Type system directive locations.
const (
	LocationSchema               DirectiveLocation = ast.LocationSchema
	LocationScalar               DirectiveLocation = ast.LocationScalar
	LocationObject               DirectiveLocation = ast.LocationObject
	LocationFieldDefinition      DirectiveLocation = ast.LocationFieldDefinition
	LocationArgumentDefinition   DirectiveLocation = ast.LocationArgumentDefinition
	LocationInterface            DirectiveLocation = ast.LocationInterface
	LocationUnion                DirectiveLocation = ast.LocationUnion
	LocationEnum                 DirectiveLocation = ast.LocationEnum
	LocationEnumValue            DirectiveLocation = ast.LocationEnumValue
	LocationInputObject          DirectiveLocation = ast.LocationInputObject
	LocationInputFieldDefinition DirectiveLocation = ast.LocationInputFieldDefinition
)
