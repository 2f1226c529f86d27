package types

import "slices"

var VALID_BUILTIN_TYPES = []FieldType{
	FieldTypeInt, FieldTypeString, FieldTypeDate, FieldTypeFloat,
	FieldTypeBool, FieldTypeBytes, FieldTypeDecimal, FieldTypeJSON,
}

type FieldType string

const (
	FieldTypeInt     FieldType = "Int"
	FieldTypeString  FieldType = "String"
	FieldTypeDate    FieldType = "Date"
	FieldTypeFloat   FieldType = "Float"
	FieldTypeBool    FieldType = "Bool"
	FieldTypeBytes   FieldType = "Bytes"
	FieldTypeDecimal FieldType = "Decimal"
	FieldTypeJSON    FieldType = "JSON"
)

func (t FieldType) IsValid() bool {
	return slices.Contains(VALID_BUILTIN_TYPES, t)
}

// Only Int and String columns can act as a primary key.
func (t FieldType) CanBePrimary() bool {
	return t == FieldTypeInt || t == FieldTypeString
}

func (t FieldType) IsNumeric() bool {
	return t == FieldTypeInt || t == FieldTypeFloat || t == FieldTypeDecimal
}
