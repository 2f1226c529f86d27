package builder

import (
	"fmt"

	"github.com/tobsdb/memdb/internal/props"
	"github.com/tobsdb/memdb/internal/types"
)

type Field struct {
	Name        string
	BuiltinType types.FieldType
	Properties  map[props.FieldProp]string

	Table *Table `json:"-"`
}

type IndexLevel int

const (
	IndexLevelNone IndexLevel = iota
	IndexLevelIndexed
	IndexLevelPrimary
)

func (field *Field) IndexLevel() IndexLevel {
	if key, ok := field.Properties[props.FieldPropKey]; ok {
		if primary, _ := props.ParseKeyPropSafe(key); primary {
			return IndexLevelPrimary
		}
	}
	if index, ok := field.Properties[props.FieldPropIndex]; ok {
		if indexed, _ := props.ParseIndexPropSafe(index); indexed {
			return IndexLevelIndexed
		}
	}
	return IndexLevelNone
}

// Normalize converts a value written to this field.
func (field *Field) Normalize(input any) (any, error) {
	return types.Normalize(field.BuiltinType, field.Name, input)
}

// field local rules:
// - primary key field must be type Int or String
// - a primary key can't also carry index(true); it is already keyed
func CheckFieldRules(field *Field) error {
	if field.IndexLevel() != IndexLevelPrimary {
		return nil
	}
	if !field.BuiltinType.CanBePrimary() {
		return fmt.Errorf("field(%s %s key(primary)) must be type Int or String", field.Name, field.BuiltinType)
	}
	if _, ok := field.Properties[props.FieldPropIndex]; ok {
		return fmt.Errorf("field(%s %s key(primary)) cannot have index prop", field.Name, field.BuiltinType)
	}
	return nil
}
