package builder

import (
	"bufio"
	"fmt"
	"regexp"
	"strings"

	"github.com/tobsdb/memdb/internal/parser"
)

var name_regex = regexp.MustCompile(`^\w+$`)

func name_is_valid(name string) bool {
	return name_regex.MatchString(name)
}

// ParseSchema reads table declarations written in the schema DSL.
func ParseSchema(schema_data string) ([]TableDef, error) {
	defs := []TableDef{}
	seen := map[string]bool{}

	scanner := bufio.NewScanner(strings.NewReader(schema_data))
	line_idx := 0

	var current_table *TableDef
	var current_fields map[string]bool

	for scanner.Scan() {
		line_idx++
		line := strings.TrimSpace(scanner.Text())

		// Ignore empty lines & comments
		if len(line) == 0 || strings.HasPrefix(line, "//") {
			continue
		}

		state, data, err := parser.LineParser(line)
		if err != nil {
			return nil, ParseLineError(line_idx, err.Error())
		}

		switch state {
		case parser.ParserStateTableStart:
			if current_table != nil {
				return nil, ParseLineError(line_idx, fmt.Sprintf("Table %s is not closed", current_table.Name))
			}
			if seen[data.Name] {
				return nil, ParseLineError(line_idx, fmt.Sprintf("Duplicate table %s", data.Name))
			}
			current_table = &TableDef{Name: data.Name}
			current_fields = map[string]bool{}
		case parser.ParserStateTableEnd:
			if current_table == nil {
				return nil, ParseLineError(line_idx, "Unexpected }")
			}
			if len(current_table.PrimaryKey) == 0 {
				return nil, ParseLineError(line_idx, fmt.Sprintf("Table %s has no primary key", current_table.Name))
			}
			seen[current_table.Name] = true
			defs = append(defs, *current_table)
			current_table = nil
		case parser.ParserStateNewField:
			if current_table == nil {
				return nil, ParseLineError(line_idx, "Field declared outside of a table")
			}
			if current_fields[data.Name] {
				return nil, ParseLineError(line_idx, fmt.Sprintf("Duplicate field %s", data.Name))
			}
			new_field := Field{
				Name:        data.Name,
				BuiltinType: data.Builtin_type,
				Properties:  data.Properties,
			}
			if err := CheckFieldRules(&new_field); err != nil {
				return nil, ParseLineError(line_idx, err.Error())
			}

			switch new_field.IndexLevel() {
			case IndexLevelPrimary:
				if len(current_table.PrimaryKey) > 0 {
					return nil, ParseLineError(line_idx, "Table can't have multiple primary keys")
				}
				current_table.PrimaryKey = new_field.Name
			case IndexLevelIndexed:
				current_table.Indexed = append(current_table.Indexed, new_field.Name)
			}

			current_fields[data.Name] = true
			current_table.Columns = append(current_table.Columns, ColumnDef{Name: data.Name, Type: data.Builtin_type})
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if current_table != nil {
		return nil, fmt.Errorf("Table %s is not closed", current_table.Name)
	}

	return defs, nil
}

func ParseLineError(line int, reason string) error {
	return fmt.Errorf("Error parsing line %d: %s", line, reason)
}
