package props

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseKeyPropSafe reports whether key(value) marks the primary key.
func ParseKeyPropSafe(value string) (bool, error) {
	if strings.TrimSpace(value) != KeyPropPrimary {
		return false, fmt.Errorf("key(%s) is not a valid prop; only key(%s) is supported", value, KeyPropPrimary)
	}
	return true, nil
}

func ParseIndexPropSafe(value string) (bool, error) {
	indexed, err := strconv.ParseBool(strings.TrimSpace(value))
	if err != nil {
		return false, fmt.Errorf("index(%s) is not a valid prop; %s", value, err.Error())
	}
	return indexed, nil
}

// ValidatePropValue checks the value of a known prop.
func ValidatePropValue(prop FieldProp, value string) error {
	var err error
	switch prop {
	case FieldPropKey:
		_, err = ParseKeyPropSafe(value)
	case FieldPropIndex:
		_, err = ParseIndexPropSafe(value)
	default:
		err = fmt.Errorf("Invalid field prop: %s", prop)
	}
	return err
}
