package audit

import (
	"fmt"
	"strings"
)

// Valid action types, in the order reported by validation errors.
var ActionTypes = []string{
	"READ", "WRITE", "UPDATE", "DELETE", "EXECUTE", "CREATE",
	"LOGIN", "LOGOUT", "ACCESS", "MODIFY", "GRANT", "REVOKE",
	"APPROVE", "REJECT",
}

// Valid action categories, in the order reported by validation errors.
var ActionCategories = []string{
	"DATABASE", "API", "AUTH", "FILE", "SYSTEM",
	"NETWORK", "SECURITY", "COMPLIANCE", "USER", "ADMIN",
}

var (
	actionTypeSet = toSet(ActionTypes)
	categorySet   = toSet(ActionCategories)
)

func toSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}

// NormalizeActionType upper-cases and validates an action type.
func NormalizeActionType(actionType string) (string, error) {
	if actionType == "" {
		return "", &ValidationError{Field: "action.type", Reason: "cannot be empty"}
	}
	upper := strings.ToUpper(actionType)
	if _, ok := actionTypeSet[upper]; !ok {
		return "", &ValidationError{
			Field:  "action.type",
			Reason: fmt.Sprintf("unknown value %q, valid types: %s", actionType, strings.Join(ActionTypes, ", ")),
		}
	}
	return upper, nil
}

// NormalizeCategory upper-cases and validates an action category.
func NormalizeCategory(category string) (string, error) {
	if category == "" {
		return "", &ValidationError{Field: "action.category", Reason: "cannot be empty"}
	}
	upper := strings.ToUpper(category)
	if _, ok := categorySet[upper]; !ok {
		return "", &ValidationError{
			Field:  "action.category",
			Reason: fmt.Sprintf("unknown value %q, valid categories: %s", category, strings.Join(ActionCategories, ", ")),
		}
	}
	return upper, nil
}
