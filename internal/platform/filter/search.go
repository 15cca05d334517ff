package filter

import "strings"

// CaseFoldFunc names the SQL function Search applies to columns. It must
// lower Unicode text the way strings.ToLower does; stores register it.
const CaseFoldFunc = "casefold"

// Search builds a case-insensitive substring match over columns. An empty
// query yields an empty condition.
func Search(query string, columns ...string) SQLCondition {
	query = strings.TrimSpace(query)
	if query == "" || len(columns) == 0 {
		return SQLCondition{}
	}
	pattern := "%" + escapeLike(strings.ToLower(query)) + "%"
	clauses := make([]string, 0, len(columns))
	params := make([]any, 0, len(columns))
	for _, column := range columns {
		clauses = append(clauses, CaseFoldFunc+"(COALESCE("+column+", '')) LIKE ? ESCAPE '\\'")
		params = append(params, pattern)
	}
	return SQLCondition{Clause: "(" + strings.Join(clauses, " OR ") + ")", Params: params}
}

// Matches reports whether query is a case-insensitive substring of any field.
// An empty query matches everything.
func Matches(query string, fields ...string) bool {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return true
	}
	for _, field := range fields {
		if strings.Contains(strings.ToLower(field), query) {
			return true
		}
	}
	return false
}

// And joins non-empty conditions with AND.
func And(conditions ...SQLCondition) SQLCondition {
	var clauses []string
	var params []any
	for _, cond := range conditions {
		if cond.Empty() {
			continue
		}
		clauses = append(clauses, cond.Clause)
		params = append(params, cond.Params...)
	}
	if len(clauses) == 0 {
		return SQLCondition{}
	}
	return SQLCondition{Clause: strings.Join(clauses, " AND "), Params: params}
}

// Where renders the condition as a WHERE clause, or "" when empty.
func (c SQLCondition) Where() string {
	if c.Empty() {
		return ""
	}
	return " WHERE " + c.Clause
}

func escapeLike(value string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return replacer.Replace(value)
}
