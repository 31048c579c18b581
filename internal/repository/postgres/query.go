package postgres

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// where collects AND-ed conditions. Each condition uses ? for its arguments,
// which are numbered $n in order of appearance.
type where struct {
	conds []string
	args  []interface{}
}

func (w *where) add(cond string, args ...interface{}) {
	if cond == "" {
		return
	}
	var b strings.Builder
	used := 0
	for _, r := range cond {
		if r == '?' && used < len(args) {
			w.args = append(w.args, args[used])
			used++
			b.WriteString("$" + strconv.Itoa(len(w.args)))
			continue
		}
		b.WriteRune(r)
	}
	w.conds = append(w.conds, b.String())
}

// next returns the placeholder for an argument appended after the conditions.
func (w *where) next(arg interface{}) string {
	w.args = append(w.args, arg)
	return "$" + strconv.Itoa(len(w.args))
}

func (w *where) String() string {
	if len(w.conds) == 0 {
		return ""
	}
	return "WHERE " + strings.Join(w.conds, " AND ")
}

// paginate appends LIMIT and OFFSET when set.
func (w *where) paginate(limit, offset int) string {
	var parts []string
	if limit > 0 {
		parts = append(parts, "LIMIT "+w.next(limit))
	}
	if offset > 0 {
		parts = append(parts, "OFFSET "+w.next(offset))
	}
	return strings.Join(parts, " ")
}

func marshalJSON(v interface{}) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal json: %w", err)
	}
	return b, nil
}

// marshalMap stores nil maps as SQL NULL.
func marshalMap(m map[string]any) ([]byte, error) {
	if m == nil {
		return nil, nil
	}
	return marshalJSON(m)
}

func unmarshalMap(b []byte) (map[string]any, error) {
	if len(b) == 0 {
		return nil, nil
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
	}
	return m, nil
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
