// Package expr compiles partial records into store-native update expressions.
//
// The output follows the DynamoDB update-expression grammar (SET/REMOVE
// clauses over placeholder names and values). Every attribute gets a name
// placeholder, so reserved words never collide with real attribute names.
package expr

import (
	"strconv"
	"strings"
)

// Attr is a single attribute of a partial record.
type Attr struct {
	Name  string
	Value any
}

// Attrs is an ordered partial record. Order is preserved by Compile.
type Attrs []Attr

// Set replaces the value of name in place or appends it.
func (a Attrs) Set(name string, v any) Attrs {
	for i := range a {
		if a[i].Name == name {
			a[i].Value = v
			return a
		}
	}
	return append(a, Attr{Name: name, Value: v})
}

// Without returns a copy of a with the named attribute dropped.
func (a Attrs) Without(name string) Attrs {
	out := make(Attrs, 0, len(a))
	for _, at := range a {
		if at.Name != name {
			out = append(out, at)
		}
	}
	return out
}

// Get returns the value stored under name.
func (a Attrs) Get(name string) (any, bool) {
	for _, at := range a {
		if at.Name == name {
			return at.Value, true
		}
	}
	return nil, false
}

// Assignment is one SET clause in placeholder form.
type Assignment struct {
	Name  string // "#fN"
	Value string // ":vN"
}

// Update is a compiled update expression.
type Update struct {
	Names      map[string]string // placeholder -> attribute name
	Values     map[string]any    // placeholder -> value
	Expression string

	Sets    []Assignment
	Removes []string // name placeholders
}

// IsEmpty reports whether the update has no clauses at all.
func (u Update) IsEmpty() bool { return len(u.Sets) == 0 && len(u.Removes) == 0 }

// Compile turns attrs into an Update. Non-empty values become SET clauses,
// empty ones become REMOVE clauses. Identical input yields identical output.
// Attribute names are expected to be unique; use Attrs.Set to build them.
func Compile(attrs Attrs) Update {
	u := Update{
		Names:  make(map[string]string, len(attrs)),
		Values: make(map[string]any, len(attrs)),
	}
	for i, at := range attrs {
		name := "#f" + strconv.Itoa(i)
		u.Names[name] = at.Name
		if IsEmptyValue(at.Value) {
			u.Removes = append(u.Removes, name)
			continue
		}
		val := ":v" + strconv.Itoa(i)
		u.Values[val] = at.Value
		u.Sets = append(u.Sets, Assignment{Name: name, Value: val})
	}

	var b strings.Builder
	if len(u.Sets) > 0 {
		b.WriteString("SET ")
		for i, s := range u.Sets {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(s.Name + " = " + s.Value)
		}
	}
	if len(u.Removes) > 0 {
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString("REMOVE " + strings.Join(u.Removes, ", "))
	}
	u.Expression = b.String()
	return u
}

// IsEmptyValue reports whether v counts as "undefined" for an update.
func IsEmptyValue(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	case *string:
		return t == nil || *t == ""
	case []byte:
		return len(t) == 0
	case []string:
		return len(t) == 0
	case []any:
		return len(t) == 0
	case map[string]any:
		return len(t) == 0
	}
	return false
}

// Apply evaluates u against base and returns the resulting item. base is not
// modified.
func Apply(base map[string]any, u Update) map[string]any {
	out := make(map[string]any, len(base)+len(u.Sets))
	for k, v := range base {
		out[k] = v
	}
	for _, s := range u.Sets {
		out[u.Names[s.Name]] = u.Values[s.Value]
	}
	for _, r := range u.Removes {
		delete(out, u.Names[r])
	}
	return out
}

// SetValues resolves the SET clauses into attribute name -> value.
func (u Update) SetValues() map[string]any {
	out := make(map[string]any, len(u.Sets))
	for _, s := range u.Sets {
		out[u.Names[s.Name]] = u.Values[s.Value]
	}
	return out
}

// RemovedNames resolves the REMOVE clauses into attribute names, in order.
func (u Update) RemovedNames() []string {
	out := make([]string, 0, len(u.Removes))
	for _, r := range u.Removes {
		out = append(out, u.Names[r])
	}
	return out
}
