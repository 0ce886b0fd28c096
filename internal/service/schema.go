package service

import (
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"
)

// Collection names.
const (
	Bootcamps = "bootcamps"
	Courses   = "courses"
	Reviews   = "reviews"
	Users     = "users"
)

// Kind is the value type of a field.
type Kind int

const (
	KindString Kind = iota
	KindNumber
	KindBool
	KindStringList
)

// Field describes one document field.
type Field struct {
	Name     string
	Kind     Kind
	Required string // message when missing; empty means optional
	MaxLen   int
	MinLen   int
	Min, Max float64 // numeric bounds, checked when Min < Max
	Enum     []string
	Pattern  *regexp.Regexp
	Message  string // message when Pattern, Enum or bounds fail
	Default  any
	// Secret fields are hashed before storage and never returned.
	Secret bool
}

// Schema lists the fields a collection accepts. Fields not listed are dropped.
type Schema struct {
	Collection string
	Singular   string
	Fields     []Field
	Unique     []string
	// UniqueTogether lists field groups whose combined values may occur once.
	UniqueTogether [][]string
}

var emailPattern = regexp.MustCompile(`^\w+([\.-]?\w+)*@\w+([\.-]?\w+)*(\.\w{2,3})+$`)

var urlPattern = regexp.MustCompile(`^https?://[-a-zA-Z0-9@:%._+~#=]{1,256}\.[a-zA-Z0-9()]{1,6}\b([-a-zA-Z0-9()@:%_+.~#?&/=]*)$`)

// Schemas returns the collection schemas keyed by collection name.
func Schemas() map[string]*Schema {
	return map[string]*Schema{
		Bootcamps: {
			Collection: Bootcamps,
			Singular:   "Bootcamp",
			Unique:     []string{"name"},
			Fields: []Field{
				{Name: "name", Required: "Please add a name", MaxLen: 50},
				{Name: "slug"},
				{Name: "description", Required: "Please add a description", MaxLen: 500},
				{Name: "website", Pattern: urlPattern, Message: "Please use a valid URL with HTTP or HTTPS"},
				{Name: "phone", MaxLen: 20},
				{Name: "email", Pattern: emailPattern, Message: "Please add a valid email"},
				{Name: "address", Required: "Please add an address"},
				{Name: "careers", Kind: KindStringList, Required: "Please add at least one career",
					Enum: []string{"Web Development", "Mobile Development", "UI/UX", "Data Science", "Business", "Other"}},
				{Name: "averageRating", Kind: KindNumber, Min: 1, Max: 10, Message: "Rating must be between 1 and 10"},
				{Name: "averageCost", Kind: KindNumber},
				{Name: "photo", Default: "no-photo.jpg"},
				{Name: "housing", Kind: KindBool, Default: false},
				{Name: "jobAssistance", Kind: KindBool, Default: false},
				{Name: "jobGuarantee", Kind: KindBool, Default: false},
				{Name: "acceptGi", Kind: KindBool, Default: false},
				{Name: "user"},
			},
		},
		Courses: {
			Collection: Courses,
			Singular:   "Course",
			Fields: []Field{
				{Name: "title", Required: "Please add a course title"},
				{Name: "description", Required: "Please add a description"},
				{Name: "weeks", Kind: KindNumber, Required: "Please add number of weeks"},
				{Name: "tuition", Kind: KindNumber, Required: "Please add a tuition cost"},
				{Name: "minimumSkill", Required: "Please add a minimum skill",
					Enum: []string{"beginner", "intermediate", "advanced"}},
				{Name: "scholarshipAvailable", Kind: KindBool, Default: false},
				{Name: "bootcamp", Required: "Please add a bootcamp"},
				{Name: "user"},
			},
		},
		Reviews: {
			Collection:     Reviews,
			Singular:       "Review",
			UniqueTogether: [][]string{{"bootcamp", "user"}},
			Fields: []Field{
				{Name: "title", Required: "Please add a title for the review", MaxLen: 100},
				{Name: "text", Required: "Please add some text"},
				{Name: "rating", Kind: KindNumber, Required: "Please add a rating between 1 and 10",
					Min: 1, Max: 10, Message: "Please add a rating between 1 and 10"},
				{Name: "bootcamp", Required: "Please add a bootcamp"},
				{Name: "user", Required: "Please add a user"},
			},
		},
		Users: {
			Collection: Users,
			Singular:   "User",
			Unique:     []string{"email"},
			Fields: []Field{
				{Name: "name", Required: "Please add a name"},
				{Name: "email", Required: "Please add an email", Pattern: emailPattern, Message: "Please add a valid email"},
				{Name: "role", Enum: []string{"user", "publisher"}, Default: "user"},
				{Name: "password", Required: "Please add a password", MinLen: 6, Secret: true},
			},
		},
	}
}

// UniqueFields returns the unique field names per collection, for stores
// that enforce uniqueness.
func UniqueFields(schemas map[string]*Schema) map[string][]string {
	out := make(map[string][]string, len(schemas))
	for name, s := range schemas {
		if len(s.Unique) > 0 {
			out[name] = slices.Clone(s.Unique)
		}
	}
	return out
}

func (s *Schema) field(name string) (Field, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// clean keeps the known fields of in, coerced to their kinds, and collects
// validation messages. When partial is set, missing required fields are not
// reported and defaults are not applied.
func (s *Schema) clean(in map[string]any, partial bool) (map[string]any, []string) {
	out := make(map[string]any, len(s.Fields))
	var problems []string

	for _, f := range s.Fields {
		raw, present := in[f.Name]
		if present && isBlank(raw) {
			present = false
		}
		if !present {
			switch {
			case partial:
			case f.Required != "":
				problems = append(problems, f.Required)
			case f.Default != nil:
				out[f.Name] = f.Default
			}
			continue
		}

		v, ok := coerce(f, raw)
		if !ok {
			problems = append(problems, "Invalid value for "+f.Name)
			continue
		}
		if msg := check(f, v); msg != "" {
			problems = append(problems, msg)
			continue
		}
		out[f.Name] = v
	}
	return out, problems
}

func isBlank(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	case []any:
		return len(t) == 0
	}
	return false
}

func coerce(f Field, v any) (any, bool) {
	switch f.Kind {
	case KindString:
		switch t := v.(type) {
		case string:
			return strings.TrimSpace(t), true
		case float64, bool:
			return fmt.Sprint(t), true
		}
	case KindNumber:
		switch t := v.(type) {
		case float64:
			return t, true
		case int:
			return float64(t), true
		case string:
			if n, err := strconv.ParseFloat(strings.TrimSpace(t), 64); err == nil {
				return n, true
			}
		}
	case KindBool:
		switch t := v.(type) {
		case bool:
			return t, true
		case string:
			if b, err := strconv.ParseBool(t); err == nil {
				return b, true
			}
		}
	case KindStringList:
		switch t := v.(type) {
		case string:
			return []any{t}, true
		case []any:
			for _, e := range t {
				if _, ok := e.(string); !ok {
					return nil, false
				}
			}
			return t, true
		case []string:
			out := make([]any, len(t))
			for i, e := range t {
				out[i] = e
			}
			return out, true
		}
	}
	return nil, false
}

func check(f Field, v any) string {
	msg := func(def string) string {
		if f.Message != "" {
			return f.Message
		}
		return def
	}

	switch t := v.(type) {
	case string:
		if f.MaxLen > 0 && len(t) > f.MaxLen {
			return fmt.Sprintf("%s can not be more than %d characters", f.Name, f.MaxLen)
		}
		if f.MinLen > 0 && len(t) < f.MinLen {
			return fmt.Sprintf("%s must be at least %d characters", f.Name, f.MinLen)
		}
		if f.Pattern != nil && !f.Pattern.MatchString(t) {
			return msg("Invalid value for " + f.Name)
		}
		if len(f.Enum) > 0 && !slices.Contains(f.Enum, t) {
			return msg(fmt.Sprintf("%q is not a valid %s", t, f.Name))
		}
	case float64:
		if f.Min < f.Max && (t < f.Min || t > f.Max) {
			return msg(fmt.Sprintf("%s must be between %g and %g", f.Name, f.Min, f.Max))
		}
	case []any:
		for _, e := range t {
			if s, _ := e.(string); len(f.Enum) > 0 && !slices.Contains(f.Enum, s) {
				return msg(fmt.Sprintf("%q is not a valid %s", s, f.Name))
			}
		}
	}
	return ""
}

// coerceFilter converts a query-string value to the field's kind so that
// equality filters match stored values. Unknown fields and values that do
// not parse stay strings.
func (s *Schema) coerceFilter(name, raw string) any {
	f, ok := s.field(name)
	if !ok {
		return raw
	}
	switch f.Kind {
	case KindNumber:
		if n, err := strconv.ParseFloat(raw, 64); err == nil {
			return n
		}
	case KindBool:
		if b, err := strconv.ParseBool(raw); err == nil {
			return b
		}
	}
	return raw
}

// secret reports whether name must never be returned to clients.
func (s *Schema) secret(name string) bool {
	f, ok := s.field(name)
	return ok && f.Secret
}

// slugify lowercases name and joins its alphanumeric runs with dashes.
func slugify(name string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(name) {
		if ('a' <= r && r <= 'z') || ('0' <= r && r <= '9') {
			if dash && b.Len() > 0 {
				b.WriteByte('-')
			}
			b.WriteRune(r)
			dash = false
			continue
		}
		dash = true
	}
	return b.String()
}
