// Package schema derives JSON Schemas from Go structs and decodes loosely
// typed input (tool calls, trigger data) into them.
//
// Struct tags drive everything:
//
//	type Input struct {
//		Path          string `json:"path" validate:"required" jsonschema_description:"Directory path to analyze"`
//		IncludeHidden bool   `json:"includeHidden,omitempty" default:"false"`
//	}
//
// Fields without omitempty are required in the schema. default tags fill
// zero values before validate tags are checked.
package schema

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/invopop/jsonschema"
)

// ErrInvalid wraps every decode or validation failure.
var ErrInvalid = errors.New("invalid input")

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func validatorInstance() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()
		// Report JSON field names so messages match what callers sent.
		validate.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "-" || name == "" {
				return f.Name
			}
			return name
		})
	})
	return validate
}

// Reflect returns the JSON Schema of v's type as a plain map. required is a
// []string so callers can hand it to SDKs that expect one.
func Reflect(v any) map[string]any {
	if v == nil {
		return map[string]any{"type": "object", "properties": map[string]any{}}
	}
	r := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	s := r.Reflect(v)
	s.Version = ""

	raw, err := json.Marshal(s)
	if err != nil {
		// jsonschema output is always marshalable.
		panic(fmt.Sprintf("schema: marshal: %v", err))
	}
	out := map[string]any{}
	_ = json.Unmarshal(raw, &out)

	if len(s.Required) > 0 {
		out["required"] = append([]string(nil), s.Required...)
	} else {
		delete(out, "required")
	}
	if props, ok := out["properties"].(map[string]any); ok {
		injectDefaults(reflect.TypeOf(v), props)
	}
	return out
}

// injectDefaults copies default tags into the schema properties.
func injectDefaults(t reflect.Type, props map[string]any) {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return
	}
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		def, ok := f.Tag.Lookup("default")
		if !ok {
			continue
		}
		prop, ok := props[jsonName(f)].(map[string]any)
		if !ok {
			continue
		}
		if v, err := parseScalar(f.Type, def); err == nil {
			prop["default"] = v.Interface()
		}
	}
}

// Decode unmarshals raw into a new T, applies defaults and validates it.
// Empty input decodes as {}.
func Decode[T any](raw []byte) (T, error) {
	var out T
	err := DecodeInto(raw, &out)
	return out, err
}

// DecodeInto is Decode for a caller-allocated struct pointer.
func DecodeInto(raw []byte, target any) error {
	if len(strings.TrimSpace(string(raw))) == 0 || string(raw) == "null" {
		raw = []byte("{}")
	}
	if err := json.Unmarshal(raw, target); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if err := ApplyDefaults(target); err != nil {
		return err
	}
	return Validate(target)
}

// DecodeMap is DecodeInto for map-shaped input such as trigger data.
func DecodeMap(in map[string]any, target any) error {
	raw, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return DecodeInto(raw, target)
}

// Validate checks validate tags on a struct (or pointer to one).
func Validate(v any) error {
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return nil
	}
	if err := validatorInstance().Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Field(), fe.Tag()))
			}
			return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(msgs, "; "))
		}
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return nil
}

// ApplyDefaults sets every zero-valued field that carries a default tag.
// Only scalar kinds are supported.
func ApplyDefaults(target any) error {
	rv := reflect.ValueOf(target)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return nil
	}
	rv = rv.Elem()
	if rv.Kind() != reflect.Struct {
		return nil
	}
	t := rv.Type()
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		def, ok := f.Tag.Lookup("default")
		if !ok || !f.IsExported() {
			continue
		}
		fv := rv.Field(i)
		if !fv.IsZero() {
			continue
		}
		v, err := parseScalar(f.Type, def)
		if err != nil {
			return fmt.Errorf("%w: default for %s: %v", ErrInvalid, f.Name, err)
		}
		fv.Set(v)
	}
	return nil
}

func parseScalar(t reflect.Type, s string) (reflect.Value, error) {
	v := reflect.New(t).Elem()
	switch t.Kind() {
	case reflect.String:
		v.SetString(s)
	case reflect.Bool:
		b, err := strconv.ParseBool(s)
		if err != nil {
			return v, err
		}
		v.SetBool(b)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return v, err
		}
		v.SetInt(n)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return v, err
		}
		v.SetUint(n)
	case reflect.Float32, reflect.Float64:
		n, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return v, err
		}
		v.SetFloat(n)
	default:
		return v, fmt.Errorf("unsupported kind %s", t.Kind())
	}
	return v, nil
}

func jsonName(f reflect.StructField) string {
	name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
	if name == "" {
		return f.Name
	}
	return name
}
