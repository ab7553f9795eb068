package wl

import (
	"reflect"
	"strings"

	"github.com/iancoleman/strcase"
)

// Named overrides the derived name for a type. Values without it register
// under "<package>:<kebab-type-name>", so payments.AccountOpened becomes
// "payments:account-opened".
type Named interface {
	TypeName() string
}

func NameOf(value any) string {
	if named, ok := value.(Named); ok {
		return named.TypeName()
	}

	qualified := strings.TrimLeft(reflect.TypeOf(value).String(), "*")
	namespace, name, found := strings.Cut(qualified, ".")
	if !found {
		return strcase.ToKebab(qualified)
	}

	return strcase.ToKebab(namespace) + ":" + strcase.ToKebab(strings.ReplaceAll(name, ".", "-"))
}
