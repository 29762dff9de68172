package conf

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"

	"gopkg.in/yaml.v2"
)

// loadFromEnvironment overrides configuration entries with environment
// variables. The variable name is the upper-cased yaml tag with the given
// prefix, e.g. GB_SIPADDRESS. Map-valued entries take a comma-separated
// list.
func loadFromEnvironment(prefix string, conf *Conf) error {
	rv := reflect.ValueOf(conf).Elem()
	rt := rv.Type()

	for i := 0; i < rt.NumField(); i++ {
		tag := strings.Split(rt.Field(i).Tag.Get("yaml"), ",")[0]
		if tag == "" {
			continue
		}

		name := prefix + "_" + strings.ToUpper(tag)
		ev, ok := os.LookupEnv(name)
		if !ok {
			continue
		}

		switch f := rv.Field(i).Addr().Interface().(type) {
		case *string:
			*f = ev

		case *bool:
			b, err := strconv.ParseBool(ev)
			if err != nil {
				return fmt.Errorf("%s: %v", name, err)
			}
			*f = b

		default:
			payload := ev
			switch rv.Field(i).Kind() {
			case reflect.Map, reflect.Slice:
				payload = "[" + ev + "]"
			}

			err := yaml.Unmarshal([]byte(payload), f)
			if err != nil {
				return fmt.Errorf("%s: %v", name, err)
			}
		}
	}

	return nil
}
